package rules

import "strings"

// Signal kinds. A signal key is "<kind>:<name>", for example "kw:agenda"
// or "flag:calendar". Keys are self-describing so learned weights can be
// evaluated for categories that never configured them.
const (
	KindKeyword    = "kw"
	KindPattern    = "re"
	KindFlag       = "flag"
	KindSender     = "sender"
	KindSimilarity = "sim"
)

// Structural flag names understood by the scorer.
const (
	FlagAttachment = "attachment"
	FlagCalendar   = "calendar"
	FlagTimeOfDay  = "time_of_day"
	FlagCheckbox   = "checkbox"
	FlagDeadline   = "deadline"
	FlagTypeHint   = "type_hint"
)

var knownFlags = map[string]bool{
	FlagAttachment: true,
	FlagCalendar:   true,
	FlagTimeOfDay:  true,
	FlagCheckbox:   true,
	FlagDeadline:   true,
	FlagTypeHint:   true,
}

// Key builds a signal key.
func Key(kind, name string) string {
	return kind + ":" + name
}

// SplitKey splits a signal key into kind and name.
func SplitKey(key string) (kind, name string, ok bool) {
	kind, name, ok = strings.Cut(key, ":")
	if !ok || kind == "" || name == "" {
		return "", "", false
	}
	return kind, name, true
}
