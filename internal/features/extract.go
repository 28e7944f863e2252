package features

import (
	"errors"
	"net/mail"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrMalformedText is returned when note text is not valid UTF-8.
var ErrMalformedText = errors.New("note text is not valid UTF-8")

var (
	wordRe      = regexp.MustCompile(`[\p{L}\p{N}]+`)
	timeOfDayRe = regexp.MustCompile(`\b(?:(?:[01]?\d|2[0-3]):[0-5]\d(?:\s*[ap]\.?m\.?)?|(?:1[0-2]|0?[1-9])\s*[ap]\.?m\b)`)
	checkboxRe  = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+\[[ xX]\]`)
	deadlineRe  = regexp.MustCompile(`\b(?:deadline|due\s+(?:by|on|date)|due|follow[- ]?up|eod|eow|no later than)\b`)
	hashtagRe   = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_][\p{L}\p{N}_/-]*)`)
	mentionRe   = regexp.MustCompile(`(?:^|\s)@([\p{L}\p{N}_][\p{L}\p{N}_.-]*)`)
)

// Flags are the boolean structural predicates over a note.
type Flags struct {
	Attachment bool
	Calendar   bool
	TimeOfDay  bool
	Checkbox   bool
	Deadline   bool
}

// FeatureSet is the per-note bag of signals. It is built once by Extract
// and must be treated as read-only afterwards.
type FeatureSet struct {
	Tokens  []string // lowercase, in document order
	Display []string // original casing, aligned with Tokens
	Text    string   // lowercased title and body, for pattern rules

	Sender    string // lowercased address
	Source    string
	Timestamp time.Time
	Flags     Flags

	Hashtags    []string
	Mentions    []string
	TypeHint    string
	ProjectHint string

	Similarity          []Similarity
	SemanticUnavailable bool

	counts map[string]int
}

// Option adjusts extraction.
type Option func(*FeatureSet)

// WithSimilarity embeds already-computed similarity scores.
func WithSimilarity(scores []Similarity) Option {
	return func(fs *FeatureSet) {
		fs.Similarity = append([]Similarity(nil), scores...)
	}
}

// WithoutSemanticSignal marks the set as scored without similarity input.
func WithoutSemanticSignal() Option {
	return func(fs *FeatureSet) {
		fs.SemanticUnavailable = true
	}
}

// Extract builds a FeatureSet from note text and metadata. Empty text is
// valid and yields no tokens and all flags false.
func Extract(text string, md Metadata, opts ...Option) (*FeatureSet, error) {
	if !utf8.ValidString(text) {
		return nil, ErrMalformedText
	}

	lower := strings.ToLower(text)
	fs := &FeatureSet{
		Text:      lower,
		Sender:    normalizeSender(md.Sender),
		Source:    strings.ToLower(strings.TrimSpace(md.Source)),
		Timestamp: md.Timestamp,
		counts:    make(map[string]int),
	}

	for _, w := range wordRe.FindAllString(text, -1) {
		tok := strings.ToLower(w)
		fs.Tokens = append(fs.Tokens, tok)
		fs.Display = append(fs.Display, w)
		fs.counts[tok]++
	}

	fs.Flags = Flags{
		Attachment: len(md.Attachments) > 0,
		Calendar:   hasCalendarMarker(md),
		TimeOfDay:  timeOfDayRe.MatchString(lower),
		Checkbox:   checkboxRe.MatchString(text),
		Deadline:   deadlineRe.MatchString(lower),
	}

	fs.Hashtags = captureAll(hashtagRe, text)
	fs.Mentions = captureAll(mentionRe, text)
	fs.Hashtags = append(fs.Hashtags, frontmatterTags(md.Frontmatter)...)
	fs.TypeHint = frontmatterString(md.Frontmatter, "type")
	fs.ProjectHint = frontmatterString(md.Frontmatter, "project")

	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

// Words splits s into lowercase words using the tokenizer's boundaries.
func Words(s string) []string {
	words := wordRe.FindAllString(s, -1)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

// Count returns how many times token appears.
func (fs *FeatureSet) Count(token string) int {
	return fs.counts[token]
}

// PhraseCount returns the number of occurrences of a space-separated
// lowercase phrase. Single words use the token counts.
func (fs *FeatureSet) PhraseCount(phrase string) int {
	words := strings.Fields(phrase)
	switch len(words) {
	case 0:
		return 0
	case 1:
		return fs.counts[words[0]]
	}
	n := 0
	for i := 0; i+len(words) <= len(fs.Tokens); i++ {
		if equalAt(fs.Tokens, i, words) {
			n++
		}
	}
	return n
}

// ContainsPhrase reports whether words occur consecutively in the tokens.
func (fs *FeatureSet) ContainsPhrase(words []string) bool {
	if len(words) == 0 {
		return false
	}
	for i := 0; i+len(words) <= len(fs.Tokens); i++ {
		if equalAt(fs.Tokens, i, words) {
			return true
		}
	}
	return false
}

// Flag returns the value of a named structural flag.
func (fs *FeatureSet) Flag(name string) (value, known bool) {
	switch name {
	case "attachment":
		return fs.Flags.Attachment, true
	case "calendar":
		return fs.Flags.Calendar, true
	case "time_of_day":
		return fs.Flags.TimeOfDay, true
	case "checkbox":
		return fs.Flags.Checkbox, true
	case "deadline":
		return fs.Flags.Deadline, true
	}
	return false, false
}

// BestSimilarity returns the highest score among references matching the
// glob pattern.
func (fs *FeatureSet) BestSimilarity(pattern string) float64 {
	best := 0.0
	for _, s := range fs.Similarity {
		if ok, _ := path.Match(pattern, s.ReferenceID); ok && s.Score > best {
			best = s.Score
		}
	}
	return best
}

// SenderDomain returns the domain part of the sender address, if any.
func (fs *FeatureSet) SenderDomain() string {
	if _, domain, ok := strings.Cut(fs.Sender, "@"); ok {
		return domain
	}
	return ""
}

func equalAt(tokens []string, i int, words []string) bool {
	for j, w := range words {
		if tokens[i+j] != w {
			return false
		}
	}
	return true
}

func normalizeSender(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(s); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(s)
}

func hasCalendarMarker(md Metadata) bool {
	for k, v := range md.Headers {
		switch strings.ToLower(k) {
		case "content-type":
			if strings.Contains(strings.ToLower(v), "text/calendar") {
				return true
			}
		case "x-calendar-invite", "x-calendar", "calendar", "x-invite":
			if v != "" && !strings.EqualFold(v, "false") {
				return true
			}
		}
	}
	for _, a := range md.Attachments {
		if strings.HasSuffix(strings.ToLower(a), ".ics") {
			return true
		}
	}
	if v, ok := md.Frontmatter["calendar"].(bool); ok && v {
		return true
	}
	return false
}

func captureAll(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func frontmatterString(fm map[string]any, key string) string {
	if v, ok := fm[key].(string); ok {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return ""
}

func frontmatterTags(fm map[string]any) []string {
	switch v := fm["tags"].(type) {
	case []any:
		var out []string
		for _, t := range v {
			if s, ok := t.(string); ok && s != "" {
				out = append(out, strings.TrimPrefix(s, "#"))
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, t := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, strings.TrimPrefix(t, "#"))
		}
		return out
	}
	return nil
}
