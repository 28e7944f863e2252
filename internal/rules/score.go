package rules

import (
	"path"
	"strings"

	"github.com/abhisek/parasort/internal/features"
)

// CategoryScore holds the raw, unnormalized score for every configured
// category along with the per-signal contributions behind each score.
type CategoryScore struct {
	Scores        map[string]float64            `json:"scores"`
	Contributions map[string]map[string]float64 `json:"contributions"`
	// Signals maps every signal that fired on the note to its match count.
	Signals map[string]float64 `json:"signals"`
}

// Score applies the rule table to fs using weights w. It is a pure function.
func Score(fs *features.FeatureSet, cfg *Config, w *Weights) CategoryScore {
	cs := CategoryScore{
		Scores:        make(map[string]float64, len(cfg.categories)),
		Contributions: make(map[string]map[string]float64, len(cfg.categories)),
		Signals:       make(map[string]float64),
	}

	for _, cc := range cfg.categories {
		total := 0.0
		contrib := make(map[string]float64)

		seen := make(map[string]bool, len(cc.rules))
		keys := make([]string, 0, len(cc.rules))
		for _, r := range cc.rules {
			seen[r.Key] = true
			keys = append(keys, r.Key)
		}
		for _, k := range w.Signals(cc.name) {
			if !seen[k] {
				keys = append(keys, k)
			}
		}

		for _, key := range keys {
			n := cfg.count(key, cc.name, fs)
			if n <= 0 {
				continue
			}
			cs.Signals[key] = n
			if c := n * w.Lookup(cfg, cc.name, key); c > 0 {
				contrib[key] = c
				total += c
			}
		}

		cs.Scores[cc.name] = total
		cs.Contributions[cc.name] = contrib
	}
	return cs
}

// count evaluates a signal key against fs for category.
func (c *Config) count(key, category string, fs *features.FeatureSet) float64 {
	kind, name, ok := SplitKey(key)
	if !ok {
		return 0
	}

	switch kind {
	case KindKeyword:
		return float64(fs.PhraseCount(name))
	case KindPattern:
		re := c.pattern(name)
		if re == nil {
			return 0
		}
		return float64(len(re.FindAllStringIndex(fs.Text, -1)))
	case KindFlag:
		if name == FlagTypeHint {
			return boolCount(fs.TypeHint != "" && fs.TypeHint == category)
		}
		v, _ := fs.Flag(name)
		return boolCount(v)
	case KindSender:
		return boolCount(matchSender(name, fs.Sender, fs.Source))
	case KindSimilarity:
		best := fs.BestSimilarity(name)
		return boolCount(best > 0 && best >= c.opts.SimilarityThreshold)
	}
	return 0
}

// matchSender reports whether rule matches. Rule forms:
//
//	"@example.com"   sender domain or any subdomain
//	"pm@"            sender local part
//	"pm@example.com" exact address
//	"email"          source channel
func matchSender(rule, sender, source string) bool {
	switch {
	case strings.HasPrefix(rule, "@"):
		domain := rule[1:]
		_, got, ok := strings.Cut(sender, "@")
		return ok && (got == domain || strings.HasSuffix(got, "."+domain))
	case strings.HasSuffix(rule, "@"):
		return sender != "" && strings.HasPrefix(sender, rule)
	case strings.Contains(rule, "@"):
		return sender == rule
	default:
		if source != "" {
			if ok, _ := path.Match(rule, source); ok {
				return true
			}
		}
		return false
	}
}

func boolCount(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
