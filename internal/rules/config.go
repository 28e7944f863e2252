package rules

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/abhisek/parasort/internal/features"
)

// PatternSpec is a named regular expression evaluated over the lowercased note text.
type PatternSpec struct {
	Name   string
	Regex  string
	Weight float64
}

// CategorySpec is the uncompiled rule table for one category.
type CategorySpec struct {
	Name      string
	Keywords  map[string]float64
	Patterns  []PatternSpec
	Flags     map[string]float64
	Senders   map[string]float64
	Exemplars []string // glob patterns over similarity reference IDs
}

// Options holds the scalar scoring settings.
type Options struct {
	Fallback            string
	FallbackWeight      float64
	SimilarityThreshold float64
	SimilarityBonus     float64

	// MinWeight and MaxWeight bound every configured weight. A zero MaxWeight
	// leaves weights unbounded above.
	MinWeight float64
	MaxWeight float64
}

func (o Options) checkBounds(field, value string, w float64) error {
	if w < 0 {
		return &ValidationError{Field: field, Value: value, Reason: "must be >= 0"}
	}
	if o.MaxWeight <= 0 {
		return nil
	}
	if w < o.MinWeight || w > o.MaxWeight {
		return &ValidationError{Field: field, Value: value,
			Reason: fmt.Sprintf("weight %g outside [%g,%g]", w, o.MinWeight, o.MaxWeight)}
	}
	return nil
}

// Rule is one weighted signal configured for a category.
type Rule struct {
	Key    string
	Weight float64
}

type compiledCategory struct {
	name  string
	rules []Rule
	index map[string]float64
}

// Config is the compiled, read-only rule table.
type Config struct {
	categories []compiledCategory
	byName     map[string]int
	patterns   map[string]*regexp.Regexp
	opts       Options
}

// Compile validates specs and builds a Config. Category order is preserved.
func Compile(specs []CategorySpec, opts Options) (*Config, error) {
	if len(specs) == 0 {
		return nil, &ValidationError{Field: "categories", Reason: "at least one category is required"}
	}
	if opts.MaxWeight > 0 && opts.MinWeight > opts.MaxWeight {
		return nil, &ValidationError{Field: "min_weight", Value: fmt.Sprint(opts.MinWeight), Reason: "must be <= max_weight"}
	}
	if err := opts.checkBounds("fallback_weight", fmt.Sprint(opts.FallbackWeight), opts.FallbackWeight); err != nil {
		return nil, err
	}
	if err := opts.checkBounds("similarity.bonus", fmt.Sprint(opts.SimilarityBonus), opts.SimilarityBonus); err != nil {
		return nil, err
	}
	if opts.SimilarityThreshold < 0 || opts.SimilarityThreshold > 1 {
		return nil, &ValidationError{Field: "similarity.threshold", Value: fmt.Sprint(opts.SimilarityThreshold), Reason: "must be within [0,1]"}
	}

	cfg := &Config{
		byName:   make(map[string]int, len(specs)),
		patterns: make(map[string]*regexp.Regexp),
		opts:     opts,
	}
	patternSrc := make(map[string]string)

	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, &ValidationError{Field: "category", Reason: "name is empty"}
		}
		if _, dup := cfg.byName[name]; dup {
			return nil, &ValidationError{Field: "category", Value: name, Reason: "defined twice"}
		}

		cc := compiledCategory{name: name, index: make(map[string]float64)}
		add := func(key string, w float64) error {
			if err := opts.checkBounds("weight", name+"/"+key, w); err != nil {
				return err
			}
			if _, dup := cc.index[key]; dup {
				return &ValidationError{Field: "rule", Value: name + "/" + key, Reason: "defined twice"}
			}
			cc.index[key] = w
			cc.rules = append(cc.rules, Rule{Key: key, Weight: w})
			return nil
		}

		for _, kw := range sortedKeys(spec.Keywords) {
			norm := NormalizeKeyword(kw)
			if norm == "" {
				return nil, &ValidationError{Field: "keyword", Value: name + "/" + kw, Reason: "contains no word characters"}
			}
			if err := add(Key(KindKeyword, norm), spec.Keywords[kw]); err != nil {
				return nil, err
			}
		}

		for _, p := range spec.Patterns {
			if p.Name == "" {
				return nil, &ValidationError{Field: "pattern", Value: name, Reason: "name is empty"}
			}
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, &ValidationError{Field: "pattern", Value: p.Name, Reason: err.Error()}
			}
			if prev, ok := patternSrc[p.Name]; ok && prev != p.Regex {
				return nil, &ValidationError{Field: "pattern", Value: p.Name, Reason: "name reused with a different expression"}
			}
			patternSrc[p.Name] = p.Regex
			cfg.patterns[p.Name] = re
			if err := add(Key(KindPattern, p.Name), p.Weight); err != nil {
				return nil, err
			}
		}

		for _, flag := range sortedKeys(spec.Flags) {
			if !knownFlags[flag] {
				return nil, &ValidationError{Field: "flag", Value: name + "/" + flag, Reason: "unknown structural flag"}
			}
			if err := add(Key(KindFlag, flag), spec.Flags[flag]); err != nil {
				return nil, err
			}
		}

		for _, sender := range sortedKeys(spec.Senders) {
			rule := strings.ToLower(strings.TrimSpace(sender))
			if rule == "" {
				return nil, &ValidationError{Field: "sender", Value: name, Reason: "rule is empty"}
			}
			if err := add(Key(KindSender, rule), spec.Senders[sender]); err != nil {
				return nil, err
			}
		}

		for _, ex := range spec.Exemplars {
			if _, err := path.Match(ex, ""); err != nil {
				return nil, &ValidationError{Field: "exemplar", Value: ex, Reason: err.Error()}
			}
			if err := add(Key(KindSimilarity, ex), opts.SimilarityBonus); err != nil {
				return nil, err
			}
		}

		cfg.byName[name] = len(cfg.categories)
		cfg.categories = append(cfg.categories, cc)
	}

	if opts.Fallback == "" {
		return nil, &ConfigurationError{Reason: "fallback category is not set"}
	}
	if _, ok := cfg.byName[opts.Fallback]; !ok {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("fallback category %q is not a configured category", opts.Fallback)}
	}
	return cfg, nil
}

// Categories returns category names in configuration order.
func (c *Config) Categories() []string {
	out := make([]string, len(c.categories))
	for i, cc := range c.categories {
		out[i] = cc.name
	}
	return out
}

// Has reports whether category is configured.
func (c *Config) Has(category string) bool {
	_, ok := c.byName[category]
	return ok
}

// Rules returns the configured rules for category.
func (c *Config) Rules(category string) []Rule {
	i, ok := c.byName[category]
	if !ok {
		return nil
	}
	return slices.Clone(c.categories[i].rules)
}

// RuleWeight returns the statically configured weight for a category signal.
func (c *Config) RuleWeight(category, key string) (float64, bool) {
	i, ok := c.byName[category]
	if !ok {
		return 0, false
	}
	w, ok := c.categories[i].index[key]
	return w, ok
}

// Fallback returns the fallback category name.
func (c *Config) Fallback() string { return c.opts.Fallback }

// FallbackWeight returns the weight used for signals with no configured or learned weight.
func (c *Config) FallbackWeight() float64 { return c.opts.FallbackWeight }

// SimilarityThreshold returns the minimum score at which an exemplar match earns its bonus.
func (c *Config) SimilarityThreshold() float64 { return c.opts.SimilarityThreshold }

func (c *Config) pattern(name string) *regexp.Regexp {
	return c.patterns[name]
}

// NormalizeKeyword lowercases kw and collapses it to space-separated words
// using the same word boundaries the tokenizer applies to note text.
func NormalizeKeyword(kw string) string {
	return strings.Join(features.Words(kw), " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
