package config

import (
	"fmt"
	"slices"
	"sort"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/learning"
	"github.com/abhisek/parasort/internal/para"
	"github.com/abhisek/parasort/internal/rules"
	"github.com/abhisek/parasort/internal/tags"
)

// Compiled is the read-only form of a Config that the engine runs on.
type Compiled struct {
	Version     string
	Rules       *rules.Config
	Classifier  *classify.Classifier
	Table       *para.Table
	Tags        *tags.Extractor
	Learning    learning.Params
	UserContext para.UserContext
}

// LearningParams returns the recompute parameters.
func (c *Config) LearningParams() rules.LearningParams {
	return rules.LearningParams{
		Step:      c.Learning.Step,
		MinWeight: c.Learning.MinWeight,
		MaxWeight: c.Learning.MaxWeight,
	}
}

// LearningStoreParams returns the learning store parameters.
func (c *Config) LearningStoreParams() learning.Params {
	return learning.Params{
		LearningParams: c.LearningParams(),
		Window:         c.Learning.Window,
		KeepSnapshots:  c.Learning.KeepSnapshots,
	}
}

// Compile builds the rule table, classifier policy, decision table and tag
// extractor. A category that cannot be mapped, a fallback that is not a
// category and a priority list that misses a category are all
// *rules.ConfigurationError.
func (c *Config) Compile() (*Compiled, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	enabled := c.enabledCategories()
	known := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		known[name] = true
	}

	priority := make([]string, 0, len(enabled))
	for _, name := range c.Classifier.Priority {
		cat, ok := c.Categories[name]
		if !ok {
			return nil, &rules.ValidationError{Field: "classifier.priority", Value: name, Reason: "not a configured category"}
		}
		if !cat.Disabled {
			priority = append(priority, name)
		}
	}
	for _, name := range enabled {
		if !slices.Contains(priority, name) {
			return nil, &rules.ConfigurationError{Reason: fmt.Sprintf("category %q is missing from classifier.priority", name)}
		}
	}
	if !known[c.Classifier.Fallback] {
		return nil, &rules.ConfigurationError{Reason: fmt.Sprintf("fallback category %q is not an enabled category", c.Classifier.Fallback)}
	}

	specs := make([]rules.CategorySpec, 0, len(priority))
	templates := make(map[string]string, len(priority))
	for _, name := range priority {
		spec, err := c.categorySpec(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
		templates[name] = c.Categories[name].Template
	}

	rc, err := rules.Compile(specs, rules.Options{
		Fallback:            c.Classifier.Fallback,
		FallbackWeight:      c.Learning.FallbackWeight,
		SimilarityThreshold: c.Similarity.Threshold,
		SimilarityBonus:     c.Similarity.Bonus,
		MinWeight:           c.Learning.MinWeight,
		MaxWeight:           c.Learning.MaxWeight,
	})
	if err != nil {
		return nil, err
	}

	cls, err := classify.New(classify.Policy{
		Threshold:  c.Classifier.Threshold,
		TieEpsilon: c.Classifier.TieEpsilon,
		Epsilon:    c.Classifier.Epsilon,
		Fallback:   c.Classifier.Fallback,
		Priority:   priority,
	})
	if err != nil {
		return nil, err
	}

	folders := make(map[para.Bucket]string, len(c.Mapping.Folders))
	for name, folder := range c.Mapping.Folders {
		b, ok := para.ParseBucket(name)
		if !ok {
			return nil, &rules.ValidationError{Field: "mapping.folders", Value: name, Reason: "unknown bucket"}
		}
		folders[b] = folder
	}
	rows := make([]para.Row, 0, len(c.Mapping.Rows))
	for _, r := range c.Mapping.Rows {
		if cat, ok := c.Categories[r.Category]; ok && cat.Disabled {
			continue
		}
		b, ok := para.ParseBucket(r.Bucket)
		if !ok {
			b = para.Bucket(r.Bucket)
		}
		rows = append(rows, para.Row{Category: r.Category, When: para.Condition(r.When), Bucket: b})
	}
	table, err := para.NewTable(rows, folders, templates, priority)
	if err != nil {
		return nil, err
	}

	tagger := tags.NewExtractor(tags.Options{
		MaxKeywords: c.Tags.MaxKeywords,
		MinLength:   c.Tags.MinLength,
		StopWords:   c.Tags.StopWords,
		Priority: tags.Priority{
			Urgent:    c.Tags.Priority.Urgent,
			Important: c.Tags.Priority.Important,
			Low:       c.Tags.Priority.Low,
		},
		Background: tags.Background{
			Documents:   c.Tags.Background.Documents,
			Frequencies: c.Tags.Background.Frequencies,
		},
	})

	return &Compiled{
		Version:     c.Version,
		Rules:       rc,
		Classifier:  cls,
		Table:       table,
		Tags:        tagger,
		Learning:    c.LearningStoreParams(),
		UserContext: para.UserContext{ActiveProjects: slices.Clone(c.Engine.ActiveProjects)},
	}, nil
}

func (c *Config) categorySpec(name string) (rules.CategorySpec, error) {
	cat := c.Categories[name]
	spec := rules.CategorySpec{
		Name:      name,
		Keywords:  cat.Keywords,
		Flags:     cat.Flags,
		Exemplars: cat.Exemplars,
	}
	for _, p := range cat.Patterns {
		spec.Patterns = append(spec.Patterns, rules.PatternSpec{Name: p.Name, Regex: p.Regex, Weight: p.Weight})
	}
	if len(cat.Senders) > 0 {
		spec.Senders = make(map[string]float64, len(cat.Senders))
		for _, s := range cat.Senders {
			if _, dup := spec.Senders[s.Match]; dup {
				return rules.CategorySpec{}, &rules.ValidationError{Field: "sender", Value: name + "/" + s.Match, Reason: "defined twice"}
			}
			spec.Senders[s.Match] = s.Weight
		}
	}
	return spec, nil
}

// enabledCategories returns the names of categories that are not disabled, sorted.
func (c *Config) enabledCategories() []string {
	out := make([]string, 0, len(c.Categories))
	for name, cat := range c.Categories {
		if !cat.Disabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
