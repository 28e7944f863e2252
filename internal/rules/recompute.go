package rules

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// LearningParams bounds the reinforcement update.
type LearningParams struct {
	Step      float64
	MinWeight float64
	MaxWeight float64
}

// Validate checks the parameter ranges.
func (p LearningParams) Validate() error {
	switch {
	case p.Step <= 0:
		return &ValidationError{Field: "learning.step", Value: fmt.Sprint(p.Step), Reason: "must be > 0"}
	case p.MinWeight < 0:
		return &ValidationError{Field: "learning.min_weight", Value: fmt.Sprint(p.MinWeight), Reason: "must be >= 0"}
	case p.MaxWeight < p.MinWeight:
		return &ValidationError{Field: "learning.max_weight", Value: fmt.Sprint(p.MaxWeight), Reason: "must be >= min_weight"}
	}
	return nil
}

func (p LearningParams) clamp(v float64) float64 {
	return min(max(v, p.MinWeight), p.MaxWeight)
}

// Feedback is the slice of a correction the update rule needs.
type Feedback struct {
	Sequence  int64
	NoteID    string
	Original  string
	Corrected string
	// Signals are the signals that fired on the note, with counts.
	Signals map[string]float64
	// Contributions are the original category's per-signal contributions.
	Contributions map[string]float64
}

// Recompute applies feedback to current and returns the next snapshot.
// Only the latest feedback per note is used. For every disagreement each
// fired signal gains Step toward the corrected category and, when it
// contributed to the original category, loses Step there. Results are
// clamped to [MinWeight, MaxWeight]. The same inputs always produce the
// same snapshot.
func Recompute(current *Weights, cfg *Config, feedback []Feedback, p LearningParams, at time.Time) *Weights {
	latest := make(map[string]Feedback, len(feedback))
	var anonymous []Feedback
	lastSeq := current.lastSequence
	for _, fb := range feedback {
		lastSeq = max(lastSeq, fb.Sequence)
		if fb.NoteID == "" {
			anonymous = append(anonymous, fb)
			continue
		}
		if prev, ok := latest[fb.NoteID]; !ok || fb.Sequence > prev.Sequence {
			latest[fb.NoteID] = fb
		}
	}

	effective := anonymous
	for _, fb := range latest {
		effective = append(effective, fb)
	}
	slices.SortFunc(effective, func(a, b Feedback) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})

	entries := current.cloneEntries()
	set := func(cat, key string, v float64) {
		if entries[cat] == nil {
			entries[cat] = make(map[string]float64)
		}
		entries[cat][key] = v
	}
	lookup := func(cat, key string) float64 {
		if v, ok := entries[cat][key]; ok {
			return v
		}
		if v, ok := cfg.RuleWeight(cat, key); ok {
			return v
		}
		return cfg.FallbackWeight()
	}

	for _, fb := range effective {
		if fb.Original == fb.Corrected || !cfg.Has(fb.Corrected) {
			continue
		}
		for _, key := range sortedKeys(fb.Signals) {
			if fb.Contributions[key] > 0 && cfg.Has(fb.Original) {
				set(fb.Original, key, p.clamp(lookup(fb.Original, key)-p.Step))
			}
			set(fb.Corrected, key, p.clamp(lookup(fb.Corrected, key)+p.Step))
		}
	}

	return NewWeights(current.version+1, lastSeq, at, entries)
}
