// Package classify turns a CategoryScore into a category decision with a
// confidence value, applying the tie-break and fallback policies.
package classify

import (
	"fmt"
	"math"
	"slices"

	"github.com/abhisek/parasort/internal/rules"
)

// DefaultPriority is the tie-break order, highest priority first.
var DefaultPriority = []string{"meeting", "project", "action_item", "reference", "automated", "general"}

// Policy configures the decision rule.
type Policy struct {
	// Threshold is the minimum confidence for the raw winner to stand.
	Threshold float64
	// TieEpsilon is the distance from the maximum within which categories tie.
	TieEpsilon float64
	// Epsilon keeps the confidence denominator positive.
	Epsilon float64
	// Fallback is the category used when confidence is below Threshold.
	Fallback string
	// Priority orders categories for tie-breaking.
	Priority []string
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:  0.7,
		TieEpsilon: 1e-6,
		Epsilon:    1e-9,
		Fallback:   "general",
		Priority:   slices.Clone(DefaultPriority),
	}
}

// Classifier applies a Policy. It holds no mutable state.
type Classifier struct {
	policy Policy
	rank   map[string]int
}

// New validates p and returns a Classifier.
func New(p Policy) (*Classifier, error) {
	if p.Threshold < 0 || p.Threshold > 1 {
		return nil, &rules.ValidationError{Field: "classifier.threshold", Value: fmt.Sprint(p.Threshold), Reason: "must be within [0,1]"}
	}
	if p.TieEpsilon < 0 {
		return nil, &rules.ValidationError{Field: "classifier.tie_epsilon", Value: fmt.Sprint(p.TieEpsilon), Reason: "must be >= 0"}
	}
	if p.Epsilon <= 0 {
		return nil, &rules.ValidationError{Field: "classifier.epsilon", Value: fmt.Sprint(p.Epsilon), Reason: "must be > 0"}
	}
	if p.Fallback == "" {
		return nil, &rules.ConfigurationError{Reason: "classifier fallback category is not set"}
	}

	rank := make(map[string]int, len(p.Priority))
	for i, cat := range p.Priority {
		if _, dup := rank[cat]; dup {
			return nil, &rules.ValidationError{Field: "classifier.priority", Value: cat, Reason: "listed twice"}
		}
		rank[cat] = i
	}
	return &Classifier{policy: p, rank: rank}, nil
}

// Policy returns the policy in effect.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// Classify picks the winning category. It never fails: all-zero scores
// produce the fallback category with confidence 0.
func (c *Classifier) Classify(score rules.CategoryScore) *Result {
	res := &Result{
		Category: c.policy.Fallback,
		FellBack: true,
		Scores:   score,
		Status:   StatusClassified,
	}

	cats := c.ordered(score.Scores)
	total, best := 0.0, 0.0
	for _, cat := range cats {
		s := score.Scores[cat]
		total += s
		best = max(best, s)
	}
	if total <= 0 {
		return res
	}

	// cats is in priority order, so the first category within TieEpsilon
	// of the maximum wins the tie.
	winner := ""
	for _, cat := range cats {
		if best-score.Scores[cat] <= c.policy.TieEpsilon {
			winner = cat
			break
		}
	}

	conf := score.Scores[winner] / (total + c.policy.Epsilon)
	if math.IsNaN(conf) {
		conf = 0
	}
	res.RawCategory = winner
	res.Confidence = min(max(conf, 0), 1)

	if res.Confidence >= c.policy.Threshold {
		res.Category = winner
		res.FellBack = false
	}
	return res
}

// ordered returns the scored categories sorted by priority. Categories
// missing from the priority list follow, in name order.
func (c *Classifier) ordered(scores map[string]float64) []string {
	cats := make([]string, 0, len(scores))
	for cat := range scores {
		cats = append(cats, cat)
	}
	slices.SortFunc(cats, func(a, b string) int {
		ra, okA := c.rank[a]
		rb, okB := c.rank[b]
		switch {
		case okA && okB:
			return ra - rb
		case okA:
			return -1
		case okB:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return cats
}
