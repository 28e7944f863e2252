package learning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/store"
)

// PendingFilter narrows the results awaiting review.
type PendingFilter struct {
	// FallbackOnly keeps results that fell back to the fallback category.
	FallbackOnly bool
	Limit        int
}

// Pending returns stored results still in the classified state, oldest
// first. These are the results neither accepted nor corrected.
func (s *Store) Pending(ctx context.Context, f PendingFilter) ([]*classify.Result, error) {
	q := store.ClassificationQuery{
		QueryOpts: store.QueryOpts{Limit: f.Limit},
		Status:    string(classify.StatusClassified),
	}
	if f.FallbackOnly {
		fellBack := true
		q.FellBack = &fellBack
	}
	entries, err := s.repos.Classifications.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]*classify.Result, 0, len(entries))
	for _, e := range entries {
		var res classify.Result
		if err := json.Unmarshal(e.Payload, &res); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", e.ID, err)
		}
		res.Status = classify.Status(e.Status)
		out = append(out, &res)
	}
	return out, nil
}

// Stats summarizes the stored history.
type Stats struct {
	Classifications int
	FellBack        int
	Degraded        int
	Corrections     int
	ByCategory      map[string]int
	ByBucket        map[string]int
	ByStatus        map[string]int
	WeightsVersion  int64
	LearnedPairs    int
}

// FallbackRate is the share of classifications that fell back.
func (st Stats) FallbackRate() float64 {
	if st.Classifications == 0 {
		return 0
	}
	return float64(st.FellBack) / float64(st.Classifications)
}

// Stats aggregates classification and correction counts with the current
// weights version.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	sum, err := s.repos.Classifications.Summary(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.repos.Corrections.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count corrections: %w", err)
	}
	w := s.Weights()
	return &Stats{
		Classifications: sum.Total,
		FellBack:        sum.FellBack,
		Degraded:        sum.Degraded,
		Corrections:     n,
		ByCategory:      sum.ByCategory,
		ByBucket:        sum.ByBucket,
		ByStatus:        sum.ByStatus,
		WeightsVersion:  w.Version(),
		LearnedPairs:    w.Len(),
	}, nil
}
