// Package similarity supplies the optional semantic signal: scores of a
// note against labelled reference exemplars. Lookups are slow and may
// fail, so the engine starts them early and waits a bounded time.
package similarity

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/parasort/internal/features"
)

// Provider scores text against reference exemplars. Scores are in [0,1],
// best first.
type Provider interface {
	Similar(ctx context.Context, text string) ([]features.Similarity, error)
}

// DegradedSignalWarning reports that a classification ran without the
// semantic signal. It is logged and counted, never returned from Classify.
type DegradedSignalWarning struct {
	Reason string // "timeout" or "error"
	Err    error
}

func (w *DegradedSignalWarning) Error() string {
	if w.Err != nil {
		return fmt.Sprintf("similarity unavailable (%s): %v", w.Reason, w.Err)
	}
	return "similarity unavailable (" + w.Reason + ")"
}

func (w *DegradedSignalWarning) Unwrap() error { return w.Err }

// Pending is an in-flight lookup.
type Pending struct {
	done   chan struct{}
	cancel context.CancelFunc
	scores []features.Similarity
	err    error
}

// Lookup starts p.Similar in the background. The lookup is canceled when
// ctx is, or when Await gives up on it.
func Lookup(ctx context.Context, p Provider, text string) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	pending := &Pending{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(pending.done)
		pending.scores, pending.err = p.Similar(ctx, text)
	}()
	return pending
}

// Await waits up to timeout for the lookup. On timeout or failure it
// returns a *DegradedSignalWarning; a canceled ctx returns ctx.Err().
// A non-positive timeout waits only on ctx.
func (p *Pending) Await(ctx context.Context, timeout time.Duration) ([]features.Similarity, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.done:
		p.cancel()
		if p.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &DegradedSignalWarning{Reason: "error", Err: p.err}
		}
		return p.scores, nil
	case <-expired:
		p.cancel()
		return nil, &DegradedSignalWarning{Reason: "timeout", Err: context.DeadlineExceeded}
	case <-ctx.Done():
		p.cancel()
		return nil, ctx.Err()
	}
}

// Static returns fixed scores, optionally after a delay. It serves tests
// and configurations that pin the semantic signal.
type Static struct {
	Scores []features.Similarity
	Err    error
	Delay  time.Duration
}

func (s Static) Similar(ctx context.Context, _ string) ([]features.Similarity, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]features.Similarity(nil), s.Scores...), nil
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
