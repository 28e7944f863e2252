package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/logging"
)

// Failure kinds.
const (
	FailureError    = "error"
	FailurePanic    = "panic"
	FailureCanceled = "canceled"
)

// Failure records one note a batch could not classify.
type Failure struct {
	Index  int
	NoteID string
	Kind   string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("note %s (#%d): %s: %v", f.NoteID, f.Index, f.Kind, f.Err)
}

// Summary describes a finished batch.
type Summary struct {
	BatchID    string
	Total      int
	Classified int
	FellBack   int
	Degraded   int
	Failures   []Failure // in input order, canceled notes included
	Elapsed    time.Duration
}

// Failed counts notes that errored or panicked.
func (s Summary) Failed() int {
	n := 0
	for _, f := range s.Failures {
		if f.Kind != FailureCanceled {
			n++
		}
	}
	return n
}

// Canceled counts notes that were never classified because the batch stopped.
func (s Summary) Canceled() int {
	return len(s.Failures) - s.Failed()
}

type outcome struct {
	res *classify.Result
	err *Failure
}

// Batch is a running ClassifyAll. Results are produced concurrently and
// handed out in input order.
type Batch struct {
	id      string
	notes   []features.Note
	slots   []chan outcome
	stop    context.CancelFunc
	done    chan struct{}
	started time.Time

	consumed atomic.Bool

	mu      sync.Mutex
	summary Summary
}

// ClassifyAll classifies notes with at most the configured number of
// workers. A failing note is recorded in the summary and does not stop
// the others. When ctx is canceled, notes already running finish and
// are recorded; notes not yet started are reported as canceled.
func (e *Engine) ClassifyAll(ctx context.Context, notes []features.Note) *Batch {
	b := &Batch{
		id:      uuid.NewString(),
		notes:   notes,
		slots:   make([]chan outcome, len(notes)),
		done:    make(chan struct{}),
		started: e.now(),
	}
	for i := range b.slots {
		b.slots[i] = make(chan outcome, 1)
	}
	b.summary = Summary{BatchID: b.id, Total: len(notes)}

	ctx = logging.WithBatchID(ctx, b.id)
	ctx, b.stop = context.WithCancel(ctx)
	go b.run(ctx, e)
	return b
}

func (b *Batch) run(ctx context.Context, e *Engine) {
	defer close(b.done)
	defer b.stop()

	var g errgroup.Group
	g.SetLimit(e.workers)

	for i := range b.notes {
		if ctx.Err() != nil {
			b.cancelFrom(ctx, e, i)
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				b.finish(ctx, e, i, outcome{err: b.canceled(ctx, i)})
				return nil
			}
			b.finish(ctx, e, i, b.classifyOne(ctx, e, i))
			return nil
		})
	}
	_ = g.Wait()

	b.mu.Lock()
	b.summary.Elapsed = e.now().Sub(b.started)
	sum := b.summary
	b.mu.Unlock()

	level := e.logger.Info
	if len(sum.Failures) > 0 {
		level = e.logger.Warn
	}
	level(ctx, "batch finished",
		zap.Int("total", sum.Total),
		zap.Int("classified", sum.Classified),
		zap.Int("failed", sum.Failed()),
		zap.Int("canceled", sum.Canceled()),
		zap.Int("degraded", sum.Degraded),
		zap.Duration("elapsed", sum.Elapsed))
}

// classifyOne runs a note to completion even if the batch is canceled
// meanwhile, so a started note is never left half recorded.
func (b *Batch) classifyOne(ctx context.Context, e *Engine, i int) (out outcome) {
	note := b.notes[i]
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "note panicked",
				zap.String("note_id", note.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out = outcome{err: &Failure{Index: i, NoteID: note.ID, Kind: FailurePanic, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()

	res, err := e.classify(context.WithoutCancel(ctx), note)
	if err != nil {
		return outcome{err: &Failure{Index: i, NoteID: note.ID, Kind: FailureError, Err: err}}
	}
	return outcome{res: res}
}

func (b *Batch) canceled(ctx context.Context, i int) *Failure {
	err := context.Cause(ctx)
	if err == nil {
		err = context.Canceled
	}
	return &Failure{Index: i, NoteID: b.notes[i].ID, Kind: FailureCanceled, Err: err}
}

func (b *Batch) cancelFrom(ctx context.Context, e *Engine, from int) {
	for i := from; i < len(b.notes); i++ {
		b.finish(ctx, e, i, outcome{err: b.canceled(ctx, i)})
	}
}

func (b *Batch) finish(ctx context.Context, e *Engine, i int, out outcome) {
	b.mu.Lock()
	if out.err != nil {
		b.summary.Failures = append(b.summary.Failures, *out.err)
	} else {
		b.summary.Classified++
		if out.res.FellBack {
			b.summary.FellBack++
		}
		if out.res.WithoutSemanticSignal {
			b.summary.Degraded++
		}
	}
	b.mu.Unlock()

	if out.err != nil {
		e.metrics.BatchFailure(out.err.Kind)
		if out.err.Kind != FailureCanceled {
			e.logger.Warn(logging.WithNoteID(ctx, out.err.NoteID), "note failed",
				zap.Int("index", i),
				zap.String("kind", out.err.Kind),
				zap.Error(out.err.Err))
		}
	}
	b.slots[i] <- out
}

// ID returns the batch identifier used in logs.
func (b *Batch) ID() string { return b.id }

// Results yields successful results in input order, skipping failed
// notes. It can be ranged once; later calls yield nothing. Breaking out
// of the loop cancels notes that have not started.
func (b *Batch) Results() iter.Seq[*classify.Result] {
	return func(yield func(*classify.Result) bool) {
		if !b.consumed.CompareAndSwap(false, true) {
			return
		}
		for _, slot := range b.slots {
			out := <-slot
			if out.res == nil {
				continue
			}
			if !yield(out.res) {
				b.stop()
				return
			}
		}
	}
}

// Cancel stops the batch. Running notes still finish.
func (b *Batch) Cancel() { b.stop() }

// Wait blocks until every note has been classified, failed or canceled.
func (b *Batch) Wait() { <-b.done }

// Summary waits for the batch and returns its summary. Failures are
// sorted by input index.
func (b *Batch) Summary() Summary {
	b.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	sum := b.summary
	sum.Failures = sortedFailures(sum.Failures)
	return sum
}

// Err joins the non-cancellation failures, or returns nil.
func (s Summary) Err() error {
	var errs []error
	for _, f := range s.Failures {
		if f.Kind != FailureCanceled {
			errs = append(errs, f)
		}
	}
	return errors.Join(errs...)
}

func sortedFailures(in []Failure) []Failure {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b Failure) int { return cmp.Compare(a.Index, b.Index) })
	return out
}
