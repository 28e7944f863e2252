package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/logging"
	"github.com/abhisek/parasort/internal/metrics"
	"github.com/abhisek/parasort/internal/rules"
	"github.com/abhisek/parasort/internal/similarity"
)

// memLearner keeps results in memory and panics on one note ID.
type memLearner struct {
	mu      sync.Mutex
	results []*classify.Result
	panicOn string
}

func (m *memLearner) Weights() *rules.Weights  { return rules.EmptyWeights() }
func (m *memLearner) UseConfig(*rules.Config) {}

func (m *memLearner) RecordClassification(_ context.Context, res *classify.Result) error {
	if res.NoteID == m.panicOn {
		panic("history write exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func (m *memLearner) noteIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.results))
	for _, r := range m.results {
		ids = append(ids, r.NoteID)
	}
	slices.Sort(ids)
	return ids
}

func manyNotes(n int) []features.Note {
	notes := make([]features.Note, n)
	for i := range notes {
		body := "standup agenda"
		switch i % 3 {
		case 1:
			body = "milestone deliverable roadmap"
		case 2:
			body = "unsubscribe newsletter digest"
		}
		notes[i] = features.Note{ID: fmt.Sprintf("note-%02d", i), Body: body}
	}
	return notes
}

func collect(b *Batch) []*classify.Result {
	var out []*classify.Result
	for res := range b.Results() {
		out = append(out, res)
	}
	return out
}

func TestClassifyAll_PreservesInputOrder(t *testing.T) {
	_, compiled := loadConfig(t, nil)
	// A lookup delay keeps several workers busy at once.
	sim := similarity.Static{Delay: 3 * time.Millisecond}
	e := newEngine(t, NewPipeline(compiled, sim, time.Second), WithWorkers(4))

	notes := manyNotes(24)
	got := collect(e.ClassifyAll(context.Background(), notes))

	require.Len(t, got, len(notes))
	for i, res := range got {
		assert.Equal(t, notes[i].ID, res.NoteID)
	}
	assert.Equal(t, "meeting", got[0].Category)
	assert.Equal(t, "project", got[1].Category)
	assert.Equal(t, "automated", got[2].Category)
}

func TestClassifyAll_IsolatesFailures(t *testing.T) {
	_, compiled := loadConfig(t, nil)
	log := logging.NewTestLogger()
	rec := metrics.New()
	learner := &memLearner{panicOn: "note-04"}
	e := newEngine(t, NewPipeline(compiled, nil, 0),
		WithLearner(learner), WithLogger(log.Logger), WithMetrics(rec), WithWorkers(3))

	notes := manyNotes(6)
	notes[2].Body = "broken \xff"

	b := e.ClassifyAll(context.Background(), notes)
	got := collect(b)
	sum := b.Summary()

	require.Len(t, got, 4)
	assert.Equal(t, []string{"note-00", "note-01", "note-03", "note-05"}, []string{got[0].NoteID, got[1].NoteID, got[2].NoteID, got[3].NoteID})

	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 4, sum.Classified)
	assert.Equal(t, 2, sum.Failed())
	assert.Equal(t, 0, sum.Canceled())
	require.Len(t, sum.Failures, 2)
	assert.Equal(t, 2, sum.Failures[0].Index)
	assert.Equal(t, FailureError, sum.Failures[0].Kind)
	assert.ErrorIs(t, sum.Failures[0].Err, features.ErrMalformedText)
	assert.Equal(t, 4, sum.Failures[1].Index)
	assert.Equal(t, FailurePanic, sum.Failures[1].Kind)
	assert.Error(t, sum.Err())

	assert.Equal(t, []string{"note-00", "note-01", "note-03", "note-05"}, learner.noteIDs())
	log.AssertLogged(t, zapcore.ErrorLevel, "note panicked")
	log.AssertLogged(t, zapcore.WarnLevel, "batch finished")

	n, err := testutil.GatherAndCount(rec.Registry(), "parasort_batch_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per failure kind")
}

func TestClassifyAll_CanceledBeforeStart(t *testing.T) {
	e := defaultEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := e.ClassifyAll(ctx, manyNotes(5))
	assert.Empty(t, collect(b))

	sum := b.Summary()
	assert.Equal(t, 0, sum.Classified)
	assert.Equal(t, 5, sum.Canceled())
	assert.Equal(t, 0, sum.Failed())
	assert.NoError(t, sum.Err())
}

func TestClassifyAll_CancelLetsInFlightNotesFinish(t *testing.T) {
	_, compiled := loadConfig(t, nil)
	learner := &memLearner{}
	sim := similarity.Static{Delay: 30 * time.Millisecond}
	e := newEngine(t, NewPipeline(compiled, sim, time.Second), WithLearner(learner), WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notes := manyNotes(6)
	b := e.ClassifyAll(ctx, notes)

	var got []*classify.Result
	for res := range b.Results() {
		got = append(got, res)
		cancel()
	}
	sum := b.Summary()

	require.NotEmpty(t, got)
	assert.Equal(t, len(notes), sum.Classified+sum.Canceled())
	assert.Equal(t, 0, sum.Failed())
	assert.Positive(t, sum.Canceled())
	assert.Len(t, got, sum.Classified)

	// Every emitted result is complete and was recorded.
	for _, res := range got {
		assert.NotEmpty(t, res.ID)
		assert.NotEmpty(t, res.Bucket)
		assert.False(t, res.WithoutSemanticSignal)
	}
	assert.Len(t, learner.noteIDs(), sum.Classified)
}

func TestClassifyAll_BreakStopsRemainingNotes(t *testing.T) {
	_, compiled := loadConfig(t, nil)
	sim := similarity.Static{Delay: 10 * time.Millisecond}
	e := newEngine(t, NewPipeline(compiled, sim, time.Second), WithWorkers(1))

	b := e.ClassifyAll(context.Background(), manyNotes(10))
	for range b.Results() {
		break
	}
	sum := b.Summary()
	assert.Equal(t, 10, sum.Classified+sum.Canceled())
	assert.Equal(t, 0, sum.Failed())
}

func TestClassifyAll_ResultsAreSingleUse(t *testing.T) {
	e := defaultEngine(t)
	b := e.ClassifyAll(context.Background(), manyNotes(3))

	assert.Len(t, collect(b), 3)
	assert.Empty(t, collect(b))
}

func TestClassifyAll_SummaryWithoutConsuming(t *testing.T) {
	e := defaultEngine(t)
	sum := e.ClassifyAll(context.Background(), manyNotes(7)).Summary()

	assert.Equal(t, 7, sum.Classified)
	assert.NotEmpty(t, sum.BatchID)
	assert.Empty(t, sum.Failures)
}

func TestClassifyAll_Empty(t *testing.T) {
	e := defaultEngine(t)
	b := e.ClassifyAll(context.Background(), nil)

	assert.Empty(t, collect(b))
	assert.Equal(t, 0, b.Summary().Total)
}
