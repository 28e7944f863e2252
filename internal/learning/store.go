package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/logging"
	"github.com/abhisek/parasort/internal/para"
	"github.com/abhisek/parasort/internal/rules"
	"github.com/abhisek/parasort/internal/store"
)

// Default learning parameters.
const (
	DefaultWindow        = 500
	DefaultKeepSnapshots = 10
)

// Params configures the reinforcement loop.
type Params struct {
	rules.LearningParams
	// Window caps how many unconsumed corrections one recompute reads.
	Window int
	// KeepSnapshots is how many weights snapshots survive pruning.
	KeepSnapshots int
}

// DefaultParams returns the stock learning parameters.
func DefaultParams() Params {
	return Params{
		LearningParams: rules.LearningParams{Step: 0.25, MinWeight: 0, MaxWeight: 5},
		Window:         DefaultWindow,
		KeepSnapshots:  DefaultKeepSnapshots,
	}
}

// Repos are the persistence dependencies of a Store.
type Repos struct {
	Corrections     store.CorrectionRepo
	Classifications store.ClassificationRepo
	Weights         store.WeightsRepo
}

// ReposFrom returns the repositories of an open database.
func ReposFrom(s *store.Store) Repos {
	return Repos{
		Corrections:     s.Corrections(),
		Classifications: s.Classifications(),
		Weights:         s.Weights(),
	}
}

// Store owns the correction log and the current weights snapshot.
// Readers call Weights once per classification and keep that pointer.
// RecomputeWeights is the only writer.
type Store struct {
	repos  Repos
	params Params
	logger *logging.Logger
	now    func() time.Time

	cfg     atomic.Pointer[rules.Config]
	weights atomic.Pointer[rules.Weights]
	mu      sync.Mutex // serializes recompute, reload and params
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store and loads the latest persisted weights snapshot,
// migrating it when it was written under an older schema.
func New(ctx context.Context, repos Repos, cfg *rules.Config, params Params, opts ...Option) (*Store, error) {
	params, err := normalizeParams(params)
	if err != nil {
		return nil, err
	}

	s := &Store{
		repos:  repos,
		params: params,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("learning")
	s.cfg.Store(cfg)

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func normalizeParams(p Params) (Params, error) {
	if err := p.Validate(); err != nil {
		return p, err
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.KeepSnapshots <= 0 {
		p.KeepSnapshots = DefaultKeepSnapshots
	}
	return p, nil
}

// Weights returns the current snapshot.
func (s *Store) Weights() *rules.Weights {
	return s.weights.Load()
}

// UseConfig swaps the rule table used to validate corrections and to
// resolve base weights during recompute.
func (s *Store) UseConfig(cfg *rules.Config) {
	s.cfg.Store(cfg)
}

// UseParams swaps the learning parameters used by later recomputes.
// Invalid parameters are rejected and the previous ones stay in effect.
func (s *Store) UseParams(p Params) error {
	p, err := normalizeParams(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// Params returns the learning parameters in effect.
func (s *Store) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Reload adopts the latest persisted snapshot when it is newer than the
// one in memory. Another process may have published it.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.syncLocked(ctx)
	return err
}

// syncLocked loads the latest persisted snapshot and publishes it unless
// the in-memory one is at least as new. It returns the snapshot in effect.
// s.mu must be held.
func (s *Store) syncLocked(ctx context.Context) (*rules.Weights, error) {
	cur := s.weights.Load()
	snap, err := s.repos.Weights.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	if snap == nil {
		if cur == nil {
			cur = rules.EmptyWeights()
			s.weights.Store(cur)
		}
		return cur, nil
	}
	if cur != nil && snap.Version <= cur.Version() {
		return cur, nil
	}

	w, err := rules.DecodeWeights(snap.Data, snap.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("load weights snapshot %d: %w", snap.ID, err)
	}

	if semver.Major(snap.SchemaVersion) != semver.Major(rules.WeightsSchemaVersion) {
		if err := s.persist(ctx, w); err != nil {
			return nil, fmt.Errorf("persist migrated weights: %w", err)
		}
		s.logger.Info(ctx, "migrated weights snapshot",
			zap.String("from", snap.SchemaVersion),
			zap.String("to", rules.WeightsSchemaVersion),
			zap.Int64("version", w.Version()))
	} else if cur != nil {
		s.logger.Info(ctx, "adopted newer weights snapshot",
			zap.Int64("from", cur.Version()),
			zap.Int64("to", w.Version()))
	}

	s.weights.Store(w)
	return w, nil
}

// RecordClassification stores a result in the classification history.
func (s *Store) RecordClassification(ctx context.Context, res *classify.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	status := res.Status
	if status == "" {
		status = classify.StatusClassified
	}
	e := &store.ClassificationEntry{
		ID:             res.ID,
		NoteID:         res.NoteID,
		Category:       res.Category,
		RawCategory:    res.RawCategory,
		Bucket:         res.Bucket,
		Confidence:     res.Confidence,
		FellBack:       res.FellBack,
		Degraded:       res.WithoutSemanticSignal,
		WeightsVersion: res.WeightsVersion,
		Status:         string(status),
		Payload:        payload,
		ClassifiedAt:   res.ClassifiedAt,
	}
	if err := s.repos.Classifications.Save(ctx, e); err != nil {
		return fmt.Errorf("record classification %s: %w", res.ID, err)
	}
	return nil
}

// Result loads a stored classification with its current status.
func (s *Store) Result(ctx context.Context, id string) (*classify.Result, error) {
	e, err := s.repos.Classifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var res classify.Result
	if err := json.Unmarshal(e.Payload, &res); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	res.Status = classify.Status(e.Status)
	return &res, nil
}

// RecordCorrection appends a correction of res to the log. It does not
// change weights; corrections take effect at the next RecomputeWeights.
// An unknown category or bucket is a *rules.ValidationError.
func (s *Store) RecordCorrection(ctx context.Context, res *classify.Result, category, bucket string, tags []string) (*CorrectionRecord, error) {
	cfg := s.cfg.Load()
	if !cfg.Has(category) {
		return nil, &rules.ValidationError{Field: "category", Value: category, Reason: "unknown category"}
	}
	if bucket != "" {
		b, ok := para.ParseBucket(bucket)
		if !ok {
			return nil, &rules.ValidationError{Field: "bucket", Value: bucket, Reason: "unknown bucket"}
		}
		bucket = string(b)
	}
	if res.Status == classify.StatusAccepted {
		return nil, &rules.ValidationError{Field: "result", Value: res.ID, Reason: "already accepted"}
	}

	rec := CorrectionRecord{
		ID:                uuid.NewString(),
		ResultID:          res.ID,
		NoteID:            res.NoteID,
		OriginalCategory:  res.Category,
		CorrectedCategory: category,
		CorrectedBucket:   bucket,
		CorrectedTags:     slices.Clone(tags),
		Signals:           cloneMap(res.Scores.Signals),
		Contributions:     cloneMap(res.Scores.Contributions[res.Category]),
		RecordedAt:        s.now(),
	}
	e := rec.entry()
	if err := s.repos.Corrections.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("record correction: %w", err)
	}
	rec.Sequence = e.Sequence

	// Results classified without history have no row to update.
	if err := s.repos.Classifications.SetStatus(ctx, res.ID, string(classify.StatusCorrected)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("mark corrected: %w", err)
	}

	s.logger.Info(ctx, "correction recorded",
		zap.String("note_id", rec.NoteID),
		zap.String("from", rec.OriginalCategory),
		zap.String("to", rec.CorrectedCategory),
		zap.Int64("sequence", rec.Sequence))
	return &rec, nil
}

// Accept confirms a stored classification. Accepted is terminal and has
// no effect on weights.
func (s *Store) Accept(ctx context.Context, resultID string) error {
	e, err := s.repos.Classifications.Get(ctx, resultID)
	if err != nil {
		return err
	}
	switch classify.Status(e.Status) {
	case classify.StatusAccepted:
		return nil
	case classify.StatusCorrected:
		return &rules.ValidationError{Field: "result", Value: resultID, Reason: "already corrected"}
	}
	return s.repos.Classifications.SetStatus(ctx, resultID, string(classify.StatusAccepted))
}

// RecomputeWeights folds the corrections recorded since the latest
// persisted snapshot into a new one, persists it and publishes it. With
// nothing new to consume the latest snapshot is returned unchanged.
func (s *Store) RecomputeWeights(ctx context.Context) (*rules.Weights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.syncLocked(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.repos.Corrections.Query(ctx, store.CorrectionQuery{
		QueryOpts: store.QueryOpts{
			After:  cur.LastSequence(),
			Limit:  s.params.Window,
			Newest: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("read corrections: %w", err)
	}
	if len(entries) == 0 {
		return cur, nil
	}

	feedback := make([]rules.Feedback, 0, len(entries))
	for _, e := range entries {
		feedback = append(feedback, recordFromEntry(e).feedback())
	}

	start := s.now()
	next := rules.Recompute(cur, s.cfg.Load(), feedback, s.params.LearningParams, start)

	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}
	if err := s.repos.Weights.Prune(ctx, s.params.KeepSnapshots); err != nil {
		s.logger.Warn(ctx, "prune weights snapshots failed", zap.Error(err))
	}

	s.weights.Store(next)
	s.logger.Info(ctx, "weights recomputed",
		zap.Int64("version", next.Version()),
		zap.Int64("last_sequence", next.LastSequence()),
		zap.Int("corrections", len(entries)),
		zap.Int("learned_pairs", next.Len()))
	return next, nil
}

func (s *Store) persist(ctx context.Context, w *rules.Weights) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	snap := &store.WeightsSnapshot{
		Version:       w.Version(),
		SchemaVersion: w.SchemaVersion(),
		LastSequence:  w.LastSequence(),
		Data:          data,
		CreatedAt:     s.now(),
	}
	if err := s.repos.Weights.Save(ctx, snap); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

// History yields corrections in recording order. Each range re-runs the
// query, so the sequence can be iterated more than once.
func (s *Store) History(ctx context.Context, f Filter) iter.Seq2[CorrectionRecord, error] {
	return func(yield func(CorrectionRecord, error) bool) {
		q := store.CorrectionQuery{
			QueryOpts: store.QueryOpts{From: f.From, To: f.To},
			NoteID:    f.NoteID,
			Category:  f.Category,
		}
		if !f.LatestOnly {
			q.Limit = f.Limit
			q.Newest = f.Limit > 0
		}

		entries, err := s.repos.Corrections.Query(ctx, q)
		if err != nil {
			yield(CorrectionRecord{}, err)
			return
		}
		if f.LatestOnly {
			entries = latestPerNote(entries)
			if f.Limit > 0 && len(entries) > f.Limit {
				entries = entries[len(entries)-f.Limit:]
			}
		}

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				yield(CorrectionRecord{}, err)
				return
			}
			if !yield(recordFromEntry(e), nil) {
				return
			}
		}
	}
}

// latestPerNote keeps the last entry for each note, preserving order.
func latestPerNote(entries []store.CorrectionEntry) []store.CorrectionEntry {
	last := make(map[string]int64, len(entries))
	for _, e := range entries {
		last[e.NoteID] = e.Sequence
	}
	out := entries[:0:0]
	for _, e := range entries {
		if last[e.NoteID] == e.Sequence {
			out = append(out, e)
		}
	}
	return out
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
