package store

import (
	"context"
	"encoding/json"
	"time"
)

// QueryOpts configures history queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
	// Newest keeps the newest Limit rows instead of the oldest.
	// Results are always returned in ascending sequence order.
	Newest bool
}

// CorrectionEntry is one row of the correction log.
type CorrectionEntry struct {
	ID                string
	Sequence          int64
	ResultID          string
	NoteID            string
	OriginalCategory  string
	CorrectedCategory string
	CorrectedBucket   string
	CorrectedTags     []string
	Signals           map[string]float64
	Contributions     map[string]float64
	RecordedAt        time.Time
}

// CorrectionQuery filters the correction log.
type CorrectionQuery struct {
	QueryOpts
	NoteID string
	// Category matches either the original or the corrected category.
	Category string
}

// CorrectionRepo is the append-only correction log.
type CorrectionRepo interface {
	// Append assigns the next sequence number and stores the entry.
	Append(ctx context.Context, e *CorrectionEntry) error

	// Query returns matching entries in ascending sequence order.
	Query(ctx context.Context, q CorrectionQuery) ([]CorrectionEntry, error)

	// Count returns the number of stored corrections.
	Count(ctx context.Context) (int, error)
}

// ClassificationEntry is one stored classification. Payload holds the
// full serialized result; the other fields are indexed copies.
type ClassificationEntry struct {
	ID             string
	Sequence       int64
	NoteID         string
	Category       string
	RawCategory    string
	Bucket         string
	Confidence     float64
	FellBack       bool
	Degraded       bool
	WeightsVersion int64
	Status         string
	Payload        json.RawMessage
	ClassifiedAt   time.Time
}

// ClassificationQuery filters the classification history.
type ClassificationQuery struct {
	QueryOpts
	NoteID   string
	Category string
	Status   string
	FellBack *bool
}

// ClassificationSummary aggregates the history for reporting.
type ClassificationSummary struct {
	Total      int
	FellBack   int
	Degraded   int
	ByCategory map[string]int
	ByBucket   map[string]int
	ByStatus   map[string]int
}

// ClassificationRepo stores classification results.
type ClassificationRepo interface {
	// Save assigns the next sequence number and stores the entry.
	Save(ctx context.Context, e *ClassificationEntry) error

	// Get returns the entry with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*ClassificationEntry, error)

	// SetStatus moves an entry to a new lifecycle status.
	SetStatus(ctx context.Context, id, status string) error

	// Query returns matching entries in ascending sequence order.
	Query(ctx context.Context, q ClassificationQuery) ([]ClassificationEntry, error)

	// Summary aggregates counts across the whole history.
	Summary(ctx context.Context) (*ClassificationSummary, error)
}

// WeightsSnapshot is a persisted weights table.
type WeightsSnapshot struct {
	ID            int
	Version       int64
	SchemaVersion string
	LastSequence  int64
	Data          json.RawMessage
	CreatedAt     time.Time
}

// WeightsRepo manages weights snapshots. The newest row is current.
type WeightsRepo interface {
	// Save stores a new snapshot.
	Save(ctx context.Context, snap *WeightsSnapshot) error

	// Latest returns the most recent snapshot, or nil if none exist.
	Latest(ctx context.Context) (*WeightsSnapshot, error)

	// Prune deletes all but the N most recent snapshots.
	Prune(ctx context.Context, keep int) error
}
