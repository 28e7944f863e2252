package learning

import (
	"time"

	"github.com/abhisek/parasort/internal/rules"
	"github.com/abhisek/parasort/internal/store"
)

// CorrectionRecord is a user's correction of one classification. Records
// are append-only; a later record for the same note supersedes earlier ones.
type CorrectionRecord struct {
	ID                string             `json:"id"`
	Sequence          int64              `json:"sequence"`
	ResultID          string             `json:"result_id"`
	NoteID            string             `json:"note_id"`
	OriginalCategory  string             `json:"original_category"`
	CorrectedCategory string             `json:"corrected_category"`
	CorrectedBucket   string             `json:"corrected_bucket,omitempty"`
	CorrectedTags     []string           `json:"corrected_tags,omitempty"`
	Signals           map[string]float64 `json:"signals"`
	Contributions     map[string]float64 `json:"contributions"`
	RecordedAt        time.Time          `json:"recorded_at"`
}

func (r CorrectionRecord) feedback() rules.Feedback {
	return rules.Feedback{
		Sequence:      r.Sequence,
		NoteID:        r.NoteID,
		Original:      r.OriginalCategory,
		Corrected:     r.CorrectedCategory,
		Signals:       r.Signals,
		Contributions: r.Contributions,
	}
}

func (r CorrectionRecord) entry() *store.CorrectionEntry {
	return &store.CorrectionEntry{
		ID:                r.ID,
		ResultID:          r.ResultID,
		NoteID:            r.NoteID,
		OriginalCategory:  r.OriginalCategory,
		CorrectedCategory: r.CorrectedCategory,
		CorrectedBucket:   r.CorrectedBucket,
		CorrectedTags:     r.CorrectedTags,
		Signals:           r.Signals,
		Contributions:     r.Contributions,
		RecordedAt:        r.RecordedAt,
	}
}

func recordFromEntry(e store.CorrectionEntry) CorrectionRecord {
	return CorrectionRecord{
		ID:                e.ID,
		Sequence:          e.Sequence,
		ResultID:          e.ResultID,
		NoteID:            e.NoteID,
		OriginalCategory:  e.OriginalCategory,
		CorrectedCategory: e.CorrectedCategory,
		CorrectedBucket:   e.CorrectedBucket,
		CorrectedTags:     e.CorrectedTags,
		Signals:           e.Signals,
		Contributions:     e.Contributions,
		RecordedAt:        e.RecordedAt,
	}
}

// Filter narrows a History query.
type Filter struct {
	NoteID   string
	Category string // matches original or corrected
	From     time.Time
	To       time.Time
	Limit    int // keep the newest Limit records; 0 = all
	// LatestOnly drops records superseded by a later one for the same note.
	LatestOnly bool
}
