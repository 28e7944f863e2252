package classify

import (
	"time"

	"github.com/abhisek/parasort/internal/rules"
)

// Status is a classification's position in the review lifecycle.
type Status string

const (
	StatusClassified Status = "classified"
	StatusAccepted   Status = "accepted"
	StatusCorrected  Status = "corrected"
)

// Result is the decision record for one note. The Classifier fills the
// decision fields; the engine adds the destination and tags before the
// result is handed back, after which it is not modified.
type Result struct {
	ID     string `json:"id"`
	NoteID string `json:"note_id"`

	Category    string  `json:"category"`
	RawCategory string  `json:"raw_category"`
	Confidence  float64 `json:"confidence"`
	FellBack    bool    `json:"fell_back"`

	Bucket       string   `json:"bucket"`
	FolderHint   string   `json:"folder_hint"`
	TemplateHint string   `json:"template_hint"`
	Project      string   `json:"project,omitempty"`
	Tags         []string `json:"tags"`

	Scores rules.CategoryScore `json:"scores"`

	WeightsVersion        int64     `json:"weights_version"`
	WithoutSemanticSignal bool      `json:"without_semantic_signal"`
	ClassifiedAt          time.Time `json:"classified_at"`
	Status                Status    `json:"status"`
}
