package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/llm"
)

// judgeSchema is the structured output the judge asks the model for.
var judgeSchema = &llm.Schema{
	Name:        "similarity-verdict",
	Description: "How closely a note resembles each reference exemplar",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"matches": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reference_id": map[string]any{"type": "string"},
						"score":        map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					},
					"required":             []any{"reference_id", "score"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"matches"},
		"additionalProperties": false,
	},
}

const judgeSystem = `You compare a note against labelled reference notes.
For each reference that resembles the note in purpose and content, return its
reference_id and a score between 0 and 1. Omit references that do not resemble it.`

// maxJudgeInput bounds how much note text is sent to the model.
const maxJudgeInput = 4000

type judgeVerdict struct {
	Matches []struct {
		ReferenceID string  `json:"reference_id"`
		Score       float64 `json:"score"`
	} `json:"matches"`
}

// Judge asks a language model to score a note against the exemplars.
type Judge struct {
	provider  llm.Provider
	exemplars []Exemplar
	known     map[string]bool
	maxTokens int
}

// NewJudge creates a Judge over exemplars.
func NewJudge(p llm.Provider, exemplars []Exemplar) (*Judge, error) {
	if err := validateExemplars(exemplars); err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(exemplars))
	for _, ex := range exemplars {
		known[ex.ID] = true
	}
	return &Judge{provider: p, exemplars: exemplars, known: known, maxTokens: 512}, nil
}

func (j *Judge) Similar(ctx context.Context, text string) ([]features.Similarity, error) {
	if len(j.exemplars) == 0 {
		return nil, nil
	}

	resp, err := j.provider.Generate(llm.WithPurpose(ctx, "similarity-judge"), llm.Request{
		System:    judgeSystem,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: j.prompt(text)}},
		Schema:    judgeSchema,
		MaxTokens: j.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}

	var verdict judgeVerdict
	if err := json.Unmarshal(resp.Content, &verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}

	best := make(map[string]float64, len(verdict.Matches))
	for _, m := range verdict.Matches {
		// Models occasionally invent references; drop them.
		if !j.known[m.ReferenceID] {
			continue
		}
		best[m.ReferenceID] = max(best[m.ReferenceID], clamp01(m.Score))
	}

	out := make([]features.Similarity, 0, len(best))
	for id, score := range best {
		out = append(out, features.Similarity{ReferenceID: id, Score: score})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].ReferenceID < out[b].ReferenceID
	})
	return out, nil
}

func (j *Judge) prompt(text string) string {
	if len(text) > maxJudgeInput {
		text = text[:maxJudgeInput]
	}
	var b strings.Builder
	b.WriteString("References:\n")
	for _, ex := range j.exemplars {
		fmt.Fprintf(&b, "- %s: %s\n", ex.ID, strings.ReplaceAll(ex.Text, "\n", " "))
	}
	b.WriteString("\nNote:\n")
	b.WriteString(text)
	return b.String()
}
