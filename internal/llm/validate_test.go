package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

var verdictSchema = &Schema{
	Name:        "judge-verdict",
	Description: "A similarity verdict",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reference": map[string]any{"type": "string"},
			"rank":      map[string]any{"type": "integer", "minimum": 0},
			"kind":      map[string]any{"type": "string", "enum": []any{"meeting", "project", "reference"}},
		},
		"required": []any{"reference", "rank"},
	},
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		raw     string
		wantErr bool
	}{
		{"all fields", verdictSchema, `{"reference":"meeting/standup","rank":1,"kind":"meeting"}`, false},
		{"optional omitted", verdictSchema, `{"reference":"project/launch","rank":2}`, false},
		{"missing rank", verdictSchema, `{"reference":"project/launch"}`, true},
		{"rank as string", verdictSchema, `{"reference":"project/launch","rank":"two"}`, true},
		{"negative rank", verdictSchema, `{"reference":"project/launch","rank":-1}`, true},
		{"unknown kind", verdictSchema, `{"reference":"x","rank":3,"kind":"recipe"}`, true},
		{"not json", verdictSchema, `{not json}`, true},
		{"empty", verdictSchema, ``, true},
		{"nil schema", nil, `{"anything":"goes"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse(tt.schema, json.RawMessage(tt.raw))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var invErr *ErrInvalidResponse
			if !errors.As(err, &invErr) {
				t.Fatalf("want *ErrInvalidResponse, got %T (%v)", err, err)
			}
		})
	}
}

func TestValidateResponse_ArrayItems(t *testing.T) {
	schema := &Schema{
		Name: "judge-ranking",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ranking": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []any{"id", "score"},
						"properties": map[string]any{
							"id":    map[string]any{"type": "string"},
							"score": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						},
					},
				},
			},
			"required": []any{"ranking"},
		},
	}

	if err := validateResponse(schema, json.RawMessage(`{"ranking":[{"id":"meeting/retro","score":0.9}]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateResponse(schema, json.RawMessage(`{"ranking":[{"id":"meeting/retro","score":1.5}]}`)); err == nil {
		t.Fatal("score above 1 should fail")
	}
}

func TestCompiledSchemaIsCached(t *testing.T) {
	a, err := compiledSchema(verdictSchema)
	if err != nil {
		t.Fatal(err)
	}
	b, err := compiledSchema(verdictSchema)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("second compile should hit the cache")
	}
}
