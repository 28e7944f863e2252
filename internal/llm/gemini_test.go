package llm

import (
	"context"
	"testing"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.0-flash"},
		{"gemini-pro", "gemini-2.0-pro"},
		{"gemini-2.0-flash", "gemini-2.0-flash"}, // Pass-through
	}
	for _, tt := range tests {
		got := resolveModel(tt.input, geminiModels)
		if got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category":   map[string]any{"type": "string", "enum": []any{"meeting", "project", "general"}},
			"confidence": map[string]any{"type": "number"},
			"rank":       map[string]any{"type": "integer"},
			"matches": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"category", "confidence"},
	}

	schema := buildGeminiSchema(def)

	if schema.Type != "OBJECT" {
		t.Fatalf("expected OBJECT type, got %s", schema.Type)
	}
	if len(schema.Properties) != 4 {
		t.Fatalf("expected 4 properties, got %d", len(schema.Properties))
	}
	if schema.Properties["confidence"].Type != "NUMBER" {
		t.Fatalf("expected NUMBER for confidence, got %s", schema.Properties["confidence"].Type)
	}
	if schema.Properties["rank"].Type != "INTEGER" {
		t.Fatalf("expected INTEGER for rank, got %s", schema.Properties["rank"].Type)
	}
	if len(schema.Properties["category"].Enum) != 3 {
		t.Fatalf("expected 3 enum values, got %d", len(schema.Properties["category"].Enum))
	}
	if schema.Properties["matches"].Type != "ARRAY" {
		t.Fatalf("expected ARRAY for matches, got %s", schema.Properties["matches"].Type)
	}
	if schema.Properties["matches"].Items.Type != "STRING" {
		t.Fatalf("expected STRING for matches items, got %s", schema.Properties["matches"].Items.Type)
	}
	if len(schema.Required) != 2 {
		t.Fatalf("expected 2 required fields, got %d", len(schema.Required))
	}
}

func TestGeminiProvider_RequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), GeminiConfig{}); err == nil {
		t.Fatal("expected error without API key")
	}
}
