package llm

import (
	"context"
	"encoding/json"
)

// Provider generates structured completions.
type Provider interface {
	// Generate sends a prompt and returns the response. When req.Schema is
	// set the provider requests native structured output and the returned
	// Content has been validated against the schema.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Embedder turns text into dense vectors for similarity search.
type Embedder interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbeddingModel returns the embedding model identifier.
	EmbeddingModel() string
}

// Request describes what to send to the model.
type Request struct {
	System   string
	Messages []Message

	// Schema is the JSON Schema the response must conform to. When nil,
	// Content is the raw text.
	Schema *Schema

	MaxTokens int

	// Temperature controls randomness, 0.0 - 1.0. Zero leaves the
	// provider default in place.
	Temperature float64
}

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies the schema to the provider and keys the compiled
	// schema cache. Kebab-case, e.g. "note-category".
	Name        string
	Description string
	Definition  map[string]any
}

// Response holds the model output.
type Response struct {
	Content json.RawMessage
	Usage   Usage
	Model   string
	// StopReason is normalized to "end" or "max_tokens".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
