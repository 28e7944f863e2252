// Package features turns raw note text and metadata into the immutable
// FeatureSet consumed by the scorer, mapper and tagger.
package features

import "time"

// Note is one unit of input: raw text plus whatever the vault or mail
// collaborator knows about it.
type Note struct {
	ID       string
	Body     string
	Metadata Metadata
}

// Metadata carries the non-text facts about a note.
type Metadata struct {
	Title       string // subject line or heading
	Sender      string // "Name <addr>" or a bare address
	Source      string // channel: email, web, manual, vault
	Path        string
	Timestamp   time.Time
	Attachments []string
	Headers     map[string]string
	Frontmatter map[string]any
}

// Similarity is one (exemplar, score) pair from the semantic-similarity
// collaborator. Score lies in [0,1].
type Similarity struct {
	ReferenceID string  `json:"reference_id"`
	Score       float64 `json:"score"`
}

// Text returns the text the extractor analyses: title and body.
func (n Note) Text() string {
	if n.Metadata.Title == "" {
		return n.Body
	}
	if n.Body == "" {
		return n.Metadata.Title
	}
	return n.Metadata.Title + "\n" + n.Body
}
