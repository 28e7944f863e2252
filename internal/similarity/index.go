package similarity

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"

	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/llm"
)

const exemplarCollection = "exemplars"

// Index scores notes by embedding similarity to the exemplars, using an
// in-memory chromem collection.
type Index struct {
	coll     *chromem.Collection
	embedder llm.Embedder
	k        int
}

// NewIndex embeds every exemplar in one batch and builds the collection.
// k caps how many neighbours a lookup returns.
func NewIndex(ctx context.Context, embedder llm.Embedder, exemplars []Exemplar, k int) (*Index, error) {
	if err := validateExemplars(exemplars); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}

	db := chromem.NewDB()
	coll, err := db.CreateCollection(exemplarCollection, nil, embeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	idx := &Index{coll: coll, embedder: embedder, k: k}
	if len(exemplars) == 0 {
		return idx, nil
	}

	texts := make([]string, len(exemplars))
	for i, ex := range exemplars {
		texts[i] = ex.Text
	}
	vecs, err := embedder.Embed(llm.WithPurpose(ctx, "exemplar-embed"), texts)
	if err != nil {
		return nil, fmt.Errorf("embed exemplars: %w", err)
	}

	docs := make([]chromem.Document, len(exemplars))
	for i, ex := range exemplars {
		docs[i] = chromem.Document{ID: ex.ID, Content: ex.Text, Embedding: vecs[i]}
	}
	if err := coll.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("index exemplars: %w", err)
	}
	return idx, nil
}

// Len returns the number of indexed exemplars.
func (x *Index) Len() int {
	return x.coll.Count()
}

func (x *Index) Similar(ctx context.Context, text string) ([]features.Similarity, error) {
	n := min(x.k, x.coll.Count())
	if n == 0 {
		return nil, nil
	}

	vecs, err := x.embedder.Embed(llm.WithPurpose(ctx, "note-embed"), []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed note: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed note: got %d vectors", len(vecs))
	}

	results, err := x.coll.QueryEmbedding(ctx, vecs[0], n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query exemplars: %w", err)
	}

	out := make([]features.Similarity, 0, len(results))
	for _, r := range results {
		out = append(out, features.Similarity{ReferenceID: r.ID, Score: clamp01(float64(r.Similarity))})
	}
	return out, nil
}

// embeddingFunc adapts an Embedder to chromem for documents added
// without a precomputed vector.
func embeddingFunc(e llm.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("got %d vectors for one text", len(vecs))
		}
		return vecs[0], nil
	}
}
