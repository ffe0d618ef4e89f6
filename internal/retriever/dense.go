package retriever

import (
	"context"
	"fmt"

	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/ragerr"
)

// Dense embeds the query and performs a similarity search against a
// VectorStore. Scores are assumed normalized to [0,1] by the store
// adapter.
type Dense struct {
	embedder EmbeddingProvider
	store    VectorStore
}

// NewDense creates a Dense retriever.
func NewDense(embedder EmbeddingProvider, store VectorStore) *Dense {
	return &Dense{embedder: embedder, store: store}
}

func (d *Dense) Name() string { return "dense" }

// Retrieve implements Retriever.
func (d *Dense) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]model.RetrievalResult, error) {
	if query == "" {
		return nil, ragerr.New("retriever.Dense", ragerr.CodeInvalidQuery, "retrieval", fmt.Errorf("empty query"))
	}

	vec, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return nil, ragerr.New("retriever.Dense", ragerr.CodeEmbeddingFailed, "retrieval", err)
	}

	matches, err := d.store.SimilaritySearch(ctx, vec, opts.TopK, opts.Filter)
	if err != nil {
		return nil, ragerr.New("retriever.Dense", ragerr.CodeStoreError, "retrieval", err)
	}

	results := make([]model.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		if m.Score < opts.MinScore {
			continue
		}
		results = append(results, model.RetrievalResult{
			ID:    m.ID,
			Chunk: m.Chunk,
			Score: m.Score,
		})
	}
	return results, nil
}

// RankedItems converts store matches straight into RankedItem, used by
// the hybrid retriever which needs rank positions, not just scores.
func RankedItems(matches []StoreMatch) []model.RankedItem {
	items := make([]model.RankedItem, len(matches))
	for i, m := range matches {
		items[i] = model.RankedItem{ID: m.ID, Rank: i + 1, Score: m.Score, Chunk: m.Chunk}
	}
	return items
}
