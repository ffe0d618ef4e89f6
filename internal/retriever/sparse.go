package retriever

import (
	"github.com/connexus-ai/ragcore/internal/bm25"
	"github.com/connexus-ai/ragcore/internal/model"
)

// Sparse adapts a bm25.Index plus a ChunkLookup into the hybrid
// retriever's sparse signal.
type Sparse struct {
	index  *bm25.Index
	lookup ChunkLookup
}

// NewSparse creates a Sparse adapter.
func NewSparse(index *bm25.Index, lookup ChunkLookup) *Sparse {
	return &Sparse{index: index, lookup: lookup}
}

func (s *Sparse) Name() string { return "sparse" }

// Retrieve runs the BM25 query and resolves each hit to its full Chunk
// via the lookup, skipping any id the lookup cannot resolve (index and
// chunk store out of sync is a caller bug, not a retrieval error).
func (s *Sparse) Retrieve(query string, topK int) ([]model.RankedItem, error) {
	hits, err := s.index.Retrieve(query, topK)
	if err != nil {
		return nil, err
	}
	items := make([]model.RankedItem, 0, len(hits))
	for i, h := range hits {
		chunk, ok := s.lookup.Lookup(h.ID)
		if !ok {
			continue
		}
		items = append(items, model.RankedItem{ID: h.ID, Rank: i + 1, Score: h.Score, Chunk: chunk})
	}
	return items, nil
}
