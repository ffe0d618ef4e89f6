// Package retriever implements the dense retriever, the hybrid fusion
// retriever and its confidence scoring: an N-way dense+sparse+graph
// retriever driven entirely through the interfaces below. Store and
// embedder adapters are injected, never owned.
package retriever

import (
	"context"

	"github.com/connexus-ai/ragcore/internal/model"
)

// Retriever is the interface the engine fans out to. Every concrete
// retriever (dense, BM25-backed sparse, hybrid) implements it.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]model.RetrievalResult, error)
}

// RetrieveOptions carries the per-call tunables relevant to retrieval.
type RetrieveOptions struct {
	TopK      int
	MinScore  float64
	Filter    map[string]any
}

// EmbeddingProvider is the external embedding collaborator.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	MaxBatchSize() int
	IsAvailable(ctx context.Context) bool
}

// StoreMatch is one hit from a vector-store similarity search.
type StoreMatch struct {
	ID    string
	Score float64
	Chunk model.Chunk
}

// VectorStore is the external ANN/vector-store collaborator.
type VectorStore interface {
	SimilaritySearch(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]StoreMatch, error)
}

// ChunkLookup resolves an id returned by the sparse searcher back to a
// full Chunk, since bm25.Index itself only tracks ids and scores.
type ChunkLookup interface {
	Lookup(id string) (model.Chunk, bool)
}

// NeighborDirection constrains which edges GetNeighbors traverses.
type NeighborDirection string

const (
	DirectionOutgoing NeighborDirection = "outgoing"
	DirectionIncoming NeighborDirection = "incoming"
	DirectionBoth     NeighborDirection = "both"
)

// NeighborOptions configures a graph-store neighbor expansion.
type NeighborOptions struct {
	Depth     int
	Direction NeighborDirection
	EdgeTypes []string
	NodeTypes []string
	MinWeight float64
	Limit     int
}

// Neighbor is one hop returned by the graph store.
type Neighbor struct {
	NodeID     string
	EdgeWeight float64
	Depth      int
}

// GraphStore is the external knowledge-graph collaborator.
type GraphStore interface {
	GetNeighbors(ctx context.Context, nodeID string, opts NeighborOptions) ([]Neighbor, error)
}
