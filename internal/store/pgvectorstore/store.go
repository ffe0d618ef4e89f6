// Package pgvectorstore implements the VectorStore adapter against
// Postgres+pgvector: a domain-agnostic filter-by-metadata similarity
// search matching the retriever interface's expectations.
package pgvectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/retriever"
)

// Store implements retriever.VectorStore and retriever.ChunkLookup
// against a document_chunks table with a pgvector embedding column.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ retriever.VectorStore  = (*Store)(nil)
	_ retriever.ChunkLookup  = (*Store)(nil)
)

// BulkInsert stores chunks with their embedding vectors in one
// round-trip using pgx batching.
func (s *Store) BulkInsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("pgvectorstore.BulkInsert: chunk count (%d) != vector count (%d)", len(chunks), len(vectors))
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("pgvectorstore.BulkInsert: marshal metadata for chunk %d: %w", i, err)
		}
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		embedding := pgvector.NewVector(vectors[i])
		batch.Queue(`
			INSERT INTO document_chunks (id, document_id, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`,
			id, c.DocumentID, c.Content, meta, embedding,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pgvectorstore.BulkInsert: chunk %d: %w", i, err)
		}
	}
	return nil
}

// SimilaritySearch finds the top-K chunks closest to vector by cosine
// distance, optionally narrowed by equality filters on chunk metadata.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]retriever.StoreMatch, error) {
	embedding := pgvector.NewVector(vector)

	query := strings.Builder{}
	query.WriteString(`
		SELECT id, document_id, content, metadata, 1 - (embedding <=> $1::vector) AS similarity
		FROM document_chunks`)

	args := []any{embedding}
	if len(filter) > 0 {
		query.WriteString(" WHERE ")
		i := 0
		for k, v := range filter {
			if i > 0 {
				query.WriteString(" AND ")
			}
			args = append(args, k, v)
			query.WriteString(fmt.Sprintf("metadata ->> $%d = $%d", len(args)-1, len(args)))
			i++
		}
	}
	args = append(args, topK)
	query.WriteString(fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args)))

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("pgvectorstore.SimilaritySearch: %w", err)
	}
	defer rows.Close()

	var matches []retriever.StoreMatch
	for rows.Next() {
		var (
			id, documentID, content string
			rawMeta                 []byte
			similarity              float64
		)
		if err := rows.Scan(&id, &documentID, &content, &rawMeta, &similarity); err != nil {
			return nil, fmt.Errorf("pgvectorstore.SimilaritySearch: scan: %w", err)
		}
		var meta map[string]any
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &meta); err != nil {
				return nil, fmt.Errorf("pgvectorstore.SimilaritySearch: unmarshal metadata: %w", err)
			}
		}
		matches = append(matches, retriever.StoreMatch{
			ID:    id,
			Score: similarity,
			Chunk: model.Chunk{ID: id, DocumentID: documentID, Content: content, Metadata: meta},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvectorstore.SimilaritySearch: %w", err)
	}
	return matches, nil
}

// Lookup resolves a chunk id to its full content and metadata, used by
// the sparse (BM25) searcher to hydrate ids back into model.Chunk. The
// ChunkLookup interface carries no context, so this uses
// context.Background(); callers needing cancellation should prefer
// SimilaritySearch, which does accept one.
func (s *Store) Lookup(id string) (model.Chunk, bool) {
	var (
		documentID, content string
		rawMeta              []byte
	)
	err := s.pool.QueryRow(context.Background(), `SELECT document_id, content, metadata FROM document_chunks WHERE id = $1`, id).
		Scan(&documentID, &content, &rawMeta)
	if err != nil {
		return model.Chunk{}, false
	}
	var meta map[string]any
	if len(rawMeta) > 0 {
		_ = json.Unmarshal(rawMeta, &meta)
	}
	return model.Chunk{ID: id, DocumentID: documentID, Content: content, Metadata: meta}, true
}

// ListAll returns every chunk in the store, used to seed the BM25
// sparse index at startup since this package owns storage, not corpus
// ingestion.
func (s *Store) ListAll(ctx context.Context) ([]model.Chunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, document_id, content, metadata FROM document_chunks`)
	if err != nil {
		return nil, fmt.Errorf("pgvectorstore.ListAll: %w", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var (
			id, documentID, content string
			rawMeta                 []byte
		)
		if err := rows.Scan(&id, &documentID, &content, &rawMeta); err != nil {
			return nil, fmt.Errorf("pgvectorstore.ListAll: scan: %w", err)
		}
		var meta map[string]any
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &meta); err != nil {
				return nil, fmt.Errorf("pgvectorstore.ListAll: unmarshal metadata: %w", err)
			}
		}
		chunks = append(chunks, model.Chunk{ID: id, DocumentID: documentID, Content: content, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvectorstore.ListAll: %w", err)
	}
	return chunks, nil
}

// DeleteByDocumentID removes every chunk belonging to a document, used
// when invalidating the cache and re-indexing.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("pgvectorstore.DeleteByDocumentID: %w", err)
	}
	return nil
}
