// Package reranker implements re-scoring of top retrieval candidates
// with a secondary signal. Includes a non-LLM weighted-blend formula
// (0.70 similarity + 0.15 recency + 0.15 parent-document-size) as a
// concrete, zero-cost default strategy, alongside an LLM-backed
// strategy for when a secondary model is available.
package reranker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/ragerr"
)

// ScorePair breaks a reranked result's score into before/after.
type ScorePair struct {
	OriginalScore float64
	RerankerScore float64
}

// Result is one reranked candidate, identity-preserving (same ID/Chunk
// as its input RetrievalResult).
type Result struct {
	ID           string
	Chunk        model.Chunk
	Score        float64
	OriginalRank int
	NewRank      int
	Scores       ScorePair
}

// Reranker is the adapter contract for re-scoring strategies.
// Implementations must preserve item identity, be stable on empty
// input, and be safely skippable: the engine falls through to the
// assembler using retrieval scores when no Reranker is configured.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []model.RetrievalResult) ([]Result, error)
}

// Heuristic re-scores using a weighted blend of similarity, document
// recency and parent-document size. It needs no LLM call and is the
// default when no LLM reranker is configured.
type Heuristic struct {
	WeightSimilarity float64
	WeightRecency    float64
	WeightParentDoc  float64
	Now              func() time.Time
}

// NewHeuristic creates a Heuristic reranker with the standard default
// weights (0.70 / 0.15 / 0.15).
func NewHeuristic() *Heuristic {
	return &Heuristic{WeightSimilarity: 0.70, WeightRecency: 0.15, WeightParentDoc: 0.15, Now: time.Now}
}

func (h *Heuristic) Rerank(_ context.Context, _ string, candidates []model.RetrievalResult) ([]Result, error) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	nowT := now().UTC()

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		recency := recencyBoost(c.Chunk, nowT)
		parentDoc := parentDocBoost(c.Chunk)
		score := h.WeightSimilarity*c.Score + h.WeightRecency*recency + h.WeightParentDoc*parentDoc
		out[i] = Result{
			ID:           c.ID,
			Chunk:        c.Chunk,
			Score:        score,
			OriginalRank: i + 1,
			Scores:       ScorePair{OriginalScore: c.Score, RerankerScore: score},
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].NewRank = i + 1
	}
	return out, nil
}

// recencyBoost follows a fixed decay curve: 1.0 within 7 days, linear
// decay to 0.0 at 365 days. Chunks without a documentCreatedAt
// metadata value get a neutral 0.5.
func recencyBoost(chunk model.Chunk, now time.Time) float64 {
	raw, ok := chunk.Metadata["documentCreatedAt"]
	if !ok {
		return 0.5
	}
	created, ok := raw.(time.Time)
	if !ok {
		return 0.5
	}
	daysSince := now.Sub(created).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	if daysSince <= 7 {
		return 1.0
	}
	if daysSince >= 365 {
		return 0.0
	}
	return 1.0 - (daysSince-7)/(365-7)
}

// parentDocBoost rewards chunks from larger parent documents, capped at
// 50 chunks. Chunks without documentChunkCount metadata get 0.
func parentDocBoost(chunk model.Chunk) float64 {
	count, ok := chunk.IntMeta("documentChunkCount")
	if !ok || count <= 0 {
		return 0
	}
	const cap = 50.0
	return math.Min(float64(count)/cap, 1.0)
}

// LLMChatClient is the external LLM collaborator (shared with enhancer
// and verifier).
type LLMChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLM reranks by asking the LLM to score each candidate's relevance to
// the query on a 0-1 scale.
type LLM struct {
	client LLMChatClient
}

// NewLLM creates an LLM-backed Reranker.
func NewLLM(client LLMChatClient) *LLM {
	return &LLM{client: client}
}

func (r *LLM) Rerank(ctx context.Context, query string, candidates []model.RetrievalResult) ([]Result, error) {
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	prompt := buildRerankPrompt(query, candidates)
	raw, err := r.client.Chat(ctx, rerankSystemPrompt, prompt)
	if err != nil {
		return nil, ragerr.New("reranker.LLM", ragerr.CodeRerankingFailed, "reranking", err)
	}

	scores := parseRerankScores(raw, len(candidates))

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{
			ID:           c.ID,
			Chunk:        c.Chunk,
			Score:        scores[i],
			OriginalRank: i + 1,
			Scores:       ScorePair{OriginalScore: c.Score, RerankerScore: scores[i]},
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].NewRank = i + 1
	}
	return out, nil
}

const rerankSystemPrompt = `Score each numbered passage's relevance to the query from 0.0 to 1.0. ` +
	`Respond with one score per line, in order, numbers only.`

func buildRerankPrompt(query string, candidates []model.RetrievalResult) string {
	s := fmt.Sprintf("Query: %s\n\n", query)
	for i, c := range candidates {
		s += fmt.Sprintf("[%d] %s\n\n", i+1, c.Chunk.Content)
	}
	return s
}

func parseRerankScores(raw string, n int) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 0.5 // neutral default if parsing comes up short
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.'
	})
	idx := 0
	for _, f := range fields {
		if idx >= n {
			break
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		scores[idx] = v
		idx++
	}
	return scores
}
