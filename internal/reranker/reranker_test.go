package reranker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/connexus-ai/ragcore/internal/model"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestHeuristic_OrdersBySimilarityWhenNoMetadata(t *testing.T) {
	h := NewHeuristic()
	h.Now = fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	candidates := []model.RetrievalResult{
		{ID: "low", Score: 0.2, Chunk: model.Chunk{ID: "low"}},
		{ID: "high", Score: 0.9, Chunk: model.Chunk{ID: "high"}},
	}
	results, err := h.Rerank(context.Background(), "q", candidates)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if results[0].ID != "high" {
		t.Errorf("expected 'high' first, got %q", results[0].ID)
	}
	if results[0].NewRank != 1 || results[1].NewRank != 2 {
		t.Errorf("expected NewRank 1,2, got %d,%d", results[0].NewRank, results[1].NewRank)
	}
}

func TestHeuristic_RecentDocumentBoosted(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHeuristic()
	h.Now = fixedNow(now)
	candidates := []model.RetrievalResult{
		{ID: "old", Score: 0.6, Chunk: model.Chunk{ID: "old", Metadata: map[string]any{
			"documentCreatedAt": now.AddDate(-1, 0, -1),
		}}},
		{ID: "fresh", Score: 0.6, Chunk: model.Chunk{ID: "fresh", Metadata: map[string]any{
			"documentCreatedAt": now.AddDate(0, 0, -1),
		}}},
	}
	results, err := h.Rerank(context.Background(), "q", candidates)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if results[0].ID != "fresh" {
		t.Errorf("expected 'fresh' to outrank 'old' at equal similarity, got %q first", results[0].ID)
	}
}

func TestHeuristic_ParentDocSizeBoostIsCapped(t *testing.T) {
	h := NewHeuristic()
	h.Now = fixedNow(time.Now())
	candidates := []model.RetrievalResult{
		{ID: "huge", Score: 0.5, Chunk: model.Chunk{ID: "huge", Metadata: map[string]any{"documentChunkCount": 500}}},
		{ID: "medium", Score: 0.5, Chunk: model.Chunk{ID: "medium", Metadata: map[string]any{"documentChunkCount": 50}}},
	}
	results, err := h.Rerank(context.Background(), "q", candidates)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	byID := map[string]Result{}
	for _, r := range results {
		byID[r.ID] = r
	}
	if byID["huge"].Score != byID["medium"].Score {
		t.Errorf("expected parent-doc boost to be capped at 50 chunks, scores differ: %v vs %v",
			byID["huge"].Score, byID["medium"].Score)
	}
}

func TestHeuristic_EmptyCandidates(t *testing.T) {
	h := NewHeuristic()
	results, err := h.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestLLM_EmptyCandidatesSkipsCall(t *testing.T) {
	client := &stubChatClient{}
	r := NewLLM(client)
	results, err := r.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
	if client.gotUser != "" {
		t.Error("expected no LLM call for empty candidate set")
	}
}

func TestLLM_ChatFailurePropagates(t *testing.T) {
	client := &stubChatClient{err: errors.New("llm down")}
	r := NewLLM(client)
	_, err := r.Rerank(context.Background(), "q", []model.RetrievalResult{{ID: "a", Score: 0.5}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLLM_ParsesScoresAndReorders(t *testing.T) {
	client := &stubChatClient{response: "0.2\n0.9\n"}
	r := NewLLM(client)
	candidates := []model.RetrievalResult{
		{ID: "a", Score: 0.5, Chunk: model.Chunk{ID: "a", Content: "alpha"}},
		{ID: "b", Score: 0.5, Chunk: model.Chunk{ID: "b", Content: "beta"}},
	}
	results, err := r.Rerank(context.Background(), "q", candidates)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if results[0].ID != "b" {
		t.Errorf("expected 'b' (scored 0.9) first, got %q", results[0].ID)
	}
}

func TestParseRerankScores_ShortResponseDefaultsNeutral(t *testing.T) {
	scores := parseRerankScores("0.8", 3)
	if len(scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(scores))
	}
	if scores[0] != 0.8 {
		t.Errorf("scores[0] = %v, want 0.8", scores[0])
	}
	if scores[1] != 0.5 || scores[2] != 0.5 {
		t.Errorf("expected neutral 0.5 default for unparsed slots, got %v", scores)
	}
}

// stubChatClient is shared test fixture shape with the enhancer package's
// mock, redefined here since reranker.LLMChatClient is a distinct type.
type stubChatClient struct {
	response string
	err      error
	gotUser  string
}

func (s *stubChatClient) Chat(_ context.Context, _ string, userPrompt string) (string, error) {
	s.gotUser = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}
