package enhancer

import (
	"context"
	"errors"
	"testing"

	"github.com/connexus-ai/ragcore/internal/ragerr"
)

type stubChatClient struct {
	response string
	err      error
	gotSys   string
	gotUser  string
}

func (s *stubChatClient) Chat(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.gotSys = systemPrompt
	s.gotUser = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestLLM_EmptyQuery(t *testing.T) {
	e := NewLLM(&stubChatClient{})
	_, err := e.Enhance(context.Background(), "", "rewrite")
	if err == nil {
		t.Fatal("expected error for empty query")
	}
	code, ok := ragerr.CodeOf(err)
	if !ok || code != ragerr.CodeInvalidQuery {
		t.Errorf("code = %v, want CodeInvalidQuery", code)
	}
}

func TestLLM_ChatFailurePropagates(t *testing.T) {
	e := NewLLM(&stubChatClient{err: errors.New("llm down")})
	_, err := e.Enhance(context.Background(), "q", "rewrite")
	if err == nil {
		t.Fatal("expected error")
	}
	code, ok := ragerr.CodeOf(err)
	if !ok || code != ragerr.CodeEnhancementFailed {
		t.Errorf("code = %v, want CodeEnhancementFailed", code)
	}
}

func TestLLM_RewriteUsesRewritePrompt(t *testing.T) {
	client := &stubChatClient{response: "rewritten query"}
	e := NewLLM(client)
	result, err := e.Enhance(context.Background(), "q", "rewrite")
	if err != nil {
		t.Fatalf("Enhance() error: %v", err)
	}
	if client.gotSys != rewritePrompt {
		t.Error("expected rewritePrompt to be used as the system prompt")
	}
	if len(result.Enhanced) != 1 || result.Enhanced[0] != "rewritten query" {
		t.Errorf("Enhanced = %v, want [\"rewritten query\"]", result.Enhanced)
	}
	if result.Strategy != "rewrite" {
		t.Errorf("Strategy = %q, want rewrite", result.Strategy)
	}
}

func TestLLM_MultiQuerySplitsLines(t *testing.T) {
	client := &stubChatClient{response: "query one\n\nquery two\nquery three  "}
	e := NewLLM(client)
	result, err := e.Enhance(context.Background(), "q", "multi-query")
	if err != nil {
		t.Fatalf("Enhance() error: %v", err)
	}
	if client.gotSys != multiQueryPrompt {
		t.Error("expected multiQueryPrompt to be used as the system prompt")
	}
	want := []string{"query one", "query two", "query three"}
	if len(result.Enhanced) != len(want) {
		t.Fatalf("Enhanced = %v, want %v", result.Enhanced, want)
	}
	for i := range want {
		if result.Enhanced[i] != want[i] {
			t.Errorf("Enhanced[%d] = %q, want %q", i, result.Enhanced[i], want[i])
		}
	}
}

func TestLLM_EmptyStrategyDefaultsToRewrite(t *testing.T) {
	client := &stubChatClient{response: "x"}
	e := NewLLM(client)
	result, err := e.Enhance(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Enhance() error: %v", err)
	}
	if result.Strategy != "rewrite" {
		t.Errorf("Strategy = %q, want rewrite", result.Strategy)
	}
}

func TestLLM_BlankResponseFallsBackToOriginalQuery(t *testing.T) {
	client := &stubChatClient{response: "   \n  \n"}
	e := NewLLM(client)
	result, err := e.Enhance(context.Background(), "original", "rewrite")
	if err != nil {
		t.Fatalf("Enhance() error: %v", err)
	}
	if len(result.Enhanced) != 1 || result.Enhanced[0] != "original" {
		t.Errorf("Enhanced = %v, want fallback to original query", result.Enhanced)
	}
}

func TestPassthrough_ReturnsQueryUnchanged(t *testing.T) {
	p := Passthrough{}
	result, err := p.Enhance(context.Background(), "q", "anything")
	if err != nil {
		t.Fatalf("Enhance() error: %v", err)
	}
	if len(result.Enhanced) != 1 || result.Enhanced[0] != "q" {
		t.Errorf("Enhanced = %v, want [\"q\"]", result.Enhanced)
	}
	if result.Strategy != "none" {
		t.Errorf("Strategy = %q, want none", result.Strategy)
	}
}
