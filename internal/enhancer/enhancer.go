// Package enhancer implements the query enhancer adapter contract:
// LLM-backed query rewriting/expansion. The core only depends on the
// Enhancer interface; concrete strategies are swappable, letting
// callers swap prompt sources without touching the generation
// algorithm.
package enhancer

import (
	"context"
	"fmt"
	"strings"

	"github.com/connexus-ai/ragcore/internal/ragerr"
)

// Result is the enhancer's output. Enhanced may contain 1..N queries;
// the engine uses the first as the effective retrieval query and may
// fan out to the rest in multi-query mode.
type Result struct {
	Original string
	Enhanced []string
	Strategy string
	Metadata map[string]any
}

// Enhancer is the query-rewrite adapter contract.
type Enhancer interface {
	Enhance(ctx context.Context, query string, strategy string) (*Result, error)
}

// LLMChatClient is the external LLM collaborator shared by enhancer,
// reranker and verifier.
type LLMChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLM is an Enhancer backed by an LLMChatClient. For "rewrite" it asks
// for a single cleaned-up query; for "multi-query" it asks for several
// independent phrasings, one per line.
type LLM struct {
	client LLMChatClient
}

// NewLLM creates an LLM-backed Enhancer.
func NewLLM(client LLMChatClient) *LLM {
	return &LLM{client: client}
}

func (e *LLM) Enhance(ctx context.Context, query string, strategy string) (*Result, error) {
	if query == "" {
		return nil, ragerr.New("enhancer.LLM", ragerr.CodeInvalidQuery, "enhancement", fmt.Errorf("empty query"))
	}
	if strategy == "" {
		strategy = "rewrite"
	}

	prompt := rewritePrompt
	if strategy == "multi-query" {
		prompt = multiQueryPrompt
	}

	raw, err := e.client.Chat(ctx, prompt, query)
	if err != nil {
		return nil, ragerr.New("enhancer.LLM", ragerr.CodeEnhancementFailed, "enhancement", err)
	}

	enhanced := splitNonEmptyLines(raw)
	if len(enhanced) == 0 {
		enhanced = []string{query}
	}

	return &Result{
		Original: query,
		Enhanced: enhanced,
		Strategy: strategy,
		Metadata: map[string]any{"rawResponse": raw},
	}, nil
}

const rewritePrompt = `Rewrite the user's query to be maximally effective for a retrieval ` +
	`system: expand abbreviations, make implicit entities explicit, and remove ` +
	`conversational filler. Respond with only the rewritten query on a single line.`

const multiQueryPrompt = `Generate 3 to 5 different phrasings of the user's query that together ` +
	`cover its likely sub-questions, one per line, with no numbering or commentary.`

func splitNonEmptyLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Passthrough is a no-op Enhancer returning the query unchanged. Useful
// when enhancement is disabled but the engine still wants a uniform
// Enhancer to call.
type Passthrough struct{}

func (Passthrough) Enhance(_ context.Context, query string, _ string) (*Result, error) {
	return &Result{Original: query, Enhanced: []string{query}, Strategy: "none"}, nil
}
