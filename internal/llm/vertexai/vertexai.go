package vertexai

import (
	"github.com/connexus-ai/ragcore/internal/enhancer"
	"github.com/connexus-ai/ragcore/internal/reranker"
	"github.com/connexus-ai/ragcore/internal/retriever"
	"github.com/connexus-ai/ragcore/internal/verifier"
)

var (
	_ enhancer.LLMChatClient        = (*ChatClient)(nil)
	_ reranker.LLMChatClient        = (*ChatClient)(nil)
	_ verifier.LLMChatClient        = (*ChatClient)(nil)
	_ retriever.EmbeddingProvider   = (*EmbeddingClient)(nil)
)
