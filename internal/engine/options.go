package engine

import (
	"time"

	"github.com/connexus-ai/ragcore/internal/assembler"
	"github.com/connexus-ai/ragcore/internal/model"
)

// Options carries the per-call tunables for a Search invocation. A Go
// context.Context is threaded as Search's first parameter and covers
// cancellation instead of a separate abort signal field.
type Options struct {
	TopK     int
	MinScore float64
	Filter   map[string]any

	Enhance bool
	Rerank  bool
	Verify  bool

	UseCache bool
	CacheTTL time.Duration

	Ordering  assembler.Ordering
	MaxTokens int

	ForceRetrieval bool
	OverrideType   model.QueryType

	ConversationHistory []string

	// EnableSilenceProtocol gates assembly on the final candidate set's
	// aggregate confidence: below the engine's SilenceThreshold, Search
	// returns a refusal instead of assembling low-confidence context.
	EnableSilenceProtocol bool
}

func (o Options) withDefaults(def Options) Options {
	if o.TopK == 0 {
		o.TopK = def.TopK
	}
	if o.Ordering == "" {
		o.Ordering = def.Ordering
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = def.CacheTTL
	}
	if !o.EnableSilenceProtocol {
		o.EnableSilenceProtocol = def.EnableSilenceProtocol
	}
	return o
}
