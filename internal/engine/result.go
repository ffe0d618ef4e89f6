package engine

import (
	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/reranker"
	"github.com/connexus-ai/ragcore/internal/verifier"
)

// Timings records how long each pipeline stage took, using a monotonic
// clock (time.Since). Stages that did not run carry a nil pointer
// rather than a misleading zero.
type Timings struct {
	EnhancementMs  *int64
	RetrievalMs    int64
	RerankingMs    *int64
	VerificationMs *int64
	AssemblyMs     int64
	TotalMs        int64
}

// Metadata carries everything about a Search call that isn't the
// content itself.
type Metadata struct {
	FromCache        bool
	SkippedRetrieval bool
	Classification   model.Classification
	Timings          Timings
}

// Result is the engine's output for a single Search call.
type Result struct {
	Content          string
	EstimatedTokens  int
	Sources          []model.SourceRef
	Assembly         *model.AssembledContext
	RetrievalResults []model.RetrievalResult
	RerankerResults  []reranker.Result
	VerifierResults  []verifier.Result
	Metadata         Metadata

	// Refused is set when the Silence Protocol withheld a low-confidence
	// answer. Content, Sources and Assembly are empty in that case;
	// RefusalReason explains why.
	Refused       bool
	RefusalReason string
}
