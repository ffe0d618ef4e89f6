// Package assembler implements the context assembler: the final
// pipeline stage that turns ranked, verified candidates into a single
// formatted string plus full source-attribution metadata, through a
// multi-stage pipeline (dedup, order, budget, format) built around a
// single strings.Builder pass over numbered chunks.
package assembler

import (
	"fmt"

	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/ragerr"
)

// Options configures the full assembler pipeline. New fills some
// zero-valued fields from the defaults; see New for which.
type Options struct {
	TopK int // 0 means "no clamp"

	DedupEnabled        bool
	SimilarityThreshold float64
	KeepHighestScore    bool // always true in this implementation; kept for option-table parity

	Ordering   Ordering
	StartCount int // sandwich only; 0 means ceil(n/2)

	MaxTokens        int
	ContextWindow    int
	BudgetPercentage float64 // used when MaxTokens == 0
	OverheadTokens   int
	CharsPerToken    int
	DropStrategy     DropStrategy

	Format FormatOptions
}

// DefaultOptions returns the standard assembler configuration.
func DefaultOptions() Options {
	return Options{
		DedupEnabled:        true,
		SimilarityThreshold: 0.8,
		KeepHighestScore:    true,
		Ordering:            OrderingRelevance,
		MaxTokens:           0,
		ContextWindow:       8000,
		BudgetPercentage:    0.5,
		OverheadTokens:      10,
		CharsPerToken:       defaultCharsPerToken,
		DropStrategy:        DropStrategyDrop,
		Format: FormatOptions{
			Format:        FormatStructured,
			CitationStyle: CitationInline,
		},
	}
}

// Assembler is the C9 stage. It holds no mutable state beyond its
// frozen Options.
type Assembler struct {
	opts Options
}

// New creates an Assembler. SimilarityThreshold, Ordering,
// ContextWindow, BudgetPercentage, CharsPerToken, DropStrategy and
// Format.Format/Format.CitationStyle fall back to DefaultOptions' values
// when zero; every other field (the booleans, TopK, StartCount,
// MaxTokens, OverheadTokens) is used as given.
func New(opts Options) *Assembler {
	def := DefaultOptions()
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = def.SimilarityThreshold
	}
	if opts.Ordering == "" {
		opts.Ordering = def.Ordering
	}
	if opts.ContextWindow == 0 {
		opts.ContextWindow = def.ContextWindow
	}
	if opts.BudgetPercentage == 0 {
		opts.BudgetPercentage = def.BudgetPercentage
	}
	if opts.CharsPerToken == 0 {
		opts.CharsPerToken = def.CharsPerToken
	}
	if opts.DropStrategy == "" {
		opts.DropStrategy = def.DropStrategy
	}
	if opts.Format.Format == "" {
		opts.Format.Format = def.Format.Format
	}
	if opts.Format.CitationStyle == "" {
		opts.Format.CitationStyle = def.Format.CitationStyle
	}
	return &Assembler{opts: opts}
}

// Input is anything the assembler can reduce to an ordered candidate:
// an id, a chunk, and the score that should drive dedup/ordering
// decisions. Retriever, reranker and verifier results all convert to
// this trivially at the call site.
type Input struct {
	ID    string
	Chunk model.Chunk
	Score float64
}

// Assemble runs the fixed five-stage pipeline: clamp, dedup, order,
// budget, format.
func (a *Assembler) Assemble(inputs []Input) (*model.AssembledContext, error) {
	items := make([]candidate, len(inputs))
	for i, in := range inputs {
		items[i] = candidate{id: in.ID, chunk: in.Chunk, score: in.Score}
	}

	if a.opts.TopK > 0 && len(items) > a.opts.TopK {
		items = relevance(items)[:a.opts.TopK]
	}

	originalCount := len(items)

	var dedupPairs []DedupPair
	if a.opts.DedupEnabled {
		items, dedupPairs = deduplicate(items, a.opts.SimilarityThreshold)
	}
	deduplicatedCount := len(dedupPairs)

	items = order(items, a.opts.Ordering, a.opts.StartCount)

	budget := a.opts.MaxTokens
	if budget <= 0 {
		budget = int(float64(a.opts.ContextWindow) * a.opts.BudgetPercentage)
	}
	if budget < 0 {
		return nil, ragerr.New("assembler.Assembler", ragerr.CodeAssemblyFailed, "assembly", fmt.Errorf("negative token budget"))
	}

	kept, droppedIDs, totalTokens := applyBudget(items, budget, a.opts.OverheadTokens, a.opts.CharsPerToken, a.opts.DropStrategy)

	content, sources := formatBody(kept, a.opts.Format)

	chunks := make([]model.Chunk, len(kept))
	for i, k := range kept {
		chunks[i] = k.chunk
	}

	if originalCount != len(kept)+deduplicatedCount+len(droppedIDs) {
		return nil, ragerr.New("assembler.Assembler", ragerr.CodeAssemblyFailed, "assembly",
			fmt.Errorf("accounting mismatch: %d in, %d kept + %d deduped + %d dropped", originalCount, len(kept), deduplicatedCount, len(droppedIDs)))
	}

	return &model.AssembledContext{
		Content:           content,
		EstimatedTokens:   totalTokens,
		ChunkCount:        len(kept),
		DeduplicatedCount: deduplicatedCount,
		DroppedCount:      len(droppedIDs),
		Sources:           sources,
		Chunks:            chunks,
	}, nil
}

// FromRetrievalResults adapts hybrid retriever output directly, for
// callers that skip reranking and verification.
func FromRetrievalResults(results []model.RetrievalResult) []Input {
	inputs := make([]Input, len(results))
	for i, r := range results {
		inputs[i] = Input{ID: r.ID, Chunk: r.Chunk, Score: r.Score}
	}
	return inputs
}
