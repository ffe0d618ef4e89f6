// Package engine implements the RAG engine orchestrator: the single
// entry point that runs classify → enhance → retrieve → rerank →
// verify → assemble, with caching, timing and cancellation, and a
// per-call configurable stage-toggle state machine instead of a
// single fixed pipeline.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragcore/internal/assembler"
	"github.com/connexus-ai/ragcore/internal/cache"
	"github.com/connexus-ai/ragcore/internal/classifier"
	"github.com/connexus-ai/ragcore/internal/enhancer"
	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/ragerr"
	"github.com/connexus-ai/ragcore/internal/reranker"
	"github.com/connexus-ai/ragcore/internal/retriever"
	"github.com/connexus-ai/ragcore/internal/rrf"
	"github.com/connexus-ai/ragcore/internal/verifier"
)

const engineName = "engine.Engine"

// Deps wires every collaborator the engine orchestrates. Reranker,
// Verifier and Cache may be nil: a nil Reranker/Verifier skips that
// stage entirely; a nil Cache is replaced with a no-op null object so
// callers never need to special-case "caching disabled".
type Deps struct {
	Classifier    *classifier.Classifier
	Enhancer      enhancer.Enhancer
	Retriever     retriever.Retriever
	Reranker      reranker.Reranker
	Verifier      *verifier.Verifier
	Assembler     *assembler.Assembler
	Cache         cache.Cache
	ConfigVersion string

	// DegradeVerifierOnFailure, when true, treats a VERIFICATION_FAILED
	// fault as "nothing verified" rather than failing the whole search.
	DegradeVerifierOnFailure bool

	// MaxConcurrentQueries bounds multi-query enhancement fan-out.
	// Defaults to the number of enhanced queries when zero.
	MaxConcurrentQueries int

	// SilenceThreshold is the minimum aggregate confidence a candidate
	// set must reach before assembly, when a call sets
	// Options.EnableSilenceProtocol. Zero disables the check regardless
	// of the per-call flag.
	SilenceThreshold float64

	DefaultOptions Options
}

// Engine is the C11 orchestrator. Safe for concurrent Search calls:
// every collaborator below is either stateless, frozen at construction,
// or internally synchronized (the cache).
type Engine struct {
	classifier    *classifier.Classifier
	enhancer      enhancer.Enhancer
	retriever     retriever.Retriever
	reranker      reranker.Reranker
	verifier      *verifier.Verifier
	assembler     *assembler.Assembler
	cache         cache.Cache
	configVersion string

	degradeVerifierOnFailure bool
	maxConcurrentQueries     int
	silenceThreshold         float64
	defaultOptions           Options

	// epoch is bumped by InvalidateForDocument. Cache keys embed it, so
	// bumping it invalidates every previously cached Search result at
	// once — coarser than per-document invalidation, but correct, and
	// avoids maintaining a reverse index from documentId to cache key
	// that the opaque Cache interface has no way to support anyway.
	epoch atomic.Int64
}

// New constructs an Engine. A nil Cache is replaced with a disabled
// null object per the cache's null-object requirement.
func New(deps Deps) *Engine {
	c := deps.Cache
	if c == nil {
		c = nullCache{}
	}
	if deps.DefaultOptions.TopK == 0 {
		deps.DefaultOptions.TopK = 5
	}
	if deps.DefaultOptions.Ordering == "" {
		deps.DefaultOptions.Ordering = assembler.OrderingRelevance
	}
	if deps.DefaultOptions.CacheTTL == 0 {
		deps.DefaultOptions.CacheTTL = 5 * time.Minute
	}

	return &Engine{
		classifier:               deps.Classifier,
		enhancer:                 deps.Enhancer,
		retriever:                deps.Retriever,
		reranker:                 deps.Reranker,
		verifier:                 deps.Verifier,
		assembler:                deps.Assembler,
		cache:                    c,
		configVersion:            deps.ConfigVersion,
		degradeVerifierOnFailure: deps.DegradeVerifierOnFailure,
		maxConcurrentQueries:     deps.MaxConcurrentQueries,
		silenceThreshold:         deps.SilenceThreshold,
		defaultOptions:           deps.DefaultOptions,
	}
}

// Search runs the full pipeline for one query. ctx is checked between
// every stage and threaded to every adapter call; cancelling it at any
// point surfaces ABORTED tagged with the stage in flight.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()
	opts = opts.withDefaults(e.defaultOptions)

	if strings.TrimSpace(query) == "" {
		return nil, ragerr.New(engineName, ragerr.CodeInvalidQuery, "init", fmt.Errorf("empty query"))
	}
	if err := e.checkAborted(ctx, "init"); err != nil {
		return nil, err
	}

	key := cacheKey(e.configVersion, e.epoch.Load(), query, opts)
	if opts.UseCache {
		if cached, ok := e.cache.Get(key); ok {
			result, ok := cached.(*Result)
			if !ok {
				// A serializing cache (RedisCache) returns the JSON-decoded
				// value; re-encode it into a Result.
				if raw, err := json.Marshal(cached); err == nil {
					var decoded Result
					if json.Unmarshal(raw, &decoded) == nil {
						result, ok = &decoded, true
					}
				}
			}
			if ok {
				hit := *result
				hit.Metadata.FromCache = true
				hit.Metadata.Timings.RetrievalMs = 0
				return &hit, nil
			}
		}
	}

	classification := e.classify(query, opts)
	if err := e.checkAborted(ctx, "classify"); err != nil {
		return nil, err
	}

	if classification.Recommendation.SkipRetrieval && !opts.ForceRetrieval {
		result := &Result{
			Content: "",
			Metadata: Metadata{
				SkippedRetrieval: true,
				Classification:   classification,
				Timings:          Timings{TotalMs: time.Since(start).Milliseconds()},
			},
		}
		if opts.UseCache {
			e.storeInCache(key, result, opts.CacheTTL)
		}
		return result, nil
	}

	timings := Timings{}
	effectiveQuery := query
	var enhanceQueries []string

	if opts.Enhance && e.enhancer != nil {
		enhanceStart := time.Now()
		strategy := classification.Recommendation.SuggestedStrategy
		enhanced, err := e.enhancer.Enhance(ctx, query, strategy)
		if err != nil {
			return nil, ragerr.New(engineName, ragerr.CodeEnhancementFailed, "enhance", err)
		}
		ms := time.Since(enhanceStart).Milliseconds()
		timings.EnhancementMs = &ms
		if len(enhanced.Enhanced) > 0 {
			effectiveQuery = enhanced.Enhanced[0]
			enhanceQueries = enhanced.Enhanced
		}
	}
	if err := e.checkAborted(ctx, "enhance"); err != nil {
		return nil, err
	}

	retrievalOpts := retriever.RetrieveOptions{TopK: opts.TopK, MinScore: opts.MinScore, Filter: opts.Filter}
	retrievalStart := time.Now()
	var retrieved []model.RetrievalResult
	var err error
	if len(enhanceQueries) > 1 {
		retrieved, err = e.retrieveMultiQuery(ctx, enhanceQueries, retrievalOpts)
	} else {
		retrieved, err = e.retriever.Retrieve(ctx, effectiveQuery, retrievalOpts)
	}
	if err != nil {
		if _, ok := ragerr.CodeOf(err); ok {
			return nil, err
		}
		return nil, ragerr.New(engineName, ragerr.CodeRetrievalFailed, "retrieval", err)
	}
	timings.RetrievalMs = time.Since(retrievalStart).Milliseconds()
	if err := e.checkAborted(ctx, "retrieval"); err != nil {
		return nil, err
	}

	assemblerInputs := assembler.FromRetrievalResults(retrieved)
	var rerankerResults []reranker.Result
	var verifierResults []verifier.Result

	if opts.Rerank && e.reranker != nil {
		rerankStart := time.Now()
		rerankerResults, err = e.reranker.Rerank(ctx, effectiveQuery, retrieved)
		if err != nil {
			return nil, ragerr.New(engineName, ragerr.CodeRerankingFailed, "rerank", err)
		}
		ms := time.Since(rerankStart).Milliseconds()
		timings.RerankingMs = &ms
		assemblerInputs = fromRerankerResults(rerankerResults)
	}
	if err := e.checkAborted(ctx, "rerank"); err != nil {
		return nil, err
	}

	if opts.Verify && e.verifier != nil {
		verifyStart := time.Now()
		verifyCandidates := retrieved
		if opts.Rerank && e.reranker != nil {
			verifyCandidates = toRetrievalResults(retrieved, rerankerResults)
		}
		verifierResults, err = e.verifier.Verify(ctx, effectiveQuery, verifyCandidates)
		if err != nil {
			if !e.degradeVerifierOnFailure {
				return nil, err
			}
			slog.Warn("[ENGINE] verification degraded to pass-through", "error", err)
			verifierResults = nil
		} else {
			assemblerInputs = fromVerifierResults(verifierResults, assemblerInputs)
		}
		ms := time.Since(verifyStart).Milliseconds()
		timings.VerificationMs = &ms
	}
	if err := e.checkAborted(ctx, "verify"); err != nil {
		return nil, err
	}

	if opts.EnableSilenceProtocol && e.silenceThreshold > 0 {
		confidence := aggregateConfidence(retrieved, assemblerInputs)
		if confidence < e.silenceThreshold {
			result := &Result{
				Refused:          true,
				RefusalReason:    fmt.Sprintf("aggregate confidence %.2f is below the silence threshold %.2f", confidence, e.silenceThreshold),
				RetrievalResults: retrieved,
				RerankerResults:  rerankerResults,
				VerifierResults:  verifierResults,
				Metadata: Metadata{
					Classification: classification,
					Timings:        Timings{EnhancementMs: timings.EnhancementMs, RetrievalMs: timings.RetrievalMs, RerankingMs: timings.RerankingMs, VerificationMs: timings.VerificationMs, TotalMs: time.Since(start).Milliseconds()},
				},
			}
			if opts.UseCache {
				e.storeInCache(key, result, opts.CacheTTL)
			}
			return result, nil
		}
	}

	assemblyStart := time.Now()
	assembled, err := e.assembler.Assemble(assemblerInputs)
	if err != nil {
		return nil, err
	}
	timings.AssemblyMs = time.Since(assemblyStart).Milliseconds()
	timings.TotalMs = time.Since(start).Milliseconds()

	result := &Result{
		Content:          assembled.Content,
		EstimatedTokens:  assembled.EstimatedTokens,
		Sources:          assembled.Sources,
		Assembly:         assembled,
		RetrievalResults: retrieved,
		RerankerResults:  rerankerResults,
		VerifierResults:  verifierResults,
		Metadata: Metadata{
			Classification: classification,
			Timings:        timings,
		},
	}

	if opts.UseCache {
		e.storeInCache(key, result, opts.CacheTTL)
	}
	return result, nil
}

// ClearCache empties the engine's result cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// InvalidateForDocument invalidates cached Search results that may
// have been built from documentID's chunks. The Cache interface has no
// way to enumerate or filter keys by source document, so this bumps a
// generation counter embedded in every cache key instead — functionally
// a full-cache invalidation, but one that never needs the documentID
// parameter to do the wrong thing silently.
func (e *Engine) InvalidateForDocument(documentID string) {
	e.epoch.Add(1)
	slog.Info("[ENGINE] cache invalidated", "document_id", documentID)
}

func (e *Engine) classify(query string, opts Options) model.Classification {
	if opts.OverrideType != "" {
		return model.Classification{
			Type:           opts.OverrideType,
			Confidence:     1,
			Recommendation: model.Recommendation{SuggestedTopK: opts.TopK},
		}
	}
	return e.classifier.Classify(query)
}

func (e *Engine) checkAborted(ctx context.Context, stage string) error {
	select {
	case <-ctx.Done():
		return ragerr.New(engineName, ragerr.CodeAborted, stage, ctx.Err())
	default:
		return nil
	}
}

func (e *Engine) storeInCache(key string, result *Result, ttl time.Duration) {
	defer func() {
		// Cache faults must never fail a search; an internal panic
		// from a misbehaving adapter is treated the same way as a
		// returned error would be.
		if r := recover(); r != nil {
			slog.Warn("[ENGINE] cache store panicked, ignoring", "panic", r)
		}
	}()
	e.cache.Set(key, result, ttl)
}

// retrieveMultiQuery runs one retrieval per enhanced query concurrently,
// bounded by MaxConcurrentQueries, and fuses the independent rankings
// with RRF.
func (e *Engine) retrieveMultiQuery(ctx context.Context, queries []string, opts retriever.RetrieveOptions) ([]model.RetrievalResult, error) {
	limit := e.maxConcurrentQueries
	if limit <= 0 {
		limit = len(queries)
	}

	results := make([][]model.RetrievalResult, len(queries))
	g, gCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, limit)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gCtx.Done():
				return gCtx.Err()
			}
			defer func() { <-sem }()

			r, err := e.retriever.Retrieve(gCtx, q, opts)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chunkByID := make(map[string]model.Chunk)
	rankers := make([]rrf.RankerInput, len(results))
	for i, r := range results {
		items := make([]model.RankedItem, len(r))
		for j, res := range r {
			items[j] = model.RankedItem{ID: res.ID, Rank: j + 1, Score: res.Score, Chunk: res.Chunk}
			chunkByID[res.ID] = res.Chunk
		}
		rankers[i] = rrf.RankerInput{Name: fmt.Sprintf("query-%d", i), Items: items}
	}

	fused := rrf.Fuse(rankers, rrf.DefaultK)
	out := make([]model.RetrievalResult, 0, len(fused))
	for _, f := range fused {
		if len(out) >= opts.TopK && opts.TopK > 0 {
			break
		}
		out = append(out, model.RetrievalResult{ID: f.ID, Chunk: f.Chunk, Score: f.FusedScore})
	}
	return out, nil
}

func fromRerankerResults(results []reranker.Result) []assembler.Input {
	inputs := make([]assembler.Input, len(results))
	for i, r := range results {
		inputs[i] = assembler.Input{ID: r.ID, Chunk: r.Chunk, Score: r.Score}
	}
	return inputs
}

// toRetrievalResults reorders the pre-rerank candidates to match the
// reranked order and score, so a downstream verifier gates the set
// that actually feeds the assembler instead of the stale retrieval
// order. Signal scores, ranks and confidence are carried over from the
// original candidate by ID; the reranked score replaces Score.
func toRetrievalResults(retrieved []model.RetrievalResult, reranked []reranker.Result) []model.RetrievalResult {
	byID := make(map[string]model.RetrievalResult, len(retrieved))
	for _, r := range retrieved {
		byID[r.ID] = r
	}
	out := make([]model.RetrievalResult, len(reranked))
	for i, r := range reranked {
		rr, ok := byID[r.ID]
		if !ok {
			rr = model.RetrievalResult{ID: r.ID, Chunk: r.Chunk}
		}
		rr.Score = r.Score
		out[i] = rr
	}
	return out
}

// fromVerifierResults drops unverified candidates (the engine's
// default verify-and-filter behavior) and falls back to the
// pre-verification inputs if every candidate was filtered out, so a
// strict verifier can never turn a non-empty retrieval into an empty
// assembly by itself.
func fromVerifierResults(results []verifier.Result, fallback []assembler.Input) []assembler.Input {
	inputs := make([]assembler.Input, 0, len(results))
	for _, r := range results {
		if r.Verification.Verified {
			inputs = append(inputs, assembler.Input{ID: r.ID, Chunk: r.Chunk, Score: r.Score})
		}
	}
	if len(inputs) == 0 {
		return fallback
	}
	return inputs
}

// aggregateConfidence averages each surviving candidate's confidence
// score, falling back to its fused/rerank score when no cross-signal
// confidence was computed for it (e.g. a single-signal retrieval).
// An empty candidate set has zero confidence and is always refused. A
// verifier that filters every candidate out does not produce an empty
// set here: fromVerifierResults then falls back to the pre-verification
// inputs, and it is their confidence that gets averaged.
func aggregateConfidence(retrieved []model.RetrievalResult, inputs []assembler.Input) float64 {
	if len(inputs) == 0 {
		return 0
	}
	byID := make(map[string]model.RetrievalResult, len(retrieved))
	for _, r := range retrieved {
		byID[r.ID] = r
	}

	var sum float64
	for _, in := range inputs {
		if r, ok := byID[in.ID]; ok && r.Confidence != nil {
			sum += r.Confidence.Overall
		} else {
			sum += in.Score
		}
	}
	return sum / float64(len(inputs))
}

// nullCache is the Cache null object: every operation is a safe no-op.
type nullCache struct{}

func (nullCache) Get(string) (any, bool)        { return nil, false }
func (nullCache) Set(string, any, time.Duration) {}
func (nullCache) Delete(string)                  {}
func (nullCache) Has(string) bool                { return false }
func (nullCache) Clear()                         {}
func (nullCache) ResetStats()                    {}
func (nullCache) Size() int                      { return 0 }
func (nullCache) GetStats() cache.Stats          { return cache.Stats{} }

var _ cache.Cache = nullCache{}
