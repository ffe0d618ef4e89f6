// Package verifier implements the optional LLM-gated relevance filter
// inserted between rerank and assembly: confidence-threshold gating
// combined with pre-assembly candidate verification, using a bounded
// concurrent worker pool built on errgroup-based fan-out.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/ragerr"
)

// Verdict is the outcome of verifying a single candidate.
type Verdict struct {
	Verified  bool
	Score     float64 // 0..10
	Reasoning string
}

// Result pairs a candidate with its verification verdict, preserving
// input order.
type Result struct {
	model.RetrievalResult
	Verification Verdict
}

// LLMChatClient is the external LLM collaborator (shared with enhancer
// and reranker).
type LLMChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Options configures gating thresholds and concurrency.
type Options struct {
	SkipThreshold           float64 // confidence >= this: verified without an LLM call
	FilterThreshold         float64 // confidence < this: not verified without an LLM call
	VerificationThreshold   float64 // 0..10 cutoff when parsing falls back to a bare number
	IncludeReasoning        bool
	Concurrency             int
	BatchMode               bool
}

// DefaultOptions returns the standard verifier configuration.
func DefaultOptions() Options {
	return Options{
		SkipThreshold:         0.8,
		FilterThreshold:       0.3,
		VerificationThreshold: 6,
		IncludeReasoning:      true,
		Concurrency:           5,
	}
}

// Verifier gates candidates by confidence, calling the LLM only for the
// mid-band where confidence alone isn't decisive.
type Verifier struct {
	client LLMChatClient
	opts   Options
}

// New creates a Verifier. Zero-valued Options fields fall back to the
// defaults in DefaultOptions.
func New(client LLMChatClient, opts Options) *Verifier {
	def := DefaultOptions()
	if opts.SkipThreshold == 0 {
		opts.SkipThreshold = def.SkipThreshold
	}
	if opts.FilterThreshold == 0 {
		opts.FilterThreshold = def.FilterThreshold
	}
	if opts.VerificationThreshold == 0 {
		opts.VerificationThreshold = def.VerificationThreshold
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Verifier{client: client, opts: opts}
}

// Verify classifies every candidate by confidence.overall, calling the
// LLM only for the mid-band, and returns results in input order. A
// failure in any in-flight individual-mode LLM call cancels the
// siblings and surfaces VERIFICATION_FAILED; callers that want
// degrade-to-pass-through behavior should catch that error and fall
// back to treating all mid-band candidates as verified.
func (v *Verifier) Verify(ctx context.Context, query string, candidates []model.RetrievalResult) ([]Result, error) {
	results := make([]Result, len(candidates))
	midBandIdx := make([]int, 0)

	for i, c := range candidates {
		conf := 0.5
		if c.Confidence != nil {
			conf = c.Confidence.Overall
		}
		switch {
		case conf >= v.opts.SkipThreshold:
			results[i] = Result{RetrievalResult: c, Verification: Verdict{Verified: true, Score: 10}}
		case conf < v.opts.FilterThreshold:
			results[i] = Result{RetrievalResult: c, Verification: Verdict{Verified: false, Score: 0}}
		default:
			midBandIdx = append(midBandIdx, i)
		}
	}

	if len(midBandIdx) == 0 {
		return results, nil
	}

	if v.opts.BatchMode {
		verdicts, err := v.verifyBatch(ctx, query, candidates, midBandIdx)
		if err != nil {
			return nil, err
		}
		for j, idx := range midBandIdx {
			results[idx] = Result{RetrievalResult: candidates[idx], Verification: verdicts[j]}
		}
		return results, nil
	}

	if err := v.verifyIndividual(ctx, query, candidates, midBandIdx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// verifyIndividual spawns up to Concurrency concurrent LLM calls. A
// failure in any cancels in-flight siblings via errgroup's shared
// context and the whole call surfaces VERIFICATION_FAILED.
func (v *Verifier) verifyIndividual(ctx context.Context, query string, candidates []model.RetrievalResult, midBandIdx []int, results []Result) error {
	g, gCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, v.opts.Concurrency)

	for _, idx := range midBandIdx {
		idx := idx
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gCtx.Done():
				return gCtx.Err()
			}
			defer func() { <-sem }()

			verdict, err := v.verifyOne(gCtx, query, candidates[idx])
			if err != nil {
				return err
			}
			results[idx] = Result{RetrievalResult: candidates[idx], Verification: verdict}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return ragerr.New("verifier.Verifier", ragerr.CodeVerificationFailed, "verification", err)
	}
	return nil
}

func (v *Verifier) verifyOne(ctx context.Context, query string, candidate model.RetrievalResult) (Verdict, error) {
	raw, err := v.client.Chat(ctx, individualSystemPrompt, buildIndividualPrompt(query, candidate))
	if err != nil {
		return Verdict{}, err
	}
	verdict := parseVerdict(raw, v.opts.VerificationThreshold)
	if !v.opts.IncludeReasoning {
		verdict.Reasoning = ""
	}
	return verdict, nil
}

const individualSystemPrompt = `Judge whether the passage is relevant to the query. Respond with a JSON ` +
	`object: {"verified": true|false, "score": 0-10, "reasoning": "..."}.`

func buildIndividualPrompt(query string, candidate model.RetrievalResult) string {
	return fmt.Sprintf("Query: %s\n\nPassage:\n%s", query, candidate.Chunk.Content)
}

// verifyBatch issues a single prompt listing all mid-band documents. If
// the response cannot be parsed, every mid-band candidate defaults to
// verified with score 5: a parser failure must not silently drop
// evidence.
func (v *Verifier) verifyBatch(ctx context.Context, query string, candidates []model.RetrievalResult, midBandIdx []int) ([]Verdict, error) {
	prompt := buildBatchPrompt(query, candidates, midBandIdx)
	raw, err := v.client.Chat(ctx, batchSystemPrompt, prompt)
	if err != nil {
		return nil, ragerr.New("verifier.Verifier", ragerr.CodeVerificationFailed, "verification", err)
	}

	verdicts := parseBatchVerdicts(raw, len(midBandIdx), v.opts.VerificationThreshold)
	if !v.opts.IncludeReasoning {
		for i := range verdicts {
			verdicts[i].Reasoning = ""
		}
	}
	return verdicts, nil
}

const batchSystemPrompt = `Judge whether each numbered passage is relevant to the query. Respond ` +
	`with a JSON array, one object per passage in order: ` +
	`[{"verified": true|false, "score": 0-10, "reasoning": "..."}, ...].`

func buildBatchPrompt(query string, candidates []model.RetrievalResult, midBandIdx []int) string {
	s := fmt.Sprintf("Query: %s\n\n", query)
	for i, idx := range midBandIdx {
		s += fmt.Sprintf("[%d] %s\n\n", i+1, candidates[idx].Chunk.Content)
	}
	return s
}

type jsonVerdict struct {
	Verified  bool    `json:"verified"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// parseVerdict accepts a JSON object; if malformed, extracts the first
// numeric token and compares it to threshold.
func parseVerdict(raw string, threshold float64) Verdict {
	var jv jsonVerdict
	if obj, ok := extractJSONObject(raw); ok {
		if err := json.Unmarshal([]byte(obj), &jv); err == nil {
			return Verdict{Verified: jv.Verified, Score: clampScore(jv.Score), Reasoning: jv.Reasoning}
		}
	}

	if num, ok := firstNumericToken(raw); ok {
		return Verdict{Verified: num >= threshold, Score: clampScore(num)}
	}

	// Cannot parse at all: default to verified, mid score, so a parser
	// failure never silently drops evidence.
	return Verdict{Verified: true, Score: 5}
}

// parseBatchVerdicts accepts a JSON array; on failure, every candidate
// defaults to verified with score 5.
func parseBatchVerdicts(raw string, n int, threshold float64) []Verdict {
	if arr, ok := extractJSONArray(raw); ok {
		var jvs []jsonVerdict
		if err := json.Unmarshal([]byte(arr), &jvs); err == nil && len(jvs) == n {
			out := make([]Verdict, n)
			for i, jv := range jvs {
				out[i] = Verdict{Verified: jv.Verified, Score: clampScore(jv.Score), Reasoning: jv.Reasoning}
			}
			return out
		}
	}

	out := make([]Verdict, n)
	for i := range out {
		out[i] = Verdict{Verified: true, Score: 5}
	}
	return out
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func extractJSONObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

func extractJSONArray(raw string) (string, bool) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

func firstNumericToken(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
