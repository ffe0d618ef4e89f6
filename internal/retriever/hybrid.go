package retriever

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/ragerr"
	"github.com/connexus-ai/ragcore/internal/rrf"
)

// DefaultCandidateMultiplier is how many more candidates than topK are
// pulled from each ranker before fusion.
const DefaultCandidateMultiplier = 3

// HybridOptions configures one Hybrid.Retrieve call.
type HybridOptions struct {
	TopK                int
	MinScore            float64
	Alpha               float64 // dense/sparse balance; {0,1} select a single-ranker path
	GraphWeight         float64
	CandidateMultiplier int
	RRFK                int
	Filter              map[string]any
	GraphNodeIDKey      string // metadata key linking a chunk to a graph node; defaults to model.DefaultGraphNodeIDKey
	Neighbors           NeighborOptions
}

// Hybrid composes a dense retriever, a sparse (BM25) retriever and an
// optional graph store, fusing their rankings via RRF with confidence
// scoring. It supports an N-way dense+sparse+graph algorithm, including
// an alpha-extremes single-ranker shortcut and an optional graph
// expansion stage via neo4j-go-driver.
type Hybrid struct {
	dense  *Dense
	sparse *Sparse
	graph  GraphStore
}

// NewHybrid creates a Hybrid retriever. graph may be nil; graph
// expansion is then unavailable regardless of GraphWeight.
func NewHybrid(dense *Dense, sparse *Sparse, graph GraphStore) *Hybrid {
	return &Hybrid{dense: dense, sparse: sparse, graph: graph}
}

func (h *Hybrid) Name() string { return "hybrid" }

// Retrieve implements Retriever using HybridOptions carried via ctx-free
// parameters; callers needing the full option set should call
// RetrieveHybrid directly. Retrieve here adapts RetrieveOptions with
// standard defaults for the hybrid-only knobs.
func (h *Hybrid) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]model.RetrievalResult, error) {
	return h.RetrieveHybrid(ctx, query, HybridOptions{
		TopK:                opts.TopK,
		MinScore:            opts.MinScore,
		Alpha:               0.5,
		GraphWeight:         0,
		CandidateMultiplier: DefaultCandidateMultiplier,
		RRFK:                rrf.DefaultK,
		Filter:              opts.Filter,
	})
}

// RetrieveHybrid runs the full dense+sparse+graph fusion algorithm.
func (h *Hybrid) RetrieveHybrid(ctx context.Context, query string, opts HybridOptions) ([]model.RetrievalResult, error) {
	if query == "" {
		return nil, ragerr.New("retriever.Hybrid", ragerr.CodeInvalidQuery, "retrieval", fmt.Errorf("empty query"))
	}
	if opts.TopK < 1 {
		return nil, ragerr.New("retriever.Hybrid", ragerr.CodeConfigError, "retrieval", fmt.Errorf("topK must be >= 1"))
	}
	if opts.Alpha < 0 || opts.Alpha > 1 {
		return nil, ragerr.New("retriever.Hybrid", ragerr.CodeConfigError, "retrieval", fmt.Errorf("alpha must be in [0,1]"))
	}
	if opts.GraphWeight < 0 || opts.GraphWeight > 1 {
		return nil, ragerr.New("retriever.Hybrid", ragerr.CodeConfigError, "retrieval", fmt.Errorf("graphWeight must be in [0,1]"))
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if opts.RRFK <= 0 {
		opts.RRFK = rrf.DefaultK
	}
	if opts.GraphNodeIDKey == "" {
		opts.GraphNodeIDKey = model.DefaultGraphNodeIDKey
	}

	switch {
	case opts.Alpha == 1:
		return h.denseOnly(ctx, query, opts)
	case opts.Alpha == 0:
		return h.sparseOnly(ctx, query, opts)
	}

	candidateK := opts.TopK * opts.CandidateMultiplier

	denseItems, sparseItems, err := h.fetchCandidates(ctx, query, candidateK, opts.Filter)
	if err != nil {
		return nil, err
	}

	rankers := []rrf.RankerInput{
		{Name: "dense", Items: denseItems},
		{Name: "sparse", Items: sparseItems},
	}
	nActive := 2

	var graphScores map[string]float64
	if opts.GraphWeight > 0 && h.graph != nil {
		graphScores, err = h.expandGraph(ctx, denseItems, sparseItems, opts)
		if err != nil {
			return nil, err
		}
		if len(graphScores) > 0 {
			rankers = append(rankers, rankedInputFromScores("graph", graphScores))
			nActive = 3
		}
	}

	fused := rrf.Fuse(rankers, opts.RRFK)
	fused = rrf.Normalize(fused, nActive, opts.RRFK)

	return h.toResults(fused, denseItems, sparseItems, graphScores, nActive, opts.MinScore, opts.TopK), nil
}

func (h *Hybrid) denseOnly(ctx context.Context, query string, opts HybridOptions) ([]model.RetrievalResult, error) {
	results, err := h.dense.Retrieve(ctx, query, RetrieveOptions{TopK: opts.TopK, MinScore: opts.MinScore, Filter: opts.Filter})
	if err != nil {
		return nil, err
	}
	for i := range results {
		score := results[i].Score
		results[i].Scores = &model.SignalScores{Dense: score, Sparse: 0, Fused: score}
		rank := i + 1
		results[i].DenseRank = &rank
		results[i].Confidence = &model.ConfidenceScore{
			Overall: clamp01(score),
			Signals: model.ConfidenceSignals{Vector: &score},
			Factors: model.ConfidenceFactors{RankAgreement: degradedRankAgreement, ScoreConsistency: 1, SignalCount: 1, MultiSignalPresence: true},
		}
	}
	return results, nil
}

func (h *Hybrid) sparseOnly(ctx context.Context, query string, opts HybridOptions) ([]model.RetrievalResult, error) {
	candidateK := opts.TopK * opts.CandidateMultiplier
	items, err := h.sparse.Retrieve(query, candidateK)
	if err != nil {
		return nil, ragerr.New("retriever.Hybrid", ragerr.CodeRetrievalFailed, "retrieval", err)
	}
	results := make([]model.RetrievalResult, 0, len(items))
	for i, item := range items {
		if item.Score < opts.MinScore {
			continue
		}
		if len(results) >= opts.TopK {
			break
		}
		score := item.Score
		rank := i + 1
		results = append(results, model.RetrievalResult{
			ID:         item.ID,
			Chunk:      item.Chunk,
			Score:      score,
			Scores:     &model.SignalScores{Dense: 0, Sparse: score, Fused: score},
			SparseRank: &rank,
			Confidence: &model.ConfidenceScore{
				Overall: clamp01(score),
				Signals: model.ConfidenceSignals{Keyword: &score},
				Factors: model.ConfidenceFactors{RankAgreement: degradedRankAgreement, ScoreConsistency: 1, SignalCount: 1, MultiSignalPresence: true},
			},
		})
	}
	return results, nil
}

// fetchCandidates runs dense and sparse concurrently; the first error
// cancels the other via errgroup.
func (h *Hybrid) fetchCandidates(ctx context.Context, query string, candidateK int, filter map[string]any) ([]model.RankedItem, []model.RankedItem, error) {
	var denseResults []model.RetrievalResult
	var sparseItems []model.RankedItem

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		denseResults, err = h.dense.Retrieve(gCtx, query, RetrieveOptions{TopK: candidateK, Filter: filter})
		return err
	})
	g.Go(func() error {
		var err error
		sparseItems, err = h.sparse.Retrieve(query, candidateK)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, ragerr.New("retriever.Hybrid", ragerr.CodeRetrievalFailed, "retrieval", err)
	}

	denseItems := make([]model.RankedItem, len(denseResults))
	for i, r := range denseResults {
		denseItems[i] = model.RankedItem{ID: r.ID, Rank: i + 1, Score: r.Score, Chunk: r.Chunk}
	}
	return denseItems, sparseItems, nil
}

// expandGraph maps each candidate chunk to a graph node via its
// configured metadata key, fetches neighbors, and computes a per-chunk
// graph score normalized by the max over all candidates. Chunks
// lacking the graph-node metadata key are skipped
// silently — graph context is best-effort, never required.
func (h *Hybrid) expandGraph(ctx context.Context, dense, sparse []model.RankedItem, opts HybridOptions) (map[string]float64, error) {
	candidates := make(map[string]model.Chunk)
	for _, item := range dense {
		candidates[item.ID] = item.Chunk
	}
	for _, item := range sparse {
		candidates[item.ID] = item.Chunk
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	candidateIDByNode := make(map[string]string)
	for id, chunk := range candidates {
		nodeID := chunk.StringMeta(opts.GraphNodeIDKey)
		if nodeID != "" {
			candidateIDByNode[nodeID] = id
		}
	}
	if len(candidateIDByNode) == 0 {
		return nil, nil
	}

	raw := make(map[string]float64)
	for nodeID, chunkID := range candidateIDByNode {
		neighbors, err := h.graph.GetNeighbors(ctx, nodeID, opts.Neighbors)
		if err != nil {
			return nil, ragerr.New("retriever.Hybrid", ragerr.CodeStoreError, "retrieval", err)
		}
		var score float64
		for _, n := range neighbors {
			_, isCandidate := candidateIDByNode[n.NodeID]
			if isCandidate {
				score += n.EdgeWeight
			}
			depth := n.Depth
			if depth < 1 {
				depth = 1
			}
			score += n.EdgeWeight / float64(depth)
		}
		raw[chunkID] = score
	}

	maxScore := 1e-3
	for _, s := range raw {
		if s > maxScore {
			maxScore = s
		}
	}
	normalized := make(map[string]float64, len(raw))
	for id, s := range raw {
		normalized[id] = s / maxScore
	}
	return normalized, nil
}

func rankedInputFromScores(name string, scores map[string]float64) rrf.RankerInput {
	type pair struct {
		id    string
		score float64
	}
	pairs := make([]pair, 0, len(scores))
	for id, s := range scores {
		pairs = append(pairs, pair{id, s})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	items := make([]model.RankedItem, len(pairs))
	for i, p := range pairs {
		items[i] = model.RankedItem{ID: p.id, Rank: i + 1, Score: p.score}
	}
	return rrf.RankerInput{Name: name, Items: items}
}

// toResults converts fused RRF results into RetrievalResult, filtering
// by minScore post-fusion and truncating to topK, then attaching
// per-signal scores, ranks and confidence.
func (h *Hybrid) toResults(fused []model.RRFResult, dense, sparse []model.RankedItem, graphScores map[string]float64, nActive int, minScore float64, topK int) []model.RetrievalResult {
	denseRankByID := make(map[string]int, len(dense))
	denseScoreByID := make(map[string]float64, len(dense))
	for _, item := range dense {
		denseRankByID[item.ID] = item.Rank
		denseScoreByID[item.ID] = item.Score
	}
	sparseRankByID := make(map[string]int, len(sparse))
	sparseScoreByID := make(map[string]float64, len(sparse))
	for _, item := range sparse {
		sparseRankByID[item.ID] = item.Rank
		sparseScoreByID[item.ID] = item.Score
	}

	results := make([]model.RetrievalResult, 0, len(fused))
	for _, r := range fused {
		if r.FusedScore < minScore {
			continue
		}

		confidence := computeConfidence(r.Contributions, nActive)
		signalScores := &model.SignalScores{
			Dense:  denseScoreByID[r.ID],
			Sparse: sparseScoreByID[r.ID],
			Fused:  r.FusedScore,
		}
		if graphScores != nil {
			signalScores.Graph = graphScores[r.ID]
		}

		res := model.RetrievalResult{
			ID:         r.ID,
			Chunk:      r.Chunk,
			Score:      r.FusedScore,
			Scores:     signalScores,
			Confidence: &confidence,
		}
		if rank, ok := denseRankByID[r.ID]; ok {
			res.DenseRank = &rank
		}
		if rank, ok := sparseRankByID[r.ID]; ok {
			res.SparseRank = &rank
		}
		results = append(results, res)

		if len(results) >= topK {
			break
		}
	}
	return results
}
