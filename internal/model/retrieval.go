package model

// RankedItem is a single ranker's opinion on a chunk: its 1-based
// position within that ranker's own output and the raw score it used to
// get there.
type RankedItem struct {
	ID    string
	Rank  int // 1-based
	Score float64
	Chunk Chunk
}

// RRFContribution records one input ranker's contribution to a fused
// result. Rank/Score are nil when that ranker did not return the item —
// contributions are always fully populated across every active ranker
// for transparency, never omitted.
type RRFContribution struct {
	RankerName string
	Rank       *int
	Score      *float64
	RRFShare   float64
}

// RRFResult is the output of Reciprocal Rank Fusion: a single fused
// ranking across N input rankers.
type RRFResult struct {
	ID            string
	Chunk         Chunk
	FusedScore    float64
	Contributions []RRFContribution
}

// SignalScores breaks a fused score down by contributing signal so
// callers can see what drove a ranking decision.
type SignalScores struct {
	Dense  float64
	Sparse float64
	Graph  float64
	Fused  float64
}

// ConfidenceFactors are the inputs combined into ConfidenceScore.Overall.
type ConfidenceFactors struct {
	RankAgreement       float64
	ScoreConsistency    float64
	SignalCount         int // 1..3
	MultiSignalPresence bool
}

// ConfidenceSignals records which individual signals contributed,
// omitting absent ones (nil).
type ConfidenceSignals struct {
	Vector  *float64
	Keyword *float64
	Graph   *float64
}

// ConfidenceScore summarizes cross-ranker agreement for one result.
type ConfidenceScore struct {
	Overall float64 // in [0,1]
	Signals ConfidenceSignals
	Factors ConfidenceFactors
}

// RetrievalResult is a single chunk's place in the final, fused and
// confidence-scored ranking returned to the engine.
type RetrievalResult struct {
	ID         string
	Chunk      Chunk
	Score      float64
	Scores     *SignalScores
	DenseRank  *int
	SparseRank *int
	Confidence *ConfidenceScore
}
