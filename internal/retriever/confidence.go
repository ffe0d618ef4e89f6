package retriever

import (
	"math"

	"github.com/connexus-ai/ragcore/internal/model"
)

// confidenceWeights blends the three factors into ConfidenceScore.Overall.
// Rank agreement and score consistency each speak to internal coherence;
// signal coverage rewards being seen by more of the active rankers.
const (
	weightRankAgreement    = 0.4
	weightScoreConsistency = 0.3
	weightSignalCoverage   = 0.3

	// degradedRankAgreement is used when only one ranker contributed —
	// there is no pairwise rank to compare, so agreement is neither
	// perfect nor absent.
	degradedRankAgreement = 0.7
)

// computeConfidence derives a ConfidenceScore from one fused result's
// contributions, given the number of rankers that were active overall
// (nActive, 1..3).
func computeConfidence(contribs []model.RRFContribution, nActive int) model.ConfidenceScore {
	var (
		signalCount int
		ranks       []int
		scores      []float64
	)
	signals := model.ConfidenceSignals{}

	for _, c := range contribs {
		if c.Rank == nil && c.Score == nil {
			continue
		}
		signalCount++
		if c.Rank != nil {
			ranks = append(ranks, *c.Rank)
		}
		if c.Score != nil {
			scores = append(scores, *c.Score)
			assignSignal(&signals, c.RankerName, *c.Score)
		}
	}
	if signalCount == 0 {
		signalCount = 1
	}

	rankAgreement := degradedRankAgreement
	if len(ranks) >= 2 {
		rankAgreement = rankAgreementFromRanks(ranks)
	}

	scoreConsistency := 1.0
	if signalCount > 1 && len(scores) >= 2 {
		scoreConsistency = 1 - coefficientOfVariation(scores)
		scoreConsistency = clamp01(scoreConsistency)
	}

	multiSignal := signalCount == nActive

	overall := weightRankAgreement*rankAgreement +
		weightScoreConsistency*scoreConsistency +
		weightSignalCoverage*(float64(signalCount)/float64(maxInt(nActive, 1)))
	overall = clamp01(overall)

	return model.ConfidenceScore{
		Overall: overall,
		Signals: signals,
		Factors: model.ConfidenceFactors{
			RankAgreement:       rankAgreement,
			ScoreConsistency:    scoreConsistency,
			SignalCount:         signalCount,
			MultiSignalPresence: multiSignal,
		},
	}
}

func assignSignal(s *model.ConfidenceSignals, ranker string, score float64) {
	v := score
	switch ranker {
	case "dense":
		s.Vector = &v
	case "sparse":
		s.Keyword = &v
	case "graph":
		s.Graph = &v
	}
}

// rankAgreementFromRanks returns 1 minus the normalized mean pairwise
// rank difference across contributing rankers. A small constant rank
// span (RRF candidate pools are bounded by topK*candidateMultiplier)
// keeps the normalization stable without needing the pool size passed
// in explicitly: we normalize by the largest rank seen, which is always
// a valid upper bound on pairwise difference.
func rankAgreementFromRanks(ranks []int) float64 {
	maxRank := 0
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}
	if maxRank == 0 {
		return 1
	}

	var sum float64
	var count int
	for i := 0; i < len(ranks); i++ {
		for j := i + 1; j < len(ranks); j++ {
			diff := ranks[i] - ranks[j]
			if diff < 0 {
				diff = -diff
			}
			sum += float64(diff)
			count++
		}
	}
	if count == 0 {
		return 1
	}
	meanDiff := sum / float64(count)
	agreement := 1 - meanDiff/float64(maxRank)
	return clamp01(agreement)
}

func coefficientOfVariation(values []float64) float64 {
	n := float64(len(values))
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= n
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n
	stddev := math.Sqrt(variance)
	return stddev / mean
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
