// Package rrf implements Reciprocal Rank Fusion: combining N ranked
// lists into one fused ranking, supporting N named rankers with full
// per-contribution transparency.
package rrf

import (
	"sort"

	"github.com/connexus-ai/ragcore/internal/model"
)

// DefaultK is the standard RRF smoothing constant.
const DefaultK = 60

// RankerInput is one ranker's named, ordered output.
type RankerInput struct {
	Name  string
	Items []model.RankedItem
}

// Fuse combines rankers into a single RRFResult list, sorted by fused
// score descending, ties broken by insertion order of first appearance.
// Every result's Contributions has exactly one entry per input ranker.
func Fuse(rankers []RankerInput, k int) []model.RRFResult {
	if k <= 0 {
		k = DefaultK
	}

	type accum struct {
		chunk         model.Chunk
		score         float64
		contributions []model.RRFContribution
		firstSeen     int
	}

	order := make([]string, 0)
	byID := make(map[string]*accum)

	for _, ranker := range rankers {
		rankByID := make(map[string]model.RankedItem, len(ranker.Items))
		for _, item := range ranker.Items {
			rankByID[item.ID] = item
		}
		for _, item := range ranker.Items {
			a, ok := byID[item.ID]
			if !ok {
				a = &accum{chunk: item.Chunk, firstSeen: len(order)}
				byID[item.ID] = a
				order = append(order, item.ID)
			}
		}
	}

	// Build contributions for every id across every ranker, whether or
	// not that ranker returned the id.
	for _, id := range order {
		a := byID[id]
		a.contributions = make([]model.RRFContribution, 0, len(rankers))
	}

	for _, ranker := range rankers {
		present := make(map[string]model.RankedItem, len(ranker.Items))
		for _, item := range ranker.Items {
			present[item.ID] = item
		}
		for _, id := range order {
			a := byID[id]
			item, ok := present[id]
			if !ok {
				a.contributions = append(a.contributions, model.RRFContribution{
					RankerName: ranker.Name,
					RRFShare:   0,
				})
				continue
			}
			share := 1.0 / float64(k+item.Rank)
			a.score += share
			rank := item.Rank
			score := item.Score
			a.contributions = append(a.contributions, model.RRFContribution{
				RankerName: ranker.Name,
				Rank:       &rank,
				Score:      &score,
				RRFShare:   share,
			})
		}
	}

	results := make([]model.RRFResult, 0, len(order))
	for _, id := range order {
		a := byID[id]
		results = append(results, model.RRFResult{
			ID:            id,
			Chunk:         a.chunk,
			FusedScore:    a.score,
			Contributions: a.contributions,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FusedScore > results[j].FusedScore
	})

	return results
}

// Normalize divides every fused score by the theoretical maximum
// n·1/(k+1), mapping fused scores into (0,1]. n is the number of active
// rankers that contributed to the fusion (len(rankers) passed to Fuse).
func Normalize(results []model.RRFResult, n, k int) []model.RRFResult {
	if k <= 0 {
		k = DefaultK
	}
	if n <= 0 {
		return results
	}
	max := float64(n) * (1.0 / float64(k+1))
	if max <= 0 {
		return results
	}
	out := make([]model.RRFResult, len(results))
	for i, r := range results {
		r.FusedScore = r.FusedScore / max
		out[i] = r
	}
	return out
}
