package assembler

import (
	"sort"

	"github.com/connexus-ai/ragcore/internal/model"
)

// Ordering selects how deduplicated candidates are sequenced before
// token budgeting.
type Ordering string

const (
	OrderingRelevance    Ordering = "relevance"
	OrderingSandwich     Ordering = "sandwich"
	OrderingChronological Ordering = "chronological"
)

// candidate is the assembler's internal working unit: a chunk plus its
// score, detached from whichever upstream type (RetrievalResult,
// reranker.Result, verifier.Result) produced it.
type candidate struct {
	id    string
	chunk model.Chunk
	score float64
}

func order(items []candidate, strategy Ordering, startCount int) []candidate {
	switch strategy {
	case OrderingSandwich:
		return sandwich(items, startCount)
	case OrderingChronological:
		return chronological(items)
	default:
		return relevance(items)
	}
}

func relevance(items []candidate) []candidate {
	out := append([]candidate(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// sandwich places the top startCount items at the head in relevance
// order, then appends the rest in reverse relevance order so the
// lowest-scoring items land in the middle of the window.
func sandwich(items []candidate, startCount int) []candidate {
	ranked := relevance(items)
	n := len(ranked)
	if n == 0 {
		return ranked
	}
	if startCount <= 0 {
		startCount = (n + 1) / 2 // ceil(n/2)
	}
	if startCount > n {
		startCount = n
	}
	if startCount < 1 {
		startCount = 1
	}

	head := ranked[:startCount]
	tail := ranked[startCount:]

	out := make([]candidate, 0, n)
	out = append(out, head...)
	for i := len(tail) - 1; i >= 0; i-- {
		out = append(out, tail[i])
	}
	return out
}

// chronological groups by DocumentID, sorts each group by startIndex
// metadata (falling back to score on a tie, and to position 0 when the
// metadata is absent), then orders groups by document id lexically.
func chronological(items []candidate) []candidate {
	groups := make(map[string][]candidate)
	var docIDs []string
	for _, c := range items {
		if _, ok := groups[c.chunk.DocumentID]; !ok {
			docIDs = append(docIDs, c.chunk.DocumentID)
		}
		groups[c.chunk.DocumentID] = append(groups[c.chunk.DocumentID], c)
	}
	sort.Strings(docIDs)

	out := make([]candidate, 0, len(items))
	for _, id := range docIDs {
		group := groups[id]
		sort.SliceStable(group, func(i, j int) bool {
			pi, _ := group[i].chunk.IntMeta(model.MetaStartIndex)
			pj, _ := group[j].chunk.IntMeta(model.MetaStartIndex)
			if pi != pj {
				return pi < pj
			}
			return group[i].score > group[j].score
		})
		out = append(out, group...)
	}
	return out
}
