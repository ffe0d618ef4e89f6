package assembler

import (
	"github.com/connexus-ai/ragcore/internal/tokenizer"
)

// DedupPair records a kept/removed decision for the returned metadata.
type DedupPair struct {
	KeptID    string
	RemovedID string
}

// deduplicate drops near-duplicate candidates by Jaccard similarity over
// lowercased, punctuation-stripped, >=2-char token sets, keeping the
// higher-scored member of each duplicate pair (or the earlier one on a
// tie, for stability).
func deduplicate(items []candidate, threshold float64) ([]candidate, []DedupPair) {
	sets := make([]map[string]struct{}, len(items))
	for i, c := range items {
		sets[i] = tokenSet(c.chunk.Content)
	}

	kept := make([]bool, len(items))
	for i := range kept {
		kept[i] = true
	}

	var pairs []DedupPair
	for i := 0; i < len(items); i++ {
		if !kept[i] {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if !kept[j] {
				continue
			}
			if jaccard(sets[i], sets[j]) < threshold {
				continue
			}
			// Keep the higher score; on a tie keep the earlier (lower i).
			if items[j].score > items[i].score {
				kept[i] = false
				pairs = append(pairs, DedupPair{KeptID: items[j].id, RemovedID: items[i].id})
				break // i is gone, stop comparing it against later j's
			}
			kept[j] = false
			pairs = append(pairs, DedupPair{KeptID: items[i].id, RemovedID: items[j].id})
		}
	}

	out := make([]candidate, 0, len(items))
	for i, c := range items {
		if kept[i] {
			out = append(out, c)
		}
	}
	return out, pairs
}

func tokenSet(content string) map[string]struct{} {
	tokens := tokenizer.Default(content)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// jaccard treats empty-vs-empty as similarity 1 and empty-vs-nonempty
// as similarity 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
