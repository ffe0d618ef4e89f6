package rrf

import (
	"testing"

	"github.com/connexus-ai/ragcore/internal/model"
)

func rankedItem(id string, rank int, score float64) model.RankedItem {
	return model.RankedItem{ID: id, Rank: rank, Score: score, Chunk: model.Chunk{ID: id}}
}

func TestFuse_SingleRanker(t *testing.T) {
	rankers := []RankerInput{
		{Name: "dense", Items: []model.RankedItem{
			rankedItem("a", 1, 0.9),
			rankedItem("b", 2, 0.8),
		}},
	}
	results := Fuse(rankers, DefaultK)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("expected 'a' first, got %q", results[0].ID)
	}
	want := 1.0 / float64(DefaultK+1)
	if results[0].FusedScore != want {
		t.Errorf("FusedScore = %v, want %v", results[0].FusedScore, want)
	}
	if len(results[0].Contributions) != 1 {
		t.Fatalf("expected 1 contribution, got %d", len(results[0].Contributions))
	}
}

func TestFuse_TiedScoresKeepFirstSeenOrder(t *testing.T) {
	rankers := []RankerInput{
		{Name: "dense", Items: []model.RankedItem{
			rankedItem("a", 1, 0.9),
			rankedItem("b", 2, 0.8),
		}},
		{Name: "sparse", Items: []model.RankedItem{
			rankedItem("b", 1, 0.7),
			rankedItem("a", 2, 0.6),
		}},
	}
	results := Fuse(rankers, DefaultK)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Both items rank 1 in one list and 2 in the other, so fused scores tie;
	// "a" was seen first (dense ranker, first item) and stable sort preserves
	// that order.
	if results[0].ID != "a" {
		t.Errorf("expected 'a' first on tie, got %q", results[0].ID)
	}
	if results[0].FusedScore != results[1].FusedScore {
		t.Errorf("expected tied fused scores, got %v vs %v", results[0].FusedScore, results[1].FusedScore)
	}
}

func TestFuse_MissingFromOneRankerStillContributes(t *testing.T) {
	rankers := []RankerInput{
		{Name: "dense", Items: []model.RankedItem{rankedItem("a", 1, 0.9)}},
		{Name: "sparse", Items: []model.RankedItem{rankedItem("b", 1, 0.5)}},
	}
	results := Fuse(rankers, DefaultK)
	byID := make(map[string]model.RRFResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	a, ok := byID["a"]
	if !ok {
		t.Fatal("expected 'a' in results")
	}
	if len(a.Contributions) != 2 {
		t.Fatalf("expected 2 contributions for 'a' (one per ranker), got %d", len(a.Contributions))
	}
	var sparseContribution *model.RRFContribution
	for i := range a.Contributions {
		if a.Contributions[i].RankerName == "sparse" {
			sparseContribution = &a.Contributions[i]
		}
	}
	if sparseContribution == nil {
		t.Fatal("expected a 'sparse' contribution entry even though sparse never returned 'a'")
	}
	if sparseContribution.Rank != nil || sparseContribution.Score != nil {
		t.Errorf("expected nil Rank/Score for a ranker that didn't return the item")
	}
	if sparseContribution.RRFShare != 0 {
		t.Errorf("expected zero RRFShare for absent ranker contribution, got %v", sparseContribution.RRFShare)
	}
}

func TestFuse_DefaultsKWhenNonPositive(t *testing.T) {
	rankers := []RankerInput{
		{Name: "dense", Items: []model.RankedItem{rankedItem("a", 1, 0.9)}},
	}
	results := Fuse(rankers, 0)
	want := 1.0 / float64(DefaultK+1)
	if results[0].FusedScore != want {
		t.Errorf("FusedScore = %v, want %v (DefaultK applied)", results[0].FusedScore, want)
	}
}

func TestFuse_EmptyRankers(t *testing.T) {
	results := Fuse(nil, DefaultK)
	if len(results) != 0 {
		t.Errorf("expected 0 results for no rankers, got %d", len(results))
	}
}

func TestNormalize_MapsIntoZeroOneRange(t *testing.T) {
	rankers := []RankerInput{
		{Name: "dense", Items: []model.RankedItem{rankedItem("a", 1, 0.9)}},
		{Name: "sparse", Items: []model.RankedItem{rankedItem("a", 1, 0.8)}},
	}
	results := Fuse(rankers, DefaultK)
	normalized := Normalize(results, 2, DefaultK)
	if len(normalized) != 1 {
		t.Fatalf("expected 1 result, got %d", len(normalized))
	}
	if normalized[0].FusedScore != 1.0 {
		t.Errorf("expected max-agreement item normalized to 1.0, got %v", normalized[0].FusedScore)
	}
}

func TestNormalize_NoopForNonPositiveN(t *testing.T) {
	rankers := []RankerInput{
		{Name: "dense", Items: []model.RankedItem{rankedItem("a", 1, 0.9)}},
	}
	results := Fuse(rankers, DefaultK)
	normalized := Normalize(results, 0, DefaultK)
	if normalized[0].FusedScore != results[0].FusedScore {
		t.Errorf("expected Normalize to no-op for n<=0")
	}
}
