package cache

import (
	"testing"
	"time"
)

func TestNewLRU(t *testing.T) {
	t.Run("valid maxSize", func(t *testing.T) {
		c := NewLRU(10)
		if c.maxSize != 10 {
			t.Errorf("maxSize = %d, want 10", c.maxSize)
		}
	})

	t.Run("zero maxSize uses default", func(t *testing.T) {
		c := NewLRU(0)
		if c.maxSize != 1000 {
			t.Errorf("maxSize = %d, want 1000 (default)", c.maxSize)
		}
	})

	t.Run("negative maxSize uses default", func(t *testing.T) {
		c := NewLRU(-5)
		if c.maxSize != 1000 {
			t.Errorf("maxSize = %d, want 1000 (default)", c.maxSize)
		}
	})
}

func TestLRU_GetSetRoundTrip(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", 42, 0)

	v, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	if v.(int) != 42 {
		t.Errorf("value = %v, want 42", v)
	}
}

func TestLRU_Miss(t *testing.T) {
	c := NewLRU(10)
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU(2)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Get("a") // promotes a, b becomes LRU
	c.Set("c", 3, 0)

	if c.Has("b") {
		t.Error("b should have been evicted as least-recently-used")
	}
	if !c.Has("a") || !c.Has("c") {
		t.Error("a and c should both still be present")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2 (bounded)", c.Size())
	}
}

func TestLRU_SetExistingKeyUpdatesAndPromotes(t *testing.T) {
	c := NewLRU(2)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("a", 99, 0) // update + promote a
	c.Set("c", 3, 0)  // should evict b, not a

	if c.Has("b") {
		t.Error("b should have been evicted")
	}
	v, _ := c.Get("a")
	if v.(int) != 99 {
		t.Errorf("a = %v, want updated value 99", v)
	}
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Has("a") {
		t.Error("expired entry should not report Has == true")
	}
}

func TestLRU_ZeroTTLNeverExpires(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", 1, 0)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("a"); !ok {
		t.Error("zero-TTL entry should not expire")
	}
}

func TestLRU_Delete(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", 1, 0)
	c.Delete("a")

	if c.Has("a") {
		t.Error("deleted key should not be present")
	}
}

func TestLRU_Clear(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Get("a")
	c.Get("missing")
	c.Clear()

	if c.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", c.Size())
	}
	stats := c.GetStats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("GetStats() after Clear = %+v, want zeroed hit/miss counters", stats)
	}
}

func TestLRU_ResetStatsPreservesData(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", 1, 0)
	c.Get("a")
	c.Get("missing")
	c.ResetStats()

	stats := c.GetStats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("GetStats() after ResetStats = %+v, want zeroed hit/miss counters", stats)
	}
	if !c.Has("a") {
		t.Error("ResetStats should not remove cached entries")
	}
}

func TestLRU_GetStats(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", 1, 0)
	c.Get("a")        // hit
	c.Get("missing")  // miss

	stats := c.GetStats()
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
	if stats.Size != 1 {
		t.Errorf("Size = %d, want 1", stats.Size)
	}
	if stats.MaxSize != 10 {
		t.Errorf("MaxSize = %d, want 10", stats.MaxSize)
	}
}

func TestLRU_InvariantSizeNeverExceedsMax(t *testing.T) {
	c := NewLRU(3)
	for i := 0; i < 50; i++ {
		c.Set(string(rune('a'+i%26)), i, 0)
		if c.Size() > 3 {
			t.Fatalf("Size() = %d exceeds maxSize 3 after %d sets", c.Size(), i+1)
		}
	}
}
