package cache

import (
	"context"
	"testing"
)

// hit_rate = hits/(hits+misses), and 0 when both counters are 0.
func TestSnapshot_HitRate(t *testing.T) {
	t.Parallel()

	var s Snapshot
	if got := s.HitRate(); got != 0 {
		t.Fatalf("empty snapshot hit rate = %v, want 0", got)
	}

	s = Snapshot{Hits: 3, Misses: 1}
	if got := s.HitRate(); got != 0.75 {
		t.Fatalf("hit rate = %v, want 0.75", got)
	}
}

// Clear drops entries but never resets counters: the snapshot after
// Clear still reflects all traffic so far.
func TestCache_Clear_PreservesMetrics(t *testing.T) {
	t.Parallel()

	c, err := New[string, int](Options[string, int]{Capacity: 8})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	c.Set("a", 1)
	c.Get(ctx, "a") // hit
	c.Get(ctx, "b") // miss

	before := c.GetMetrics()
	c.Clear()

	if got := c.Len(); got != 0 {
		t.Fatalf("Len after Clear = %d, want 0", got)
	}
	after := c.GetMetrics()
	if after != before {
		t.Fatalf("metrics changed across Clear: before=%+v after=%+v", before, after)
	}
	if after.Hits != 1 || after.Misses != 1 {
		t.Fatalf("want hits=1 misses=1, got %+v", after)
	}
}
