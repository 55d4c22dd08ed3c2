package updates

import (
	"testing"
	"time"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(time.Hour)

	if _, ok := c.Get("t1"); ok {
		t.Fatal("empty cache returned an entry")
	}

	c.Put(CacheEntry{
		TargetID:     "t1",
		Updates:      []UpdateRecord{{Package: "bash", Manager: "apt"}},
		CheckedAt:    time.Now().UTC(),
		Reachability: Reachable,
	})

	got, ok := c.Get("t1")
	if !ok {
		t.Fatal("entry missing after Put")
	}
	if len(got.Updates) != 1 || got.Reachability != Reachable {
		t.Errorf("entry = %+v", got)
	}
}

func TestCacheUnreachableDistinctFromNeverChecked(t *testing.T) {
	c := NewCache(time.Hour)

	c.Put(CacheEntry{
		TargetID:     "down-host",
		CheckedAt:    time.Now().UTC(),
		Reachability: Unreachable,
	})

	if _, ok := c.Get("never-checked"); ok {
		t.Error("never-checked target must have no entry")
	}
	got, ok := c.Get("down-host")
	if !ok {
		t.Fatal("unreachable check must still produce an entry")
	}
	if got.Reachability != Unreachable || len(got.Updates) != 0 {
		t.Errorf("entry = %+v", got)
	}
}

func TestCacheStaleness(t *testing.T) {
	c := NewCache(time.Hour)

	if !c.IsStale("t1") {
		t.Error("missing entry must read as stale")
	}

	c.Put(CacheEntry{TargetID: "t1", CheckedAt: time.Now().UTC(), Reachability: Reachable})
	if c.IsStale("t1") {
		t.Error("fresh entry must not be stale")
	}

	c.Put(CacheEntry{TargetID: "t2", CheckedAt: time.Now().Add(-2 * time.Hour), Reachability: Reachable})
	if !c.IsStale("t2") {
		t.Error("entry past TTL must be stale")
	}
	if c.StaleCount() != 1 {
		t.Errorf("StaleCount = %d, want 1", c.StaleCount())
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Hour)
	c.Put(CacheEntry{TargetID: "t1", CheckedAt: time.Now().UTC()})
	c.Put(CacheEntry{TargetID: "t2", CheckedAt: time.Now().UTC()})

	c.Invalidate("t1")
	if _, ok := c.Get("t1"); ok {
		t.Error("t1 should be gone")
	}
	if _, ok := c.Get("t2"); !ok {
		t.Error("t2 should survive a single invalidation")
	}

	c.InvalidateAll()
	if _, ok := c.Get("t2"); ok {
		t.Error("t2 should be gone after InvalidateAll")
	}
	if !c.IsStale("t2") {
		t.Error("invalidated target must read as stale")
	}
}

func TestCacheSetReachability(t *testing.T) {
	c := NewCache(time.Hour)

	// Creates a bare entry when none exists.
	c.SetReachability("t1", Unreachable)
	got, ok := c.Get("t1")
	if !ok || got.Reachability != Unreachable {
		t.Fatalf("entry = %+v, ok = %v", got, ok)
	}

	// Preserves the update list on an existing entry.
	c.Put(CacheEntry{
		TargetID:     "t2",
		Updates:      []UpdateRecord{{Package: "bash"}},
		CheckedAt:    time.Now().UTC(),
		Reachability: ReachabilityUnknown,
	})
	c.SetReachability("t2", Reachable)
	got, _ = c.Get("t2")
	if got.Reachability != Reachable || len(got.Updates) != 1 {
		t.Errorf("entry = %+v", got)
	}
}
