package snapshot

import (
	"testing"
	"time"
)

func TestCacheExpiry(t *testing.T) {
	cache := NewCache()
	snap := &Snapshot{Mint: "mint"}

	cache.Put("k", snap, 20*time.Millisecond)
	if got, ok := cache.Get("k"); !ok || got != snap {
		t.Fatal("fresh entry should be served")
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Fatal("expired entry should be dropped")
	}
}

func TestCacheRejectsNonPositiveTTL(t *testing.T) {
	cache := NewCache()
	cache.Put("k", &Snapshot{}, 0)
	if _, ok := cache.Get("k"); ok {
		t.Fatal("zero ttl must not store")
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache := NewCache()
	cache.Put("k", &Snapshot{}, time.Minute)
	cache.Invalidate("k")
	if _, ok := cache.Get("k"); ok {
		t.Fatal("invalidated entry should be gone")
	}
}
