package cache

import (
	"testing"
	"time"
)

func newTestCache(start time.Time) (*TTLCache[string, string], *time.Time) {
	clock := start
	c := NewTTLCache[string, string](5 * time.Minute)
	c.now = func() time.Time { return clock }
	return c, &clock
}

// TestTakeIsSingleUse returns an entry exactly once.
func TestTakeIsSingleUse(t *testing.T) {
	c, _ := newTestCache(time.Now())
	c.Put("state", "alice")

	v, ok := c.Take("state")
	if !ok || v != "alice" {
		t.Fatalf("Take() = %q, %v, want alice, true", v, ok)
	}
	if _, ok := c.Take("state"); ok {
		t.Fatalf("second Take() = true, want false")
	}
}

// TestTakeExpired never returns an entry past max age.
func TestTakeExpired(t *testing.T) {
	c, clock := newTestCache(time.Now())
	c.Put("state", "alice")
	*clock = clock.Add(6 * time.Minute)

	if _, ok := c.Take("state"); ok {
		t.Fatalf("Take() of expired entry = true, want false")
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

// TestPurge drops only expired entries.
func TestPurge(t *testing.T) {
	start := time.Now()
	c, clock := newTestCache(start)
	c.Put("old", "a")
	*clock = start.Add(4 * time.Minute)
	c.Put("new", "b")

	if removed := c.Purge(start.Add(6 * time.Minute)); removed != 1 {
		t.Fatalf("Purge() = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	if v, ok := c.Take("new"); !ok || v != "b" {
		t.Fatalf("Take(new) = %q, %v", v, ok)
	}
}
