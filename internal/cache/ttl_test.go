package cache

import (
	"testing"
	"time"
)

func TestTTLCache_GetSet(t *testing.T) {
	c := NewTTLCache(time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache should miss")
	}

	c.Set("key", "value")
	got, ok := c.Get("key")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.(string) != "value" {
		t.Errorf("got %v, want value", got)
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache(time.Minute)
	now := time.Now()

	c.SetAt("key", "value", now)

	if _, ok := c.GetAt("key", now.Add(30*time.Second)); !ok {
		t.Error("entry should be live before the TTL")
	}
	if _, ok := c.GetAt("key", now.Add(2*time.Minute)); ok {
		t.Error("entry should expire after the TTL")
	}
	// Expired entry is reaped on access.
	if c.Len() != 0 {
		t.Errorf("expected reaped cache, have %d entries", c.Len())
	}
}

func TestTTLCache_SetRefreshesExpiry(t *testing.T) {
	c := NewTTLCache(time.Minute)
	now := time.Now()

	c.SetAt("key", "old", now)
	c.SetAt("key", "new", now.Add(50*time.Second))

	got, ok := c.GetAt("key", now.Add(90*time.Second))
	if !ok {
		t.Fatal("refreshed entry should still be live")
	}
	if got.(string) != "new" {
		t.Errorf("got %v, want new", got)
	}
}

func TestTTLCache_Delete(t *testing.T) {
	c := NewTTLCache(time.Minute)
	c.Set("key", 1)
	c.Delete("key")
	if _, ok := c.Get("key"); ok {
		t.Error("deleted entry should miss")
	}
}

func TestTTLCache_Cleanup(t *testing.T) {
	c := NewTTLCache(10 * time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(30 * time.Millisecond)
	c.Set("c", 3)

	removed := c.Cleanup()
	if removed != 2 {
		t.Errorf("removed %d entries, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 live entry, have %d", c.Len())
	}
}
