package ratelimit

import (
	"testing"
	"time"
)

func TestBucket_Allow(t *testing.T) {
	config := Config{
		RequestsPerSecond: 10,
		BurstSize:         5,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	// Should allow burst size requests
	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}

	// Next request should be denied
	if bucket.Allow() {
		t.Error("request after burst should be denied")
	}
}

func TestBucket_Refill(t *testing.T) {
	config := Config{
		RequestsPerSecond: 100, // Fast refill for test
		BurstSize:         2,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	bucket.Allow()
	bucket.Allow()

	if bucket.Allow() {
		t.Error("should be denied after exhausting tokens")
	}

	time.Sleep(50 * time.Millisecond)

	if !bucket.Allow() {
		t.Error("should be allowed after refill")
	}
}

func TestBucket_WaitTime(t *testing.T) {
	config := Config{
		RequestsPerSecond: 10,
		BurstSize:         1,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	if wait := bucket.WaitTime(); wait != 0 {
		t.Errorf("expected no wait with tokens available, got %v", wait)
	}

	bucket.Allow()

	wait := bucket.WaitTime()
	if wait <= 0 || wait > 150*time.Millisecond {
		t.Errorf("expected wait near 100ms, got %v", wait)
	}
}

func TestBucket_Wait(t *testing.T) {
	config := Config{
		RequestsPerSecond: 100,
		BurstSize:         1,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	bucket.Allow()

	if !bucket.Wait(time.Second) {
		t.Error("wait should succeed within a generous budget")
	}
}

func TestBucket_WaitBudgetExhausted(t *testing.T) {
	config := Config{
		RequestsPerSecond: 0.1,
		BurstSize:         1,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	bucket.Allow()

	if bucket.Wait(10 * time.Millisecond) {
		t.Error("wait should report failure when the budget cannot cover the refill")
	}
}

func TestNewBucket_Defaults(t *testing.T) {
	bucket := NewBucket(Config{})
	if bucket.maxTokens <= 0 {
		t.Error("default bucket should have capacity")
	}
	if !bucket.Allow() {
		t.Error("default bucket should allow a first request")
	}
}
