package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryConfig{Now: func() time.Time { return now }})

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(context.Background(), "dev-1", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d denied inside limit", i)
		}
		if decision.Remaining != 3-i-1 {
			t.Fatalf("remaining after %d requests = %d", i+1, decision.Remaining)
		}
	}

	decision, err := limiter.Allow(context.Background(), "dev-1", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("request over limit was allowed")
	}

	// A new window opens after the old one ends.
	now = now.Add(time.Minute + time.Second)
	decision, err = limiter.Allow(context.Background(), "dev-1", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("request denied in a fresh window")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryConfig{})

	if d, _ := limiter.Allow(context.Background(), "dev-1", 1, time.Minute); !d.Allowed {
		t.Fatal("first request for dev-1 denied")
	}
	if d, _ := limiter.Allow(context.Background(), "dev-1", 1, time.Minute); d.Allowed {
		t.Fatal("second request for dev-1 allowed over limit")
	}
	if d, _ := limiter.Allow(context.Background(), "dev-2", 1, time.Minute); !d.Allowed {
		t.Fatal("dev-2 was throttled by dev-1's bucket")
	}
}

func TestMemoryLimiterZeroLimitDisables(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryConfig{})
	for i := 0; i < 100; i++ {
		d, err := limiter.Allow(context.Background(), "dev-1", 0, time.Minute)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed {
			t.Fatal("disabled limiter denied a request")
		}
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryConfig{Now: func() time.Time { return now }, MaxKeys: 2})

	if _, err := limiter.Allow(context.Background(), "a", 1, time.Minute); err != nil {
		t.Fatalf("allow a: %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "b", 1, time.Minute); err != nil {
		t.Fatalf("allow b: %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "c", 1, time.Minute); err == nil {
		t.Fatal("expected capacity error with all buckets live")
	}

	// Expired buckets are collected to make room.
	now = now.Add(2 * time.Minute)
	if _, err := limiter.Allow(context.Background(), "c", 1, time.Minute); err != nil {
		t.Fatalf("allow c after gc: %v", err)
	}
}
