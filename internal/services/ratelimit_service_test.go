package services

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRateLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := NewMemoryRateLimiter(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}

	allowed, _ := limiter.Allow(ctx, "1.2.3.4")
	if allowed {
		t.Error("Expected request 6 to be rejected")
	}
}

func TestMemoryRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryRateLimiter(1, time.Minute)
	ctx := context.Background()

	limiter.Allow(ctx, "1.1.1.1")
	if allowed, _ := limiter.Allow(ctx, "1.1.1.1"); allowed {
		t.Error("Expected first key to be exhausted")
	}
	if allowed, _ := limiter.Allow(ctx, "2.2.2.2"); !allowed {
		t.Error("Expected second key to have its own window")
	}
}

func TestMemoryRateLimiter_WindowResetsWholesale(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	limiter.Allow(ctx, "ip")
	limiter.Allow(ctx, "ip")
	if allowed, _ := limiter.Allow(ctx, "ip"); allowed {
		t.Fatal("Expected limit reached before reset")
	}

	// Advance past the window: the counter resets wholesale
	now = now.Add(61 * time.Second)
	if allowed, _ := limiter.Allow(ctx, "ip"); !allowed {
		t.Error("Expected fresh window after expiry")
	}
	if allowed, _ := limiter.Allow(ctx, "ip"); !allowed {
		t.Error("Expected full quota in the new window")
	}
}

func TestMemoryRateLimiter_SweepDropsExpired(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryRateLimiter(10, time.Minute)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	limiter.Allow(ctx, "a")
	limiter.Allow(ctx, "b")

	now = now.Add(2 * time.Minute)
	limiter.Sweep()

	limiter.mu.Lock()
	remaining := len(limiter.entries)
	limiter.mu.Unlock()
	if remaining != 0 {
		t.Errorf("Expected sweep to drop expired windows, %d remain", remaining)
	}
}
