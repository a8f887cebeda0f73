package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiterBurstThenBlock(t *testing.T) {
	limiter, err := NewLocalLimiter(3, time.Minute)
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !limiter.Allow(ctx, "ip-1") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if limiter.Allow(ctx, "ip-1") {
		t.Fatalf("fourth request should be blocked")
	}
	if !limiter.Allow(ctx, "ip-2") {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestLocalLimiterRefills(t *testing.T) {
	limiter, err := NewLocalLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()
	limiter.Allow(ctx, "ip-1")
	limiter.Allow(ctx, "ip-1")
	if limiter.Allow(ctx, "ip-1") {
		t.Fatalf("bucket should be empty")
	}
	now = now.Add(31 * time.Second)
	if !limiter.Allow(ctx, "ip-1") {
		t.Fatalf("one token should have refilled")
	}
}

func TestLocalLimiterEvictsIdleKeys(t *testing.T) {
	limiter, err := NewLocalLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()
	limiter.Allow(ctx, "ip-1")
	limiter.Allow(ctx, "ip-2")
	now = now.Add(localIdleTTL + localSweepInterval)
	limiter.Allow(ctx, "ip-3")
	if got := limiter.size(); got != 1 {
		t.Fatalf("expected idle keys evicted, %d remain", got)
	}
}

func TestLocalLimiterRejectsBadConfig(t *testing.T) {
	if _, err := NewLocalLimiter(0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
