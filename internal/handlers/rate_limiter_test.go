package handlers

import (
	"testing"
	"time"
)

func TestSimpleRateLimiterEnforcesWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	limiter := newSimpleRateLimiter(2, time.Minute, clock)
	if limiter == nil {
		t.Fatalf("expected limiter instance")
	}

	if !limiter.Allow("user-1") || !limiter.Allow("user-1") {
		t.Fatalf("expected first two requests allowed")
	}
	if limiter.Allow("user-1") {
		t.Fatalf("expected third request within window rejected")
	}
	if !limiter.Allow("user-2") {
		t.Fatalf("expected independent bucket per key")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("user-1") {
		t.Fatalf("expected allowance after window reset")
	}
}

func TestSimpleRateLimiterBlankKeyFallsBack(t *testing.T) {
	limiter := newSimpleRateLimiter(1, time.Minute, nil)

	if !limiter.Allow("") {
		t.Fatalf("expected first anonymous request allowed")
	}
	if limiter.Allow("   ") {
		t.Fatalf("expected blank keys to share the anonymous bucket")
	}
}

func TestNewSimpleRateLimiterDisabledForNonPositiveConfig(t *testing.T) {
	if limiter := newSimpleRateLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
	if limiter := newSimpleRateLimiter(10, 0, nil); limiter != nil {
		t.Fatalf("expected nil limiter for zero window")
	}
}
