package services

import (
	"testing"
	"time"
)

func testLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Window:       10 * time.Minute,
		BaseBackoff:  1000 * time.Millisecond,
		MaxBackoff:   8000 * time.Millisecond,
		FreeFailures: 2,
	})
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name   string
		member string
		ip     string
		want   string
	}{
		{"plain ip", "m1", "10.0.0.1", "10.0.0.1::m1"},
		{"proxy chain takes first hop", "m1", "10.0.0.1, 172.16.0.1", "10.0.0.1::m1"},
		{"whitespace trimmed", "m1", "  10.0.0.1  ", "10.0.0.1::m1"},
		{"empty ip", "m1", "", "unknown::m1"},
		{"only commas", "m1", ",", "unknown::m1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RateLimitKey(tt.member, tt.ip); got != tt.want {
				t.Errorf("RateLimitKey(%q, %q) = %q, want %q", tt.member, tt.ip, got, tt.want)
			}
		})
	}
}

func TestRateLimiterFreeFailures(t *testing.T) {
	limiter := testLimiter()
	now := time.Now()
	key := "10.0.0.1::m1"

	// Two free failures leave the key open.
	limiter.RecordFailure(key, now)
	limiter.RecordFailure(key, now)
	if allowed, _ := limiter.Check(key, now); !allowed {
		t.Fatal("Expected allowed within the free-failure budget")
	}

	// Third failure starts the backoff at the base value.
	limiter.RecordFailure(key, now)
	allowed, retry := limiter.Check(key, now)
	if allowed {
		t.Fatal("Expected block after third failure")
	}
	if retry != 1000*time.Millisecond {
		t.Errorf("retry = %v, want 1s", retry)
	}

	// Once the block lapses the key is allowed again.
	if allowed, _ := limiter.Check(key, now.Add(1001*time.Millisecond)); !allowed {
		t.Error("Expected allowed after the block expired")
	}
}

func TestRateLimiterExponentialBackoff(t *testing.T) {
	limiter := testLimiter()
	now := time.Now()
	key := "10.0.0.1::m1"

	// failures: 2 free, then backoffs 1s, 2s, 4s, 8s (capped).
	wantRetries := []time.Duration{0, 0, 1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, want := range wantRetries {
		limiter.RecordFailure(key, now)
		allowed, retry := limiter.Check(key, now)
		if want == 0 {
			if !allowed {
				t.Fatalf("failure %d: expected allowed", i+1)
			}
			continue
		}
		if allowed {
			t.Fatalf("failure %d: expected block", i+1)
		}
		if retry != want {
			t.Errorf("failure %d: retry = %v, want %v", i+1, retry, want)
		}
	}
}

func TestRateLimiterBlockNeverShrinks(t *testing.T) {
	limiter := testLimiter()
	now := time.Now()
	key := "10.0.0.1::m1"

	for i := 0; i < 6; i++ {
		limiter.RecordFailure(key, now)
	}
	_, longRetry := limiter.Check(key, now)

	// A late-arriving failure with an older timestamp must not pull the
	// block deadline backward.
	limiter.RecordFailure(key, now.Add(-5*time.Second))
	_, retry := limiter.Check(key, now)
	if retry < longRetry {
		t.Errorf("block shrank from %v to %v after an out-of-order failure", longRetry, retry)
	}
}

func TestRateLimiterClear(t *testing.T) {
	limiter := testLimiter()
	now := time.Now()
	key := "10.0.0.1::m1"

	for i := 0; i < 5; i++ {
		limiter.RecordFailure(key, now)
	}
	if allowed, _ := limiter.Check(key, now); allowed {
		t.Fatal("Expected block before clear")
	}

	limiter.Clear(key)
	if allowed, _ := limiter.Check(key, now); !allowed {
		t.Error("Expected allowed immediately after clear")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		Window:       2000 * time.Millisecond,
		BaseBackoff:  1000 * time.Millisecond,
		MaxBackoff:   8000 * time.Millisecond,
		FreeFailures: 1,
	})
	now := time.Now()
	key := "10.0.0.1::m1"

	limiter.RecordFailure(key, now)
	limiter.RecordFailure(key, now)
	if allowed, _ := limiter.Check(key, now); allowed {
		t.Fatal("Expected block after two failures with one free")
	}

	// Window and block both lapsed: the entry is stale, budget restored.
	later := now.Add(3000 * time.Millisecond)
	if allowed, _ := limiter.Check(key, later); !allowed {
		t.Fatal("Expected allowed after window and block lapsed")
	}

	// The next failure starts a fresh entry with the free budget back.
	limiter.RecordFailure(key, later)
	if allowed, _ := limiter.Check(key, later); !allowed {
		t.Error("Expected first failure of a fresh window to be free")
	}
}

func TestRateLimiterActiveBlockOutlivesWindow(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		Window:       100 * time.Millisecond,
		BaseBackoff:  10 * time.Second,
		MaxBackoff:   10 * time.Second,
		FreeFailures: 0,
	})
	now := time.Now()
	key := "10.0.0.1::m1"

	limiter.RecordFailure(key, now)

	// Window lapsed but the block is still running: not stale, still
	// blocked.
	during := now.Add(500 * time.Millisecond)
	if allowed, _ := limiter.Check(key, during); allowed {
		t.Error("Active block must survive window expiry")
	}
}

func TestRateLimiterCheckDoesNotMutate(t *testing.T) {
	limiter := testLimiter()
	now := time.Now()
	key := "10.0.0.1::m1"

	for i := 0; i < 3; i++ {
		limiter.RecordFailure(key, now)
	}

	_, first := limiter.Check(key, now)
	for i := 0; i < 10; i++ {
		limiter.Check(key, now)
	}
	_, last := limiter.Check(key, now)
	if first != last {
		t.Errorf("Check mutated state: retry changed from %v to %v", first, last)
	}
}

func TestRateLimiterMinimumRetry(t *testing.T) {
	limiter := testLimiter()
	now := time.Now()
	key := "10.0.0.1::m1"

	for i := 0; i < 3; i++ {
		limiter.RecordFailure(key, now)
	}

	// Just before the block lapses the retry hint is floored at 1ms.
	almost := now.Add(1000*time.Millisecond - time.Nanosecond)
	allowed, retry := limiter.Check(key, almost)
	if allowed {
		t.Fatal("Expected block just before expiry")
	}
	if retry < time.Millisecond {
		t.Errorf("retry = %v, want at least 1ms", retry)
	}
}
