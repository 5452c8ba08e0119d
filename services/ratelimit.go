package services

import (
	"strings"
	"sync"
	"time"
)

// RateLimitConfig tunes the parent-elevation guard. All values come from the
// process configuration; zero values are not valid.
type RateLimitConfig struct {
	Window       time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	FreeFailures int
}

type rateLimitEntry struct {
	firstFailureAt time.Time
	failures       int
	blockedUntil   time.Time
}

// RateLimiter throttles PIN guessing per (source IP, target family member)
// pair. State lives in process memory; a horizontally scaled deployment
// fragments it per instance, which weakens but does not break the guarantee.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	entries map[string]*rateLimitEntry
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		entries: make(map[string]*rateLimitEntry),
	}
}

// RateLimitKey composes the limiter key from the target family member and the
// source IP. Proxy chains hand over comma-separated lists; only the first hop
// counts. An empty IP keys under "unknown" so it still shares one budget.
func RateLimitKey(familyMemberID, ip string) string {
	first := ip
	if idx := strings.Index(ip, ","); idx >= 0 {
		first = ip[:idx]
	}
	first = strings.TrimSpace(first)
	if first == "" {
		first = "unknown"
	}
	return first + "::" + familyMemberID
}

// Check reports whether an attempt may proceed. It never mutates state, so a
// blocked caller polling Check cannot extend its own block.
func (l *RateLimiter) Check(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || l.stale(entry, now) {
		return true, 0
	}
	if entry.blockedUntil.After(now) {
		retry := entry.blockedUntil.Sub(now)
		if retry < time.Millisecond {
			retry = time.Millisecond
		}
		return false, retry
	}
	return true, 0
}

// RecordFailure counts a failed attempt and extends the block window with
// binary exponential backoff once the free-failure budget is spent. The block
// deadline only ever moves forward, even if failures land out of order.
func (l *RateLimiter) RecordFailure(key string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || l.stale(entry, now) {
		entry = &rateLimitEntry{firstFailureAt: now}
		l.entries[key] = entry
	}
	entry.failures++

	penalty := entry.failures - l.cfg.FreeFailures
	if penalty <= 0 {
		return
	}

	backoff := l.cfg.BaseBackoff
	for i := 1; i < penalty && backoff < l.cfg.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > l.cfg.MaxBackoff {
		backoff = l.cfg.MaxBackoff
	}

	blockedUntil := now.Add(backoff)
	if blockedUntil.After(entry.blockedUntil) {
		entry.blockedUntil = blockedUntil
	}
}

// Clear drops the entry unconditionally. Called after a successful elevation.
func (l *RateLimiter) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// stale entries are ignored and replaced on the next failure. An active block
// is never stale, even when the window has lapsed; only a fully expired block
// reopens the free-failure budget.
func (l *RateLimiter) stale(entry *rateLimitEntry, now time.Time) bool {
	return now.Sub(entry.firstFailureAt) > l.cfg.Window && !entry.blockedUntil.After(now)
}
