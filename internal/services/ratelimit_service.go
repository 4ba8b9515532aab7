package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// RateLimiter is a keyed fixed-window counter. Allow reports whether the
// caller identified by key may proceed within the current window. The window
// resets wholesale at expiry, not sliding.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter backs the fixed window with Redis so the limit holds
// across server processes.
type RedisRateLimiter struct {
	redis  *RedisService
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisRateLimiter creates a Redis-backed fixed-window limiter
func NewRedisRateLimiter(redis *RedisService, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		redis:  redis,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:tracking:",
	}
}

// Allow increments the per-key counter and checks it against the limit.
// Redis errors fail open - telemetry ingestion should not stop because the
// limiter store is down.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	_, exceeded, err := l.redis.CheckRateLimit(ctx, l.prefix+key, l.limit, l.window)
	if err != nil {
		log.Printf("⚠️  [RATE-LIMIT] Redis check failed for %s: %v (failing open)", key, err)
		return true, err
	}
	return !exceeded, nil
}

// MemoryRateLimiter is the single-process fallback used when Redis is not
// configured. Safe for concurrent use.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*windowEntry
	now     func() time.Time // injectable for tests
}

type windowEntry struct {
	count     int
	resetTime time.Time
}

// NewMemoryRateLimiter creates an in-process fixed-window limiter
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// Allow increments the per-key counter within the current window
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetTime) {
		l.entries[key] = &windowEntry{count: 1, resetTime: now.Add(l.window)}
		return true, nil
	}

	if entry.count >= l.limit {
		return false, nil
	}

	entry.count++
	return true, nil
}

// Sweep drops expired windows so the map does not grow without bound.
// Call periodically from a background goroutine.
func (l *MemoryRateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, entry := range l.entries {
		if now.After(entry.resetTime) {
			delete(l.entries, key)
		}
	}
}
