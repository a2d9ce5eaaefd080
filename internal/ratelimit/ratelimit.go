// Package ratelimit caps the number of generation requests per provider per day.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deusflow/newsreel/internal/logger"
)

// ErrLimitExceeded is returned by Use when the provider or total quota is spent.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter counts requests per provider and resets every window. A limit of zero
// means unlimited.
type Limiter struct {
	mu          sync.Mutex
	counts      map[string]int
	limits      map[string]int
	totalCount  int
	maxTotal    int
	window      time.Duration
	resetTime   time.Time
	cacheHits   int
	cacheMisses int
	now         func() time.Time
}

// New creates a daily limiter with per-provider limits and an overall cap.
func New(limits map[string]int, maxTotal int) *Limiter {
	l := &Limiter{
		counts:   make(map[string]int),
		limits:   make(map[string]int, len(limits)),
		maxTotal: maxTotal,
		window:   24 * time.Hour,
		now:      time.Now,
	}
	for k, v := range limits {
		l.limits[k] = v
	}
	l.resetTime = l.now().Add(l.window)
	return l
}

// Allow reports whether one more request to provider fits the quota.
func (l *Limiter) Allow(provider string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkReset()
	return l.exceeded(provider) == nil
}

// Use records one request to provider, or fails without recording it.
func (l *Limiter) Use(provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkReset()

	if err := l.exceeded(provider); err != nil {
		logger.Warn("generation rate limit reached", "provider", provider, "used", l.counts[provider], "limit", l.limits[provider], "total", l.totalCount)
		return err
	}
	l.counts[provider]++
	l.totalCount++
	l.cacheMisses++
	logger.Debug("generation request counted", "provider", provider, "used", l.counts[provider], "limit", l.limits[provider], "total", l.totalCount, "max_total", l.maxTotal)
	return nil
}

func (l *Limiter) exceeded(provider string) error {
	if limit := l.limits[provider]; limit > 0 && l.counts[provider] >= limit {
		return fmt.Errorf("%w: %s %d/%d", ErrLimitExceeded, provider, l.counts[provider], limit)
	}
	if l.maxTotal > 0 && l.totalCount >= l.maxTotal {
		return fmt.Errorf("%w: total %d/%d", ErrLimitExceeded, l.totalCount, l.maxTotal)
	}
	return nil
}

// RecordCacheHit counts a request answered from the compression cache.
func (l *Limiter) RecordCacheHit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cacheHits++
}

func (l *Limiter) cacheHitRate() float64 {
	total := l.cacheHits + l.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(l.cacheHits) / float64(total) * 100
}

// Stats returns current usage, keyed like "<provider>_used".
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := map[string]interface{}{
		"total_used":     l.totalCount,
		"total_limit":    l.maxTotal,
		"cache_hits":     l.cacheHits,
		"cache_misses":   l.cacheMisses,
		"cache_hit_rate": l.cacheHitRate(),
		"reset_time":     l.resetTime,
	}
	for p, limit := range l.limits {
		stats[p+"_limit"] = limit
		stats[p+"_used"] = l.counts[p]
	}
	for p, n := range l.counts {
		stats[p+"_used"] = n
	}
	return stats
}

// checkReset clears the counters once the window has passed. Callers hold mu.
func (l *Limiter) checkReset() {
	if !l.now().After(l.resetTime) {
		return
	}
	logger.Info("resetting generation rate limiter", "total_used", l.totalCount, "cache_hits", l.cacheHits)
	l.counts = make(map[string]int)
	l.totalCount = 0
	l.cacheHits = 0
	l.cacheMisses = 0
	l.resetTime = l.now().Add(l.window)
}
