package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/metrics"
)

// Compressor shortens text to about ratio of its length.
type Compressor interface {
	Compress(ctx context.Context, text string, ratio float64) (string, error)
}

// CachedCompressor memoizes another Compressor by text and ratio.
type CachedCompressor struct {
	inner Compressor
	store Store
	ttl   time.Duration

	// OnHit, when set, is called for every answer served from the store.
	OnHit func()
}

func NewCompressor(inner Compressor, store Store, ttl time.Duration) *CachedCompressor {
	return &CachedCompressor{inner: inner, store: store, ttl: ttl}
}

func (c *CachedCompressor) Compress(ctx context.Context, text string, ratio float64) (string, error) {
	key := GenerateKey(strconv.FormatFloat(ratio, 'f', 3, 64), text)
	if v, ok := c.store.Get(ctx, key); ok {
		metrics.Global.IncrementCompressCacheHits()
		if c.OnHit != nil {
			c.OnHit()
		}
		return v, nil
	}

	out, err := c.inner.Compress(ctx, text, ratio)
	if err != nil {
		return "", err
	}
	if err := c.store.Set(ctx, key, out, c.ttl); err != nil {
		logger.Warn("failed to cache compressed text", "component", "cache", "error", err)
	}
	return out, nil
}
