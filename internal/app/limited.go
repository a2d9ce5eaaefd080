package app

import (
	"context"

	"github.com/deusflow/newsreel/internal/generate"
	"github.com/deusflow/newsreel/internal/ratelimit"
	"github.com/deusflow/newsreel/internal/retry"
)

// remoteService is a provider client that generates and compresses.
type remoteService interface {
	generate.Service
	generate.Compressor
}

// limitedService counts every remote call against the daily quota. A spent quota
// is permanent for the retry loop: waiting 5 seconds will not refill it.
type limitedService struct {
	inner    remoteService
	limiter  *ratelimit.Limiter
	provider string
}

func (l *limitedService) use() error {
	if err := l.limiter.Use(l.provider); err != nil {
		return retry.Permanent(err)
	}
	return nil
}

func (l *limitedService) GenerateScript(ctx context.Context, request string) (generate.Response, error) {
	if err := l.use(); err != nil {
		return generate.Response{}, err
	}
	return l.inner.GenerateScript(ctx, request)
}

func (l *limitedService) GenerateTags(ctx context.Context, script string) ([]string, error) {
	if err := l.use(); err != nil {
		return nil, err
	}
	return l.inner.GenerateTags(ctx, script)
}

func (l *limitedService) Compress(ctx context.Context, text string, ratio float64) (string, error) {
	if err := l.use(); err != nil {
		return "", err
	}
	return l.inner.Compress(ctx, text, ratio)
}
