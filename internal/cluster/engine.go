// Package cluster groups articles from different outlets that report the same event.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/textnorm"
)

// Strategy builds clusters from today's articles and the trailing window.
// Implementations run single-threaded; cluster state is mutated in scan order.
type Strategy interface {
	Name() string
	Build(recent, window []domain.Article) []*domain.Cluster
}

// ArticleQuerier is the part of the article store the engine reads.
type ArticleQuerier interface {
	QueryByDateSource(ctx context.Context, source string, since time.Time) ([]domain.Article, error)
}

type Engine struct {
	strategy   Strategy
	windowDays int
	log        *slog.Logger
	now        func() time.Time
}

func NewEngine(strategy Strategy, windowDays int) *Engine {
	if windowDays < 1 {
		windowDays = 14
	}
	return &Engine{
		strategy:   strategy,
		windowDays: windowDays,
		log:        logger.Component("cluster").With("strategy", strategy.Name()),
		now:        time.Now,
	}
}

// Collect loads the window for every source, in source order, and splits it into
// articles published on day and the whole window.
func (e *Engine) Collect(ctx context.Context, store ArticleQuerier, sources []string, day time.Time) (recent, window []domain.Article, err error) {
	since := domain.StartOfDay(day).AddDate(0, 0, -e.windowDays)
	var all []domain.Article
	for _, src := range sources {
		arts, err := store.QueryByDateSource(ctx, src, since)
		if err != nil {
			return nil, nil, fmt.Errorf("load window for %s: %w", src, err)
		}
		all = append(all, arts...)
	}
	recent, window = Partition(day, e.windowDays, all)
	return recent, window, nil
}

// Partition returns articles published on day and articles published within the
// trailing windowDays days (today included).
func Partition(day time.Time, windowDays int, articles []domain.Article) (recent, window []domain.Article) {
	since := domain.StartOfDay(day).AddDate(0, 0, -windowDays)
	for _, a := range articles {
		if a.PublishedAt.Before(since) {
			continue
		}
		window = append(window, a)
		if a.PublishedOn(day) {
			recent = append(recent, a)
		}
	}
	return recent, window
}

// Run executes one clustering pass and returns finalized clusters only.
func (e *Engine) Run(recent, window []domain.Article) []*domain.Cluster {
	start := e.now()
	e.log.Info("clustering pass started", "recent", len(recent), "window", len(window))

	built := e.strategy.Build(recent, window)

	byURL := make(map[string]domain.Article, len(window)+len(recent))
	for _, a := range window {
		byURL[a.URL] = a
	}
	for _, a := range recent {
		byURL[a.URL] = a
	}

	var out []*domain.Cluster
	for _, c := range built {
		if err := c.Validate(); err != nil {
			e.log.Debug("cluster discarded", "cluster", c.ID, "reason", err)
			continue
		}
		e.aggregate(c, byURL)
		c.CreatedAt = start
		c.Status = domain.ClusterFinalized
		c.Strategy = e.strategy.Name()
		out = append(out, c)

		e.log.Info("cluster finalized", "cluster", c.ID, "title", c.Title, "members", len(c.Members), "images", len(c.Images))
	}

	e.log.Info("clustering pass finished", "clusters", len(out), "discarded", len(built)-len(out), "took", e.now().Sub(start))
	return out
}

func (e *Engine) aggregate(c *domain.Cluster, byURL map[string]domain.Article) {
	for i, m := range c.Members {
		a, ok := byURL[m.URL]
		if !ok {
			continue
		}
		if i == 0 {
			c.Title = a.Title
			c.Summary = a.Abstract
		}
		c.AddTags(a.Tags...)
		c.AddImages(textnorm.ExtractImages(a.Text)...)
	}
}

func newCluster(anchor domain.Article) *domain.Cluster {
	return &domain.Cluster{
		ID:      domain.NewID(),
		Status:  domain.ClusterOpen,
		Members: []domain.Member{{ArticleID: anchor.ID, Source: anchor.Source, URL: anchor.URL}},
	}
}
