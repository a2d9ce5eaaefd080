// Package coordinator runs all scrape sources in parallel and stores what they find.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/metrics"
	"github.com/deusflow/newsreel/internal/scraper"
)

// ArticleStore is the part of the article store a scrape task writes to.
type ArticleStore interface {
	Insert(ctx context.Context, a domain.Article) (bool, error)
	Exists(ctx context.Context, url string) (bool, error)
	Close() error
}

// StoreOpener gives every task its own store handle.
type StoreOpener func(ctx context.Context) (ArticleStore, error)

type Options struct {
	Concurrency   int
	SourceTimeout time.Duration
}

// Report summarizes one scrape run. A source is missing when it timed out,
// failed or could not open the store.
type Report struct {
	Inserted map[string]int   `json:"inserted"`
	Rejected map[string]int   `json:"rejected"`
	Missing  []string         `json:"missing"`
	Errors   map[string]error `json:"-"`
	Duration time.Duration    `json:"duration"`
}

// Total is the number of newly stored articles over all sources.
func (r Report) Total() int {
	n := 0
	for _, v := range r.Inserted {
		n += v
	}
	return n
}

type Coordinator struct {
	registry *scraper.Registry
	open     StoreOpener
	opts     Options
	log      *slog.Logger
}

func New(registry *scraper.Registry, open StoreOpener, opts Options) *Coordinator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 10 * time.Minute
	}
	return &Coordinator{
		registry: registry,
		open:     open,
		opts:     opts,
		log:      logger.Component("coordinator"),
	}
}

// Run scrapes the named sources, or every registered source when names is empty.
// Sources never cancel each other; the only error is an unknown source name.
func (c *Coordinator) Run(ctx context.Context, names ...string) (Report, error) {
	sources := c.registry.All()
	if len(names) > 0 {
		sources = sources[:0:0]
		for _, n := range names {
			s, err := c.registry.Resolve(n)
			if err != nil {
				return Report{}, err
			}
			sources = append(sources, s)
		}
	}

	start := time.Now()
	rep := Report{
		Inserted: make(map[string]int, len(sources)),
		Rejected: make(map[string]int, len(sources)),
		Errors:   make(map[string]error),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			inserted, rejected, err := c.runSource(ctx, src)

			mu.Lock()
			defer mu.Unlock()
			rep.Inserted[src.Name()] = inserted
			rep.Rejected[src.Name()] = rejected
			if err != nil {
				rep.Missing = append(rep.Missing, src.Name())
				rep.Errors[src.Name()] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(rep.Missing)
	rep.Duration = time.Since(start)

	metrics.Global.AddArticlesScraped(rep.Total())
	metrics.Global.AddMissingSources(len(rep.Missing))
	for _, n := range rep.Rejected {
		metrics.Global.AddArticlesRejected(n)
	}
	c.log.Info("scrape finished", "sources", len(sources), "inserted", rep.Total(), "missing", rep.Missing, "duration", rep.Duration)
	return rep, nil
}

type scrapeResult struct {
	articles []domain.Article
	err      error
}

// runSource scrapes one source under its own deadline. Articles found before a
// timeout are discarded together with the source.
func (c *Coordinator) runSource(ctx context.Context, src scraper.Source) (inserted, rejected int, err error) {
	log := c.log.With("source", src.Name())

	tctx, cancel := context.WithTimeout(ctx, c.opts.SourceTimeout)
	defer cancel()

	store, err := c.open(tctx)
	if err != nil {
		log.Error("could not open store", "error", err)
		return 0, 0, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	seen := func(url string) bool {
		ok, err := store.Exists(tctx, url)
		return err == nil && ok
	}

	done := make(chan scrapeResult, 1)
	go func() {
		arts, err := src.Scrape(tctx, seen)
		done <- scrapeResult{articles: arts, err: err}
	}()

	var res scrapeResult
	select {
	case <-tctx.Done():
		log.Warn("source did not finish in time", "timeout", c.opts.SourceTimeout)
		return 0, 0, fmt.Errorf("scrape %s: %w", src.Name(), tctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) || len(res.articles) == 0 {
			log.Error("scrape failed", "error", res.err)
			return 0, 0, fmt.Errorf("scrape %s: %w", src.Name(), res.err)
		}
		log.Warn("scrape ended early, storing partial result", "error", res.err, "articles", len(res.articles))
	}

	for _, a := range res.articles {
		ok, err := store.Insert(ctx, a)
		if err != nil {
			log.Error("insert failed", "url", a.URL, "error", err)
			continue
		}
		if !ok {
			rejected++
			log.Info("article rejected", "url", a.URL)
			continue
		}
		inserted++
	}
	log.Info("source done", "inserted", inserted, "rejected", rejected)
	return inserted, rejected, nil
}
