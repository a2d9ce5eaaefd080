package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/scraper"
)

type fakeSource struct {
	name  string
	arts  []domain.Article
	err   error
	delay time.Duration
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Scrape(ctx context.Context, seen func(string) bool) ([]domain.Article, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	var out []domain.Article
	for _, a := range f.arts {
		if !seen(a.URL) {
			out = append(out, a)
		}
	}
	return out, f.err
}

// memStore is shared by all handles; each handle counts its Close.
type memStore struct {
	mu     sync.Mutex
	urls   map[string]bool
	closed int
}

type handle struct{ s *memStore }

func (h handle) Insert(_ context.Context, a domain.Article) (bool, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if a.Text == "" || h.s.urls[a.URL] {
		return false, nil
	}
	h.s.urls[a.URL] = true
	return true, nil
}

func (h handle) Exists(_ context.Context, url string) (bool, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.urls[url], nil
}

func (h handle) Close() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.closed++
	return nil
}

func art(url, text string) domain.Article {
	return domain.Article{URL: url, Text: text, PublishedAt: time.Now()}
}

func TestRunReportsMissingSources(t *testing.T) {
	mem := &memStore{urls: map[string]bool{"https://blick.ch/known": true}}
	open := func(context.Context) (ArticleStore, error) { return handle{mem}, nil }

	reg := scraper.NewRegistry()
	reg.Register(&fakeSource{name: "Blick", arts: []domain.Article{
		art("https://blick.ch/1", "text"),
		art("https://blick.ch/known", "text"),
		art("https://blick.ch/empty", ""),
	}})
	reg.Register(&fakeSource{name: "20min", arts: []domain.Article{art("https://20min.ch/1", "text")}})
	reg.Register(&fakeSource{name: "Slow", delay: time.Second, arts: []domain.Article{art("https://slow.ch/1", "text")}})
	reg.Register(&fakeSource{name: "Broken", err: errors.New("listing failed")})

	c := New(reg, open, Options{Concurrency: 2, SourceTimeout: 50 * time.Millisecond})
	rep, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if rep.Inserted["Blick"] != 1 || rep.Rejected["Blick"] != 1 {
		t.Errorf("Blick inserted=%d rejected=%d", rep.Inserted["Blick"], rep.Rejected["Blick"])
	}
	if rep.Inserted["20min"] != 1 {
		t.Errorf("20min inserted=%d", rep.Inserted["20min"])
	}
	if rep.Total() != 2 {
		t.Errorf("total = %d", rep.Total())
	}
	if len(rep.Missing) != 2 || rep.Missing[0] != "Broken" || rep.Missing[1] != "Slow" {
		t.Errorf("missing = %v", rep.Missing)
	}
	if !errors.Is(rep.Errors["Slow"], context.DeadlineExceeded) {
		t.Errorf("slow error = %v", rep.Errors["Slow"])
	}
	if mem.urls["https://slow.ch/1"] {
		t.Error("timed out source stored articles")
	}
	if mem.closed != 4 {
		t.Errorf("store handles closed = %d, want 4", mem.closed)
	}
}

func TestRunNamedSources(t *testing.T) {
	mem := &memStore{urls: map[string]bool{}}
	open := func(context.Context) (ArticleStore, error) { return handle{mem}, nil }
	reg := scraper.NewRegistry()
	reg.Register(&fakeSource{name: "Blick", arts: []domain.Article{art("https://blick.ch/1", "text")}})
	reg.Register(&fakeSource{name: "20min", arts: []domain.Article{art("https://20min.ch/1", "text")}})

	c := New(reg, open, Options{})
	rep, err := c.Run(context.Background(), "20min")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rep.Inserted["Blick"]; ok || rep.Total() != 1 {
		t.Errorf("report = %+v", rep)
	}

	if _, err := c.Run(context.Background(), "NZZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestRunStoreOpenFailure(t *testing.T) {
	open := func(context.Context) (ArticleStore, error) { return nil, errors.New("db down") }
	reg := scraper.NewRegistry()
	reg.Register(&fakeSource{name: "Blick"})

	rep, _ := New(reg, open, Options{}).Run(context.Background())
	if len(rep.Missing) != 1 || rep.Missing[0] != "Blick" {
		t.Errorf("missing = %v", rep.Missing)
	}
}
