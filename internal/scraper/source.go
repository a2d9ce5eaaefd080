// Package scraper fetches articles from news outlets.
package scraper

import (
	"context"
	"fmt"
	"sort"

	"github.com/deusflow/newsreel/internal/domain"
)

// Source is one outlet. seen reports URLs already stored so they are not fetched again.
type Source interface {
	Name() string
	Scrape(ctx context.Context, seen func(url string) bool) ([]domain.Article, error)
}

// Registry keeps sources by name.
type Registry struct {
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source.
func (r *Registry) Register(s Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[s.Name()] = s
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if s, ok := r.sources[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("source %s is not registered: %w", name, domain.ErrNotFound)
}

// Names lists registered sources in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every registered source ordered by name.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.sources))
	for _, n := range r.Names() {
		out = append(out, r.sources[n])
	}
	return out
}
