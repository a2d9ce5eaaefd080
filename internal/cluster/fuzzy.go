package cluster

import (
	"log/slog"
	"strings"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/similarity"
)

// Matcher decides whether two articles report the same event.
type Matcher interface {
	Match(a, b domain.Article) (similarity.Scores, bool)
}

// AbstractMatcher compares normalized abstracts with a similarity.Scorer.
// Prepared texts are cached by url for the lifetime of the matcher.
type AbstractMatcher struct {
	scorer similarity.Scorer
	stop   []string
	cache  map[string]similarity.Prepared
}

// NewAbstractMatcher builds a matcher. Words in stop are ignored when scoring.
func NewAbstractMatcher(threshold float64, stop ...string) *AbstractMatcher {
	return &AbstractMatcher{
		scorer: similarity.NewScorer(threshold),
		stop:   stop,
		cache:  make(map[string]similarity.Prepared),
	}
}

func (m *AbstractMatcher) prepared(a domain.Article) similarity.Prepared {
	if p, ok := m.cache[a.URL]; ok {
		return p
	}
	p := similarity.Prepare(a.Abstract, m.stop...)
	m.cache[a.URL] = p
	return p
}

func (m *AbstractMatcher) Match(a, b domain.Article) (similarity.Scores, bool) {
	return m.scorer.Compare(m.prepared(a), m.prepared(b))
}

// FuzzyStrategy compares every recent article with every window article.
//
// When a pair is tested, both articles in some cluster is a no-op, even when the
// clusters differ: existing clusters are never merged, so near-duplicate clusters
// can survive a pass. If one article is clustered the other is tested against that
// cluster's anchor. If neither is, a matching pair opens a new cluster anchored on
// the recent article.
type FuzzyStrategy struct {
	matcher Matcher
	log     *slog.Logger
}

func NewFuzzyStrategy(m Matcher) *FuzzyStrategy {
	return &FuzzyStrategy{matcher: m, log: logger.Component("cluster").With("strategy", "fuzzy")}
}

func (f *FuzzyStrategy) Name() string { return "fuzzy" }

func (f *FuzzyStrategy) Build(recent, window []domain.Article) []*domain.Cluster {
	recent = f.usable(recent)
	window = f.usable(window)

	p := newFuzzyPass(f.matcher)
	for _, a := range recent {
		for _, b := range window {
			if a.URL == b.URL || (a.ID != "" && a.ID == b.ID) {
				continue
			}
			p.consider(a, b)
		}
	}
	return p.finalized()
}

func (f *FuzzyStrategy) usable(arts []domain.Article) []domain.Article {
	out := make([]domain.Article, 0, len(arts))
	for _, a := range arts {
		if a.URL == "" || strings.TrimSpace(a.Abstract) == "" {
			f.log.Warn("skipping malformed article", "source", a.Source, "id", a.ID, "url", a.URL, "reason", "missing url or abstract")
			continue
		}
		out = append(out, a)
	}
	return out
}

// fuzzyPass holds the cluster state of one scan.
type fuzzyPass struct {
	matcher  Matcher
	clusters []*domain.Cluster
	byURL    map[string]*domain.Cluster
	anchors  map[*domain.Cluster]domain.Article
}

func newFuzzyPass(m Matcher) *fuzzyPass {
	return &fuzzyPass{
		matcher: m,
		byURL:   make(map[string]*domain.Cluster),
		anchors: make(map[*domain.Cluster]domain.Article),
	}
}

func (p *fuzzyPass) consider(a, b domain.Article) {
	ca, cb := p.byURL[a.URL], p.byURL[b.URL]

	switch {
	case ca != nil && cb != nil:
		return
	case ca != nil:
		p.absorb(ca, b)
	case cb != nil:
		p.absorb(cb, a)
	default:
		sc, ok := p.matcher.Match(a, b)
		if !ok {
			return
		}
		c := newCluster(a)
		p.clusters = append(p.clusters, c)
		p.anchors[c] = a
		p.byURL[a.URL] = c
		p.add(c, b, sc)
	}
}

func (p *fuzzyPass) absorb(c *domain.Cluster, candidate domain.Article) {
	anchor := p.anchors[c]
	sc, ok := p.matcher.Match(anchor, candidate)
	if !ok {
		return
	}
	p.add(c, candidate, sc)
}

func (p *fuzzyPass) add(c *domain.Cluster, a domain.Article, sc similarity.Scores) {
	c.Members = append(c.Members, domain.Member{
		ArticleID: a.ID,
		Source:    a.Source,
		URL:       a.URL,
		Ratio:     sc.Ratio,
		SetRatio:  sc.SetRatio,
		QRatio:    sc.QRatio,
		WRatio:    sc.WRatio,
	})
	p.byURL[a.URL] = c
}

func (p *fuzzyPass) finalized() []*domain.Cluster {
	out := make([]*domain.Cluster, 0, len(p.clusters))
	for _, c := range p.clusters {
		if len(c.Members) >= 2 {
			out = append(out, c)
		}
	}
	return out
}
