package cluster

import (
	"log/slog"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/similarity"
)

// TagStrategy scores recent articles against the window by tag Jaccard similarity.
// Every candidate goes to the single anchor with the highest score (earliest anchor
// on ties), not to the first anchor that matched. Anchors are processed in scan
// order; an article already placed in a cluster is neither reused as an anchor nor
// added to a second cluster.
type TagStrategy struct {
	threshold float64
	log       *slog.Logger
}

func NewTagStrategy(threshold float64) *TagStrategy {
	return &TagStrategy{threshold: threshold, log: logger.Component("cluster").With("strategy", "tags")}
}

func (t *TagStrategy) Name() string { return "tags" }

type tagCandidate struct {
	anchor int
	score  float64
}

func (t *TagStrategy) Build(recent, window []domain.Article) []*domain.Cluster {
	recent = t.usable(recent)
	window = t.usable(window)

	best := make(map[string]tagCandidate)
	subs := make(map[string]domain.Article)
	var order []string

	for i, a := range recent {
		for _, b := range window {
			if a.URL == b.URL {
				continue
			}
			s := similarity.Jaccard(a.Tags, b.Tags)
			if s < t.threshold {
				continue
			}
			cur, seen := best[b.URL]
			if !seen {
				order = append(order, b.URL)
				subs[b.URL] = b
			}
			if !seen || s > cur.score {
				best[b.URL] = tagCandidate{anchor: i, score: s}
			}
		}
	}

	groups := make(map[int][]string)
	for _, url := range order {
		c := best[url]
		groups[c.anchor] = append(groups[c.anchor], url)
	}

	taken := make(map[string]bool)
	var clusters []*domain.Cluster
	for i, anchor := range recent {
		members := groups[i]
		if len(members) == 0 || taken[anchor.URL] {
			continue
		}
		c := newCluster(anchor)
		for _, url := range members {
			if taken[url] || url == anchor.URL {
				continue
			}
			b := subs[url]
			c.Members = append(c.Members, domain.Member{
				ArticleID: b.ID,
				Source:    b.Source,
				URL:       b.URL,
				TagScore:  best[url].score,
			})
		}
		if len(c.Members) < 2 {
			continue
		}
		for _, m := range c.Members {
			taken[m.URL] = true
		}
		clusters = append(clusters, c)
	}
	return clusters
}

func (t *TagStrategy) usable(arts []domain.Article) []domain.Article {
	out := make([]domain.Article, 0, len(arts))
	for _, a := range arts {
		if a.URL == "" || len(a.Tags) == 0 {
			t.log.Warn("skipping malformed article", "source", a.Source, "id", a.ID, "url", a.URL, "reason", "missing url or tags")
			continue
		}
		out = append(out, a)
	}
	return out
}
