package domain

import (
	"fmt"
	"strings"
	"time"
)

type ClusterStatus string

const (
	ClusterOpen      ClusterStatus = "open"
	ClusterFinalized ClusterStatus = "finalized"
	ClusterGenerated ClusterStatus = "generated"
	ClusterFailed    ClusterStatus = "failed"
	ClusterRendered  ClusterStatus = "rendered"
)

// ImageRef is one image referenced from an article body.
type ImageRef struct {
	Alt string `json:"txt"`
	URL string `json:"url"`
}

// Member is an article inside a cluster together with the scores that admitted it.
// The anchor has no scores.
type Member struct {
	ArticleID string  `json:"article_id"`
	Source    string  `json:"newspaper"`
	URL       string  `json:"url"`
	Ratio     float64 `json:"ratio"`
	SetRatio  float64 `json:"set_ratio"`
	QRatio    float64 `json:"q_ratio"`
	WRatio    float64 `json:"w_ratio"`
	TagScore  float64 `json:"tag_score,omitempty"`
}

// Cluster is a set of articles believed to cover the same event.
// Members[0] is the anchor.
type Cluster struct {
	ID        string        `json:"uid"`
	CreatedAt time.Time     `json:"created_at"`
	Title     string        `json:"title"`
	Summary   string        `json:"summary,omitempty"`
	Tags      []string      `json:"tags"`
	Images    []ImageRef    `json:"images"`
	Members   []Member      `json:"members"`
	Script    string        `json:"script,omitempty"`
	Status    ClusterStatus `json:"status"`
	Strategy  string        `json:"strategy"`
}

// Anchor returns the comparison baseline of the cluster.
func (c *Cluster) Anchor() Member {
	if len(c.Members) == 0 {
		return Member{}
	}
	return c.Members[0]
}

// ArticleIDs returns member ids in insertion order.
func (c *Cluster) ArticleIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ArticleID
	}
	return ids
}

// HasURL reports whether an article with url is already a member.
func (c *Cluster) HasURL(url string) bool {
	for _, m := range c.Members {
		if m.URL == url {
			return true
		}
	}
	return false
}

// AddTags merges tags case-insensitively, keeping first spelling and order.
func (c *Cluster) AddTags(tags ...string) {
	seen := make(map[string]bool, len(c.Tags))
	for _, t := range c.Tags {
		seen[strings.ToLower(t)] = true
	}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		c.Tags = append(c.Tags, t)
	}
}

// AddImages merges image references, deduplicated by URL.
func (c *Cluster) AddImages(images ...ImageRef) {
	seen := make(map[string]bool, len(c.Images))
	for _, img := range c.Images {
		seen[img.URL] = true
	}
	for _, img := range images {
		if img.URL == "" || seen[img.URL] {
			continue
		}
		seen[img.URL] = true
		c.Images = append(c.Images, img)
	}
}

// Validate checks the finalized-cluster invariant: at least two members with unique urls.
func (c *Cluster) Validate() error {
	if len(c.Members) < 2 {
		return fmt.Errorf("%w: cluster %s has %d members", ErrMalformed, c.ID, len(c.Members))
	}
	seen := make(map[string]bool, len(c.Members))
	for _, m := range c.Members {
		if seen[m.URL] {
			return fmt.Errorf("%w: cluster %s repeats %s", ErrMalformed, c.ID, m.URL)
		}
		seen[m.URL] = true
	}
	return nil
}

// Attempt is one call to the generation service. It lives only inside the retry loop
// and in the attempt log of the final result.
type Attempt struct {
	Index        int    `json:"index"`
	Script       string `json:"script,omitempty"`
	Title        string `json:"title,omitempty"`
	OutputTokens int    `json:"output_tokens"`
	Err          string `json:"error,omitempty"`
	Soft         bool   `json:"soft_failure"`
}

// ScriptResult is the packaged output of generation for one cluster.
type ScriptResult struct {
	ClusterID string    `json:"cluster_id"`
	Request   string    `json:"request"`
	Script    string    `json:"script"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	Provider  string    `json:"provider"`
	Attempts  []Attempt `json:"attempts"`
}

// SoftFailures counts attempts rejected by validation rather than by a transport error.
func (r ScriptResult) SoftFailures() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Soft {
			n++
		}
	}
	return n
}
