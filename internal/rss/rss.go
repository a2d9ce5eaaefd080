// Package rss lists article links from RSS and Atom feeds.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newsreel/internal/logger"
)

// Item is one feed entry.
type Item struct {
	Title       string
	Link        string
	Description string
	Categories  []string
	Published   time.Time
}

type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher uses client for downloads and sends userAgent with every request.
func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &Fetcher{parser: parser}
}

// Fetch downloads and parses one feed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Item, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil || it.Link == "" {
			continue
		}
		item := Item{
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			Categories:  it.Categories,
		}
		switch {
		case it.PublishedParsed != nil:
			item.Published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			item.Published = *it.UpdatedParsed
		}
		items = append(items, item)
	}
	logger.Debug("loaded feed", "url", url, "items", len(items))
	return items, nil
}
