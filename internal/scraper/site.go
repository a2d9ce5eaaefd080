package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/rss"
)

// link is one article found on a listing page or in a feed. The feed fields fill
// gaps the article page leaves.
type link struct {
	URL       string
	Category  string
	Tags      []string
	Title     string
	Abstract  string
	Published time.Time
}

// SiteScraper scrapes one outlet described by a SourceConfig.
type SiteScraper struct {
	cfg       config.SourceConfig
	base      *url.URL
	linkRe    *regexp.Regexp
	client    *http.Client
	feeds     *rss.Fetcher
	userAgent string
	delay     time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func NewSiteScraper(src config.SourceConfig, scrape config.ScrapeConfig) (*SiteScraper, error) {
	base, err := url.Parse(src.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("source %s: invalid base url %q", src.Name, src.BaseURL)
	}
	var linkRe *regexp.Regexp
	if src.LinkPattern != "" {
		if linkRe, err = regexp.Compile(src.LinkPattern); err != nil {
			return nil, fmt.Errorf("source %s: link pattern: %w", src.Name, err)
		}
	}
	timeout := scrape.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return &SiteScraper{
		cfg:       src,
		base:      base,
		linkRe:    linkRe,
		client:    client,
		feeds:     rss.NewFetcher(client, scrape.UserAgent),
		userAgent: scrape.UserAgent,
		delay:     scrape.RequestDelay,
		now:       time.Now,
		log:       logger.Component("scraper").With("source", src.Name),
	}, nil
}

func (s *SiteScraper) Name() string { return s.cfg.Name }

// Scrape lists the outlet's current articles and fetches those not yet seen.
// A failing article is logged and skipped; only a failing listing fails the source.
func (s *SiteScraper) Scrape(ctx context.Context, seen func(url string) bool) ([]domain.Article, error) {
	links, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("found article links", "count", len(links))

	var articles []domain.Article
	for i, l := range links {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		if seen != nil && seen(l.URL) {
			continue
		}
		if i > 0 && s.delay > 0 {
			select {
			case <-ctx.Done():
				return articles, ctx.Err()
			case <-time.After(s.delay):
			}
		}

		a, err := s.article(ctx, l)
		if err != nil {
			s.log.Warn("skipping article", "url", l.URL, "error", err)
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func (s *SiteScraper) listing(ctx context.Context) ([]link, error) {
	var links []link
	if s.cfg.FeedURL != "" {
		items, err := s.feeds.Fetch(ctx, s.cfg.FeedURL)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			l := link{URL: it.Link, Tags: it.Categories, Title: it.Title, Abstract: it.Description, Published: it.Published}
			if len(it.Categories) > 0 {
				l.Category = it.Categories[0]
			}
			links = append(links, l)
		}
		return s.limit(dedupe(links)), nil
	}

	failed := 0
	for _, category := range s.cfg.Categories {
		found, err := s.categoryLinks(ctx, category)
		if err != nil {
			s.log.Warn("category page failed", "category", category, "error", err)
			failed++
			continue
		}
		links = append(links, found...)
	}
	if len(s.cfg.Categories) > 0 && failed == len(s.cfg.Categories) {
		return nil, fmt.Errorf("source %s: all %d category pages failed", s.cfg.Name, failed)
	}
	return s.limit(dedupe(links)), nil
}

func (s *SiteScraper) categoryLinks(ctx context.Context, category string) ([]link, error) {
	pageURL := resolve(s.base, "/"+strings.TrimPrefix(category, "/"))
	doc, err := s.document(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	selector := s.cfg.LinkSelector
	if selector == "" {
		selector = "a[href]"
	}
	var links []link
	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		abs := resolve(s.base, href)
		u, err := url.Parse(abs)
		if err != nil || u.Host != s.base.Host {
			return
		}
		if s.linkRe != nil && !s.linkRe.MatchString(u.Path) {
			return
		}
		links = append(links, link{URL: abs, Category: category})
	})
	return links, nil
}

func (s *SiteScraper) limit(links []link) []link {
	if s.cfg.MaxArticles > 0 && len(links) > s.cfg.MaxArticles {
		return links[:s.cfg.MaxArticles]
	}
	return links
}

func (s *SiteScraper) article(ctx context.Context, l link) (domain.Article, error) {
	doc, err := s.document(ctx, l.URL)
	if err != nil {
		return domain.Article{}, err
	}

	bodySel := s.cfg.BodySelector
	if bodySel == "" {
		bodySel = "article"
	}
	body := doc.Find(bodySel).First()
	if body.Length() == 0 {
		return domain.Article{}, fmt.Errorf("%w: no element matches %q", domain.ErrMalformed, bodySel)
	}

	a := domain.Article{
		Source:      s.cfg.Name,
		URL:         l.URL,
		Category:    l.Category,
		Title:       firstNonEmpty(firstText(doc, s.cfg.TitleSelector), l.Title),
		Abstract:    firstNonEmpty(firstText(doc, s.cfg.AbstractSelector), cleanText(l.Abstract)),
		Text:        renderBody(body, s.base, s.cfg.JunkPhrases),
		Author:      firstText(doc, s.cfg.AuthorSelector),
		PublishedAt: publicationDate(doc, s.cfg.DateSelector, s.cfg.DateAttr),
		ScrapedAt:   s.now(),
		Tags:        mergeTags(metaTags(doc), l.Tags),
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = l.Published
	}
	if a.Title == "" {
		return domain.Article{}, fmt.Errorf("%w: no title", domain.ErrMalformed)
	}
	a.EnsureID()
	return a, nil
}

func (s *SiteScraper) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	return doc, nil
}

func dedupe(links []link) []link {
	seen := make(map[string]bool, len(links))
	out := links[:0]
	for _, l := range links {
		if seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		out = append(out, l)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
