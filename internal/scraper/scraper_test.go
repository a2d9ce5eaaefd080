package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/domain"
)

const listingPage = `<html><body>
<a href="/story/brand-in-bern">Brand</a>
<a href="/story/brand-in-bern#comments">Brand (Kommentare)</a>
<a href="/story/kaputt">Kaputt</a>
<a href="/story/bekannt">Bekannt</a>
<a href="/impressum">Impressum</a>
<a href="https://example.org/story/fremd">Fremd</a>
</body></html>`

const articlePage = `<html><head><title>x</title>
<meta name="keywords" content="Bern, Feuerwehr, bern">
<meta property="article:tag" content="Brand">
</head><body>
<h1>Brand in  Bern</h1>
<time datetime="2024-05-03T08:15:00+02:00">3. Mai</time>
<article>
  <p class="lead">Ein Feuer zerstörte in der Nacht eine Scheune.</p>
  <img data-src="/img/feuer.jpg" src="data:image/gif;base64,R0lG" alt="Die Scheune [brennt]">
  <p>Die Feuerwehr war mit 40 Leuten vor Ort und verhinderte Schlimmeres.</p>
  <h2>Ursache unklar</h2>
  <p>Jetzt den Newsletter abonnieren und nichts verpassen.</p>
  <p>Die Polizei ermittelt zur Brandursache, verletzt wurde niemand.</p>
</article>
</body></html>`

func newTestSite(t *testing.T) (*httptest.Server, config.SourceConfig) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/schweiz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage)
	})
	mux.HandleFunc("/story/brand-in-bern", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage)
	})
	mux.HandleFunc("/story/kaputt", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/story/bekannt", func(w http.ResponseWriter, r *http.Request) {
		t.Error("already stored article was fetched")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := config.SourceConfig{
		Name:             "Blick",
		BaseURL:          srv.URL,
		Categories:       []string{"schweiz"},
		LinkSelector:     "a[href]",
		LinkPattern:      `^/story/`,
		TitleSelector:    "h1",
		AbstractSelector: "article p.lead",
		BodySelector:     "article",
		DateSelector:     "time",
		DateAttr:         "datetime",
		JunkPhrases:      []string{"newsletter"},
	}
	return srv, src
}

func TestSiteScraper(t *testing.T) {
	srv, src := newTestSite(t)
	s, err := NewSiteScraper(src, config.ScrapeConfig{UserAgent: "newsreel-test"})
	if err != nil {
		t.Fatal(err)
	}

	seen := func(url string) bool { return strings.HasSuffix(url, "/story/bekannt") }
	articles, err := s.Scrape(context.Background(), seen)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("articles = %d, want 1 (broken and known articles skipped)", len(articles))
	}

	a := articles[0]
	if a.Title != "Brand in Bern" || a.Source != "Blick" || a.Category != "schweiz" || a.ID == "" {
		t.Errorf("article = %+v", a)
	}
	if a.URL != srv.URL+"/story/brand-in-bern" {
		t.Errorf("url = %q", a.URL)
	}
	if !a.PublishedAt.Equal(time.Date(2024, 5, 3, 6, 15, 0, 0, time.UTC)) {
		t.Errorf("published = %v", a.PublishedAt)
	}
	if !strings.Contains(a.Text, "![Die Scheune brennt]("+srv.URL+"/img/feuer.jpg)") {
		t.Errorf("image line missing:\n%s", a.Text)
	}
	if strings.Contains(strings.ToLower(a.Text), "newsletter") {
		t.Errorf("junk not removed:\n%s", a.Text)
	}
	if strings.Join(a.Tags, ",") != "Bern,Feuerwehr,Brand" {
		t.Errorf("tags = %v", a.Tags)
	}
	if !strings.Contains(a.Text, "## Ursache unklar") {
		t.Errorf("heading missing:\n%s", a.Text)
	}
}

func TestSiteScraperListingFailure(t *testing.T) {
	_, src := newTestSite(t)
	src.Categories = []string{"gibtsnicht"}
	s, err := NewSiteScraper(src, config.ScrapeConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Scrape(context.Background(), nil); err == nil {
		t.Error("want error when every listing page fails")
	}
}

func TestNewSiteScraperRejectsBadConfig(t *testing.T) {
	if _, err := NewSiteScraper(config.SourceConfig{Name: "x", BaseURL: "not a url"}, config.ScrapeConfig{}); err == nil {
		t.Error("invalid base url accepted")
	}
	if _, err := NewSiteScraper(config.SourceConfig{Name: "x", BaseURL: "https://x.ch", LinkPattern: "("}, config.ScrapeConfig{}); err == nil {
		t.Error("invalid link pattern accepted")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, src := newTestSite(t)
	s, _ := NewSiteScraper(src, config.ScrapeConfig{})
	r.Register(s)

	if got, err := r.Resolve("Blick"); err != nil || got.Name() != "Blick" {
		t.Errorf("resolve = %v, %v", got, err)
	}
	if _, err := r.Resolve("NZZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "Blick" {
		t.Errorf("names = %v", names)
	}
}

func TestParseDate(t *testing.T) {
	for _, raw := range []string{"2024-05-03T08:15:00+02:00", "2024-05-03", "03.05.2024, 08:15", " Publiziert: 03.05.2024"} {
		got, err := parseDate(raw)
		if err != nil {
			t.Errorf("%q: %v", raw, err)
			continue
		}
		if got.Day() != 3 || got.Month() != 5 {
			t.Errorf("%q parsed as %v", raw, got)
		}
	}
	if _, err := parseDate("gestern"); err == nil {
		t.Error("nonsense date accepted")
	}
}
