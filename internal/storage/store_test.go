package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/domain"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	cfg := config.StorageConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "articles.db")}
	s, err := Open(context.Background(), cfg, 100)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func article(source, url string, published time.Time) domain.Article {
	return domain.Article{
		Source:      source,
		URL:         url,
		Title:       "Titel " + url,
		Abstract:    "Lead " + url,
		Text:        strings.Repeat("Text ", 30),
		PublishedAt: published,
		Tags:        []string{"Bern"},
	}
}

func TestInsertFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ok, err := s.Insert(ctx, article("Blick", "https://blick.ch/1", now))
	if err != nil || !ok {
		t.Fatalf("first insert = %v, %v", ok, err)
	}

	tests := []struct {
		name string
		a    domain.Article
	}{
		{"duplicate url", article("Blick", "https://blick.ch/1", now)},
		{"short body", func() domain.Article { a := article("Blick", "https://blick.ch/2", now); a.Text = "kurz"; return a }()},
		{"no date", article("Blick", "https://blick.ch/3", time.Time{})},
	}
	for _, tt := range tests {
		ok, err := s.Insert(ctx, tt.a)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if ok {
			t.Errorf("%s: accepted", tt.name)
		}
	}

	exists, err := s.Exists(ctx, "https://blick.ch/1")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}
}

func TestQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 3, 12, 0, 0, 0, time.Local)

	for _, a := range []domain.Article{
		article("Blick", "https://blick.ch/old", day.AddDate(0, 0, -20)),
		article("Blick", "https://blick.ch/new", day),
		article("20min", "https://20min.ch/new", day),
	} {
		if ok, err := s.Insert(ctx, a); err != nil || !ok {
			t.Fatalf("insert %s: %v %v", a.URL, ok, err)
		}
	}

	since := domain.StartOfDay(day).AddDate(0, 0, -14)
	got, err := s.QueryByDateSource(ctx, "Blick", since)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].URL != "https://blick.ch/new" {
		t.Fatalf("QueryByDateSource = %+v", got)
	}
	if !got[0].PublishedOn(day) || len(got[0].Tags) != 1 || got[0].ID == "" {
		t.Errorf("round trip lost data: %+v", got[0])
	}

	byPred, err := s.QueryByPredicate(ctx, "", sq.Like{"url": "%/new"})
	if err != nil || len(byPred) != 2 {
		t.Fatalf("QueryByPredicate = %d, %v", len(byPred), err)
	}

	n, err := s.CountSince(ctx, domain.StartOfDay(day))
	if err != nil || n != 2 {
		t.Errorf("CountSince = %d, %v", n, err)
	}

	if err := s.UpdateEnrichment(ctx, got[0].ID, []string{"Wahlen", "Zürich"}, "kurz"); err != nil {
		t.Fatalf("update: %v", err)
	}
	a, err := s.GetByID(ctx, got[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Summary != "kurz" || len(a.Tags) != 2 {
		t.Errorf("enrichment not stored: %+v", a)
	}

	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["total_articles"] != 3 || stats["source_Blick"] != 2 {
		t.Errorf("stats = %v", stats)
	}
}

func TestClusterRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := &domain.Cluster{
		ID:        "c1",
		CreatedAt: time.Now(),
		Title:     "Brand",
		Tags:      []string{"Bern"},
		Images:    []domain.ImageRef{{Alt: "Feuer", URL: "https://img/1.jpg"}},
		Members:   []domain.Member{{ArticleID: "a", URL: "u1"}, {ArticleID: "b", URL: "u2", Ratio: 0.7}},
		Status:    domain.ClusterFinalized,
		Strategy:  "fuzzy",
	}
	if err := s.SaveCluster(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}

	c.Status = domain.ClusterGenerated
	c.Script = "Skript"
	if err := s.SaveCluster(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetCluster(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.ClusterGenerated || got.Script != "Skript" || len(got.Members) != 2 || got.Members[1].Ratio != 0.7 {
		t.Errorf("cluster = %+v", got)
	}

	list, err := s.ListClusters(ctx, time.Now().Add(-time.Hour))
	if err != nil || len(list) != 1 {
		t.Errorf("ListClusters = %d, %v", len(list), err)
	}
}
