// Package storage persists articles and clusters in PostgreSQL or SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store is the article and cluster store used by the pipeline.
type Store interface {
	Insert(ctx context.Context, a domain.Article) (bool, error)
	Exists(ctx context.Context, url string) (bool, error)
	QueryByDateSource(ctx context.Context, source string, since time.Time) ([]domain.Article, error)
	QueryByPredicate(ctx context.Context, source string, pred sq.Sqlizer) ([]domain.Article, error)
	GetByID(ctx context.Context, id string) (domain.Article, error)
	UpdateEnrichment(ctx context.Context, id string, tags []string, summary string) error
	CountSince(ctx context.Context, since time.Time) (int, error)
	SaveCluster(ctx context.Context, c *domain.Cluster) error
	GetCluster(ctx context.Context, id string) (*domain.Cluster, error)
	ListClusters(ctx context.Context, since time.Time) ([]*domain.Cluster, error)
	Stats(ctx context.Context) (map[string]int, error)
	Close() error
}

// SQLStore implements Store over database/sql. Timestamps are stored as unix
// seconds so both dialects compare them the same way.
type SQLStore struct {
	db            *sql.DB
	sb            sq.StatementBuilderType
	driver        string
	minBodyLength int
	log           *slog.Logger
}

var _ Store = (*SQLStore)(nil)

var articleColumns = []string{
	"id", "source", "url", "category", "title", "abstract", "body", "author",
	"published_at", "scraped_at", "tags", "summary",
}

var clusterColumns = []string{
	"id", "created_at", "title", "summary", "tags", "images", "members", "script", "status", "strategy",
}

// Open connects, pings and initializes the schema. Each caller gets its own pool.
func Open(ctx context.Context, cfg config.StorageConfig, minBodyLength int) (*SQLStore, error) {
	var (
		driverName string
		dsn        = cfg.DSN
		ph         sq.PlaceholderFormat
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		driverName, ph = "postgres", sq.Dollar
	case config.DriverSQLite:
		driverName, ph = "sqlite", sq.Question
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{
		db:            db,
		sb:            sq.StatementBuilder.PlaceholderFormat(ph),
		driver:        cfg.Driver,
		minBodyLength: minBodyLength,
		log:           logger.Component("storage").With("driver", cfg.Driver),
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.log.Debug("database connected")
	return s, nil
}

// initSchema creates the necessary tables if they don't exist
func (s *SQLStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id           TEXT PRIMARY KEY,
		source       TEXT NOT NULL,
		url          TEXT NOT NULL UNIQUE,
		category     TEXT NOT NULL DEFAULT '',
		title        TEXT NOT NULL DEFAULT '',
		abstract     TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL,
		author       TEXT NOT NULL DEFAULT '',
		published_at BIGINT NOT NULL,
		scraped_at   BIGINT NOT NULL,
		tags         TEXT NOT NULL DEFAULT '[]',
		summary      TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_articles_source_published ON articles(source, published_at);
	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);

	CREATE TABLE IF NOT EXISTS clusters (
		id         TEXT PRIMARY KEY,
		created_at BIGINT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		summary    TEXT NOT NULL DEFAULT '',
		tags       TEXT NOT NULL DEFAULT '[]',
		images     TEXT NOT NULL DEFAULT '[]',
		members    TEXT NOT NULL DEFAULT '[]',
		script     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT '',
		strategy   TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_clusters_created_at ON clusters(created_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Insert stores a after the ingestion filters. A rejected article returns false
// without an error.
func (s *SQLStore) Insert(ctx context.Context, a domain.Article) (bool, error) {
	if err := a.Validate(s.minBodyLength); err != nil {
		s.log.Info("article rejected", "source", a.Source, "reason", err)
		return false, nil
	}
	a.EnsureID()
	if a.ScrapedAt.IsZero() {
		a.ScrapedAt = time.Now()
	}

	tags, err := json.Marshal(nonNil(a.Tags))
	if err != nil {
		return false, fmt.Errorf("encode tags: %w", err)
	}

	query, args, err := s.sb.Insert("articles").
		Columns(articleColumns...).
		Values(a.ID, a.Source, a.URL, a.Category, a.Title, a.Abstract, a.Text, a.Author,
			a.PublishedAt.Unix(), a.ScrapedAt.Unix(), string(tags), a.Summary).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert article %s: %w", a.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		s.log.Info("article rejected", "source", a.Source, "reason", "duplicate url", "url", a.URL)
		return false, nil
	}
	return true, nil
}

func (s *SQLStore) Exists(ctx context.Context, url string) (bool, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("articles").Where(sq.Eq{"url": url}).ToSql()
	if err != nil {
		return false, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check article %s: %w", url, err)
	}
	return count > 0, nil
}

// QueryByDateSource returns articles of source published at or after since, oldest first.
func (s *SQLStore) QueryByDateSource(ctx context.Context, source string, since time.Time) ([]domain.Article, error) {
	return s.QueryByPredicate(ctx, source, sq.GtOrEq{"published_at": since.Unix()})
}

// QueryByPredicate returns articles matching pred; an empty source means all sources.
func (s *SQLStore) QueryByPredicate(ctx context.Context, source string, pred sq.Sqlizer) ([]domain.Article, error) {
	q := s.sb.Select(articleColumns...).From("articles").OrderBy("published_at", "id")
	if source != "" {
		q = q.Where(sq.Eq{"source": source})
	}
	if pred != nil {
		q = q.Where(pred)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Article, error) {
	query, args, err := s.sb.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Article{}, err
	}
	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) UpdateEnrichment(ctx context.Context, id string, tags []string, summary string) error {
	enc, err := json.Marshal(nonNil(tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	query, args, err := s.sb.Update("articles").
		Set("tags", string(enc)).
		Set("summary", summary).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update article %s: %w", id, err)
	}
	return nil
}

// CountSince counts articles of all sources published at or after since.
func (s *SQLStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("articles").Where(sq.GtOrEq{"published_at": since.Unix()}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// SaveCluster upserts a cluster.
func (s *SQLStore) SaveCluster(ctx context.Context, c *domain.Cluster) error {
	tags, err := json.Marshal(nonNil(c.Tags))
	if err != nil {
		return err
	}
	images, err := json.Marshal(nonNilImages(c.Images))
	if err != nil {
		return err
	}
	members, err := json.Marshal(c.Members)
	if err != nil {
		return err
	}

	query, args, err := s.sb.Insert("clusters").
		Columns(clusterColumns...).
		Values(c.ID, c.CreatedAt.Unix(), c.Title, c.Summary, string(tags), string(images), string(members), c.Script, string(c.Status), c.Strategy).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			tags = excluded.tags,
			images = excluded.images,
			members = excluded.members,
			script = excluded.script,
			status = excluded.status`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save cluster %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLStore) GetCluster(ctx context.Context, id string) (*domain.Cluster, error) {
	query, args, err := s.sb.Select(clusterColumns...).From("clusters").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	c, err := scanCluster(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster %s: %w", id, domain.ErrNotFound)
	}
	return c, err
}

// ListClusters returns clusters created at or after since, oldest first.
func (s *SQLStore) ListClusters(ctx context.Context, since time.Time) ([]*domain.Cluster, error) {
	query, args, err := s.sb.Select(clusterColumns...).From("clusters").
		Where(sq.GtOrEq{"created_at": since.Unix()}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var out []*domain.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats returns article counts per source plus totals.
func (s *SQLStore) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM articles GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		stats["source_"+source] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["total_articles"] = total

	var clusters int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clusters`).Scan(&clusters); err != nil {
		return nil, err
	}
	stats["total_clusters"] = clusters

	return stats, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (domain.Article, error) {
	var (
		a                  domain.Article
		published, scraped int64
		tags               string
	)
	err := row.Scan(&a.ID, &a.Source, &a.URL, &a.Category, &a.Title, &a.Abstract, &a.Text, &a.Author,
		&published, &scraped, &tags, &a.Summary)
	if err != nil {
		return a, err
	}
	a.PublishedAt = time.Unix(published, 0)
	a.ScrapedAt = time.Unix(scraped, 0)
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return a, fmt.Errorf("decode tags of %s: %w", a.ID, err)
	}
	return a, nil
}

func scanCluster(row scanner) (*domain.Cluster, error) {
	var (
		c                     domain.Cluster
		created               int64
		tags, images, members string
		status                string
	)
	err := row.Scan(&c.ID, &created, &c.Title, &c.Summary, &tags, &images, &members, &c.Script, &status, &c.Strategy)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(created, 0)
	c.Status = domain.ClusterStatus(status)
	for name, pair := range map[string]struct {
		raw string
		dst any
	}{
		"tags":    {tags, &c.Tags},
		"images":  {images, &c.Images},
		"members": {members, &c.Members},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
			return nil, fmt.Errorf("decode %s of cluster %s: %w", name, c.ID, err)
		}
	}
	return &c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilImages(s []domain.ImageRef) []domain.ImageRef {
	if s == nil {
		return []domain.ImageRef{}
	}
	return s
}
