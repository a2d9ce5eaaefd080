// Package app wires scraping, clustering, generation and media into one daily run.
package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/deusflow/newsreel/internal/artifacts"
	"github.com/deusflow/newsreel/internal/cluster"
	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/coordinator"
	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/generate"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/media"
	"github.com/deusflow/newsreel/internal/metrics"
	"github.com/deusflow/newsreel/internal/ratelimit"
	"github.com/deusflow/newsreel/internal/storage"
)

var (
	// ErrTooFewArticles aborts a run: the day has not enough articles to cluster.
	ErrTooFewArticles = errors.New("too few articles for the day")
	// ErrMediaDisabled is returned by the media steps when no assembler is configured.
	ErrMediaDisabled = errors.New("media rendering disabled")
	// ErrUploadDisabled is returned by Upload when no uploader is configured.
	ErrUploadDisabled = errors.New("upload disabled")
	// ErrRunning is returned when a run is requested while another is in progress.
	ErrRunning = errors.New("pipeline run already in progress")
)

// summaryRatio is the share of the original length kept in stored article summaries.
const summaryRatio = 0.33

type Scraper interface {
	Run(ctx context.Context, names ...string) (coordinator.Report, error)
}

type Generator interface {
	Run(ctx context.Context, jobs []generate.Job) generate.Report
}

type Assembler interface {
	Assemble(ctx context.Context, items []media.Item) (media.Output, error)
	AssembleOne(ctx context.Context, it media.Item) (media.Assembled, error)
}

type Notifier interface {
	Enabled() bool
	SendReport(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, photoURL, caption string) error
}

// Deps are the collaborators of a pipeline. Assembler, Uploader, Notifier,
// Summarizer, Artifacts and Limiter are optional.
type Deps struct {
	Store      storage.Store
	Scraper    Scraper
	Engine     *cluster.Engine
	Generator  Generator
	Assembler  Assembler
	Uploader   media.Uploader
	Notifier   Notifier
	Summarizer generate.Compressor
	Artifacts  *artifacts.Writer
	Limiter    *ratelimit.Limiter
}

type Pipeline struct {
	cfg  *config.Config
	deps Deps

	// running serializes whole runs; a second caller gets ErrRunning.
	running sync.Mutex

	// mu guards last.
	mu   sync.Mutex
	last *media.Output

	now func() time.Time
	log *slog.Logger
}

func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
		log:  logger.Component("pipeline"),
	}
}

func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// RunReport summarizes one run for the operator.
type RunReport struct {
	Day       time.Time
	Scrape    coordinator.Report
	Articles  int
	Enriched  int
	Clusters  int
	Generated int
	Failed    []generate.Failure
	Media     *media.Output
	VideoID   string
	Duration  time.Duration
	Err       error
}

// Run executes the whole pipeline for day. Only ErrTooFewArticles and
// infrastructure errors abort it; failing sources and clusters are reported.
func (p *Pipeline) Run(ctx context.Context, day time.Time) (RunReport, error) {
	if !p.running.TryLock() {
		return RunReport{}, ErrRunning
	}
	defer p.running.Unlock()

	start := p.now()
	rep := RunReport{Day: domain.StartOfDay(day)}
	if p.deps.Artifacts != nil {
		p.deps.Artifacts.Rotate(artifacts.RunName(start))
	}

	err := p.run(ctx, day, &rep)
	rep.Duration = p.now().Sub(start)
	rep.Err = err

	metrics.Global.RecordProcessingTime(rep.Duration)
	if err != nil {
		metrics.Global.SetError(err.Error())
		p.log.Error("run aborted", "day", day.Format("2006-01-02"), "error", err)
	} else {
		metrics.Global.SetLastRun()
		p.log.Info("run finished", "day", day.Format("2006-01-02"), "clusters", rep.Clusters,
			"generated", rep.Generated, "failed", len(rep.Failed), "duration", rep.Duration)
	}
	p.notify(ctx, rep)
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, day time.Time, rep *RunReport) error {
	scraped, err := p.Scrape(ctx)
	if err != nil {
		return err
	}
	rep.Scrape = scraped

	n, err := p.CheckArticles(ctx, day)
	rep.Articles = n
	if err != nil {
		return err
	}

	if rep.Enriched, err = p.Enrich(ctx, day); err != nil {
		// summaries are informational; clustering works without them
		p.log.Warn("enrichment failed", "error", err)
	}

	clusters, err := p.Cluster(ctx, day)
	if err != nil {
		return err
	}
	rep.Clusters = len(clusters)
	if len(clusters) == 0 {
		p.log.Info("no clusters found", "day", day.Format("2006-01-02"))
		return nil
	}

	return p.produce(ctx, day, clusters, rep)
}

// produce generates, renders and uploads clusters.
func (p *Pipeline) produce(ctx context.Context, day time.Time, clusters []*domain.Cluster, rep *RunReport) error {
	// clusters that already carry a script keep it
	var todo []*domain.Cluster
	var results []*domain.ScriptResult
	for _, c := range clusters {
		if c.Script != "" {
			results = append(results, &domain.ScriptResult{ClusterID: c.ID, Script: c.Script, Title: c.Title, Tags: c.Tags})
			continue
		}
		todo = append(todo, c)
	}

	if len(todo) > 0 {
		gen, err := p.Generate(ctx, todo)
		if err != nil {
			return err
		}
		rep.Generated = len(gen.Results)
		rep.Failed = gen.Failed
		results = append(results, gen.Results...)
	}
	if len(results) == 0 || p.deps.Assembler == nil {
		return nil
	}

	out, err := p.Assemble(ctx, clusters, results)
	rep.Media = &out
	if err != nil {
		return err
	}

	if p.deps.Uploader == nil {
		return nil
	}
	id, err := p.Upload(ctx, day)
	if err != nil {
		// the rendered video stays on disk and can be uploaded later
		p.log.Error("upload failed", "error", err)
		return nil
	}
	rep.VideoID = id
	return nil
}

// Scrape runs the named sources, or every configured source when names is empty.
func (p *Pipeline) Scrape(ctx context.Context, names ...string) (coordinator.Report, error) {
	return p.deps.Scraper.Run(ctx, names...)
}

// CheckArticles counts articles published on day and fails below the configured minimum.
func (p *Pipeline) CheckArticles(ctx context.Context, day time.Time) (int, error) {
	n, err := p.deps.Store.CountSince(ctx, domain.StartOfDay(day))
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	if n < p.cfg.MinArticles {
		return n, fmt.Errorf("%w: %d < %d", ErrTooFewArticles, n, p.cfg.MinArticles)
	}
	return n, nil
}

// Enrich stores a short summary for every article of day that has none yet.
func (p *Pipeline) Enrich(ctx context.Context, day time.Time) (int, error) {
	if p.deps.Summarizer == nil {
		return 0, nil
	}
	pending, err := p.deps.Store.QueryByPredicate(ctx, "", sq.And{
		sq.GtOrEq{"published_at": domain.StartOfDay(day).Unix()},
		sq.Eq{"summary": ""},
	})
	if err != nil {
		return 0, fmt.Errorf("load articles to enrich: %w", err)
	}

	n := 0
	for _, a := range pending {
		summary, err := p.deps.Summarizer.Compress(ctx, a.Text, summaryRatio)
		if err != nil || strings.TrimSpace(summary) == "" {
			p.log.Warn("summary failed", "id", a.ID, "source", a.Source, "error", err)
			continue
		}
		if err := p.deps.Store.UpdateEnrichment(ctx, a.ID, a.Tags, summary); err != nil {
			return n, err
		}
		n++
	}
	p.log.Debug("articles enriched", "count", n, "pending", len(pending))
	return n, nil
}

// Cluster builds and stores the clusters of day.
func (p *Pipeline) Cluster(ctx context.Context, day time.Time) ([]*domain.Cluster, error) {
	recent, window, err := p.deps.Engine.Collect(ctx, p.deps.Store, p.sourceNames(), day)
	if err != nil {
		return nil, err
	}
	clusters := p.deps.Engine.Run(recent, window)
	for _, c := range clusters {
		if err := p.deps.Store.SaveCluster(ctx, c); err != nil {
			return nil, err
		}
	}
	metrics.Global.AddClustersBuilt(len(clusters))
	return clusters, nil
}

func (p *Pipeline) sourceNames() []string {
	names := make([]string, len(p.cfg.Sources))
	for i, s := range p.cfg.Sources {
		names[i] = s.Name
	}
	return names
}

// Generate writes scripts for clusters and stores the outcome of each one.
func (p *Pipeline) Generate(ctx context.Context, clusters []*domain.Cluster) (generate.Report, error) {
	if l := p.deps.Limiter; l != nil && !l.Allow(p.cfg.Generation.Provider) {
		// clusters stay finalized and are picked up by the next Produce
		p.log.Warn("daily generation quota spent, skipping generation", "clusters", len(clusters))
		return generate.Report{}, nil
	}
	jobs := make([]generate.Job, 0, len(clusters))
	for _, c := range clusters {
		members, err := p.members(ctx, c)
		if err != nil {
			return generate.Report{}, err
		}
		jobs = append(jobs, generate.Job{Cluster: c, Members: members})
	}

	rep := p.deps.Generator.Run(ctx, jobs)

	byID := indexClusters(clusters)
	for _, res := range rep.Results {
		c := byID[res.ClusterID]
		c.Script = res.Script
		c.AddTags(res.Tags...)
		c.Status = domain.ClusterGenerated
		if err := p.deps.Store.SaveCluster(ctx, c); err != nil {
			return rep, err
		}
	}
	for _, f := range rep.Failed {
		c := byID[f.ClusterID]
		c.Status = domain.ClusterFailed
		if err := p.deps.Store.SaveCluster(ctx, c); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// members loads the articles of c. Articles deleted since clustering are skipped.
func (p *Pipeline) members(ctx context.Context, c *domain.Cluster) ([]domain.Article, error) {
	out := make([]domain.Article, 0, len(c.Members))
	for _, id := range c.ArticleIDs() {
		a, err := p.deps.Store.GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			p.log.Warn("cluster member missing", "cluster", c.ID, "id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Assemble renders the generated clusters and the final video.
func (p *Pipeline) Assemble(ctx context.Context, clusters []*domain.Cluster, results []*domain.ScriptResult) (media.Output, error) {
	if p.deps.Assembler == nil {
		return media.Output{}, ErrMediaDisabled
	}
	byID := indexClusters(clusters)
	items := make([]media.Item, 0, len(results))
	for _, res := range results {
		items = append(items, media.Item{Cluster: byID[res.ClusterID], Result: *res})
	}

	out, err := p.deps.Assembler.Assemble(ctx, items)
	for _, a := range out.Clusters {
		if c := byID[a.ClusterID]; c != nil {
			if serr := p.deps.Store.SaveCluster(ctx, c); serr != nil {
				p.log.Error("failed to store rendered cluster", "cluster", c.ID, "error", serr)
			}
		}
	}
	if p.deps.Artifacts != nil {
		if serr := p.deps.Artifacts.SaveRun("media.json", out); serr != nil {
			p.log.Warn("failed to save media manifest", "error", serr)
		}
	}
	if err != nil {
		return out, err
	}

	p.mu.Lock()
	p.last = &out
	p.mu.Unlock()
	return out, nil
}

// Produce generates and renders the stored clusters of day that have no video yet.
func (p *Pipeline) Produce(ctx context.Context, day time.Time) (RunReport, error) {
	if !p.running.TryLock() {
		return RunReport{}, ErrRunning
	}
	defer p.running.Unlock()
	if p.deps.Artifacts != nil {
		p.deps.Artifacts.Rotate(artifacts.RunName(p.now()))
	}

	rep := RunReport{Day: domain.StartOfDay(day)}
	stored, err := p.deps.Store.ListClusters(ctx, domain.StartOfDay(day))
	if err != nil {
		return rep, err
	}
	var pending []*domain.Cluster
	for _, c := range stored {
		if c.Status != domain.ClusterRendered {
			pending = append(pending, c)
		}
	}
	rep.Clusters = len(pending)
	if len(pending) == 0 {
		return rep, nil
	}
	err = p.produce(ctx, day, pending, &rep)
	return rep, err
}

// RenderCluster produces the video of a single stored cluster, generating its
// script first when it has none.
func (p *Pipeline) RenderCluster(ctx context.Context, clusterID string) (media.Assembled, error) {
	if p.deps.Assembler == nil {
		return media.Assembled{}, ErrMediaDisabled
	}
	c, err := p.deps.Store.GetCluster(ctx, clusterID)
	if err != nil {
		return media.Assembled{}, err
	}

	res := domain.ScriptResult{ClusterID: c.ID, Script: c.Script, Title: c.Title, Tags: c.Tags}
	if c.Script == "" {
		gen, err := p.Generate(ctx, []*domain.Cluster{c})
		if err != nil {
			return media.Assembled{}, err
		}
		if len(gen.Results) == 0 {
			return media.Assembled{}, fmt.Errorf("cluster %s: %w", c.ID, generate.ErrExhausted)
		}
		res = *gen.Results[0]
	}

	out, err := p.deps.Assembler.AssembleOne(ctx, media.Item{Cluster: c, Result: res})
	if err != nil {
		return out, err
	}
	return out, p.deps.Store.SaveCluster(ctx, c)
}

// Upload publishes the last final video with its thumbnail.
func (p *Pipeline) Upload(ctx context.Context, day time.Time) (string, error) {
	if p.deps.Uploader == nil {
		return "", ErrUploadDisabled
	}
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last == nil || last.Final == "" {
		return "", fmt.Errorf("%w: no final video rendered", domain.ErrNotFound)
	}

	up := p.cfg.Upload
	tags := &domain.Cluster{}
	tags.AddTags(up.Tags...)
	for _, c := range last.Clusters {
		tags.AddTags(c.Tags...)
	}

	id, err := p.deps.Uploader.Upload(ctx, media.Video{
		Path:        last.Final,
		Title:       fmt.Sprintf(up.TitleTemplate, day.Format("02.01.2006")),
		Description: up.Description,
		Tags:        tags.Tags,
		CategoryID:  up.CategoryID,
		Privacy:     up.Privacy,
	})
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	metrics.Global.IncrementVideosUploaded()

	if thumb := firstThumbnail(last.Clusters); thumb != "" {
		if err := p.deps.Uploader.SetThumbnail(ctx, id, thumb); err != nil {
			p.log.Warn("failed to set thumbnail", "video", id, "error", err)
		}
	}
	p.log.Info("video uploaded", "video", id)
	return id, nil
}

// Clusters lists stored clusters created since.
func (p *Pipeline) Clusters(ctx context.Context, since time.Time) ([]*domain.Cluster, error) {
	return p.deps.Store.ListClusters(ctx, since)
}

// Stats merges store counts, process metrics and quota usage.
func (p *Pipeline) Stats(ctx context.Context) (map[string]interface{}, error) {
	out := metrics.Global.GetStats()
	counts, err := p.deps.Store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range counts {
		out[k] = v
	}
	if p.deps.Limiter != nil {
		out["rate_limit"] = p.deps.Limiter.Stats()
	}
	return out, nil
}

func (p *Pipeline) notify(ctx context.Context, rep RunReport) {
	if p.deps.Notifier == nil || !p.deps.Notifier.Enabled() {
		return
	}
	if err := p.deps.Notifier.SendReport(ctx, FormatReport(rep)); err != nil {
		p.log.Error("failed to send report", "error", err)
	}
	if rep.VideoID == "" {
		return
	}
	caption := fmt.Sprintf(`<a href="https://youtu.be/%s">%s</a>`, rep.VideoID,
		html.EscapeString(fmt.Sprintf(p.cfg.Upload.TitleTemplate, rep.Day.Format("02.01.2006"))))
	if err := p.deps.Notifier.SendPhoto(ctx, youtubeThumbnail(rep.VideoID), caption); err != nil {
		p.log.Warn("failed to send video preview", "video", rep.VideoID, "error", err)
	}
}

func youtubeThumbnail(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

func indexClusters(clusters []*domain.Cluster) map[string]*domain.Cluster {
	m := make(map[string]*domain.Cluster, len(clusters))
	for _, c := range clusters {
		m[c.ID] = c
	}
	return m
}

func firstThumbnail(clusters []media.Assembled) string {
	for _, c := range clusters {
		if c.Thumbnail != "" {
			return c.Thumbnail
		}
	}
	return ""
}
