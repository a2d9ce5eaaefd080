package media

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/metrics"
	"github.com/deusflow/newsreel/internal/retry"
)

// VideoRenderer is implemented by Renderer.
type VideoRenderer interface {
	DownloadImages(ctx context.Context, images []domain.ImageRef, dir string) ([]string, error)
	RenderVideo(ctx context.Context, images []string, audioPath, outDir string) (string, error)
	RenderThumbnail(ctx context.Context, image, title, outDir string) (string, error)
	RenderFinal(ctx context.Context, videos []string, outPath string) (string, error)
}

// Workspace hands out the run and cluster directories.
type Workspace interface {
	RunDir() (string, error)
	ClusterDir(clusterID string) (string, error)
}

// Item is a cluster with its accepted script.
type Item struct {
	Cluster *domain.Cluster
	Result  domain.ScriptResult
}

// Assembled is one cluster with its rendered media.
type Assembled struct {
	ClusterID string   `json:"cluster_id"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
	Audio     string   `json:"audio"`
	Thumbnail string   `json:"thumbnail"`
	Video     string   `json:"video"`
}

type Failure struct {
	ClusterID string `json:"cluster_id"`
	Err       error  `json:"-"`
}

type Output struct {
	Clusters []Assembled `json:"clusters"`
	Failed   []Failure   `json:"failed"`
	Final    string      `json:"final"`
}

type AssemblerOptions struct {
	Concurrency int
	TTSRetry    retry.RetryConfig
}

type Assembler struct {
	tts      Synthesizer
	renderer VideoRenderer
	ws       Workspace
	opts     AssemblerOptions
	log      *slog.Logger
}

func NewAssembler(tts Synthesizer, renderer VideoRenderer, ws Workspace, opts AssemblerOptions) *Assembler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.TTSRetry.MaxAttempts < 1 {
		opts.TTSRetry = retry.Fixed(3, 5*time.Second)
	}
	return &Assembler{tts: tts, renderer: renderer, ws: ws, opts: opts, log: logger.Component("assembler")}
}

// Assemble renders every item independently; a failing cluster is reported and
// left out of the final video. The final video is skipped when nothing rendered.
func (a *Assembler) Assemble(ctx context.Context, items []Item) (Output, error) {
	results := make([]*Assembled, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			res, err := a.AssembleOne(ctx, it)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	var out Output
	var videos []string
	for i, res := range results {
		if res == nil {
			a.log.Error("cluster media failed", "cluster", items[i].Result.ClusterID, "error", errs[i])
			out.Failed = append(out.Failed, Failure{ClusterID: items[i].Result.ClusterID, Err: errs[i]})
			continue
		}
		out.Clusters = append(out.Clusters, *res)
		videos = append(videos, res.Video)
	}
	if len(videos) == 0 {
		return out, fmt.Errorf("no cluster video rendered (%d failed)", len(out.Failed))
	}

	runDir, err := a.ws.RunDir()
	if err != nil {
		return out, err
	}
	final, err := a.renderer.RenderFinal(ctx, videos, filepath.Join(runDir, "final.mp4"))
	if err != nil {
		return out, err
	}
	out.Final = final
	return out, nil
}

// AssembleOne runs TTS, thumbnail and video for one cluster.
func (a *Assembler) AssembleOne(ctx context.Context, it Item) (Assembled, error) {
	id := it.Result.ClusterID
	if it.Result.Script == "" {
		return Assembled{}, fmt.Errorf("cluster %s: %w: empty script", id, domain.ErrMalformed)
	}
	dir, err := a.ws.ClusterDir(id)
	if err != nil {
		return Assembled{}, err
	}
	log := a.log.With("cluster", id)

	audio := filepath.Join(dir, "audio.mp3")
	cfg := a.opts.TTSRetry
	cfg.OnRetry = func(attempt int, err error) {
		log.Warn("text-to-speech failed, retrying", "attempt", attempt, "error", err)
	}
	if err := retry.WithRetry(ctx, cfg, func() error {
		return a.tts.Synthesize(ctx, it.Result.Script, audio)
	}); err != nil {
		return Assembled{}, fmt.Errorf("cluster %s: tts: %w", id, err)
	}

	var refs []domain.ImageRef
	if it.Cluster != nil {
		refs = it.Cluster.Images
	}
	images, err := a.renderer.DownloadImages(ctx, refs, dir)
	if err != nil {
		return Assembled{}, fmt.Errorf("cluster %s: %w", id, err)
	}

	title := it.Result.Title
	thumb, err := a.renderer.RenderThumbnail(ctx, images[0], title, dir)
	if err != nil {
		// a missing thumbnail does not block the video
		log.Warn("thumbnail failed", "error", err)
	}

	video, err := a.renderer.RenderVideo(ctx, images, audio, dir)
	if err != nil {
		return Assembled{}, fmt.Errorf("cluster %s: %w", id, err)
	}

	if it.Cluster != nil {
		it.Cluster.Status = domain.ClusterRendered
	}
	metrics.Global.IncrementVideosRendered()
	log.Info("cluster video rendered", "video", video)

	return Assembled{
		ClusterID: id,
		Title:     title,
		Tags:      it.Result.Tags,
		Audio:     audio,
		Thumbnail: thumb,
		Video:     video,
	}, nil
}
