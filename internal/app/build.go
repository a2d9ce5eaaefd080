package app

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/newsreel/internal/artifacts"
	"github.com/deusflow/newsreel/internal/budget"
	"github.com/deusflow/newsreel/internal/cache"
	"github.com/deusflow/newsreel/internal/cluster"
	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/coordinator"
	"github.com/deusflow/newsreel/internal/gemini"
	"github.com/deusflow/newsreel/internal/generate"
	"github.com/deusflow/newsreel/internal/llm"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/media"
	"github.com/deusflow/newsreel/internal/prompt"
	"github.com/deusflow/newsreel/internal/ratelimit"
	"github.com/deusflow/newsreel/internal/retry"
	"github.com/deusflow/newsreel/internal/scraper"
	"github.com/deusflow/newsreel/internal/storage"
	"github.com/deusflow/newsreel/internal/telegram"
	"github.com/deusflow/newsreel/internal/textnorm"
)

// App is a wired pipeline together with the resources it owns.
type App struct {
	*Pipeline
	closers []func() error
}

// Close releases clients and connections in reverse creation order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Build connects every collaborator described by cfg. Media and upload clients
// are only created when enabled.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	store, err := storage.Open(ctx, cfg.Storage, cfg.Cluster.MinBodyLength)
	if err != nil {
		return nil, err
	}
	app.onClose(store.Close)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	// every source writes through its own connection
	opener := func(ctx context.Context) (coordinator.ArticleStore, error) {
		return storage.Open(ctx, cfg.Storage, cfg.Cluster.MinBodyLength)
	}
	scrape := coordinator.New(registry, opener, coordinator.Options{
		Concurrency:   cfg.Scrape.Concurrency,
		SourceTimeout: cfg.Scrape.SourceTimeout,
	})

	limiter := ratelimit.New(map[string]int{cfg.Generation.Provider: cfg.Generation.MaxDailyRequests}, cfg.Generation.MaxDailyRequests)

	remote, counter, err := buildService(ctx, cfg, app)
	if err != nil {
		return nil, err
	}
	service := &limitedService{inner: remote, limiter: limiter, provider: cfg.Generation.Provider}

	cacheStore, err := buildCache(ctx, cfg, app)
	if err != nil {
		return nil, err
	}
	var inner cache.Compressor = llm.NewExtractive()
	if cfg.Generation.RemoteCompress {
		inner = service
	}
	compressor := cache.NewCompressor(inner, cacheStore, cfg.Cache.TTL)
	compressor.OnHit = limiter.RecordCacheHit

	allocator, err := budget.NewAllocator(ctx, cfg.Budget.MaxInputTokens(), prompt.CitationSkeleton, prompt.Primer, counter)
	if err != nil {
		return nil, err
	}

	writer := artifacts.NewWriter(cfg.OutputDir, artifacts.RunName(time.Now()))
	generator := generate.New(service, compressor, allocator, generate.Options{
		Attempts:        cfg.Generation.Attempts,
		RetryDelay:      cfg.Generation.RetryDelay,
		MinOutputTokens: cfg.Budget.MinOutputTokens,
		Concurrency:     cfg.Generation.Concurrency,
		Provider:        cfg.Generation.Provider,
		Sink:            writer,
	})

	deps := Deps{
		Store:      store,
		Scraper:    scrape,
		Engine:     cluster.NewEngine(buildStrategy(cfg.Cluster), cfg.Cluster.WindowDays),
		Generator:  generator,
		Notifier:   telegram.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID),
		Summarizer: llm.NewExtractive(),
		Artifacts:  writer,
		Limiter:    limiter,
	}

	if cfg.Media.Enabled {
		tts, err := media.NewGoogleTTS(ctx, "", media.VoiceConfig{
			LanguageCode: cfg.Media.LanguageCode,
			Voice:        cfg.Media.Voice,
			SpeakingRate: cfg.Media.SpeakingRate,
		})
		if err != nil {
			return nil, err
		}
		app.onClose(tts.Close)

		renderer := media.NewRenderer(media.RenderOptions{
			FFmpegPath:  cfg.Media.FFmpegPath,
			FPS:         cfg.Media.FPS,
			IntroPath:   cfg.Media.IntroPath,
			FallbackImg: cfg.Media.FallbackImg,
		}, media.ExecRunner{})
		deps.Assembler = media.NewAssembler(tts, renderer, writer, media.AssemblerOptions{
			Concurrency: cfg.Generation.Concurrency,
			TTSRetry:    retry.Fixed(cfg.Generation.Attempts, cfg.Generation.RetryDelay),
		})
	}

	if cfg.Upload.Enabled {
		yt, err := media.NewYouTube(ctx, cfg.Upload.CredentialsFile)
		if err != nil {
			return nil, err
		}
		deps.Uploader = yt
	}

	app.Pipeline = New(cfg, deps)
	ok = true
	logger.Info("pipeline ready",
		"sources", len(cfg.Sources),
		"provider", cfg.Generation.Provider,
		"strategy", cfg.Cluster.Strategy,
		"storage", cfg.Storage.Driver,
		"media", cfg.Media.Enabled,
		"upload", cfg.Upload.Enabled,
	)
	return app, nil
}

func buildRegistry(cfg *config.Config) (*scraper.Registry, error) {
	registry := scraper.NewRegistry()
	for _, src := range cfg.Sources {
		s, err := scraper.NewSiteScraper(src, cfg.Scrape)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		registry.Register(s)
	}
	return registry, nil
}

func buildStrategy(cfg config.ClusterConfig) cluster.Strategy {
	if cfg.Strategy == config.StrategyTags {
		return cluster.NewTagStrategy(cfg.TagThreshold)
	}
	var stop []string
	if cfg.StopWords {
		stop = textnorm.DefaultStopWords
	}
	return cluster.NewFuzzyStrategy(cluster.NewAbstractMatcher(cfg.Threshold, stop...))
}

// buildService returns the configured provider client and the token counter
// used for budgeting. Only Gemini counts tokens remotely.
func buildService(ctx context.Context, cfg *config.Config, app *App) (remoteService, budget.TokenCounter, error) {
	g := cfg.Generation
	switch g.Provider {
	case config.ProviderOpenAI:
		if g.OpenAIBaseURL != "" {
			return llm.NewOpenAIClientWithBaseURL(g.OpenAIAPIKey, g.OpenAIBaseURL, g.Model), budget.EstimateCounter{}, nil
		}
		return llm.NewOpenAIClient(g.OpenAIAPIKey, g.Model), budget.EstimateCounter{}, nil
	case config.ProviderAnthropic:
		return llm.NewAnthropicClient(g.AnthropicAPIKey, g.Model), budget.EstimateCounter{}, nil
	case config.ProviderGemini, "":
		client, err := gemini.NewClient(ctx, g.GeminiAPIKey, g.Model)
		if err != nil {
			return nil, nil, err
		}
		app.onClose(func() error { client.Close(); return nil })
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown generation provider %q", g.Provider)
	}
}

// buildCache returns Redis when configured and the in-process TTL cache otherwise.
func buildCache(ctx context.Context, cfg *config.Config, app *App) (cache.Store, error) {
	if cfg.Cache.RedisURL == "" {
		c := cache.New()
		app.onClose(c.Close)
		return c, nil
	}
	r, err := cache.ConnectRedis(ctx, cfg.Cache.RedisURL)
	if err != nil {
		return nil, err
	}
	app.onClose(r.Close)
	return r, nil
}
