package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsreel/internal/app"
	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/server"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig string
	flagDay    string
)

var rootCmd = &cobra.Command{
	Use:           "newsreel",
	Short:         "Daily news clusters narrated as video",
	Long:          "newsreel scrapes news outlets, groups articles that report the same event and turns every group into a narrated video.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default $NEWSREEL_CONFIG or configs/newsreel.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDay, "day", "", "day to process as YYYY-MM-DD (default today)")

	rootCmd.AddCommand(runCmd, scrapeCmd, clusterCmd, generateCmd, serveCmd, statsCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("newsreel failed", "error", err)
		if errors.Is(err, app.ErrTooFewArticles) {
			fmt.Fprintln(os.Stderr, "not enough articles for the day, run aborted")
		}
		os.Exit(1)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape, cluster, generate, render and upload for one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, day time.Time) error {
			rep, err := a.Run(ctx, day)
			if err != nil {
				return err
			}
			fmt.Println(app.FormatReport(rep))
			return nil
		})
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [source...]",
	Short: "Scrape all or the named sources into the article store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, _ time.Time) error {
			rep, err := a.Scrape(ctx, args...)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"inserted": rep.Inserted,
				"rejected": rep.Rejected,
				"missing":  rep.Missing,
				"total":    rep.Total(),
			})
		})
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Build and store the clusters of one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, day time.Time) error {
			clusters, err := a.Cluster(ctx, day)
			if err != nil {
				return err
			}
			for _, c := range clusters {
				fmt.Printf("%s  %d articles  %s\n", c.ID, len(c.Members), c.Title)
			}
			fmt.Printf("%d clusters\n", len(clusters))
			return nil
		})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate scripts and videos for the stored clusters of one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, day time.Time) error {
			rep, err := a.Produce(ctx, day)
			if err != nil {
				return err
			}
			fmt.Println(app.FormatReport(rep))
			return nil
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, _ time.Time) error {
			return server.New(a, a.Config().Server).Run(ctx)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print article store and pipeline statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, _ time.Time) error {
			stats, err := a.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(stats)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("newsreel %s (commit: %s)\n", version, commit)
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// withApp loads the config, wires the pipeline and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, day time.Time) error) error {
	day, err := parseDay(flagDay, time.Now())
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger.InitWithWriter(os.Stdout, level)

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a, day)
}

func parseDay(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --day %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
