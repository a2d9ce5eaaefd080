// Package server exposes the pipeline steps over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/deusflow/newsreel/internal/app"
	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/coordinator"
	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/media"
	"github.com/deusflow/newsreel/internal/metrics"
)

type Pipeline interface {
	Run(ctx context.Context, day time.Time) (app.RunReport, error)
	Scrape(ctx context.Context, names ...string) (coordinator.Report, error)
	Cluster(ctx context.Context, day time.Time) ([]*domain.Cluster, error)
	Produce(ctx context.Context, day time.Time) (app.RunReport, error)
	RenderCluster(ctx context.Context, clusterID string) (media.Assembled, error)
	Upload(ctx context.Context, day time.Time) (string, error)
	Clusters(ctx context.Context, since time.Time) ([]*domain.Cluster, error)
	Stats(ctx context.Context) (map[string]interface{}, error)
}

type Server struct {
	pipeline Pipeline
	cfg      config.ServerConfig
	log      *slog.Logger
}

func New(pipeline Pipeline, cfg config.ServerConfig) *Server {
	return &Server{pipeline: pipeline, cfg: cfg, log: logger.Component("server")}
}

// Router registers every route on a fresh gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	origins := s.cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	r.GET("/is-alive", s.isAlive)
	r.GET("/health", s.health)
	r.GET("/metrics", s.stats)
	r.GET("/clusters", s.clusters)

	r.POST("/run", s.run)
	r.POST("/scrape/all", s.scrapeAll)
	r.POST("/scrape/:source", s.scrapeSource)
	r.POST("/match", s.match)
	r.POST("/video/all", s.videoAll)
	r.POST("/video/upload", s.videoUpload)
	r.POST("/video/:clusterID", s.videoCluster)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) isAlive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) health(c *gin.Context) {
	stats := metrics.Global.GetStats()
	if !metrics.Global.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "last_error": stats["last_error"]})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "last_run": stats["last_run_time"]})
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.pipeline.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) clusters(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	clusters, err := s.pipeline.Clusters(c.Request.Context(), domain.StartOfDay(day))
	if err != nil {
		s.fail(c, err)
		return
	}
	if clusters == nil {
		clusters = []*domain.Cluster{}
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

func (s *Server) run(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	rep, err := s.pipeline.Run(detach(c), day)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRunResponse(rep))
}

func (s *Server) scrapeAll(c *gin.Context) {
	s.scrape(c)
}

func (s *Server) scrapeSource(c *gin.Context) {
	s.scrape(c, c.Param("source"))
}

func (s *Server) scrape(c *gin.Context, names ...string) {
	rep, err := s.pipeline.Scrape(detach(c), names...)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newScrapeResponse(rep))
}

func (s *Server) match(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	clusters, err := s.pipeline.Cluster(detach(c), day)
	if err != nil {
		s.fail(c, err)
		return
	}
	if clusters == nil {
		clusters = []*domain.Cluster{}
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

func (s *Server) videoAll(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	rep, err := s.pipeline.Produce(detach(c), day)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRunResponse(rep))
}

func (s *Server) videoCluster(c *gin.Context) {
	out, err := s.pipeline.RenderCluster(detach(c), c.Param("clusterID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) videoUpload(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	id, err := s.pipeline.Upload(detach(c), day)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"video_id": id})
}

// day reads the optional ?day=YYYY-MM-DD parameter; today when absent.
func (s *Server) day(c *gin.Context) (time.Time, bool) {
	v := c.Query("day")
	if v == "" {
		return time.Now(), true
	}
	d, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid day, want YYYY-MM-DD"})
		return time.Time{}, false
	}
	return d, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	} else {
		s.log.Warn("request rejected", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrRunning):
		return http.StatusConflict
	case errors.Is(err, app.ErrTooFewArticles):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrMediaDisabled), errors.Is(err, app.ErrUploadDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// detach keeps long pipeline steps running when the client disconnects.
func detach(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
