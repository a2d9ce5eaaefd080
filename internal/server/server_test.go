package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"

	"github.com/deusflow/newsreel/internal/app"
	"github.com/deusflow/newsreel/internal/config"
	"github.com/deusflow/newsreel/internal/coordinator"
	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/generate"
	"github.com/deusflow/newsreel/internal/media"
)

type fakePipeline struct {
	err      error
	scraped  []string
	day      time.Time
	clusters []*domain.Cluster
	rendered string
}

func (f *fakePipeline) Run(_ context.Context, day time.Time) (app.RunReport, error) {
	f.day = day
	return app.RunReport{
		Day:       day,
		Clusters:  2,
		Generated: 1,
		Failed:    []generate.Failure{{ClusterID: "c2", Err: generate.ErrExhausted, Attempts: make([]domain.Attempt, 5)}},
	}, f.err
}

func (f *fakePipeline) Scrape(_ context.Context, names ...string) (coordinator.Report, error) {
	f.scraped = names
	if f.err != nil {
		return coordinator.Report{}, f.err
	}
	return coordinator.Report{
		Inserted: map[string]int{"Blick": 3},
		Rejected: map[string]int{"Blick": 1},
		Missing:  []string{"NZZ"},
		Errors:   map[string]error{"NZZ": errors.New("timeout")},
	}, nil
}

func (f *fakePipeline) Cluster(_ context.Context, day time.Time) ([]*domain.Cluster, error) {
	f.day = day
	return f.clusters, f.err
}

func (f *fakePipeline) Produce(_ context.Context, day time.Time) (app.RunReport, error) {
	return app.RunReport{Day: day, Media: &media.Output{Final: "final.mp4", Clusters: []media.Assembled{{ClusterID: "c1"}}}}, f.err
}

func (f *fakePipeline) RenderCluster(_ context.Context, clusterID string) (media.Assembled, error) {
	f.rendered = clusterID
	if f.err != nil {
		return media.Assembled{}, f.err
	}
	return media.Assembled{ClusterID: clusterID, Video: clusterID + ".mp4"}, nil
}

func (f *fakePipeline) Upload(context.Context, time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "vid1", nil
}

func (f *fakePipeline) Clusters(context.Context, time.Time) ([]*domain.Cluster, error) {
	return f.clusters, f.err
}

func (f *fakePipeline) Stats(context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"total_articles": 12}, f.err
}

func newTestRouter(p Pipeline) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(p, config.ServerConfig{Port: "0"}).Router()
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIsAlive(t *testing.T) {
	w := do(newTestRouter(&fakePipeline{}), "GET", "/is-alive")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"status":"alive"}`, w.Body.String())
}

func TestScrapeAll(t *testing.T) {
	p := &fakePipeline{}
	w := do(newTestRouter(p), "POST", "/scrape/all")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, len(p.scraped))

	var resp scrapeResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, []string{"NZZ"}, resp.Missing)
	assert.Equal(t, "timeout", resp.Errors["NZZ"])
}

func TestScrapeSource(t *testing.T) {
	p := &fakePipeline{}
	w := do(newTestRouter(p), "POST", "/scrape/Blick")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Blick"}, p.scraped)
}

func TestScrapeUnknownSource(t *testing.T) {
	p := &fakePipeline{err: fmt.Errorf("source Foo: %w", domain.ErrNotFound)}
	w := do(newTestRouter(p), "POST", "/scrape/Foo")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMatchParsesDay(t *testing.T) {
	p := &fakePipeline{clusters: []*domain.Cluster{{ID: "c1", Title: "Brand"}}}
	w := do(newTestRouter(p), "POST", "/match?day=2024-05-03")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-05-03", p.day.Format("2006-01-02"))

	var resp struct {
		Count    int              `json:"count"`
		Clusters []domain.Cluster `json:"clusters"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "Brand", resp.Clusters[0].Title)
}

func TestInvalidDay(t *testing.T) {
	w := do(newTestRouter(&fakePipeline{}), "POST", "/match?day=03.05.2024")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmptyClusterList(t *testing.T) {
	w := do(newTestRouter(&fakePipeline{}), "GET", "/clusters")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"clusters":[],"count":0}`, w.Body.String())
}

func TestRunReport(t *testing.T) {
	w := do(newTestRouter(&fakePipeline{}), "POST", "/run?day=2024-05-03")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp runResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, nil, err)
	assert.Equal(t, "2024-05-03", resp.Day)
	assert.Equal(t, 1, len(resp.Failed))
	assert.Equal(t, 5, resp.Failed[0].Attempts)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: 3 < 10", app.ErrTooFewArticles), http.StatusUnprocessableEntity},
		{app.ErrRunning, http.StatusConflict},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := do(newTestRouter(&fakePipeline{err: tt.err}), "POST", "/run")
		assert.Equal(t, tt.code, w.Code)
	}
}

func TestVideoRoutes(t *testing.T) {
	p := &fakePipeline{}
	r := newTestRouter(p)

	w := do(r, "POST", "/video/c1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", p.rendered)

	w = do(r, "POST", "/video/upload")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"video_id":"vid1"}`, w.Body.String())

	w = do(r, "POST", "/video/all")
	assert.Equal(t, http.StatusOK, w.Code)
	var resp runResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, resp.Videos)
	assert.Equal(t, "final.mp4", resp.Final)
}

func TestVideoDisabled(t *testing.T) {
	w := do(newTestRouter(&fakePipeline{err: app.ErrMediaDisabled}), "POST", "/video/c1")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestMetrics(t *testing.T) {
	w := do(newTestRouter(&fakePipeline{}), "GET", "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"total_articles":12}`, w.Body.String())
}
