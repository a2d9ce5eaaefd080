package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ArticlesScraped   int64
	ArticlesRejected  int64
	MissingSources    int64
	ClustersBuilt     int64
	ScriptsGenerated  int64
	SoftFailures      int64
	FailedClusters    int64
	VideosRendered    int64
	VideosUploaded    int64
	ReportsSent       int64
	CompressCacheHits int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) add(counter *int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter += int64(n)
}

func (m *Metrics) AddArticlesScraped(n int)  { m.add(&m.ArticlesScraped, n) }
func (m *Metrics) AddArticlesRejected(n int) { m.add(&m.ArticlesRejected, n) }
func (m *Metrics) AddMissingSources(n int)   { m.add(&m.MissingSources, n) }
func (m *Metrics) AddClustersBuilt(n int)    { m.add(&m.ClustersBuilt, n) }
func (m *Metrics) AddSoftFailures(n int)     { m.add(&m.SoftFailures, n) }

func (m *Metrics) IncrementScriptsGenerated()  { m.add(&m.ScriptsGenerated, 1) }
func (m *Metrics) IncrementFailedClusters()    { m.add(&m.FailedClusters, 1) }
func (m *Metrics) IncrementVideosRendered()    { m.add(&m.VideosRendered, 1) }
func (m *Metrics) IncrementVideosUploaded()    { m.add(&m.VideosUploaded, 1) }
func (m *Metrics) IncrementReportsSent()       { m.add(&m.ReportsSent, 1) }
func (m *Metrics) IncrementCompressCacheHits() { m.add(&m.CompressCacheHits, 1) }

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"articles_scraped":           m.ArticlesScraped,
		"articles_rejected":          m.ArticlesRejected,
		"missing_sources":            m.MissingSources,
		"clusters_built":             m.ClustersBuilt,
		"scripts_generated":          m.ScriptsGenerated,
		"soft_failures":              m.SoftFailures,
		"failed_clusters":            m.FailedClusters,
		"videos_rendered":            m.VideosRendered,
		"videos_uploaded":            m.VideosUploaded,
		"reports_sent":               m.ReportsSent,
		"compress_cache_hits":        m.CompressCacheHits,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
