package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCountersAreConcurrencySafe(t *testing.T) {
	m := &Metrics{IsHealthy: true}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddArticlesScraped(2)
			m.IncrementScriptsGenerated()
		}()
	}
	wg.Wait()

	stats := m.GetStats()
	if stats["articles_scraped"].(int64) != 100 {
		t.Errorf("articles_scraped = %v", stats["articles_scraped"])
	}
	if stats["scripts_generated"].(int64) != 50 {
		t.Errorf("scripts_generated = %v", stats["scripts_generated"])
	}
}

func TestHealthFollowsErrors(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	m.SetError("too few articles")
	if m.Healthy() {
		t.Fatal("expected unhealthy after SetError")
	}
	m.SetLastRun()
	if !m.Healthy() {
		t.Fatal("expected healthy after SetLastRun")
	}

	m.RecordProcessingTime(2 * time.Second)
	m.RecordProcessingTime(4 * time.Second)
	if m.AverageProcessingTime != 3*time.Second {
		t.Errorf("average = %v, want 3s", m.AverageProcessingTime)
	}
}
