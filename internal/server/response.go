package server

import (
	"sort"

	"github.com/deusflow/newsreel/internal/app"
	"github.com/deusflow/newsreel/internal/coordinator"
)

type scrapeResponse struct {
	Inserted map[string]int    `json:"inserted"`
	Rejected map[string]int    `json:"rejected"`
	Missing  []string          `json:"missing"`
	Errors   map[string]string `json:"errors,omitempty"`
	Total    int               `json:"total"`
	Duration string            `json:"duration"`
}

func newScrapeResponse(rep coordinator.Report) scrapeResponse {
	out := scrapeResponse{
		Inserted: rep.Inserted,
		Rejected: rep.Rejected,
		Missing:  append([]string{}, rep.Missing...),
		Total:    rep.Total(),
		Duration: rep.Duration.String(),
	}
	sort.Strings(out.Missing)
	if len(rep.Errors) > 0 {
		out.Errors = make(map[string]string, len(rep.Errors))
		for src, err := range rep.Errors {
			out.Errors[src] = err.Error()
		}
	}
	return out
}

type failedCluster struct {
	ClusterID string `json:"cluster_id"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}

type runResponse struct {
	Day       string          `json:"day"`
	Scrape    scrapeResponse  `json:"scrape"`
	Articles  int             `json:"articles"`
	Enriched  int             `json:"enriched"`
	Clusters  int             `json:"clusters"`
	Generated int             `json:"generated"`
	Failed    []failedCluster `json:"failed"`
	Videos    int             `json:"videos"`
	Final     string          `json:"final,omitempty"`
	VideoID   string          `json:"video_id,omitempty"`
	Duration  string          `json:"duration"`
}

func newRunResponse(rep app.RunReport) runResponse {
	out := runResponse{
		Day:       rep.Day.Format("2006-01-02"),
		Scrape:    newScrapeResponse(rep.Scrape),
		Articles:  rep.Articles,
		Enriched:  rep.Enriched,
		Clusters:  rep.Clusters,
		Generated: rep.Generated,
		Failed:    []failedCluster{},
		VideoID:   rep.VideoID,
		Duration:  rep.Duration.String(),
	}
	for _, f := range rep.Failed {
		fc := failedCluster{ClusterID: f.ClusterID, Attempts: len(f.Attempts)}
		if f.Err != nil {
			fc.Error = f.Err.Error()
		}
		out.Failed = append(out.Failed, fc)
	}
	if rep.Media != nil {
		out.Videos = len(rep.Media.Clusters)
		out.Final = rep.Media.Final
	}
	return out
}
