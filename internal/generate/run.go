package generate

import (
	"context"
	"sync"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Failure is a cluster excluded from assembly.
type Failure struct {
	ClusterID string
	Err       error
	Attempts  []domain.Attempt
}

// Report lists successes in job order. Failed clusters never appear in Results.
type Report struct {
	Results []*domain.ScriptResult
	Failed  []Failure
}

// Run generates every job on a bounded pool. Clusters are independent: a failure
// is recorded and never cancels its siblings.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) Report {
	results := make([]*domain.ScriptResult, len(jobs))
	errs := make([]error, len(jobs))
	attempts := make([][]domain.Attempt, len(jobs))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)

	var mu sync.Mutex
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := o.GenerateScript(ctx, job)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[i] = err
				if res != nil {
					attempts[i] = res.Attempts
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var rep Report
	for i, job := range jobs {
		if errs[i] != nil {
			metrics.Global.IncrementFailedClusters()
			rep.Failed = append(rep.Failed, Failure{ClusterID: job.Cluster.ID, Err: errs[i], Attempts: attempts[i]})
			continue
		}
		metrics.Global.IncrementScriptsGenerated()
		rep.Results = append(rep.Results, results[i])
	}

	o.log.Info("generation finished", "clusters", len(jobs), "succeeded", len(rep.Results), "failed", len(rep.Failed))
	return rep
}
