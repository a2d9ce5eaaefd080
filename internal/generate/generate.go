// Package generate turns a finalized cluster into a narration script, a title and tags.
//
// The generation service is non-deterministic: calling GenerateScript twice for the
// same cluster can return different scripts.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/newsreel/internal/budget"
	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/metrics"
	"github.com/deusflow/newsreel/internal/prompt"
	"github.com/deusflow/newsreel/internal/retry"
	"github.com/deusflow/newsreel/internal/textnorm"
)

var (
	// ErrSoftFailure marks a response that arrived but failed validation.
	ErrSoftFailure = errors.New("soft generation failure")
	// ErrExhausted marks a cluster whose attempts all failed.
	ErrExhausted = errors.New("generation attempts exhausted")
)

const maxTitleRunes = 100

// Usage is the token accounting reported by the service.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is one answer of the service. Title is empty when the service does not
// return a structured title. Usage is nil when the service reported none.
type Response struct {
	Script string
	Title  string
	Usage  *Usage
}

// Service is the remote text generator.
type Service interface {
	GenerateScript(ctx context.Context, request string) (Response, error)
	GenerateTags(ctx context.Context, script string) ([]string, error)
}

// Compressor shortens text to about ratio of its length.
type Compressor interface {
	Compress(ctx context.Context, text string, ratio float64) (string, error)
}

// Sink stores per-cluster artifacts. Strings are written as text, everything else as JSON.
type Sink interface {
	Save(clusterID, name string, v any) error
}

type Options struct {
	Attempts        int
	RetryDelay      time.Duration
	MinOutputTokens int
	Concurrency     int
	Provider        string
	Sink            Sink
}

type Orchestrator struct {
	service    Service
	compressor Compressor
	allocator  *budget.Allocator
	opts       Options
	log        *slog.Logger
}

func New(service Service, compressor Compressor, allocator *budget.Allocator, opts Options) *Orchestrator {
	if opts.Attempts < 1 {
		opts.Attempts = 5
	}
	if opts.MinOutputTokens <= 0 {
		opts.MinOutputTokens = 200
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		service:    service,
		compressor: compressor,
		allocator:  allocator,
		opts:       opts,
		log:        logger.Component("generate"),
	}
}

// Job is one cluster together with its member articles.
type Job struct {
	Cluster *domain.Cluster
	Members []domain.Article
}

// BuildRequest renders every usable member into the citation template, compressing
// members whose share of the input budget is smaller than their raw size.
func (o *Orchestrator) BuildRequest(ctx context.Context, members []domain.Article) (string, error) {
	usable := make([]domain.Article, 0, len(members))
	for _, a := range members {
		if strings.TrimSpace(a.Text) == "" || strings.TrimSpace(a.Title) == "" {
			o.log.Warn("skipping malformed member", "source", a.Source, "id", a.ID, "reason", "missing title or text")
			continue
		}
		usable = append(usable, a)
	}
	if len(usable) == 0 {
		return "", fmt.Errorf("%w: no usable member articles", domain.ErrMalformed)
	}

	var b strings.Builder
	for _, a := range usable {
		ratio, raw, err := o.allocator.Ratio(ctx, a.Text, len(usable))
		if err != nil {
			return "", fmt.Errorf("budget for %s: %w", a.ID, err)
		}

		var summary string
		if ratio >= 1 {
			summary = textnorm.MediumCleanup(a.Text)
		} else {
			summary, err = o.compressor.Compress(ctx, a.Text, ratio)
			if err != nil || strings.TrimSpace(summary) == "" {
				o.log.Warn("compression failed, truncating", "id", a.ID, "ratio", ratio, "error", err)
				summary = Truncate(textnorm.MediumCleanup(a.Text), ratio)
			}
		}
		o.log.Debug("member budgeted", "id", a.ID, "source", a.Source, "ratio", ratio, "raw_tokens", raw, "members", len(usable))

		b.WriteString(prompt.FormatCitation(a.Title, a.Source, a.PublishedAt, summary))
	}
	return b.String(), nil
}

// GenerateScript runs the retry protocol for one cluster. The returned result carries
// the attempt log even when the cluster failed.
func (o *Orchestrator) GenerateScript(ctx context.Context, job Job) (*domain.ScriptResult, error) {
	c := job.Cluster
	log := o.log.With("cluster", c.ID)

	result := &domain.ScriptResult{ClusterID: c.ID, Provider: o.opts.Provider}

	request, err := o.BuildRequest(ctx, job.Members)
	if err != nil {
		c.Status = domain.ClusterFailed
		return result, fmt.Errorf("cluster %s: build request: %w", c.ID, err)
	}
	result.Request = request
	o.save(c.ID, "input.txt", request)

	policy := retry.Fixed(o.opts.Attempts, o.opts.RetryDelay)
	policy.OnRetry = func(attempt int, err error) {
		log.Warn("generation attempt rejected", "attempt", attempt, "of", o.opts.Attempts, "error", err)
	}

	resp, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (Response, error) {
		r, err := o.service.GenerateScript(ctx, request)
		at := domain.Attempt{Index: attempt, Script: r.Script, Title: r.Title}
		if r.Usage != nil {
			at.OutputTokens = r.Usage.OutputTokens
		}
		if err == nil {
			err = o.validate(r)
			at.Soft = err != nil
		}
		if err != nil {
			at.Err = err.Error()
		}
		result.Attempts = append(result.Attempts, at)
		return r, err
	}, nil)

	if soft := result.SoftFailures(); soft > 0 {
		metrics.Global.AddSoftFailures(soft)
	}
	if err != nil {
		c.Status = domain.ClusterFailed
		o.save(c.ID, "attempts.json", result.Attempts)
		log.Error("cluster generation failed", "attempts", len(result.Attempts), "soft_failures", result.SoftFailures(), "error", err)
		return result, fmt.Errorf("cluster %s: %w: %w", c.ID, ErrExhausted, err)
	}

	result.Script = strings.TrimSpace(resp.Script)
	result.Title = DeriveTitle(resp)
	if result.Title == "" {
		result.Title = c.Title
	}
	result.Tags = o.tags(ctx, log, result.Script)

	c.Title = result.Title
	c.Script = result.Script
	c.Status = domain.ClusterGenerated

	o.save(c.ID, "script.json", result)
	o.save(c.ID, "tags.json", result.Tags)
	o.save(c.ID, "cluster.json", c)

	log.Info("script generated", "title", result.Title, "attempts", len(result.Attempts), "soft_failures", result.SoftFailures(), "tags", len(result.Tags))
	return result, nil
}

func (o *Orchestrator) validate(r Response) error {
	if strings.TrimSpace(r.Script) == "" {
		return fmt.Errorf("%w: empty script", ErrSoftFailure)
	}
	if r.Usage == nil {
		return fmt.Errorf("%w: no usage reported", ErrSoftFailure)
	}
	if r.Usage.OutputTokens < o.opts.MinOutputTokens {
		return fmt.Errorf("%w: %d output tokens, need %d", ErrSoftFailure, r.Usage.OutputTokens, o.opts.MinOutputTokens)
	}
	return nil
}

// tags never fails the cluster; an empty list is the degraded result.
func (o *Orchestrator) tags(ctx context.Context, log *slog.Logger, script string) []string {
	policy := retry.Fixed(o.opts.Attempts, o.opts.RetryDelay)
	tags, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) ([]string, error) {
		return o.service.GenerateTags(ctx, script)
	}, func(tags []string) error {
		if len(tags) == 0 {
			return errors.New("empty tag list")
		}
		return nil
	})
	if err != nil {
		log.Warn("tag generation failed, continuing without tags", "error", err)
		return []string{}
	}
	return tags
}

func (o *Orchestrator) save(clusterID, name string, v any) {
	if o.opts.Sink == nil {
		return
	}
	if err := o.opts.Sink.Save(clusterID, name, v); err != nil {
		o.log.Warn("failed to write artifact", "cluster", clusterID, "name", name, "error", err)
	}
}

// DeriveTitle prefers the structured title and falls back to the first script line.
func DeriveTitle(r Response) string {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		for _, line := range strings.Split(r.Script, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
			line = strings.TrimSpace(strings.TrimPrefix(line, "TITEL:"))
			if line != "" {
				title = line
				break
			}
		}
	}
	title = strings.Trim(title, `"*`)
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return strings.TrimSpace(title)
}

// Truncate keeps about ratio of text, cut at the last sentence end when one exists
// in the second half of the kept part.
func Truncate(text string, ratio float64) string {
	if ratio >= 1 {
		return text
	}
	runes := []rune(text)
	keep := int(float64(len(runes)) * ratio)
	if keep <= 0 {
		return ""
	}
	cut := string(runes[:keep])
	if i := strings.LastIndexAny(cut, ".!?"); i > len(cut)/2 {
		cut = cut[:i+1]
	}
	return cut
}
