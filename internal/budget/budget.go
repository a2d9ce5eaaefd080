// Package budget splits the input-token ceiling of one generation request across
// the member articles of a cluster.
package budget

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"
)

// MinRatio keeps ratios strictly positive when overhead alone exhausts the ceiling.
const MinRatio = 0.001

// TokenCounter reports how many tokens the generation service charges for text.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// EstimateCounter approximates tokens from the rune count.
type EstimateCounter struct {
	CharsPerToken float64
}

func (e EstimateCounter) CountTokens(_ context.Context, text string) (int, error) {
	cpt := e.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / cpt)), nil
}

type Allocator struct {
	MaxInputTokens int
	CitationTokens int // cost of wrapping one article in the citation template
	PrimerTokens   int
	Counter        TokenCounter
}

// NewAllocator measures the citation template and primer once with counter.
func NewAllocator(ctx context.Context, maxInputTokens int, citationTemplate, primer string, counter TokenCounter) (*Allocator, error) {
	if counter == nil {
		counter = EstimateCounter{}
	}
	citation, err := counter.CountTokens(ctx, citationTemplate)
	if err != nil {
		return nil, fmt.Errorf("count citation template tokens: %w", err)
	}
	primerTokens, err := counter.CountTokens(ctx, primer)
	if err != nil {
		return nil, fmt.Errorf("count primer tokens: %w", err)
	}
	return &Allocator{
		MaxInputTokens: maxInputTokens,
		CitationTokens: citation,
		PrimerTokens:   primerTokens,
		Counter:        counter,
	}, nil
}

// PerMember is the token share left for one article's text when memberCount articles
// share the request.
func (a *Allocator) PerMember(memberCount int) float64 {
	if memberCount < 1 {
		memberCount = 1
	}
	remaining := a.MaxInputTokens - memberCount*a.CitationTokens - a.PrimerTokens
	return float64(remaining) / float64(memberCount)
}

// RatioFor is the target compression ratio for an article of rawTokens tokens.
// A ratio of 1 or more means the article fits untouched.
func (a *Allocator) RatioFor(rawTokens, memberCount int) float64 {
	if rawTokens <= 0 {
		return 1
	}
	r := math.Round(a.PerMember(memberCount)/float64(rawTokens)*1000) / 1000
	if r < MinRatio {
		return MinRatio
	}
	return r
}

// Ratio counts text with the allocator's counter and returns RatioFor.
func (a *Allocator) Ratio(ctx context.Context, text string, memberCount int) (float64, int, error) {
	counter := a.Counter
	if counter == nil {
		counter = EstimateCounter{}
	}
	raw, err := counter.CountTokens(ctx, text)
	if err != nil {
		return 0, 0, fmt.Errorf("count tokens: %w", err)
	}
	return a.RatioFor(raw, memberCount), raw, nil
}
