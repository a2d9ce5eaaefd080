package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRejected marks an article that failed an ingestion filter. Not an error condition for the run.
	ErrRejected = errors.New("article rejected")
	// ErrMalformed marks input missing a field required by the current step.
	ErrMalformed = errors.New("malformed input")
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// Article is one ingested news item. Only Tags and Summary change after ingestion.
type Article struct {
	ID          string    `json:"uid"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Abstract    string    `json:"abstract"`
	Text        string    `json:"text"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"publication_date"`
	ScrapedAt   time.Time `json:"scrape_date"`
	Tags        []string  `json:"tags,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

// NewID returns a fresh article or cluster id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EnsureID assigns an id once; existing ids are never replaced.
func (a *Article) EnsureID() {
	if a.ID == "" {
		a.ID = NewID()
	}
}

// Validate applies the ingestion filters that do not need the store:
// missing url, null publication date and short body.
func (a Article) Validate(minBodyLength int) error {
	if strings.TrimSpace(a.URL) == "" {
		return fmt.Errorf("%w: empty url", ErrRejected)
	}
	if a.PublishedAt.IsZero() {
		return fmt.Errorf("%w: no publication date (%s)", ErrRejected, a.URL)
	}
	if n := len([]rune(a.Text)); n < minBodyLength {
		return fmt.Errorf("%w: body too short (%d < %d chars, %s)", ErrRejected, n, minBodyLength, a.URL)
	}
	return nil
}

// PublishedOn reports whether the article was published on the calendar day of day.
func (a Article) PublishedOn(day time.Time) bool {
	y1, m1, d1 := a.PublishedAt.In(day.Location()).Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
