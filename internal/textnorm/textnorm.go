// Package textnorm turns scraped article bodies into comparable plain text.
package textnorm

import (
	"strings"
	"unicode"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const imageMarker = "!["

// DefaultAccents are the non-ASCII letters kept by Normalize.
const DefaultAccents = "äöüÄÖÜßéèàçâêîôû"

const punctuation = ".,;:!?-&()[]{}#\"' "

// DefaultStopWords is the German article/preposition list. The abstract matcher
// drops it when cluster.stop_words is set. The extractive summarizer always drops it.
var DefaultStopWords = []string{
	"der", "die", "das", "den", "dem", "des", "doch", "ein", "eine", "einem", "einen", "eines",
	"in", "im", "mit", "auf", "von", "zu", "zum", "zur", "an", "am", "als", "bei", "für",
	"über", "unter", "vor", "nach", "durch", "wegen", "ohne", "seit", "bis",
}

// Normalizer keeps ASCII alphanumerics, the configured accented letters and a fixed punctuation set.
type Normalizer struct {
	allowed map[rune]bool
}

func New(accents string) *Normalizer {
	allowed := make(map[rune]bool, len(accents)+len(punctuation))
	for _, r := range accents + punctuation {
		allowed[r] = true
	}
	return &Normalizer{allowed: allowed}
}

var defaultNormalizer = New(DefaultAccents)

// Normalize uses the default character set.
func Normalize(s string) string {
	return defaultNormalizer.Normalize(s)
}

// Normalize strips disallowed characters, drops image lines and blank lines and
// collapses runs of spaces. Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(s string) string {
	s = strings.Map(n.keep, s)

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.Contains(line, imageMarker) {
			continue
		}
		line = collapseSpaces(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func (n *Normalizer) keep(r rune) rune {
	switch {
	case r == '\n':
		return r
	case r == '\t' || r == '\r' || r == ' ':
		return ' '
	case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		return r
	case n.allowed[r]:
		return r
	}
	return -1
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RemoveImages drops every line carrying an image marker and collapses double spaces.
func RemoveImages(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.Contains(line, imageMarker) {
			continue
		}
		out = append(out, line)
	}
	s = strings.Join(out, "\n")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

// MediumCleanup removes images and empty lines but keeps headings and punctuation.
// Used for text that fits the budget untouched.
func MediumCleanup(s string) string {
	lines := strings.Split(RemoveImages(s), "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// RemoveStopWords drops whole words found in stop (case-insensitive).
func RemoveStopWords(s string, stop []string) string {
	if len(stop) == 0 {
		return s
	}
	set := make(map[string]bool, len(stop))
	for _, w := range stop {
		set[strings.ToLower(w)] = true
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		words := strings.Fields(line)
		kept := words[:0]
		for _, w := range words {
			if set[strings.ToLower(w)] {
				continue
			}
			kept = append(kept, w)
		}
		lines[i] = strings.Join(kept, " ")
	}
	return strings.Join(lines, "\n")
}

// StripBoilerplate removes lines that contain any of the junk phrases.
func StripBoilerplate(s string, phrases []string) string {
	if len(phrases) == 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		junk := false
		for _, p := range phrases {
			if p != "" && strings.Contains(lower, strings.ToLower(p)) {
				junk = true
				break
			}
		}
		if !junk {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// ExtractImages returns the markdown image references of a body in document order.
func ExtractImages(markdown string) []domain.ImageRef {
	if !strings.Contains(markdown, imageMarker) {
		return nil
	}

	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var refs []domain.ImageRef
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := node.(*ast.Image); ok {
			refs = append(refs, domain.ImageRef{
				Alt: string(img.Text(src)),
				URL: string(img.Destination),
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return refs
}

// Tokens splits normalized text into lowercase words with punctuation trimmed.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return fields
}
