package llm

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/newsreel/internal/generate"
	"github.com/deusflow/newsreel/internal/textnorm"
)

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// Extractive shortens text locally by keeping the highest scoring sentences in
// their original order. A sentence scores the mean corpus frequency of its
// non-stop-words.
type Extractive struct {
	StopWords []string
}

func NewExtractive() *Extractive {
	return &Extractive{StopWords: textnorm.DefaultStopWords}
}

func (e *Extractive) Compress(_ context.Context, text string, ratio float64) (string, error) {
	text = textnorm.MediumCleanup(text)
	if ratio >= 1 || text == "" {
		return text, nil
	}

	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return generate.Truncate(text, ratio), nil
	}

	stop := make(map[string]bool, len(e.StopWords))
	for _, w := range e.StopWords {
		stop[w] = true
	}

	freq := make(map[string]int)
	tokens := make([][]string, len(sentences))
	for i, s := range sentences {
		for _, tok := range textnorm.Tokens(s) {
			if stop[tok] || utf8.RuneCountInString(tok) < 3 {
				continue
			}
			freq[tok]++
			tokens[i] = append(tokens[i], tok)
		}
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, toks := range tokens {
		var sum int
		for _, tok := range toks {
			sum += freq[tok]
		}
		score := 0.0
		if len(toks) > 0 {
			score = float64(sum) / float64(len(toks))
		}
		ranked[i] = scored{index: i, score: score}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	budget := int(float64(utf8.RuneCountInString(text)) * ratio)
	keep := make([]bool, len(sentences))
	used := 0
	for _, r := range ranked {
		n := utf8.RuneCountInString(sentences[r.index])
		if used > 0 && used+n > budget {
			continue
		}
		keep[r.index] = true
		used += n
	}

	var out []string
	for i, s := range sentences {
		if keep[i] {
			out = append(out, s)
		}
	}
	summary := strings.Join(out, " ")
	if utf8.RuneCountInString(summary) > budget {
		summary = generate.Truncate(summary, float64(budget)/float64(utf8.RuneCountInString(summary)))
	}
	return summary, nil
}

func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(strings.ReplaceAll(text, "\n", " "), "$1\x00")
	var out []string
	for _, s := range strings.Split(marked, "\x00") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
