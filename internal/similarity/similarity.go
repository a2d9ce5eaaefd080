// Package similarity scores how alike two article abstracts are.
//
// Ratio is the token-sort ratio and SetRatio the token-set ratio, in the
// fuzzywuzzy sense. QRatio and WRatio are kept for diagnostics only and never
// take part in the match decision.
package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/deusflow/newsreel/internal/textnorm"
	"github.com/hbollon/go-edlib"
)

const DefaultThreshold = 0.6

type Scores struct {
	Ratio    float64 `json:"ratio"`
	SetRatio float64 `json:"set_ratio"`
	QRatio   float64 `json:"q_ratio"`
	WRatio   float64 `json:"w_ratio"`
}

// Prepared is a text processed once for repeated comparisons.
type Prepared struct {
	processed string
	sorted    string
	tokens    map[string]bool
}

// Prepare normalizes text and precomputes its token forms. Words in stop are
// dropped before scoring.
func Prepare(text string, stop ...string) Prepared {
	toks := textnorm.Tokens(textnorm.Normalize(text))
	if len(stop) > 0 {
		toks = strings.Fields(textnorm.RemoveStopWords(strings.Join(toks, " "), stop))
	}
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	sorted := append([]string(nil), toks...)
	sort.Strings(sorted)
	return Prepared{
		processed: strings.Join(toks, " "),
		sorted:    strings.Join(sorted, " "),
		tokens:    set,
	}
}

// Empty reports whether nothing comparable survived normalization.
func (p Prepared) Empty() bool {
	return p.processed == ""
}

type Scorer struct {
	Threshold float64
}

func NewScorer(threshold float64) Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Scorer{Threshold: threshold}
}

// IsMatch applies the decision rule: ratio or set ratio at or above the threshold.
func (s Scorer) IsMatch(sc Scores) bool {
	return sc.Ratio >= s.Threshold || sc.SetRatio >= s.Threshold
}

// Compare scores two prepared texts. The diagnostic scores are only computed for matches.
func (s Scorer) Compare(a, b Prepared) (Scores, bool) {
	sc := Scores{
		Ratio:    tokenSortRatio(a, b),
		SetRatio: tokenSetRatio(a, b),
	}
	if !s.IsMatch(sc) {
		return sc, false
	}
	sc.QRatio = round2(ratio(a.processed, b.processed))
	sc.WRatio = wRatio(a, b)
	return sc, true
}

// Score computes all four measures for two raw texts.
func Score(a, b string) Scores {
	pa, pb := Prepare(a), Prepare(b)
	return Scores{
		Ratio:    tokenSortRatio(pa, pb),
		SetRatio: tokenSetRatio(pa, pb),
		QRatio:   round2(ratio(pa.processed, pb.processed)),
		WRatio:   wRatio(pa, pb),
	}
}

// ratio is the Indel similarity of two strings in runes: 1 - d/(la+lb), where d
// counts only insertions and deletions. Equal to 2*LCS/(la+lb).
func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	d := edlib.LCSEditDistance(a, b)
	return 1 - float64(d)/float64(la+lb)
}

// partialRatio is the best ratio of the shorter string against windows of the longer
// one. Windows start on word boundaries.
func partialRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	if len(short) == len(long) {
		return ratio(a, b)
	}

	best := 0.0
	s := string(short)
	for start := 0; start+len(short) <= len(long); start++ {
		if start > 0 && long[start-1] != ' ' {
			continue
		}
		r := ratio(s, string(long[start:start+len(short)]))
		if r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}

func tokenSortRatio(a, b Prepared) float64 {
	return round2(ratio(a.sorted, b.sorted))
}

func tokenSetRatio(a, b Prepared) float64 {
	if a.processed == b.processed {
		return 1
	}
	var inter, onlyA, onlyB []string
	for t := range a.tokens {
		if b.tokens[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range b.tokens {
		if !a.tokens[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	best := ratio(t1, t2)
	if t0 != "" {
		best = math.Max(best, math.Max(ratio(t0, t1), ratio(t0, t2)))
	}
	return round2(best)
}

func wRatio(a, b Prepared) float64 {
	if a.processed == "" || b.processed == "" {
		if a.processed == b.processed {
			return 1
		}
		return 0
	}
	base := ratio(a.processed, b.processed)

	la, lb := float64(len([]rune(a.processed))), float64(len([]rune(b.processed)))
	lenRatio := math.Max(la, lb) / math.Min(la, lb)

	if lenRatio < 1.5 {
		return round2(max(base, tokenSortRatio(a, b)*0.95, tokenSetRatio(a, b)*0.95))
	}

	scale := 0.9
	if lenRatio >= 8 {
		scale = 0.6
	}
	partial := partialRatio(a.processed, b.processed) * scale
	partialSort := partialRatio(a.sorted, b.sorted) * 0.95 * scale
	return round2(max(base, partial, partialSort, tokenSetRatio(a, b)*0.95*scale))
}

// Jaccard is the overlap of two tag sets, case-insensitive. Two empty sets score 0.
func Jaccard(a, b []string) float64 {
	sa, sb := tagSet(a), tagSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
