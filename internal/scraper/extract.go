package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsreel/internal/textnorm"
)

const bodyElements = "p, h2, h3, li, blockquote, img"

var altCleaner = strings.NewReplacer("[", "", "]", "")

var multiSpace = regexp.MustCompile(`[ \t\p{Zs}]+`)

// renderBody writes the body as plain paragraphs with one markdown image line
// per picture, in document order.
func renderBody(body *goquery.Selection, base *url.URL, junk []string) string {
	var blocks []string
	seen := make(map[string]bool)

	body.Find(bodyElements).Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "img" {
			src := imageSource(s)
			if src == "" {
				return
			}
			abs := resolve(base, src)
			if seen[abs] {
				return
			}
			seen[abs] = true
			alt := strings.TrimSpace(s.AttrOr("alt", ""))
			blocks = append(blocks, fmt.Sprintf("![%s](%s)", altCleaner.Replace(alt), abs))
			return
		}
		// nested matches (p inside li, ...) are written by their parent
		if s.ParentsFiltered("p, li, blockquote").Length() > 0 {
			return
		}
		text := cleanText(s.Text())
		if len(text) < 10 {
			return
		}
		if goquery.NodeName(s) == "h2" || goquery.NodeName(s) == "h3" {
			text = "## " + text
		}
		blocks = append(blocks, text)
	})

	return cleanContent(strings.Join(blocks, "\n"), junk)
}

// imageSource prefers lazy-loading attributes over src, which often holds a placeholder.
func imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-original", "src"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if fields := strings.Fields(strings.Split(s.AttrOr("srcset", ""), ",")[0]); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00ad", "")
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// cleanContent drops junk lines and duplicate paragraphs.
func cleanContent(content string, junk []string) string {
	content = textnorm.StripBoilerplate(content, junk)

	lines := strings.Split(content, "\n")
	seen := make(map[string]bool, len(lines))
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func firstText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return cleanText(doc.Find(selector).First().Text())
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006, 15:04",
	"02.01.2006",
}

// parseDate understands ISO timestamps and the Swiss dd.mm.yyyy form.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Publiziert:"))
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown date format %q", raw)
}

func publicationDate(doc *goquery.Document, selector, attr string) time.Time {
	if selector == "" {
		return time.Time{}
	}
	var published time.Time
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := s.Text()
		if attr != "" {
			raw = s.AttrOr(attr, raw)
		}
		if t, err := parseDate(raw); err == nil {
			published = t
			return false
		}
		return true
	})
	if published.IsZero() {
		if meta, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
			published, _ = parseDate(meta)
		}
	}
	return published
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || base == nil {
		return ref
	}
	u = base.ResolveReference(u)
	u.Fragment = ""
	return u.String()
}

// metaTags reads the keyword and article:tag meta elements most outlets publish.
func metaTags(doc *goquery.Document) []string {
	var tags []string
	doc.Find(`meta[name="keywords"], meta[name="news_keywords"]`).Each(func(_ int, s *goquery.Selection) {
		tags = append(tags, strings.Split(s.AttrOr("content", ""), ",")...)
	})
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		tags = append(tags, s.AttrOr("content", ""))
	})
	return tags
}

// mergeTags trims and deduplicates tags case-insensitively, keeping first spelling.
func mergeTags(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, t := range list {
			t = cleanText(t)
			if t == "" || seen[strings.ToLower(t)] {
				continue
			}
			seen[strings.ToLower(t)] = true
			out = append(out, t)
		}
	}
	return out
}
