// Package llm adapts chat-completion providers to the script generator.
package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/deusflow/newsreel/internal/generate"
)

var labelPatterns = []struct {
	name  string
	regex *regexp.Regexp
}{
	{"title", regexp.MustCompile(`(?i)^\**\s*(TITEL|TITLE)\s*\**\s*:\s*\**\s*`)},
	{"script", regexp.MustCompile(`(?i)^\**\s*(SKRIPT|SCRIPT|TRANSKRIPT)\s*\**\s*:\s*\**\s*`)},
}

// ParseScript extracts title and script from a raw answer. It accepts the JSON
// shape {"titel": ..., "skript": ...}, labelled TITEL:/SKRIPT: sections, or plain
// text, in which case the whole answer is the script and the title is left empty.
func ParseScript(raw string) generate.Response {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return generate.Response{}
	}

	if strings.Contains(raw, "{") {
		var parsed struct {
			Titel  string `json:"titel"`
			Title  string `json:"title"`
			Skript string `json:"skript"`
			Script string `json:"script"`
		}
		if err := json.Unmarshal([]byte(cleanJSONResponse(raw)), &parsed); err == nil {
			script := firstNonEmpty(parsed.Skript, parsed.Script)
			if script != "" {
				return generate.Response{
					Script: strings.TrimSpace(script),
					Title:  strings.TrimSpace(firstNonEmpty(parsed.Titel, parsed.Title)),
				}
			}
		}
	}

	var title, script strings.Builder
	current := ""
	labelled := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)

		matched := false
		for _, lp := range labelPatterns {
			if lp.regex.MatchString(trimmed) {
				current = lp.name
				labelled = true
				matched = true
				appendLine(sectionFor(current, &title, &script), strings.TrimSpace(lp.regex.ReplaceAllString(trimmed, "")))
				break
			}
		}
		if matched || current == "" {
			continue
		}
		// the title is a single line; anything after it belongs to the script
		if current == "title" && title.Len() > 0 {
			current = "script"
		}
		appendLine(sectionFor(current, &title, &script), trimmed)
	}

	if !labelled || strings.TrimSpace(script.String()) == "" {
		return generate.Response{Script: raw}
	}
	return generate.Response{
		Script: strings.TrimSpace(script.String()),
		Title:  strings.TrimSpace(title.String()),
	}
}

func sectionFor(name string, title, script *strings.Builder) *strings.Builder {
	if name == "title" {
		return title
	}
	return script
}

// appendLine keeps paragraph breaks of the script so TTS pauses survive.
func appendLine(b *strings.Builder, line string) {
	if b.Len() == 0 && line == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(line)
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
