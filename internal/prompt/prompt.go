// Package prompt holds the texts sent to the generation service.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// Ack is the assistant turn that follows Primer in chat-style requests.
const Ack = "ACK"

// Primer explains the citation format and the expected transcript. It is sent once
// per script request, ahead of the citations.
const Primer = `
Schreibe ein Transkript für einen Podcast, der von einem TTS gesprochen wird, aus den Quellen, welche ich dir geben werde.
Mindestens 100 Wörter.

Jede Quelle besteht aus:
TITEL: Überschrift des Artikels
ZEITUNG: Welche Zeitung den Artikel veröffentlicht hat
DATE: Datum, wann der Artikel veröffentlicht wurde
ZUSAMMENFASSUNG: Zusammenfassung des vollen Artikels

Beispiel:
Quellen (input):

TITEL: News2Noise testet KI-generierte News
ZEITUNG: Tagesanzeiger
DATE: 2023-01-01
ZUSAMMENFASSUNG: Heute hat die Firma News2Noise den ersten Artikel automatisch generiert. Ob sich das lohnt, wird sich zeigen.

TITEL: News2Noise ist ein Erfolgsschlager
ZEITUNG: 20min
DATE: 2023-01-14
ZUSAMMENFASSUNG: News2Noise hat die News-Szene revolutioniert. Jeder hört nun den Podcast.

Antwortformat:
TITEL: <kurzer Titel für das Video>
SKRIPT: <Transkript>

Antworte mit ACK, wenn du verstehst.
`

// Citation wraps one article. The placeholders are title, newspaper, date and summary.
const Citation = `
TITEL: %s
ZEITUNG: %s
DATE: %s
ZUSAMMENFASSUNG: %s
`

// CitationSkeleton is Citation with empty fields, used to measure its token overhead.
var CitationSkeleton = fmt.Sprintf(Citation, "", "", "", "")

// FormatCitation renders one article into the citation template.
func FormatCitation(title, newspaper string, published time.Time, summary string) string {
	return fmt.Sprintf(Citation,
		strings.TrimSpace(title),
		strings.TrimSpace(newspaper),
		published.Format("2006-01-02"),
		strings.TrimSpace(summary))
}

// Tags asks for a comma separated tag list for a video transcript.
const Tags = `Erstelle eine Tag-Liste im Format:
tag1,tag2,tag3

für das folgende Transkript eines YouTube-Videos:
`

// TagSystem is the system turn for tag requests.
const TagSystem = "Du bist ein helfender Assistent."

// Compress asks for a shortened version of roughly words words.
func Compress(text string, words int) string {
	return fmt.Sprintf(`Fasse den folgenden Artikel sachlich auf ungefähr %d Wörter zusammen.
Behalte Namen, Zahlen und Orte. Antworte nur mit der Zusammenfassung.

%s`, words, text)
}

// ParseTags splits a comma or newline separated tag answer, dropping blanks,
// leading '#' and duplicates.
func ParseTags(answer string) []string {
	fields := strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == '\n' })
	seen := make(map[string]bool, len(fields))
	var tags []string
	for _, f := range fields {
		t := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(f), "#-*"))
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		tags = append(tags, t)
	}
	return tags
}
