package app

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
)

// FormatReport renders rep as a Telegram HTML message.
func FormatReport(rep RunReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📰 <b>newsreel %s</b>\n", rep.Day.Format("02.01.2006")))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")

	if rep.Err != nil {
		b.WriteString(fmt.Sprintf("❌ <b>Abgebrochen:</b> %s\n", html.EscapeString(rep.Err.Error())))
	}

	b.WriteString(fmt.Sprintf("Artikel neu: %d (abgelehnt %d)\n", rep.Scrape.Total(), rejected(rep)))
	b.WriteString(fmt.Sprintf("Artikel heute: %d\n", rep.Articles))
	b.WriteString(fmt.Sprintf("Cluster: %d, Skripte: %d\n", rep.Clusters, rep.Generated))

	if len(rep.Scrape.Missing) > 0 {
		missing := append([]string(nil), rep.Scrape.Missing...)
		sort.Strings(missing)
		b.WriteString(fmt.Sprintf("⚠️ Fehlende Quellen: %s\n", html.EscapeString(strings.Join(missing, ", "))))
	}
	for _, f := range rep.Failed {
		b.WriteString(fmt.Sprintf("⚠️ Cluster %s fehlgeschlagen nach %d Versuchen\n", html.EscapeString(f.ClusterID), len(f.Attempts)))
	}

	if rep.Media != nil {
		b.WriteString(fmt.Sprintf("🎬 Videos: %d", len(rep.Media.Clusters)))
		if n := len(rep.Media.Failed); n > 0 {
			b.WriteString(fmt.Sprintf(" (%d fehlgeschlagen)", n))
		}
		b.WriteString("\n")
	}
	if rep.VideoID != "" {
		b.WriteString(fmt.Sprintf("▶️ https://youtu.be/%s\n", rep.VideoID))
	}

	b.WriteString(fmt.Sprintf("⏱ %s", rep.Duration.Round(time.Second)))
	return b.String()
}

func rejected(rep RunReport) int {
	n := 0
	for _, r := range rep.Scrape.Rejected {
		n += r
	}
	return n
}
