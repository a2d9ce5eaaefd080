package textnorm

import (
	"strings"
	"testing"
)

const body = `# Bundesrat beschliesst neue Regeln

![Der Bundesrat in Bern](https://img.example.ch/bundesrat.jpg)

Der Bundesrat hat am Mittwoch   neue Regeln für E-Bikes beschlossen.


Die Änderung gilt ab 2025 – sagt die Sprecherin@Bern.
Mehr zum Thema: Newsletter abonnieren
![Velo](https://img.example.ch/velo.png "Velo")`

func TestNormalize(t *testing.T) {
	got := Normalize(body)

	if strings.Contains(got, "![") || strings.Contains(got, "img.example") {
		t.Errorf("image lines survived: %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Errorf("double spaces survived: %q", got)
	}
	if strings.Contains(got, "\n\n") {
		t.Errorf("blank lines survived: %q", got)
	}
	if strings.ContainsAny(got, "–@") {
		t.Errorf("disallowed characters survived: %q", got)
	}
	if !strings.Contains(got, "Die Änderung gilt ab 2025") {
		t.Errorf("accented letters or digits lost: %q", got)
	}
	if !strings.HasPrefix(got, "# Bundesrat") {
		t.Errorf("heading marker should be kept: %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		body,
		"",
		"  \n\n  ",
		"a!x[b] !\u00a0[c]",
		"Tab\tseparated\r\nwindows lines",
		"Zürich: 3 Verletzte (Polizei) {live} #news \"Zitat\"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once=%q\ntwice=%q", in, once, twice)
		}
	}
}

func TestCustomAccents(t *testing.T) {
	n := New("ñ")
	if got := n.Normalize("año über"); got != "año ber" {
		t.Errorf("got %q", got)
	}
}

func TestMediumCleanupKeepsPunctuation(t *testing.T) {
	got := MediumCleanup(body)
	if strings.Contains(got, "![") {
		t.Errorf("image survived: %q", got)
	}
	if !strings.Contains(got, "–") {
		t.Errorf("medium cleanup must not strip characters: %q", got)
	}
	for _, line := range strings.Split(got, "\n") {
		if strings.TrimSpace(line) == "" {
			t.Errorf("empty line survived in %q", got)
		}
	}
}

func TestRemoveStopWords(t *testing.T) {
	got := RemoveStopWords("Der Zug nach Bern fährt in die Stadt", DefaultStopWords)
	if got != "Zug Bern fährt Stadt" {
		t.Errorf("got %q", got)
	}
}

func TestStripBoilerplate(t *testing.T) {
	got := StripBoilerplate("Text\nJetzt NEWSLETTER abonnieren\nMehr", []string{"newsletter"})
	if got != "Text\nMehr" {
		t.Errorf("got %q", got)
	}
}

func TestExtractImages(t *testing.T) {
	refs := ExtractImages(body)
	if len(refs) != 2 {
		t.Fatalf("want 2 refs, got %+v", refs)
	}
	if refs[0].Alt != "Der Bundesrat in Bern" || refs[0].URL != "https://img.example.ch/bundesrat.jpg" {
		t.Errorf("first ref = %+v", refs[0])
	}
	if refs[1].URL != "https://img.example.ch/velo.png" {
		t.Errorf("title attribute leaked into url: %+v", refs[1])
	}
	if ExtractImages("no images here") != nil {
		t.Error("expected nil for text without images")
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Zürich, 3 Verletzte (Polizei).")
	want := []string{"zürich", "3", "verletzte", "polizei"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %v", got)
	}
}
