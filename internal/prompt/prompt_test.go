package prompt

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestFormatCitation(t *testing.T) {
	got := FormatCitation(" Brand in Bern ", "Blick", time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC), "Ein Haus brannte.")
	for _, want := range []string{"TITEL: Brand in Bern\n", "ZEITUNG: Blick\n", "DATE: 2024-05-03\n", "ZUSAMMENFASSUNG: Ein Haus brannte.\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("citation %q misses %q", got, want)
		}
	}
}

func TestParseTags(t *testing.T) {
	got := ParseTags("Bern, #Feuer,\n bern ,,Polizei,")
	want := []string{"Bern", "Feuer", "Polizei"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTags = %v, want %v", got, want)
	}
	if tags := ParseTags("  "); tags != nil {
		t.Errorf("blank answer gave %v", tags)
	}
}
