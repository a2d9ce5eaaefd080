package main

import (
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	now := time.Date(2024, 5, 3, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
		err   bool
	}{
		{"", now, false},
		{"2024-04-30", time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), false},
		{"30.04.2024", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := parseDay(tt.input, now)
		if tt.err {
			if err == nil {
				t.Errorf("parseDay(%q): expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDay(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDay(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"run": true, "scrape": true, "cluster": true, "generate": true, "serve": true, "stats": true, "version": true}
	for _, c := range rootCmd.Commands() {
		delete(want, c.Name())
	}
	if len(want) > 0 {
		t.Errorf("missing commands: %v", want)
	}
}
