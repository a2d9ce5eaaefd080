package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, RunName(time.Date(2024, 5, 3, 14, 5, 0, 0, time.UTC)))

	if err := w.Save("c1", "input.txt", "TITEL: x"); err != nil {
		t.Fatalf("save text: %v", err)
	}
	if err := w.Save("c1", "tags.json", []string{"Bern", "Feuer"}); err != nil {
		t.Fatalf("save json: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, "2024-05-03T14", "c1", "input.txt"))
	if err != nil || string(raw) != "TITEL: x" {
		t.Fatalf("input.txt = %q, %v", raw, err)
	}

	var tags []string
	if err := w.Load("c1", "tags.json", &tags); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tags) != 2 || tags[0] != "Bern" {
		t.Errorf("tags = %v", tags)
	}

	w.Rotate("2024-05-04T08")
	dir, err := w.ClusterDir("c2")
	if err != nil || dir != filepath.Join(root, "2024-05-04T08", "c2") {
		t.Errorf("rotated dir = %q, %v", dir, err)
	}

	if _, err := w.ClusterDir(""); err == nil {
		t.Error("empty cluster id accepted")
	}
}
