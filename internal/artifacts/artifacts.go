// Package artifacts writes the per-run, per-cluster working directory:
// <root>/<run>/<clusterID>/{input.txt,script.json,tags.json,cluster.json,audio.mp3,...}.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunName is the directory name of a run started at t.
func RunName(t time.Time) string {
	return t.Format("2006-01-02T15")
}

// Writer owns one run directory. Different clusters write to different
// subdirectories; mu guards the current directory and its creation.
type Writer struct {
	root string
	dir  string
	mu   sync.Mutex
}

func NewWriter(root, run string) *Writer {
	return &Writer{root: root, dir: filepath.Join(root, run)}
}

// Rotate points the writer at a new run below the same root.
func (w *Writer) Rotate(run string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dir = filepath.Join(w.root, run)
}

// RunDir is the directory shared by all clusters of the run.
func (w *Writer) RunDir() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return w.dir, nil
}

// ClusterDir creates and returns the directory of one cluster.
func (w *Writer) ClusterDir(clusterID string) (string, error) {
	if clusterID == "" {
		return "", fmt.Errorf("empty cluster id")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	dir := filepath.Join(w.dir, clusterID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cluster dir: %w", err)
	}
	return dir, nil
}

// Save writes v below the cluster directory. Strings and byte slices are written
// verbatim, everything else as indented JSON.
func (w *Writer) Save(clusterID, name string, v any) error {
	dir, err := w.ClusterDir(clusterID)
	if err != nil {
		return err
	}
	return write(dir, name, v)
}

// SaveRun writes v into the run directory.
func (w *Writer) SaveRun(name string, v any) error {
	dir, err := w.RunDir()
	if err != nil {
		return err
	}
	return write(dir, name, v)
}

func write(dir, name string, v any) error {
	var (
		data []byte
		err  error
	)
	switch x := v.(type) {
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		data, err = json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
	}

	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

// Load decodes a JSON artifact written by Save.
func (w *Writer) Load(clusterID, name string, v any) error {
	w.mu.Lock()
	path := filepath.Join(w.dir, clusterID, name)
	w.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
