package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/newsreel/internal/artifacts"
	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/retry"
)

type fakeTTS struct {
	mu    sync.Mutex
	fails map[string]int // remaining failures per script
}

func (f *fakeTTS) Synthesize(_ context.Context, text, out string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[text] > 0 {
		f.fails[text]--
		return errors.New("tts unavailable")
	}
	return os.WriteFile(out, []byte("mp3"), 0o644)
}

type recordingRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()
	if strings.HasSuffix(name, "ffprobe") {
		return []byte("12.000000\n"), nil
	}
	return nil, nil
}

func TestRendererCommands(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{}
	r := NewRenderer(RenderOptions{FFmpegPath: "ffmpeg", IntroPath: "/media/intro.mp4", FPS: 25}, runner)

	video, err := r.RenderVideo(context.Background(), []string{"/a.jpg", "/b.jpg"}, "/audio.mp3", dir)
	if err != nil {
		t.Fatal(err)
	}
	if video != filepath.Join(dir, "video.mp4") {
		t.Errorf("video = %q", video)
	}
	list, _ := os.ReadFile(filepath.Join(dir, "images.txt"))
	if !strings.Contains(string(list), "duration 6.000") {
		t.Errorf("each image should get half the narration:\n%s", list)
	}

	if _, err := r.RenderFinal(context.Background(), []string{video}, filepath.Join(dir, "final.mp4")); err != nil {
		t.Fatal(err)
	}
	parts, _ := os.ReadFile(filepath.Join(dir, "final_parts.txt"))
	if !strings.HasPrefix(string(parts), "file '/media/intro.mp4'") {
		t.Errorf("intro must come first:\n%s", parts)
	}

	if len(runner.calls) != 3 || runner.calls[0][0] != "ffprobe" {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestDownloadImagesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			fmt.Fprint(w, "png")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := NewRenderer(RenderOptions{FallbackImg: "/media/fallback.jpg"}, &recordingRunner{})

	paths, err := r.DownloadImages(context.Background(), []domain.ImageRef{{URL: srv.URL + "/missing.jpg"}, {URL: srv.URL + "/ok.png"}}, dir)
	if err != nil || len(paths) != 1 || filepath.Ext(paths[0]) != ".png" {
		t.Fatalf("paths = %v, %v", paths, err)
	}

	paths, err = r.DownloadImages(context.Background(), []domain.ImageRef{{URL: srv.URL + "/missing.jpg"}}, dir)
	if err != nil || len(paths) != 1 || paths[0] != "/media/fallback.jpg" {
		t.Errorf("fallback = %v, %v", paths, err)
	}
}

func TestAssembleIsolatesFailures(t *testing.T) {
	ws := artifacts.NewWriter(t.TempDir(), "run")
	tts := &fakeTTS{fails: map[string]int{"retry me": 1, "always broken": 10}}
	r := NewRenderer(RenderOptions{FallbackImg: "/media/fallback.jpg"}, &recordingRunner{})
	a := NewAssembler(tts, r, ws, AssemblerOptions{Concurrency: 2, TTSRetry: retry.Fixed(2, time.Millisecond)})

	ok := &domain.Cluster{ID: "ok", Status: domain.ClusterGenerated}
	items := []Item{
		{Cluster: ok, Result: domain.ScriptResult{ClusterID: "ok", Script: "retry me", Title: "Brand"}},
		{Result: domain.ScriptResult{ClusterID: "bad", Script: "always broken"}},
		{Result: domain.ScriptResult{ClusterID: "empty"}},
	}

	out, err := a.Assemble(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Clusters) != 1 || out.Clusters[0].ClusterID != "ok" {
		t.Errorf("assembled = %+v", out.Clusters)
	}
	if len(out.Failed) != 2 || out.Failed[0].ClusterID != "bad" || out.Failed[1].ClusterID != "empty" {
		t.Errorf("failed = %+v", out.Failed)
	}
	if ok.Status != domain.ClusterRendered {
		t.Errorf("status = %s", ok.Status)
	}
	if !strings.HasSuffix(out.Final, "final.mp4") {
		t.Errorf("final = %q", out.Final)
	}
}

func TestAssembleNothingRendered(t *testing.T) {
	ws := artifacts.NewWriter(t.TempDir(), "run")
	a := NewAssembler(&fakeTTS{}, NewRenderer(RenderOptions{}, &recordingRunner{}), ws, AssemblerOptions{})
	if _, err := a.Assemble(context.Background(), []Item{{Result: domain.ScriptResult{ClusterID: "x"}}}); err == nil {
		t.Error("want error when no cluster rendered")
	}
}

func TestSplitText(t *testing.T) {
	text := strings.Repeat("Ein Satz über das Wetter. ", 40)
	chunks := splitText(text, 200)
	for _, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk of %d bytes", len(c))
		}
		if !strings.HasSuffix(c, ".") {
			t.Errorf("chunk not cut at a sentence: %q", c)
		}
	}
	if strings.Join(chunks, " ") != strings.TrimSpace(text) {
		t.Error("text lost while splitting")
	}
}

func TestWrapTitle(t *testing.T) {
	got := wrapTitle("Grossbrand zerstört Scheune in Bern", 15)
	if got != "Grossbrand\nzerstört\nScheune in Bern" {
		t.Errorf("got %q", got)
	}
}
