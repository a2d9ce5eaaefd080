package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/logger"
)

// Runner executes an external program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(msg))
	}
	return stdout.Bytes(), nil
}

type RenderOptions struct {
	FFmpegPath  string
	FFprobePath string
	FPS         int
	IntroPath   string
	FallbackImg string
	Width       int
	Height      int
}

// Renderer builds cluster videos, thumbnails and the final compilation with ffmpeg.
type Renderer struct {
	opts   RenderOptions
	runner Runner
	client *http.Client
	log    *slog.Logger

	// finalMu serializes RenderFinal; cluster videos render in parallel.
	finalMu sync.Mutex
}

func NewRenderer(opts RenderOptions, runner Runner) *Renderer {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = filepath.Join(filepath.Dir(opts.FFmpegPath), "ffprobe")
		if !strings.ContainsRune(opts.FFmpegPath, os.PathSeparator) {
			opts.FFprobePath = "ffprobe"
		}
	}
	if opts.FPS <= 0 {
		opts.FPS = 24
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Renderer{
		opts:   opts,
		runner: runner,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    logger.Component("media"),
	}
}

// DownloadImages stores the cluster images in dir. Images that fail to download are
// skipped; with none left the fallback image is used.
func (r *Renderer) DownloadImages(ctx context.Context, images []domain.ImageRef, dir string) ([]string, error) {
	var paths []string
	for i, img := range images {
		path := filepath.Join(dir, fmt.Sprintf("image_%02d%s", i, imageExt(img.URL)))
		if err := r.download(ctx, img.URL, path); err != nil {
			r.log.Warn("image download failed", "url", img.URL, "error", err)
			continue
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		if r.opts.FallbackImg == "" {
			return nil, fmt.Errorf("no image could be downloaded and no fallback image is configured")
		}
		paths = append(paths, r.opts.FallbackImg)
	}
	return paths, nil
}

func (r *Renderer) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func imageExt(url string) string {
	ext := strings.ToLower(filepath.Ext(strings.SplitN(url, "?", 2)[0]))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return ext
	}
	return ".jpg"
}

// AudioDuration asks ffprobe for the length of an audio file.
func (r *Renderer) AudioDuration(ctx context.Context, audioPath string) (time.Duration, error) {
	out, err := r.runner.Run(ctx, r.opts.FFprobePath,
		"-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", audioPath)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", out, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// RenderVideo shows every image for an equal share of the narration.
func (r *Renderer) RenderVideo(ctx context.Context, images []string, audioPath, outDir string) (string, error) {
	if len(images) == 0 {
		return "", fmt.Errorf("render video: no images")
	}
	duration, err := r.AudioDuration(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("render video: %w", err)
	}
	perImage := duration.Seconds() / float64(len(images))

	var list strings.Builder
	for _, img := range images {
		fmt.Fprintf(&list, "file '%s'\nduration %.3f\n", escapeConcat(absPath(img)), perImage)
	}
	// the concat demuxer ignores the duration of the last entry unless it is repeated
	fmt.Fprintf(&list, "file '%s'\n", escapeConcat(absPath(images[len(images)-1])))

	listPath := filepath.Join(outDir, "images.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", err
	}

	out := filepath.Join(outDir, "video.mp4")
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p",
		r.opts.Width, r.opts.Height, r.opts.Width, r.opts.Height)
	_, err = r.runner.Run(ctx, r.opts.FFmpegPath, "-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-i", audioPath,
		"-vf", scale, "-r", strconv.Itoa(r.opts.FPS),
		"-c:v", "libx264", "-c:a", "aac", "-shortest",
		out)
	if err != nil {
		return "", fmt.Errorf("render video: %w", err)
	}
	return out, nil
}

// RenderThumbnail draws the title over the first image.
func (r *Renderer) RenderThumbnail(ctx context.Context, image, title, outDir string) (string, error) {
	titlePath := filepath.Join(outDir, "thumbnail_title.txt")
	if err := os.WriteFile(titlePath, []byte(wrapTitle(title, 28)), 0o644); err != nil {
		return "", err
	}

	out := filepath.Join(outDir, "thumbnail.jpg")
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
		"drawtext=textfile='%s':fontcolor=white:fontsize=72:line_spacing=12:"+
		"box=1:boxcolor=black@0.55:boxborderw=24:x=(w-text_w)/2:y=h-text_h-80",
		r.opts.Width, r.opts.Height, r.opts.Width, r.opts.Height, escapeFilter(absPath(titlePath)))
	_, err := r.runner.Run(ctx, r.opts.FFmpegPath, "-y", "-i", image, "-vf", filter, "-frames:v", "1", out)
	if err != nil {
		return "", fmt.Errorf("render thumbnail: %w", err)
	}
	return out, nil
}

// RenderFinal joins the intro and all cluster videos. Only one final render runs at a time.
func (r *Renderer) RenderFinal(ctx context.Context, videos []string, outPath string) (string, error) {
	if len(videos) == 0 {
		return "", fmt.Errorf("render final: no videos")
	}

	r.finalMu.Lock()
	defer r.finalMu.Unlock()

	parts := videos
	if r.opts.IntroPath != "" {
		parts = append([]string{r.opts.IntroPath}, videos...)
	}

	var list strings.Builder
	for _, v := range parts {
		fmt.Fprintf(&list, "file '%s'\n", escapeConcat(absPath(v)))
	}
	listPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + "_parts.txt"
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", err
	}

	// re-encode: intro and cluster videos may differ in codec parameters
	_, err := r.runner.Run(ctx, r.opts.FFmpegPath, "-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-r", strconv.Itoa(r.opts.FPS), "-c:v", "libx264", "-c:a", "aac",
		outPath)
	if err != nil {
		return "", fmt.Errorf("render final: %w", err)
	}
	r.log.Info("final video rendered", "path", outPath, "parts", len(parts))
	return outPath, nil
}

func wrapTitle(title string, width int) string {
	var lines []string
	var line string
	for _, w := range strings.Fields(title) {
		if line != "" && len([]rune(line))+1+len([]rune(w)) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		if line != "" {
			line += " "
		}
		line += w
	}
	if line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func escapeConcat(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

func escapeFilter(p string) string {
	return strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`).Replace(p)
}
