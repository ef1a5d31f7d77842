// Package ytdlp downloads remote sources with the yt-dlp executable.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/hlshorts/internal/logging"
)

// DefaultFormat caps video at 1080p and prefers streams that are already MP4.
const DefaultFormat = "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// ErrNoOutput is returned when yt-dlp exits cleanly without leaving a file.
var ErrNoOutput = errors.New("yt-dlp finished but no file was downloaded")

const (
	rawName        = "source_raw"
	versionTimeout = 5 * time.Second
)

// Options are the yt-dlp flags the adapter controls.
type Options struct {
	Format     string
	NoConfig   bool // ignore user yt-dlp config files
	NoWarnings bool
	NoProgress bool
	NoUpdate   bool
}

func DefaultOptions() Options {
	return Options{
		Format:     DefaultFormat,
		NoConfig:   true,
		NoWarnings: true,
		NoProgress: true,
		NoUpdate:   true,
	}
}

// BuildArgs returns the arguments for downloading url to the output
// template outTmpl.
func (o Options) BuildArgs(url, outTmpl string) []string {
	args := make([]string, 0, 12)
	if o.NoConfig {
		args = append(args, "--no-config")
	}
	if o.NoWarnings {
		args = append(args, "--no-warnings")
	}
	if o.NoProgress {
		args = append(args, "--no-progress")
	}
	if o.NoUpdate {
		args = append(args, "--no-update")
	}
	format := strings.TrimSpace(o.Format)
	if format == "" {
		format = DefaultFormat
	}
	args = append(args, "--no-playlist", "-f", format, "-o", outTmpl, "--", url)
	return args
}

type Adapter struct {
	// cmd is the executable followed by any fixed leading arguments.
	cmd  []string
	opts Options
	log  *slog.Logger
}

func New(bin string, opts Options, log *slog.Logger) *Adapter {
	if strings.TrimSpace(bin) == "" {
		bin = "yt-dlp"
	}
	return &Adapter{cmd: []string{bin}, opts: opts, log: logging.OrNop(log)}
}

// CheckBinary reports whether the executable can be found and is a file.
func (a *Adapter) CheckBinary() error {
	path, err := exec.LookPath(a.cmd[0])
	if err != nil {
		return fmt.Errorf("yt-dlp not found (%s): %w", a.cmd[0], err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("yt-dlp not found (%s): %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("yt-dlp path %s is a directory", path)
	}
	return nil
}

func (a *Adapter) Version(ctx context.Context) (string, error) {
	out, err := a.command(ctx, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp --version: %w, output: %s", err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

func (a *Adapter) Download(ctx context.Context, url, dir string) (string, error) {
	if err := a.CheckBinary(); err != nil {
		return "", err
	}
	vctx, cancel := context.WithTimeout(ctx, versionTimeout)
	version, err := a.Version(vctx)
	cancel()
	if err != nil {
		a.log.Warn("yt-dlp version unknown", "error", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := removeRaw(dir); err != nil {
		return "", err
	}

	start := time.Now()
	a.log.Info("downloading source", "url", url, "yt_dlp", version)
	tmpl := filepath.Join(dir, rawName+".%(ext)s")
	out, err := a.command(ctx, a.opts.BuildArgs(url, tmpl)...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp download: %w\n%s", err, string(out))
	}
	path, err := findDownloaded(dir)
	if err != nil {
		return "", err
	}
	a.log.Info("download finished", "file", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return path, nil
}

func (a *Adapter) command(ctx context.Context, args ...string) *exec.Cmd {
	full := append(append([]string(nil), a.cmd[1:]...), args...)
	return exec.CommandContext(ctx, a.cmd[0], full...)
}

// findDownloaded returns the merged output file, skipping partial downloads
// and per-format intermediates like source_raw.f137.mp4.
func findDownloaded(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, rawName+".*"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".part", ".ytdl", ".temp":
			continue
		}
		if strings.Count(filepath.Base(m), ".") != 1 {
			continue
		}
		return m, nil
	}
	return "", ErrNoOutput
}

// removeRaw clears files left by an interrupted download.
func removeRaw(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, rawName+".*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
