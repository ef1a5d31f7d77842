// Package ffmpeg implements the video ports on top of the ffmpeg and ffprobe
// executables.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/hlshorts/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	// analysisWidth is the width frames are scaled to for detection; zero
	// keeps the source width.
	analysisWidth int
}

func New(ffmpegPath, ffprobePath string, analysisWidth int) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, analysisWidth: analysisWidth}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inMP4,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) RenderClip(ctx context.Context, req ports.RenderRequest) error {
	graph, err := filterGraph(req)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, renderArgs(req, graph)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render clip: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) Standardize(ctx context.Context, in, out string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, standardizeArgs(in, out)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg standardize: %w\n%s", err, string(b))
	}
	return nil
}

func standardizeArgs(in, out string) []string {
	return []string{
		"-y",
		"-i", in,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		out,
	}
}

func renderArgs(req ports.RenderRequest, graph string) []string {
	return []string{
		"-y",
		"-ss", fmtSeconds(req.Start),
		"-to", fmtSeconds(req.End),
		"-i", req.Input,
		"-filter_complex", graph,
		"-map", "[outv]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		req.Output,
	}
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// escapeFilterPath escapes a path for use as a filter option value inside a
// filtergraph.
func escapeFilterPath(p string) string {
	return strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`,`, `\,`,
		`;`, `\;`,
		`[`, `\[`,
		`]`, `\]`,
	).Replace(p)
}
