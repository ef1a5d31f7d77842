package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forPelevin/hlshorts/internal/types"
)

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	Duration     string `json:"duration"`
}

// Probe reads the first video stream's geometry, frame rate and duration.
func (a *Adapter) Probe(ctx context.Context, path string) (types.VideoInfo, error) {
	if strings.TrimSpace(path) == "" {
		return types.VideoInfo{}, errors.New("ffprobe: empty path")
	}
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return types.VideoInfo{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return types.VideoInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (types.VideoInfo, error) {
	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return types.VideoInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	for _, s := range res.Streams {
		if !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		fps := parseRate(s.AvgFrameRate)
		if fps <= 0 {
			fps = parseRate(s.RFrameRate)
		}
		dur := parseFloat(res.Format.Duration)
		if dur <= 0 {
			dur = parseFloat(s.Duration)
		}
		if s.Width <= 0 || s.Height <= 0 {
			return types.VideoInfo{}, fmt.Errorf("ffprobe: video stream has no size (%dx%d)", s.Width, s.Height)
		}
		return types.VideoInfo{Width: s.Width, Height: s.Height, FPS: fps, Duration: dur}, nil
	}
	return types.VideoInfo{}, errors.New("ffprobe: no video stream")
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseFloat(num)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
