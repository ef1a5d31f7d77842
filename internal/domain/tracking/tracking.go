// Package tracking follows the horizontal position of the main subject
// across the frames of a segment.
//
// The tracker never fails: when the video or the detector is unavailable it
// returns a centered trace and records why in the trace outcome.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

// DefaultSmoothingFactor favors a steady camera over fast reaction.
const DefaultSmoothingFactor = 0.1

type Config struct {
	SmoothingFactor float64
	// SampleStride runs the detector on every Nth frame only.
	SampleStride int
}

type Tracker struct {
	frames    ports.FrameSource
	detectors ports.DetectorFactory
	cfg       Config
	log       *slog.Logger
}

func New(frames ports.FrameSource, detectors ports.DetectorFactory, cfg Config, log *slog.Logger) *Tracker {
	if cfg.SmoothingFactor <= 0 || cfg.SmoothingFactor > 1 {
		cfg.SmoothingFactor = DefaultSmoothingFactor
	}
	if cfg.SampleStride <= 0 {
		cfg.SampleStride = 1
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Tracker{frames: frames, detectors: detectors, cfg: cfg, log: log.With("component", "tracker")}
}

// FrameRange returns the first frame index and the number of frames covering
// [start, end) at fps. The count is at least one.
func FrameRange(fps, start, end float64) (first, count int) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, 1
	}
	first = int(math.Round(start * fps))
	last := int(math.Round(end * fps))
	count = last - first
	if count < 1 {
		count = 1
	}
	return first, count
}

// Track scans [start, end) of the video and returns one sample per frame.
// window is the crop width in source pixels; every center keeps the window
// inside the frame.
func (t *Tracker) Track(ctx context.Context, path string, info types.VideoInfo, start, end, window float64) types.Trace {
	first, n := FrameRange(info.FPS, start, end)
	b := newBounds(info.Width, window)
	log := t.log.With("start", start, "end", end, "frames", n)

	if info.FPS <= 0 || info.Width <= 0 {
		err := fmt.Errorf("unusable video info %dx%d@%.3f", info.Width, info.Height, info.FPS)
		log.Warn("tracking skipped", "error", err)
		return centered(first, n, b, err)
	}

	stream, err := t.frames.OpenFrames(ctx, path, info, start, end)
	if err != nil {
		log.Warn("open frames failed, using centered crop", "error", err)
		return centered(first, n, b, err)
	}
	defer stream.Close()

	det, err := t.detectors.OpenDetector(ctx)
	if err != nil {
		log.Warn("open detector failed, using centered crop", "error", err)
		return centered(first, n, b, err)
	}
	defer det.Close()

	trace := types.Trace{Samples: make([]types.FrameSample, 0, n), Outcome: types.OutcomeOK}
	smoothed := b.mid
	streaming, detecting := true, true
	detected := 0
	for i := 0; i < n; i++ {
		s := types.FrameSample{Index: first + i}
		if streaming {
			frame, err := stream.Next()
			switch {
			case err != nil && i == 0:
				log.Warn("read frames failed, using centered crop", "error", err)
				return centered(first, n, b, err)
			case err != nil:
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf("stream ended after %d of %d frames", i, n)
				}
				log.Warn("frame stream stopped early, holding last position", "error", err)
				trace.Outcome, trace.Reason = types.OutcomePartial, err
				streaming = false
			case detecting && i%t.cfg.SampleStride == 0:
				dets, err := det.Detect(frame)
				if err != nil {
					log.Warn("detector failed, holding last position", "frame", s.Index, "error", err)
					trace.Outcome, trace.Reason = types.OutcomePartial, err
					detecting = false
					break
				}
				if d, ok := strongest(dets); ok {
					s.Detected = true
					s.ObservedX = d.Box.CenterX(info.Width)
					smoothed += t.cfg.SmoothingFactor * (s.ObservedX - smoothed)
					detected++
				}
			}
		}
		smoothed = b.clamp(smoothed)
		s.CenterX = smoothed
		trace.Samples = append(trace.Samples, s)
	}

	log.Debug("tracking done", "detected", detected, "outcome", trace.Outcome.String())
	return trace
}

// Estimate detects the subject on the single frame at time `at` and returns
// a one-sample trace holding that position unsmoothed.
func (t *Tracker) Estimate(ctx context.Context, path string, info types.VideoInfo, at, window float64) types.Trace {
	first, _ := FrameRange(info.FPS, at, at)
	b := newBounds(info.Width, window)
	if info.FPS <= 0 || info.Width <= 0 {
		return centered(first, 1, b, fmt.Errorf("unusable video info %dx%d@%.3f", info.Width, info.Height, info.FPS))
	}

	stream, err := t.frames.OpenFrames(ctx, path, info, at, at+1/info.FPS)
	if err != nil {
		t.log.Warn("open frames failed, using centered crop", "at", at, "error", err)
		return centered(first, 1, b, err)
	}
	defer stream.Close()

	det, err := t.detectors.OpenDetector(ctx)
	if err != nil {
		t.log.Warn("open detector failed, using centered crop", "at", at, "error", err)
		return centered(first, 1, b, err)
	}
	defer det.Close()

	frame, err := stream.Next()
	if err != nil {
		return centered(first, 1, b, err)
	}
	dets, err := det.Detect(frame)
	if err != nil {
		return centered(first, 1, b, err)
	}
	d, ok := strongest(dets)
	if !ok {
		return centered(first, 1, b, errNoSubject)
	}
	x := d.Box.CenterX(info.Width)
	return types.Trace{
		Samples: []types.FrameSample{{Index: first, Detected: true, ObservedX: x, CenterX: b.clamp(x)}},
		Outcome: types.OutcomeOK,
	}
}

var errNoSubject = errors.New("no subject detected")

func strongest(dets []types.Detection) (types.Detection, bool) {
	best, ok := types.Detection{}, false
	for _, d := range dets {
		c := d.Box.CenterX(1)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		if !ok || d.Confidence > best.Confidence {
			best, ok = d, true
		}
	}
	return best, ok
}

func centered(first, n int, b bounds, reason error) types.Trace {
	samples := make([]types.FrameSample, n)
	for i := range samples {
		samples[i] = types.FrameSample{Index: first + i, CenterX: b.mid}
	}
	return types.Trace{Samples: samples, Outcome: types.OutcomeFallback, Reason: reason}
}

type bounds struct {
	lo, hi, mid float64
}

func newBounds(width int, window float64) bounds {
	w := float64(width)
	b := bounds{lo: window / 2, hi: w - window/2, mid: w / 2}
	if b.lo > b.hi {
		b.lo, b.hi = b.mid, b.mid
	}
	return b
}

func (b bounds) clamp(x float64) float64 {
	return math.Min(math.Max(x, b.lo), b.hi)
}
