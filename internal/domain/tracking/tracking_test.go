package tracking

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

type fakeFrames struct {
	frames  int
	openErr error
	readErr error
	opened  int
	closed  int
}

func (f *fakeFrames) OpenFrames(_ context.Context, _ string, info types.VideoInfo, _, _ float64) (ports.FrameStream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeStream{parent: f, width: info.Width, height: info.Height}, nil
}

type fakeStream struct {
	parent *fakeFrames
	width  int
	height int
	next   int
}

func (s *fakeStream) Next() (types.Frame, error) {
	if s.parent.readErr != nil {
		return types.Frame{}, s.parent.readErr
	}
	if s.next >= s.parent.frames {
		return types.Frame{}, io.EOF
	}
	f := types.Frame{Index: s.next, Width: s.width, Height: s.height}
	s.next++
	return f, nil
}

func (s *fakeStream) Close() error {
	s.parent.closed++
	return nil
}

// fakeDetectors reports a subject at byFrame[i] (source pixels) on frame i.
type fakeDetectors struct {
	width   int
	byFrame map[int]float64
	openErr error
	failAt  int
	calls   []int
	closed  int
}

func (f *fakeDetectors) OpenDetector(context.Context) (ports.Detector, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f, nil
}

func (f *fakeDetectors) Detect(frame types.Frame) ([]types.Detection, error) {
	f.calls = append(f.calls, frame.Index)
	if f.failAt > 0 && frame.Index == f.failAt {
		return nil, errors.New("detector crashed")
	}
	x, ok := f.byFrame[frame.Index]
	if !ok {
		return nil, nil
	}
	rel := x / float64(f.width)
	return []types.Detection{
		{Box: types.RelBox{XMin: 0.9, Width: 0.05}, Confidence: 0.2},
		{Box: types.RelBox{XMin: rel - 0.05, Width: 0.1}, Confidence: 0.9},
	}, nil
}

func (f *fakeDetectors) Close() error {
	f.closed++
	return nil
}

// tenFrames covers exactly ten frames at 10 fps.
var tenFrames = types.VideoInfo{Width: 1000, Height: 500, FPS: 10}

func TestTrack_SmoothsTowardObservations(t *testing.T) {
	frames := &fakeFrames{frames: 10}
	dets := &fakeDetectors{width: 1000, byFrame: map[int]float64{3: 200, 7: 800}}
	tr := New(frames, dets, Config{}, nil)

	trace := tr.Track(context.Background(), "in.mp4", tenFrames, 0, 1, 400)
	if trace.Outcome != types.OutcomeOK {
		t.Fatalf("expected ok outcome, got %s (%v)", trace.Outcome, trace.Reason)
	}
	if len(trace.Samples) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(trace.Samples))
	}

	want := []float64{500, 500, 500, 470, 470, 470, 470, 503, 503, 503}
	for i, s := range trace.Samples {
		if math.Abs(s.CenterX-want[i]) > 1e-9 {
			t.Fatalf("frame %d: expected %v, got %v", i, want[i], s.CenterX)
		}
		if s.CenterX < 200 || s.CenterX > 600 {
			t.Fatalf("frame %d: center %v outside [200, 600]", i, s.CenterX)
		}
		if i > 0 && math.Abs(s.CenterX-trace.Samples[i-1].CenterX) > DefaultSmoothingFactor*1000 {
			t.Fatalf("frame %d: discontinuous jump", i)
		}
	}
	if !trace.Samples[3].Detected || math.Abs(trace.Samples[3].ObservedX-200) > 1e-9 {
		t.Fatalf("expected raw observation on frame 3, got %+v", trace.Samples[3])
	}
	if frames.closed != 1 || dets.closed != 1 {
		t.Fatalf("expected stream and detector closed once, got %d and %d", frames.closed, dets.closed)
	}
}

func TestTrack_NoDetectionsStaysCentered(t *testing.T) {
	tr := New(&fakeFrames{frames: 10}, &fakeDetectors{width: 1000}, Config{}, nil)
	trace := tr.Track(context.Background(), "in.mp4", tenFrames, 0, 1, 400)
	if len(trace.Samples) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(trace.Samples))
	}
	for i, s := range trace.Samples {
		if s.CenterX != 500 || s.Detected {
			t.Fatalf("frame %d: expected undetected center 500, got %+v", i, s)
		}
	}
}

func TestTrack_OpenFailuresFallBackToCenter(t *testing.T) {
	cases := []struct {
		name   string
		frames *fakeFrames
		dets   *fakeDetectors
	}{
		{name: "video", frames: &fakeFrames{openErr: errors.New("no such file")}, dets: &fakeDetectors{width: 1000}},
		{name: "detector", frames: &fakeFrames{frames: 10}, dets: &fakeDetectors{width: 1000, openErr: errors.New("model missing")}},
		{name: "first read", frames: &fakeFrames{readErr: errors.New("corrupt")}, dets: &fakeDetectors{width: 1000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trace := New(tc.frames, tc.dets, Config{}, nil).Track(context.Background(), "in.mp4", tenFrames, 0, 1, 400)
			if trace.Outcome != types.OutcomeFallback || trace.Reason == nil {
				t.Fatalf("expected fallback with reason, got %s (%v)", trace.Outcome, trace.Reason)
			}
			if len(trace.Samples) != 10 {
				t.Fatalf("expected 10 samples, got %d", len(trace.Samples))
			}
			for _, s := range trace.Samples {
				if s.CenterX != 500 {
					t.Fatalf("expected centered trace, got %v", s.CenterX)
				}
			}
			if tc.frames.opened != tc.frames.closed {
				t.Fatalf("stream leaked: opened %d closed %d", tc.frames.opened, tc.frames.closed)
			}
		})
	}
}

func TestTrack_DetectorErrorHoldsPosition(t *testing.T) {
	dets := &fakeDetectors{width: 1000, byFrame: map[int]float64{1: 200, 6: 900}, failAt: 4}
	trace := New(&fakeFrames{frames: 10}, dets, Config{}, nil).Track(context.Background(), "in.mp4", tenFrames, 0, 1, 400)
	if trace.Outcome != types.OutcomePartial {
		t.Fatalf("expected partial outcome, got %s", trace.Outcome)
	}
	if len(dets.calls) != 5 {
		t.Fatalf("expected detector to stop after failing on frame 4, got calls %v", dets.calls)
	}
	held := trace.Samples[4].CenterX
	for _, s := range trace.Samples[4:] {
		if s.CenterX != held {
			t.Fatalf("expected held position %v, got %v", held, s.CenterX)
		}
	}
	if dets.closed != 1 {
		t.Fatalf("expected detector closed once, got %d", dets.closed)
	}
}

func TestTrack_ShortStreamIsPadded(t *testing.T) {
	trace := New(&fakeFrames{frames: 4}, &fakeDetectors{width: 1000}, Config{}, nil).Track(context.Background(), "in.mp4", tenFrames, 0, 1, 400)
	if len(trace.Samples) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(trace.Samples))
	}
	if trace.Outcome != types.OutcomePartial {
		t.Fatalf("expected partial outcome, got %s", trace.Outcome)
	}
}

func TestTrack_SampleStride(t *testing.T) {
	dets := &fakeDetectors{width: 1000}
	New(&fakeFrames{frames: 10}, dets, Config{SampleStride: 3}, nil).Track(context.Background(), "in.mp4", tenFrames, 0, 1, 400)
	want := []int{0, 3, 6, 9}
	if len(dets.calls) != len(want) {
		t.Fatalf("expected detector calls %v, got %v", want, dets.calls)
	}
	for i := range want {
		if dets.calls[i] != want[i] {
			t.Fatalf("expected detector calls %v, got %v", want, dets.calls)
		}
	}
}

func TestTrack_LengthMatchesFrameRange(t *testing.T) {
	info := types.VideoInfo{Width: 1920, Height: 1080, FPS: 29.97}
	tr := New(&fakeFrames{frames: 10000}, &fakeDetectors{width: 1920, byFrame: map[int]float64{5: 1900}}, Config{}, nil)
	for _, span := range [][2]float64{{0, 1}, {12.3, 40.1}, {100, 100.01}} {
		_, want := FrameRange(info.FPS, span[0], span[1])
		trace := tr.Track(context.Background(), "in.mp4", info, span[0], span[1], 607.5)
		if len(trace.Samples) != want {
			t.Fatalf("span %v: expected %d samples, got %d", span, want, len(trace.Samples))
		}
		for _, s := range trace.Samples {
			if s.CenterX < 607.5/2 || s.CenterX > 1920-607.5/2 {
				t.Fatalf("span %v: center %v outside window bounds", span, s.CenterX)
			}
		}
	}
}

func TestFrameRange(t *testing.T) {
	tests := []struct {
		fps, start, end float64
		first, count    int
	}{
		{fps: 10, start: 0, end: 1, first: 0, count: 10},
		{fps: 25, start: 2, end: 4, first: 50, count: 50},
		{fps: 30, start: 5, end: 5, first: 150, count: 1},
		{fps: 0, start: 5, end: 6, first: 0, count: 1},
	}
	for _, tt := range tests {
		first, count := FrameRange(tt.fps, tt.start, tt.end)
		if first != tt.first || count != tt.count {
			t.Fatalf("FrameRange(%v, %v, %v) = %d, %d; want %d, %d", tt.fps, tt.start, tt.end, first, count, tt.first, tt.count)
		}
	}
}

func TestEstimate(t *testing.T) {
	dets := &fakeDetectors{width: 1000, byFrame: map[int]float64{0: 250}}
	trace := New(&fakeFrames{frames: 1}, dets, Config{}, nil).Estimate(context.Background(), "in.mp4", tenFrames, 0.5, 400)
	if trace.Outcome != types.OutcomeOK || len(trace.Samples) != 1 {
		t.Fatalf("unexpected trace: %+v", trace)
	}
	if math.Abs(trace.Samples[0].CenterX-250) > 1e-9 {
		t.Fatalf("expected unsmoothed center 250, got %v", trace.Samples[0].CenterX)
	}

	none := New(&fakeFrames{frames: 1}, &fakeDetectors{width: 1000}, Config{}, nil).Estimate(context.Background(), "in.mp4", tenFrames, 0.5, 400)
	if none.Outcome != types.OutcomeFallback || none.Samples[0].CenterX != 500 {
		t.Fatalf("expected centered fallback, got %+v", none)
	}
}
