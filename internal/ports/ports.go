package ports

import (
	"context"
	"time"

	"github.com/forPelevin/hlshorts/internal/types"
)

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error
	Probe(ctx context.Context, path string) (types.VideoInfo, error)
	RenderClip(ctx context.Context, req RenderRequest) error
	// Standardize re-encodes in to an H.264/AAC MP4 at out.
	Standardize(ctx context.Context, in, out string) error
}

type RenderRequest struct {
	Input  string
	Output string
	Start  time.Duration
	End    time.Duration
	Layout types.Layout
	Plan   types.CropPlan
	// BurnASS is the subtitle file to burn in; empty disables subtitles.
	BurnASS  string
	FontsDir string
}

// FrameSource decodes the frames of [start, end) in presentation order.
type FrameSource interface {
	OpenFrames(ctx context.Context, path string, info types.VideoInfo, start, end float64) (FrameStream, error)
}

type FrameStream interface {
	// Next returns io.EOF after the last frame.
	Next() (types.Frame, error)
	Close() error
}

type DetectorFactory interface {
	OpenDetector(ctx context.Context) (Detector, error)
}

// Detector finds subjects in a single frame. Implementations hold external
// resources and must be closed.
type Detector interface {
	Detect(frame types.Frame) ([]types.Detection, error)
	Close() error
}

// Downloader fetches a remote source into dir and returns the path of the
// downloaded file. The container and codecs are whatever the site serves.
type Downloader interface {
	Download(ctx context.Context, url, dir string) (string, error)
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// Annotator writes publishing metadata for segments. The result has one
// entry per input segment.
type Annotator interface {
	Annotate(ctx context.Context, segs []types.Segment) ([]types.ClipMeta, error)
}

type ProgressStore interface {
	Put(ctx context.Context, p types.Progress) error
	Get(ctx context.Context, jobID string) (types.Progress, error)
	List(ctx context.Context, limit int) ([]types.Progress, error)
}
