// Package usecase runs one job: transcript, segmentation, reframing and
// rendering of every segment.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/hlshorts/internal/domain/clipmeta"
	"github.com/forPelevin/hlshorts/internal/domain/crop"
	"github.com/forPelevin/hlshorts/internal/domain/segmenter"
	"github.com/forPelevin/hlshorts/internal/domain/subtitles"
	"github.com/forPelevin/hlshorts/internal/domain/tracking"
	"github.com/forPelevin/hlshorts/internal/logging"
	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

// ErrNoSegments is returned when the transcript yields no segment and the
// job asked to fail on that.
var ErrNoSegments = errors.New("no segments produced")

// ErrNoDownloader is returned for remote sources when no Downloader is wired.
var ErrNoDownloader = errors.New("remote source but no downloader configured")

type Deps struct {
	Video     ports.VideoTool
	ASR       ports.ASR
	Frames    ports.FrameSource
	Detectors ports.DetectorFactory
	// Downloader is needed only for remote sources.
	Downloader ports.Downloader
	// Annotator and Progress are optional.
	Annotator ports.Annotator
	Progress  ports.ProgressStore
	Log       *slog.Logger
}

type Usecase struct {
	d   Deps
	log *slog.Logger
}

func New(d Deps) Usecase {
	log := logging.OrNop(d.Log)
	return Usecase{d: d, log: log}
}

type Input struct {
	JobID    string
	InputMP4 string
	// SourceURL, when set, is downloaded and standardized to InputMP4 first.
	SourceURL string
	// TranscriptPath skips audio extraction and ASR when set.
	TranscriptPath string
	// AudioDir holds audio.wav and the cached transcript for this input.
	AudioDir string
	OutDir   string

	Segment segmenter.Config
	Layout  types.Layout

	TargetWidth  int
	TargetHeight int
	SkipMargin   int
	Tracking     tracking.Config
	// Estimate samples one frame per segment instead of tracking every frame.
	Estimate bool

	// Subtitles is nil when captions are disabled.
	Subtitles *subtitles.Style
	FontsDir  string

	FailOnEmpty bool
}

type Result struct {
	Manifest types.Manifest
	Segments []types.Segment
}

const (
	segmentsFile       = "segments.json"
	cachedTranscript   = "transcript.json"
	clipsDirName       = "clips"
	subtitlesDirName   = "subtitles"
	progressStageClips = "render"
)

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	log := u.log.With("job_id", in.JobID)

	if in.SourceURL != "" {
		u.report(ctx, in, types.JobRunning, "download", 0, 0, "")
		if err := u.fetch(ctx, in, log); err != nil {
			return Result{}, err
		}
	}

	u.report(ctx, in, types.JobRunning, "transcribe", 0, 0, "")
	tr, err := u.transcript(ctx, in, log)
	if err != nil {
		return Result{}, err
	}

	u.report(ctx, in, types.JobRunning, "segment", 0, 0, "")
	segs, err := segmenter.New(in.Segment, log).SegmentContext(ctx, tr.Words())
	if err != nil {
		return Result{}, err
	}
	if segs == nil {
		segs = []types.Segment{}
	}
	if err := writeJSON(filepath.Join(in.OutDir, segmentsFile), segs); err != nil {
		return Result{}, fmt.Errorf("write segments: %w", err)
	}

	m := types.Manifest{JobID: in.JobID, Input: in.source(), Clips: []types.ManifestClip{}}
	if len(segs) == 0 {
		log.Warn("transcript produced no segments", "min", in.Segment.MinDuration, "max", in.Segment.MaxDuration)
		u.report(ctx, in, types.JobEmpty, "segment", 0, 0, "no segments")
		if in.FailOnEmpty {
			return Result{}, ErrNoSegments
		}
		return Result{Manifest: m, Segments: segs}, nil
	}

	info, err := u.d.Video.Probe(ctx, in.InputMP4)
	if err != nil {
		return Result{}, fmt.Errorf("probe input: %w", err)
	}
	log.Info("probed input", "width", info.Width, "height", info.Height, "fps", info.FPS, "duration", info.Duration)

	metas := u.annotate(ctx, segs, log)
	tracker := tracking.New(u.d.Frames, u.d.Detectors, in.Tracking, log)
	planner := crop.NewPlanner(in.TargetWidth, in.TargetHeight, in.SkipMargin)
	window := float64(info.Width)
	if g, err := crop.NewGeometry(info.Width, info.Height, in.TargetWidth, in.TargetHeight); err == nil {
		window = g.WindowWidth()
	}

	for _, dir := range []string{clipsDirName, subtitlesDirName} {
		if dir == subtitlesDirName && in.Subtitles == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Join(in.OutDir, dir), 0o755); err != nil {
			return Result{}, err
		}
	}

	for i, seg := range segs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		id := fmt.Sprintf("%03d", i+1)
		clog := log.With("segment", id, "start", seg.Start, "end", seg.End)

		clip := types.ManifestClip{
			ID:       id,
			StartSec: seg.Start,
			EndSec:   seg.End,
			Duration: seg.Duration,
			Text:     seg.Text,
			File:     filepath.ToSlash(filepath.Join(clipsDirName, id+".mp4")),
			Title:    metas[i].Title,
			Caption:  metas[i].Caption,
			Tags:     metas[i].Tags,
		}

		plan := types.CropPlan{TargetWidth: in.TargetWidth, TargetHeight: in.TargetHeight, Outcome: types.OutcomeOK}
		if in.Layout == types.LayoutCrop {
			var trace types.Trace
			if in.Estimate {
				trace = tracker.Estimate(ctx, in.InputMP4, info, seg.Start+seg.Duration/2, window)
			} else {
				trace = tracker.Track(ctx, in.InputMP4, info, seg.Start, seg.End, window)
			}
			plan = planner.Plan(info.Width, info.Height, trace.Centers())
			if plan.Outcome != types.OutcomeOK {
				clog.Warn("crop plan fell back to center", "outcome", plan.Outcome.String(), "error", plan.Reason)
			}
			clip.Crop = &types.ManifestCrop{
				OffsetX:      plan.OffsetX,
				OffsetY:      plan.OffsetY,
				ScaledWidth:  plan.ScaledWidth,
				ScaledHeight: plan.ScaledHeight,
				Tracking:     trace.Outcome.String(),
				Plan:         plan.Outcome.String(),
			}
		}

		var assPath string
		if in.Subtitles != nil {
			st := *in.Subtitles
			st.PlayResX, st.PlayResY = in.TargetWidth, in.TargetHeight
			ass, err := subtitles.RenderASS(seg, st)
			if err != nil {
				return Result{}, fmt.Errorf("clip %s subtitles: %w", id, err)
			}
			rel := filepath.Join(subtitlesDirName, id+".ass")
			assPath = filepath.Join(in.OutDir, rel)
			if err := os.WriteFile(assPath, []byte(ass), 0o644); err != nil {
				return Result{}, err
			}
			clip.Subtitles = filepath.ToSlash(rel)
		}

		err := u.d.Video.RenderClip(ctx, ports.RenderRequest{
			Input:    in.InputMP4,
			Output:   filepath.Join(in.OutDir, clipsDirName, id+".mp4"),
			Start:    seconds(seg.Start),
			End:      seconds(seg.End),
			Layout:   in.Layout,
			Plan:     plan,
			BurnASS:  assPath,
			FontsDir: in.FontsDir,
		})
		if err != nil {
			return Result{}, fmt.Errorf("clip %s: %w", id, err)
		}
		clog.Info("clip rendered", "offset_x", plan.OffsetX)

		m.Clips = append(m.Clips, clip)
		u.report(ctx, in, types.JobRunning, progressStageClips, i+1, len(segs), "")
	}

	return Result{Manifest: m, Segments: segs}, nil
}

// fetch downloads in.SourceURL next to in.InputMP4 and re-encodes it there.
func (u Usecase) fetch(ctx context.Context, in Input, log *slog.Logger) error {
	if u.d.Downloader == nil {
		return ErrNoDownloader
	}
	raw, err := u.d.Downloader.Download(ctx, in.SourceURL, filepath.Dir(in.InputMP4))
	if err != nil {
		return fmt.Errorf("download %s: %w", in.SourceURL, err)
	}
	if err := u.d.Video.Standardize(ctx, raw, in.InputMP4); err != nil {
		return err
	}
	if raw != in.InputMP4 {
		if err := os.Remove(raw); err != nil {
			log.Warn("remove raw download failed", "path", raw, "error", err)
		}
	}
	log.Info("source ready", "url", in.SourceURL, "path", in.InputMP4)
	return nil
}

// transcript loads the given transcript, a cached one for this input, or
// runs audio extraction and ASR.
func (u Usecase) transcript(ctx context.Context, in Input, log *slog.Logger) (types.Transcript, error) {
	if in.TranscriptPath != "" {
		return types.LoadTranscript(in.TranscriptPath)
	}

	cached := filepath.Join(in.AudioDir, cachedTranscript)
	if _, err := os.Stat(cached); err == nil {
		tr, err := types.LoadTranscript(cached)
		if err == nil {
			log.Info("using cached transcript", "path", cached)
			return tr, nil
		}
		log.Warn("cached transcript unusable, transcribing again", "error", err)
	}

	wav := filepath.Join(in.AudioDir, "audio.wav")
	if err := u.d.Video.ExtractAudioMono16k(ctx, in.InputMP4, wav); err != nil {
		return types.Transcript{}, err
	}
	tr, err := u.d.ASR.Transcribe(ctx, wav, in.AudioDir)
	if err != nil {
		return types.Transcript{}, err
	}
	if err := tr.Validate(); err != nil {
		return types.Transcript{}, err
	}
	if err := writeJSON(cached, tr); err != nil {
		log.Warn("cache transcript failed", "error", err)
	}
	return tr, nil
}

// annotate never fails: missing or broken annotations become text-derived
// metadata.
func (u Usecase) annotate(ctx context.Context, segs []types.Segment, log *slog.Logger) []types.ClipMeta {
	out := make([]types.ClipMeta, len(segs))
	var got []types.ClipMeta
	if u.d.Annotator != nil {
		var err error
		got, err = u.d.Annotator.Annotate(ctx, segs)
		if err != nil {
			log.Warn("annotation failed, using text metadata", "error", err)
			got = nil
		} else if len(got) != len(segs) {
			log.Warn("annotation count mismatch, using text metadata", "got", len(got), "want", len(segs))
			got = nil
		}
	}
	for i, s := range segs {
		if got != nil {
			out[i] = clipmeta.Complete(got[i], s)
		} else {
			out[i] = clipmeta.Fallback(s)
		}
	}
	return out
}

func (u Usecase) report(ctx context.Context, in Input, status types.JobStatus, stage string, done, total int, msg string) {
	if u.d.Progress == nil || in.JobID == "" {
		return
	}
	err := u.d.Progress.Put(ctx, types.Progress{
		JobID:   in.JobID,
		Input:   in.source(),
		Status:  status,
		Stage:   stage,
		Done:    done,
		Total:   total,
		Message: msg,
	})
	if err != nil {
		u.log.Warn("progress update failed", "job_id", in.JobID, "error", err)
	}
}

func (in Input) source() string {
	if in.SourceURL != "" {
		return in.SourceURL
	}
	return in.InputMP4
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
