package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/forPelevin/hlshorts/internal/config"
	"github.com/forPelevin/hlshorts/internal/domain/segmenter"
	"github.com/forPelevin/hlshorts/internal/domain/subtitles"
	"github.com/forPelevin/hlshorts/internal/domain/tracking"
	"github.com/forPelevin/hlshorts/internal/logging"
	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/openrouter"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/sidecar"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/ytdlp"
	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/types"
	"github.com/forPelevin/hlshorts/internal/usecase"
)

// ErrJobLocked is returned when another process holds the job workspace.
var ErrJobLocked = errors.New("job workspace is locked by another process")

const (
	lockFileName     = ".lock"
	manifestFileName = "manifest.json"
	downloadFileName = "input.mp4"
	cacheLockRetry   = 250 * time.Millisecond
)

type Config struct {
	// InputMP4 is a local video or an http(s) URL to download.
	InputMP4 string
	// TranscriptPath skips audio extraction and ASR.
	TranscriptPath string
	// OutDir overrides Settings.Paths.OutDir.
	OutDir      string
	FailOnEmpty bool

	Settings *config.Config
	Log      *slog.Logger

	// Progress is shared by concurrent jobs; when nil Run opens
	// Settings.Paths.StateDB for the duration of the job.
	Progress ports.ProgressStore
}

func (c Config) Validate() error {
	if c.InputMP4 == "" {
		return errors.New("input is empty")
	}
	if IsRemote(c.InputMP4) {
		if _, err := sourceURL(c.InputMP4); err != nil {
			return err
		}
	} else if _, err := os.Stat(c.InputMP4); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if c.TranscriptPath != "" {
		if _, err := os.Stat(c.TranscriptPath); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidTranscript, err)
		}
	}
	if c.Settings == nil {
		return errors.New("settings are required")
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if c.TranscriptPath == "" && c.Settings.Tools.WhisperModel == "" {
		return errors.New("whisper model path is required")
	}
	if c.Settings.LLM.Enabled {
		return openrouter.ValidateBaseURL(c.Settings.LLM.BaseURL, c.Settings.LLM.AllowedHosts)
	}
	return nil
}

type Result struct {
	JobID    string
	RunDir   string
	Manifest types.Manifest
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	s := cfg.Settings
	jobID := uuid.NewString()
	log := logging.OrNop(cfg.Log).With("job_id", jobID)

	store := cfg.Progress
	if store == nil {
		st, err := progress.Open(s.Paths.StateDB)
		if err != nil {
			return Result{}, err
		}
		defer st.Close()
		store = st
	}

	workDir := filepath.Join(s.Paths.WorkDir, jobID)
	log.Info("preparing workspace", "work_dir", workDir)
	unlockJob, err := lockDir(workDir)
	if err != nil {
		return Result{}, err
	}
	defer unlockJob()

	audioDir, err := audioCacheDir(s.Paths.CacheDir, cfg.InputMP4)
	if err != nil {
		return Result{}, err
	}
	unlockCache, err := waitLockDir(ctx, audioDir)
	if err != nil {
		return Result{}, err
	}
	defer unlockCache()

	outRoot := cfg.OutDir
	if outRoot == "" {
		outRoot = s.Paths.OutDir
	}
	runOutDir := buildRunOutDir(outRoot, cfg.InputMP4, time.Now().UTC())
	log.Info("output run dir", "dir", runOutDir)

	in, err := buildInput(cfg, jobID, workDir, audioDir, runOutDir)
	if err != nil {
		return Result{}, err
	}
	uc := usecase.New(buildDeps(s, store, log))
	res, err := uc.Run(ctx, in)
	if err != nil {
		markFailed(store, jobID, cfg.InputMP4, err, log)
		return Result{JobID: jobID, RunDir: runOutDir}, err
	}

	b, err := json.MarshalIndent(res.Manifest, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(runOutDir, manifestFileName)
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return Result{}, err
	}
	log.Info("manifest written", "clips", len(res.Manifest.Clips), "path", manifestPath)

	if len(res.Manifest.Clips) > 0 {
		err := store.Put(ctx, types.Progress{
			JobID:  jobID,
			Input:  cfg.InputMP4,
			Status: types.JobDone,
			Stage:  "done",
			Done:   len(res.Manifest.Clips),
			Total:  len(res.Manifest.Clips),
		})
		if err != nil {
			log.Warn("progress update failed", "error", err)
		}
	}
	return Result{JobID: jobID, RunDir: runOutDir, Manifest: res.Manifest}, nil
}

func buildDeps(s *config.Config, store ports.ProgressStore, log *slog.Logger) usecase.Deps {
	v := ffmpeg.New(s.Tools.FFmpeg, s.Tools.FFprobe, s.Tracking.AnalysisWidth)
	deps := usecase.Deps{
		Video:      v,
		ASR:        whispercpp.New(s.Tools.WhisperBin, s.Tools.WhisperModel, s.Tools.WhisperLanguage, s.Tools.WhisperThreads),
		Frames:     v,
		Detectors:  sidecar.New(s.Tools.DetectorCmd, s.Tracking.MinConfidence, log),
		Downloader: ytdlp.New(s.Tools.YtDlp, downloadOptions(s), log),
		Progress:   store,
		Log:        log,
	}
	if s.LLM.Enabled {
		deps.Annotator = openrouter.New(s.LLM.APIKey, s.LLM.Model, s.LLM.BaseURL, time.Duration(s.LLM.TimeoutSeconds)*time.Second, log)
	}
	return deps
}

func downloadOptions(s *config.Config) ytdlp.Options {
	opts := ytdlp.DefaultOptions()
	opts.Format = s.Tools.DownloadFormat
	return opts
}

func buildInput(cfg Config, jobID, workDir, audioDir, runOutDir string) (usecase.Input, error) {
	s := cfg.Settings
	in := usecase.Input{
		JobID:          jobID,
		InputMP4:       cfg.InputMP4,
		TranscriptPath: cfg.TranscriptPath,
		AudioDir:       audioDir,
		OutDir:         runOutDir,
		Segment:        segmenter.Config{MinDuration: s.Segment.MinSeconds, MaxDuration: s.Segment.MaxSeconds},
		Layout:         types.Layout(s.Crop.Layout),
		TargetWidth:    s.Crop.TargetWidth,
		TargetHeight:   s.Crop.TargetHeight,
		SkipMargin:     s.Crop.SkipMarginPx,
		Tracking:       tracking.Config{SmoothingFactor: s.Tracking.SmoothingFactor, SampleStride: s.Tracking.SampleStride},
		Estimate:       s.Tracking.Estimate,
		FailOnEmpty:    cfg.FailOnEmpty,
	}
	if s.Subtitles.Enabled {
		st := subtitles.DefaultStyle(s.Crop.TargetWidth, s.Crop.TargetHeight)
		st.Font = s.Subtitles.Font
		st.FontSize = s.Subtitles.FontSize
		st.PrimaryColour = s.Subtitles.Color
		st.HighlightColour = s.Subtitles.HighlightColor
		st.Outline = s.Subtitles.Outline
		st.MarginV = s.Subtitles.MarginV
		in.Subtitles = &st
		in.FontsDir = s.Subtitles.FontsDir
	}
	if IsRemote(cfg.InputMP4) {
		u, err := sourceURL(cfg.InputMP4)
		if err != nil {
			return usecase.Input{}, err
		}
		in.SourceURL = u
		in.InputMP4 = filepath.Join(workDir, downloadFileName)
	}
	return in, nil
}

// IsRemote reports whether input names a URL to download rather than a
// local file.
func IsRemote(input string) bool {
	v := strings.ToLower(strings.TrimSpace(input))
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") || strings.HasPrefix(v, "www.")
}

// sourceURL normalizes a remote input; bare www. hosts get https.
func sourceURL(input string) (string, error) {
	v := strings.TrimSpace(input)
	if strings.HasPrefix(strings.ToLower(v), "www.") {
		v = "https://" + v
	}
	u, err := url.Parse(v)
	if err != nil {
		return "", fmt.Errorf("invalid input url: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid input url %q: http(s) URL with host is required", input)
	}
	return u.String(), nil
}

func markFailed(store ports.ProgressStore, jobID, input string, cause error, log *slog.Logger) {
	// The job context may already be canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := store.Put(ctx, types.Progress{
		JobID:   jobID,
		Input:   input,
		Status:  types.JobFailed,
		Stage:   "failed",
		Message: cause.Error(),
	})
	if err != nil {
		log.Warn("progress update failed", "error", err)
	}
}

// lockDir creates dir and takes an exclusive lock on it without waiting.
func lockDir(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, dir)
	}
	return func() { _ = lock.Unlock() }, nil
}

// waitLockDir is lockDir for directories shared between jobs: it waits for
// the holder until ctx is done.
func waitLockDir(ctx context.Context, dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLockContext(ctx, cacheLockRetry)
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, dir)
	}
	return func() { _ = lock.Unlock() }, nil
}

// audioCacheDir keys the extracted audio and transcript by the input's
// absolute path, size and modification time. URLs are keyed by the URL.
func audioCacheDir(cacheRoot, input string) (string, error) {
	if IsRemote(input) {
		u, err := sourceURL(input)
		if err != nil {
			return "", err
		}
		return filepath.Join(cacheRoot, "audio", hash("url|"+u)), nil
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat input: %w", err)
	}
	key := hash(fmt.Sprintf("%s|%d|%d", abs, fi.Size(), fi.ModTime().UnixNano()))
	return filepath.Join(cacheRoot, "audio", key), nil
}

func buildRunOutDir(outRoot, inputMP4 string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(inputMP4), filepath.Ext(inputMP4))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", inputMP4, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.FrameSource = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.Downloader = (*ytdlp.Adapter)(nil)
var _ ports.DetectorFactory = (*sidecar.Factory)(nil)
var _ ports.Annotator = (*openrouter.Adapter)(nil)
var _ ports.ProgressStore = (*progress.Store)(nil)
