package config

const (
	defaultMinSeconds      = 30.0
	defaultMaxSeconds      = 60.0
	defaultTargetWidth     = 1080
	defaultTargetHeight    = 1920
	defaultSkipMarginPx    = 10
	defaultSmoothing       = 0.1
	defaultAnalysisWidth   = 640
	defaultOpenRouterURL   = "https://openrouter.ai"
	defaultOpenRouterModel = "z-ai/glm-4.5-air:free"
	defaultDownloadFormat  = "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
)

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  ".cache/runs",
			OutDir:   "out",
			CacheDir: ".cache",
			StateDB:  ".cache/hlshorts.db",
		},
		Segment: Segment{
			MinSeconds: defaultMinSeconds,
			MaxSeconds: defaultMaxSeconds,
		},
		Crop: Crop{
			Layout:       "crop",
			TargetWidth:  defaultTargetWidth,
			TargetHeight: defaultTargetHeight,
			SkipMarginPx: defaultSkipMarginPx,
		},
		Tracking: Tracking{
			SmoothingFactor: defaultSmoothing,
			SampleStride:    1,
			AnalysisWidth:   defaultAnalysisWidth,
			MinConfidence:   0.5,
		},
		Tools: Tools{
			FFmpeg:          "ffmpeg",
			FFprobe:         "ffprobe",
			WhisperBin:      ".cache/bin/whisper.cpp",
			WhisperModel:    ".cache/models/ggml-base.bin",
			WhisperLanguage: "auto",
			YtDlp:           "yt-dlp",
			DownloadFormat:  defaultDownloadFormat,
		},
		Subtitles: Subtitles{
			Enabled:        true,
			Font:           "Arial",
			FontSize:       85,
			Color:          "&H0000FFFF",
			HighlightColor: "&H00FFFFFF",
			Outline:        4,
			MarginV:        250,
		},
		LLM: LLM{
			Model:          defaultOpenRouterModel,
			BaseURL:        defaultOpenRouterURL,
			TimeoutSeconds: 60,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Watch: Watch{
			MaxConcurrent: 1,
		},
	}
}
