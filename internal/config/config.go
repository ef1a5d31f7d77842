// Package config loads hlshorts settings from defaults, a TOML file and the
// environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working, output and state locations.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	OutDir   string `toml:"out_dir"`
	CacheDir string `toml:"cache_dir"`
	StateDB  string `toml:"state_db"`
}

// Segment holds the segmentation bounds in seconds.
type Segment struct {
	MinSeconds float64 `toml:"min_seconds"`
	MaxSeconds float64 `toml:"max_seconds"`
}

// Crop describes the output frame and how the source is fit into it.
type Crop struct {
	Layout       string `toml:"layout"`
	TargetWidth  int    `toml:"target_width"`
	TargetHeight int    `toml:"target_height"`
	SkipMarginPx int    `toml:"skip_margin_px"`
}

type Tracking struct {
	SmoothingFactor float64 `toml:"smoothing_factor"`
	SampleStride    int     `toml:"sample_stride"`
	AnalysisWidth   int     `toml:"analysis_width"`
	// MinConfidence drops detections the detector is less sure about.
	MinConfidence float64 `toml:"min_confidence"`
	// Estimate uses one representative frame instead of a per-frame trace.
	Estimate bool `toml:"estimate"`
}

// Tools names the external executables.
type Tools struct {
	FFmpeg          string   `toml:"ffmpeg"`
	FFprobe         string   `toml:"ffprobe"`
	WhisperBin      string   `toml:"whisper_bin"`
	WhisperModel    string   `toml:"whisper_model"`
	WhisperLanguage string   `toml:"whisper_language"`
	WhisperThreads  int      `toml:"whisper_threads"`
	DetectorCmd     []string `toml:"detector_cmd"`
	// YtDlp and DownloadFormat are used for http(s) inputs.
	YtDlp          string `toml:"yt_dlp"`
	DownloadFormat string `toml:"download_format"`
}

type Subtitles struct {
	Enabled        bool   `toml:"enabled"`
	Font           string `toml:"font"`
	FontSize       int    `toml:"font_size"`
	Color          string `toml:"color"`
	HighlightColor string `toml:"highlight_color"`
	Outline        int    `toml:"outline"`
	MarginV        int    `toml:"margin_v"`
	FontsDir       string `toml:"fonts_dir"`
}

// LLM configures the optional OpenRouter annotator.
type LLM struct {
	Enabled        bool     `toml:"enabled"`
	APIKey         string   `toml:"api_key"`
	Model          string   `toml:"model"`
	BaseURL        string   `toml:"base_url"`
	AllowedHosts   []string `toml:"allowed_hosts"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Watch struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// Config is the full application configuration.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Segment   Segment   `toml:"segment"`
	Crop      Crop      `toml:"crop"`
	Tracking  Tracking  `toml:"tracking"`
	Tools     Tools     `toml:"tools"`
	Subtitles Subtitles `toml:"subtitles"`
	LLM       LLM       `toml:"llm"`
	Logging   Logging   `toml:"logging"`
	Watch     Watch     `toml:"watch"`
}

// ProjectConfigName is looked up in the working directory when no path is given.
const ProjectConfigName = "hlshorts.toml"

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hlshorts/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error: defaults apply and exists reports false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs(ProjectConfigName)
	if err != nil {
		return "", false, err
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the working, output and cache directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.OutDir, c.Paths.CacheDir, filepath.Dir(c.Paths.StateDB)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
