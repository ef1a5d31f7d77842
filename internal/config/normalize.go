package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.Crop.Layout = strings.ToLower(strings.TrimSpace(c.Crop.Layout))
	if c.Tracking.SampleStride <= 0 {
		c.Tracking.SampleStride = 1
	}
	c.Tools.YtDlp = strings.TrimSpace(c.Tools.YtDlp)
	if c.Tools.YtDlp == "" {
		c.Tools.YtDlp = "yt-dlp"
	}
	c.Tools.DownloadFormat = strings.TrimSpace(c.Tools.DownloadFormat)
	if c.Tools.DownloadFormat == "" {
		c.Tools.DownloadFormat = defaultDownloadFormat
	}
	if c.Watch.MaxConcurrent <= 0 {
		c.Watch.MaxConcurrent = 1
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutDir, err = expandPath(c.Paths.OutDir); err != nil {
		return fmt.Errorf("paths.out_dir: %w", err)
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.StateDB, err = expandPath(c.Paths.StateDB); err != nil {
		return fmt.Errorf("paths.state_db: %w", err)
	}
	if c.Subtitles.FontsDir, err = expandPath(c.Subtitles.FontsDir); err != nil {
		return fmt.Errorf("subtitles.fonts_dir: %w", err)
	}
	return nil
}

// normalizeLLM lets OPENROUTER_* variables override the file values.
func (c *Config) normalizeLLM() {
	if v, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok && strings.TrimSpace(v) != "" {
		c.LLM.APIKey = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("OPENROUTER_MODEL"); ok && strings.TrimSpace(v) != "" {
		c.LLM.Model = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("OPENROUTER_BASE_URL"); ok && strings.TrimSpace(v) != "" {
		c.LLM.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("OPENROUTER_ALLOWED_HOSTS"); ok && strings.TrimSpace(v) != "" {
		c.LLM.AllowedHosts = splitCSV(v)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
