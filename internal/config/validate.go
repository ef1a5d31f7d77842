package config

import (
	"errors"
	"fmt"

	"github.com/forPelevin/hlshorts/internal/types"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSegment(); err != nil {
		return err
	}
	if err := c.validateCrop(); err != nil {
		return err
	}
	if err := c.validateTracking(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if c.Subtitles.Enabled && c.Subtitles.FontSize <= 0 {
		return errors.New("subtitles.font_size must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateSegment() error {
	if c.Segment.MinSeconds <= 0 || c.Segment.MaxSeconds <= 0 {
		return errors.New("segment.min_seconds and segment.max_seconds must be positive")
	}
	if c.Segment.MinSeconds > c.Segment.MaxSeconds {
		return fmt.Errorf("segment.min_seconds (%g) must be <= segment.max_seconds (%g)", c.Segment.MinSeconds, c.Segment.MaxSeconds)
	}
	return nil
}

func (c *Config) validateCrop() error {
	if !types.Layout(c.Crop.Layout).Valid() {
		return fmt.Errorf("crop.layout: unsupported value %q (crop, blur, pad)", c.Crop.Layout)
	}
	w, h := c.Crop.TargetWidth, c.Crop.TargetHeight
	if w <= 0 || h <= 0 {
		return errors.New("crop.target_width and crop.target_height must be positive")
	}
	if w%2 != 0 || h%2 != 0 {
		return fmt.Errorf("crop target %dx%d must have even dimensions", w, h)
	}
	if c.Crop.SkipMarginPx < 0 {
		return errors.New("crop.skip_margin_px must be >= 0")
	}
	return nil
}

func (c *Config) validateTracking() error {
	if c.Tracking.SmoothingFactor <= 0 || c.Tracking.SmoothingFactor > 1 {
		return errors.New("tracking.smoothing_factor must be in (0, 1]")
	}
	if c.Tracking.AnalysisWidth < 0 {
		return errors.New("tracking.analysis_width must be >= 0")
	}
	if c.Tracking.MinConfidence < 0 || c.Tracking.MinConfidence > 1 {
		return errors.New("tracking.min_confidence must be in [0, 1]")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if !c.LLM.Enabled {
		return nil
	}
	if c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required when llm.enabled (set OPENROUTER_API_KEY)")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}
