// Package config loads the node's tuning parameters from JSON. All fields
// are pointers so a partial file overrides only what it names; everything
// else keeps its default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spaia-earth/fieldcam/internal/camera"
	"github.com/spaia-earth/fieldcam/internal/vision"
)

// TuningConfig is the root configuration for the perception and upload
// pipelines. The schema matches the /api/status params block so the same
// JSON can describe both startup configuration and a running node.
type TuningConfig struct {
	// Motion pipeline params
	Threshold          *float64 `json:"threshold,omitempty"`
	MinChangedPixels   *int     `json:"min_changed_pixels,omitempty"`
	MinComponentPixels *int     `json:"min_component_pixels,omitempty"`
	MaxComponents      *int     `json:"max_components,omitempty"`
	MaxBoxArea         *int     `json:"max_box_area,omitempty"`
	MinBoxArea         *int     `json:"min_box_area,omitempty"`
	MergeIoU           *float64 `json:"merge_iou,omitempty"`
	BackgroundAlpha    *float64 `json:"background_alpha,omitempty"`

	// Camera params
	ScanInterval   *string `json:"scan_interval,omitempty"` // duration string like "500ms"
	SettleDelay    *string `json:"settle_delay,omitempty"`  // duration string like "100ms"
	MaxInitRetries *int    `json:"max_init_retries,omitempty"`
	RetryStep      *string `json:"retry_step,omitempty"` // duration string like "250ms"

	// Upload params
	UploadIntervalSeconds *int    `json:"upload_interval_seconds,omitempty"` // 0 selects real-time mode
	UploadURL             *string `json:"upload_url,omitempty"`
	InitialBackoff        *string `json:"initial_backoff,omitempty"` // duration string like "1s"
	MaxBackoff            *string `json:"max_backoff,omitempty"`     // duration string like "32s"

	// Climate params
	ClimatePollInterval *string `json:"climate_poll_interval,omitempty"` // duration string like "60s"
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be under the max size. Fields omitted from the
// file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.Threshold != nil {
		if *c.Threshold <= 0 || *c.Threshold > 255 {
			return fmt.Errorf("threshold must be in (0, 255], got %f", *c.Threshold)
		}
	}
	if c.MergeIoU != nil {
		if *c.MergeIoU <= 0 || *c.MergeIoU > 1 {
			return fmt.Errorf("merge_iou must be in (0, 1], got %f", *c.MergeIoU)
		}
	}
	if c.BackgroundAlpha != nil {
		if *c.BackgroundAlpha <= 0 || *c.BackgroundAlpha >= 1 {
			return fmt.Errorf("background_alpha must be in (0, 1), got %f", *c.BackgroundAlpha)
		}
	}
	if c.UploadIntervalSeconds != nil && *c.UploadIntervalSeconds < 0 {
		return fmt.Errorf("upload_interval_seconds must be non-negative, got %d", *c.UploadIntervalSeconds)
	}
	if c.MaxInitRetries != nil && *c.MaxInitRetries < 1 {
		return fmt.Errorf("max_init_retries must be at least 1, got %d", *c.MaxInitRetries)
	}

	durations := map[string]*string{
		"scan_interval":         c.ScanInterval,
		"settle_delay":          c.SettleDelay,
		"retry_step":            c.RetryStep,
		"initial_backoff":       c.InitialBackoff,
		"max_backoff":           c.MaxBackoff,
		"climate_poll_interval": c.ClimatePollInterval,
	}
	for name, v := range durations {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// VisionParams builds the motion pipeline parameters, falling back to the
// pipeline defaults for unset fields.
func (c *TuningConfig) VisionParams() vision.Params {
	p := vision.DefaultParams()
	if c.Threshold != nil {
		p.Threshold = *c.Threshold
	}
	if c.MinChangedPixels != nil {
		p.MinChangedPixels = *c.MinChangedPixels
	}
	if c.MinComponentPixels != nil {
		p.MinComponentPixels = *c.MinComponentPixels
	}
	if c.MaxComponents != nil {
		p.MaxComponents = *c.MaxComponents
	}
	if c.MaxBoxArea != nil {
		p.MaxBoxArea = *c.MaxBoxArea
	}
	if c.MinBoxArea != nil {
		p.MinBoxArea = *c.MinBoxArea
	}
	if c.MergeIoU != nil {
		p.MergeIoU = *c.MergeIoU
	}
	return p
}

// GetBackgroundAlpha returns the background update rate or the default.
func (c *TuningConfig) GetBackgroundAlpha() float64 {
	if c.BackgroundAlpha == nil {
		return vision.DefaultAlpha
	}
	return *c.BackgroundAlpha
}

// CameraOptions builds the capture controller options.
func (c *TuningConfig) CameraOptions() camera.Options {
	opts := camera.Options{
		ScanInterval: c.duration(c.ScanInterval, 500*time.Millisecond),
		SettleDelay:  c.duration(c.SettleDelay, 100*time.Millisecond),
		RetryStep:    c.duration(c.RetryStep, 250*time.Millisecond),
	}
	if c.MaxInitRetries != nil {
		opts.MaxInitRetries = *c.MaxInitRetries
	}
	return opts
}

// GetUploadIntervalSeconds returns the upload interval or the default.
func (c *TuningConfig) GetUploadIntervalSeconds() int {
	if c.UploadIntervalSeconds == nil {
		return 0 // default: real-time mode
	}
	return *c.UploadIntervalSeconds
}

// GetUploadURL returns the upload destination or the default.
func (c *TuningConfig) GetUploadURL() string {
	if c.UploadURL == nil || *c.UploadURL == "" {
		return "https://api.spaia.earth/field/upload"
	}
	return *c.UploadURL
}

// GetInitialBackoff returns the first retry delay or the default.
func (c *TuningConfig) GetInitialBackoff() time.Duration {
	return c.duration(c.InitialBackoff, time.Second)
}

// GetMaxBackoff returns the retry delay ceiling or the default.
func (c *TuningConfig) GetMaxBackoff() time.Duration {
	return c.duration(c.MaxBackoff, 32*time.Second)
}

// GetClimatePollInterval returns the climate sampling interval or the
// default.
func (c *TuningConfig) GetClimatePollInterval() time.Duration {
	return c.duration(c.ClimatePollInterval, 60*time.Second)
}
