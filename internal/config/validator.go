package config

import (
	"fmt"

	"github.com/ayusman/reelcam/internal/classify"
	"github.com/ayusman/reelcam/internal/frameindex"
	"github.com/ayusman/reelcam/internal/render"
)

// Validate fills missing values with defaults and rejects invalid ones
func Validate(cfg *Config) error {
	def := Default()

	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}

	if _, err := frameindex.ParsePolicy(cfg.Index.DuplicatePolicy); err != nil {
		return fmt.Errorf("index.duplicate_policy: %w", err)
	}

	if cfg.Classifier.Tolerance < 0 || cfg.Classifier.Tolerance >= 1 {
		return fmt.Errorf("classifier.tolerance must be in [0, 1), got %v", cfg.Classifier.Tolerance)
	}
	if _, err := classify.ParseSplitPolicy(cfg.Classifier.Split); err != nil {
		return fmt.Errorf("classifier.split: %w", err)
	}

	if cfg.Scheduler.Spacing <= 0 {
		return fmt.Errorf("scheduler.spacing must be > 0")
	}

	g := cfg.Geometry
	if g.MinFrameFactor <= 0 || g.MinFrameFactor > 1 {
		return fmt.Errorf("geometry.min_frame_factor must be in (0, 1], got %v", g.MinFrameFactor)
	}
	if g.Margin < 0 {
		return fmt.Errorf("geometry.margin must be >= 0")
	}
	if g.TargetAspect <= 0 {
		return fmt.Errorf("geometry.target_aspect must be > 0")
	}

	if _, err := render.ParseMode(cfg.Render.Mode); err != nil {
		return fmt.Errorf("render.mode: %w", err)
	}
	if cfg.Render.Width < 0 || cfg.Render.Height < 0 || (cfg.Render.Width == 0) != (cfg.Render.Height == 0) {
		return fmt.Errorf("render.width and render.height must both be set or both be zero")
	}
	if cfg.Render.Codec == "" {
		cfg.Render.Codec = def.Render.Codec
	}
	if len(cfg.Render.Codec) != 4 {
		return fmt.Errorf("render.codec must be a four-character code, got %q", cfg.Render.Codec)
	}

	if cfg.Batch.Workers <= 0 {
		cfg.Batch.Workers = 1
	}

	if cfg.Compositor.TimeoutMs <= 0 {
		cfg.Compositor.TimeoutMs = def.Compositor.TimeoutMs
	}

	switch cfg.Review.Mode {
	case "":
		cfg.Review.Mode = def.Review.Mode
	case "terminal", "web":
	default:
		return fmt.Errorf("review.mode: unknown mode %q (must be 'terminal' or 'web')", cfg.Review.Mode)
	}
	if cfg.Review.Mode == "web" && cfg.Review.Addr == "" {
		cfg.Review.Addr = def.Review.Addr
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = def.MQTT.ClientID
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}

	return nil
}
