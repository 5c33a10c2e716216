package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REELCAM_"

// ApplyEnv overrides cfg from REELCAM_* variables, then validates the result.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DATABASE":           &cfg.Database,
		"OUTPUT_DIR":         &cfg.OutputDir,
		"DUPLICATE_POLICY":   &cfg.Index.DuplicatePolicy,
		"SPLIT":              &cfg.Classifier.Split,
		"RENDER_MODE":        &cfg.Render.Mode,
		"RENDER_CODEC":       &cfg.Render.Codec,
		"COMPOSITOR_DIR":     &cfg.Compositor.Dir,
		"COMPOSITOR":         &cfg.Compositor.Name,
		"WATERMARK":          &cfg.Compositor.Watermark,
		"REVIEW_MODE":        &cfg.Review.Mode,
		"REVIEW_ADDR":        &cfg.Review.Addr,
		"REVIEW_PREVIEW_DIR": &cfg.Review.PreviewDir,
		"MQTT_BROKER":        &cfg.MQTT.Broker,
		"MQTT_CLIENT_ID":     &cfg.MQTT.ClientID,
		"MQTT_TOPIC_PREFIX":  &cfg.MQTT.TopicPrefix,
		"LOG_LEVEL":          &cfg.Log.Level,
	}
	for key, dst := range str {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SPACING":               &cfg.Scheduler.Spacing,
		"RENDER_WIDTH":          &cfg.Render.Width,
		"RENDER_HEIGHT":         &cfg.Render.Height,
		"WORKERS":               &cfg.Batch.Workers,
		"COMPOSITOR_TIMEOUT_MS": &cfg.Compositor.TimeoutMs,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"TOLERANCE":        &cfg.Classifier.Tolerance,
		"MIN_FRAME_FACTOR": &cfg.Geometry.MinFrameFactor,
		"MARGIN":           &cfg.Geometry.Margin,
		"TARGET_ASPECT":    &cfg.Geometry.TargetAspect,
	}
	for key, dst := range floats {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup(EnvPrefix + "LOG_PRETTY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_PRETTY: %w", EnvPrefix, err)
		}
		cfg.Log.Pretty = b
	}

	return Validate(cfg)
}
