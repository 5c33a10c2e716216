// Package config loads reelcam settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete reelcam configuration
type Config struct {
	Database   string           `yaml:"database"`
	OutputDir  string           `yaml:"output_dir"`
	Index      IndexConfig      `yaml:"index"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Geometry   GeometryConfig   `yaml:"geometry"`
	Render     RenderConfig     `yaml:"render"`
	Batch      BatchConfig      `yaml:"batch"`
	Compositor CompositorConfig `yaml:"compositor"`
	Review     ReviewConfig     `yaml:"review"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Log        LogConfig        `yaml:"log"`
}

// IndexConfig controls frame index construction
type IndexConfig struct {
	DuplicatePolicy string `yaml:"duplicate_policy"` // error, keep-first, drop-later
}

// ClassifierConfig contains the detection review policies
type ClassifierConfig struct {
	Tolerance float64 `yaml:"tolerance"` // IoU below 1-tolerance counts as dissimilar
	Split     string  `yaml:"split"`     // favor-current, conservative
}

// SchedulerConfig contains manual enhancement settings
type SchedulerConfig struct {
	Spacing int `yaml:"spacing"` // frames between manual samples within a chunk
}

// GeometryConfig contains camera framing settings
type GeometryConfig struct {
	MinFrameFactor float64 `yaml:"min_frame_factor"`
	Margin         float64 `yaml:"margin"`
	TargetAspect   float64 `yaml:"target_aspect"` // width/height, e.g. 0.5625 for 9:16
}

// RenderConfig contains output settings
type RenderConfig struct {
	Mode   string `yaml:"mode"` // full-frame, target-aspect
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Codec  string `yaml:"codec"` // four-character code
}

// BatchConfig controls parallel rendering
type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// CompositorConfig selects the external compositor
type CompositorConfig struct {
	Dir       string `yaml:"dir"`
	Name      string `yaml:"name"` // empty disables composition
	TimeoutMs int    `yaml:"timeout_ms"`
	Watermark string `yaml:"watermark"`
}

// ReviewConfig selects the review session
type ReviewConfig struct {
	Mode       string `yaml:"mode"` // terminal, web
	Addr       string `yaml:"addr"`
	PreviewDir string `yaml:"preview_dir"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // empty disables notifications
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// LogConfig controls logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Database:   "reelcam.db",
		OutputDir:  "out",
		Index:      IndexConfig{DuplicatePolicy: "error"},
		Classifier: ClassifierConfig{Tolerance: 0.02, Split: "favor-current"},
		Scheduler:  SchedulerConfig{Spacing: 10},
		Geometry:   GeometryConfig{MinFrameFactor: 0.3, Margin: 0.1, TargetAspect: 9.0 / 16.0},
		Render:     RenderConfig{Mode: "full-frame", Codec: "mp4v"},
		Batch:      BatchConfig{Workers: 2},
		Compositor: CompositorConfig{Dir: "plugins", TimeoutMs: 120000},
		Review:     ReviewConfig{Mode: "terminal", Addr: ":8090"},
		MQTT:       MQTTConfig{ClientID: "reelcam", TopicPrefix: "reelcam", QoS: 1},
		Log:        LogConfig{Level: "info"},
	}
}

// Load reads and parses a YAML configuration file on top of Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
