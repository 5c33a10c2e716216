package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reelcam.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(Default()) error = %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
database: /var/lib/reelcam/cache.db
classifier:
  split: conservative
render:
  mode: target-aspect
  width: 1080
  height: 1920
batch:
  workers: 4
mqtt:
  broker: tcp://localhost:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database != "/var/lib/reelcam/cache.db" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.Classifier.Split != "conservative" || cfg.Classifier.Tolerance != 0.02 {
		t.Errorf("Classifier = %+v, want conservative split with default tolerance", cfg.Classifier)
	}
	if cfg.Render.Mode != "target-aspect" || cfg.Render.Codec != "mp4v" {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Scheduler.Spacing != 10 || cfg.Batch.Workers != 4 {
		t.Errorf("Scheduler = %+v, Batch = %+v", cfg.Scheduler, cfg.Batch)
	}
	if cfg.MQTT.TopicPrefix != "reelcam" {
		t.Errorf("MQTT.TopicPrefix = %q", cfg.MQTT.TopicPrefix)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "bad yaml", body: "classifier: [", want: "failed to parse"},
		{name: "duplicate policy", body: "index:\n  duplicate_policy: newest\n", want: "index.duplicate_policy"},
		{name: "tolerance", body: "classifier:\n  tolerance: 1.5\n", want: "classifier.tolerance"},
		{name: "split", body: "classifier:\n  split: even\n", want: "classifier.split"},
		{name: "spacing", body: "scheduler:\n  spacing: 0\n", want: "scheduler.spacing"},
		{name: "render mode", body: "render:\n  mode: zoom\n", want: "render.mode"},
		{name: "half size", body: "render:\n  width: 720\n", want: "render.width"},
		{name: "codec", body: "render:\n  codec: h264x\n", want: "render.codec"},
		{name: "review mode", body: "review:\n  mode: gui\n", want: "review.mode"},
		{name: "qos", body: "mqtt:\n  qos: 3\n", want: "mqtt.qos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"REELCAM_DATABASE":    "env.db",
		"REELCAM_WORKERS":     "8",
		"REELCAM_TOLERANCE":   "0.05",
		"REELCAM_MQTT_BROKER": "tcp://broker:1883",
		"REELCAM_LOG_PRETTY":  "true",
		"UNRELATED":           "x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := applyEnv(cfg, lookup); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}
	if cfg.Database != "env.db" || cfg.Batch.Workers != 8 || cfg.Classifier.Tolerance != 0.05 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" || !cfg.Log.Pretty {
		t.Errorf("MQTT = %+v, Log = %+v", cfg.MQTT, cfg.Log)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"REELCAM_WORKERS":    "many",
		"REELCAM_TOLERANCE":  "tight",
		"REELCAM_LOG_PRETTY": "sometimes",
		"REELCAM_SPLIT":      "even",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == key {
					return value, true
				}
				return "", false
			}
			if err := applyEnv(Default(), lookup); err == nil {
				t.Errorf("applyEnv(%s=%s) should fail", key, value)
			}
		})
	}
}
