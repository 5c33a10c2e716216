package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ayusman/reelcam/internal/composite"
	"github.com/ayusman/reelcam/internal/config"
	"github.com/ayusman/reelcam/internal/notify"
	"github.com/ayusman/reelcam/internal/pipeline"
	"github.com/ayusman/reelcam/internal/review"
	"github.com/ayusman/reelcam/internal/server"
	"github.com/ayusman/reelcam/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML config file (default reelcam.yaml when present)")
	reportPath := flag.String("report", "", "write the run report JSON to this file (default stdout)")
	reviewMode := flag.String("review", "", "review session: terminal or web (overrides config)")
	serveOnly := flag.Bool("serve", false, "only serve the asset and run API")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: reelcam [flags] video...\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Each video needs a <name>%s sidecar; %s, %s and %s are used when present.\n\n",
			pipeline.SuffixDetections, pipeline.SuffixMerged, pipeline.SuffixForward, pipeline.SuffixBackward)
		flag.PrintDefaults()
	}
	flag.Parse()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if *reviewMode != "" {
		cfg.Review.Mode = *reviewMode
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return 2
		}
	}

	logger := newLogger(cfg.Log)

	if !*serveOnly && flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Database)
	if err != nil {
		logger.Error().Err(err).Str("database", cfg.Database).Msg("failed to open store")
		return 1
	}
	defer st.Close()

	var hub *server.ReviewHub
	if cfg.Review.Mode == "web" || *serveOnly {
		hub = server.NewReviewHub(logger.With().Str("component", "review").Logger())
		srv := server.New(server.Config{
			StaticDir: findWebDir(),
			Store:     st,
			Hub:       hub,
			Logger:    logger.With().Str("component", "http").Logger(),
		})
		srv.Start(cfg.Review.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if *serveOnly {
		<-ctx.Done()
		return 0
	}

	var reviewer review.Reviewer
	if hub != nil {
		logger.Info().Str("addr", cfg.Review.Addr).Msg("waiting for a review client")
		reviewer = hub
	} else {
		term := review.NewTerminal(os.Stdin, os.Stdout)
		if cfg.Review.PreviewDir != "" {
			if err := os.MkdirAll(cfg.Review.PreviewDir, 0755); err != nil {
				logger.Error().Err(err).Msg("failed to create preview directory")
				return 1
			}
			term.PreviewDir = cfg.Review.PreviewDir
		}
		reviewer = term
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.MQTT.Broker != "" {
		n, err := notify.DialMQTT(notify.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, logger.With().Str("component", "mqtt").Logger())
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to mqtt broker")
			return 1
		}
		notifier = n
	}
	defer notifier.Close()

	deps := pipeline.Deps{
		Store:    st,
		Reviewer: reviewer,
		Notifier: notifier,
		Logger:   logger,
	}
	if cfg.Compositor.Name != "" {
		mgr := composite.NewManager(cfg.Compositor.Dir)
		if err := mgr.Discover(); err != nil {
			logger.Error().Err(err).Str("dir", cfg.Compositor.Dir).Msg("failed to discover compositors")
			return 1
		}
		deps.Compositors = mgr
		deps.Executor = composite.NewExecutor(cfg.Compositor.TimeoutMs)
	}
	deps.Progress = os.Stderr

	p, err := pipeline.New(pipeline.ConfigFrom(cfg), deps)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build pipeline")
		return 1
	}

	assets := make([]pipeline.Asset, 0, flag.NArg())
	for _, video := range flag.Args() {
		assets = append(assets, pipeline.SidecarsFor(video))
	}

	report, err := p.RunBatch(ctx, assets)
	if err != nil {
		logger.Error().Err(err).Msg("batch failed")
	}
	if report == nil {
		return 1
	}
	if werr := writeReport(*reportPath, report); werr != nil {
		logger.Error().Err(werr).Msg("failed to write run report")
		return 1
	}
	if err != nil || report.Summary.Failed > 0 {
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat("reelcam.yaml"); err == nil {
			path = "reelcam.yaml"
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Pretty || isTerminal(os.Stderr) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func writeReport(path string, report any) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// findWebDir searches for the review client in common locations.
// It checks: "web", "../web", "../../web", and ~/.reelcam/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".reelcam", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
