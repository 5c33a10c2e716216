// Package pipeline wires indexing, review, scheduling, rendering and hand-off into per-asset and
// batch runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ayusman/reelcam/internal/capture"
	"github.com/ayusman/reelcam/internal/classify"
	"github.com/ayusman/reelcam/internal/composite"
	"github.com/ayusman/reelcam/internal/config"
	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/frameindex"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/ingest"
	"github.com/ayusman/reelcam/internal/notify"
	"github.com/ayusman/reelcam/internal/render"
	"github.com/ayusman/reelcam/internal/review"
	"github.com/ayusman/reelcam/internal/schedule"
	"github.com/ayusman/reelcam/internal/store"
	"github.com/ayusman/reelcam/internal/track"
)

// Config holds the pipeline policies.
type Config struct {
	DuplicatePolicy frameindex.DuplicatePolicy
	Classifier      classify.Config
	Spacing         int
	Render          render.Config
	Codec           string
	OutputDir       string
	Workers         int
	// Compositor names the external compositor; empty skips composition.
	Compositor string
	Watermark  string
}

// ConfigFrom maps a validated application config onto pipeline policies.
func ConfigFrom(c *config.Config) Config {
	return Config{
		DuplicatePolicy: frameindex.DuplicatePolicy(c.Index.DuplicatePolicy),
		Classifier: classify.Config{
			Tolerance: c.Classifier.Tolerance,
			Split:     classify.SplitPolicy(c.Classifier.Split),
		},
		Spacing: c.Scheduler.Spacing,
		Render: render.Config{
			Mode: render.Mode(c.Render.Mode),
			FullFrame: geom.FullFrameOptions{
				MinFrameFactor: c.Geometry.MinFrameFactor,
				Margin:         c.Geometry.Margin,
			},
			Target: geom.TargetOptions{
				Aspect: c.Geometry.TargetAspect,
				Margin: c.Geometry.Margin,
			},
			Width:  c.Render.Width,
			Height: c.Render.Height,
		},
		Codec:      c.Render.Codec,
		OutputDir:  c.OutputDir,
		Workers:    c.Batch.Workers,
		Compositor: c.Compositor.Name,
		Watermark:  c.Compositor.Watermark,
	}
}

// SinkFactory opens the sink a clip is rendered into.
type SinkFactory func(path string, fps float64, size image.Point) (render.Sink, error)

// Deps are the collaborators a Pipeline is built with.
type Deps struct {
	Store    *store.Store
	Open     capture.Opener
	Reviewer review.Reviewer
	// Compositors and Executor are only needed when Config.Compositor is set.
	Compositors *composite.Manager
	Executor    *composite.Executor
	Notifier    notify.Notifier
	// NewSink defaults to a video file with Config.Codec.
	NewSink  SinkFactory
	Progress io.Writer
	Logger   zerolog.Logger
}

// Pipeline is the capability object for one process. It holds no per-asset state, so
// RenderAsset may run concurrently for different assets.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New creates a Pipeline. Missing optional collaborators get no-op defaults.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Reviewer == nil {
		return nil, errors.New("pipeline: reviewer is required")
	}
	if deps.Open == nil {
		deps.Open = capture.NewFileSource
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if cfg.Compositor != "" && (deps.Compositors == nil || deps.Executor == nil) {
		return nil, fmt.Errorf("pipeline: compositor %q configured without a manager", cfg.Compositor)
	}
	if cfg.Spacing <= 0 {
		cfg.Spacing = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DuplicatePolicy == "" {
		cfg.DuplicatePolicy = frameindex.PolicyError
	}
	if cfg.Codec == "" {
		cfg.Codec = "mp4v"
	}
	if cfg.Render.FullFrame == (geom.FullFrameOptions{}) {
		cfg.Render.FullFrame = geom.DefaultFullFrameOptions()
	}
	if cfg.Render.Target == (geom.TargetOptions{}) {
		cfg.Render.Target = geom.DefaultTargetOptions()
	}
	if deps.NewSink == nil {
		codec := cfg.Codec
		deps.NewSink = func(path string, fps float64, size image.Point) (render.Sink, error) {
			return render.NewVideoFileSink(path, codec, fps, size)
		}
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// Reviewed is the outcome of ReviewAsset and the input of RenderAsset.
type Reviewed struct {
	Asset     *store.Asset
	Video     string
	Index     *frameindex.Index
	Corrected *track.Boxes
	FPS       float64
	Result    domain.AssetResult
}

// ErrIncomplete is returned when the review session ended before the asset was fully reviewed.
// Progress made so far is stored and reused by the next run.
var ErrIncomplete = errors.New("review incomplete")

// ReviewAsset indexes the video, classifies every raw detection, collects manual boxes for the
// residual gaps and stores the corrected track. Classifications and manual boxes from earlier
// sessions are reused without prompting.
func (p *Pipeline) ReviewAsset(ctx context.Context, a Asset) (*Reviewed, error) {
	logger := p.deps.Logger.With().Str("video", a.Video).Logger()

	asset, err := p.deps.Store.Assets().Ensure(a.Video)
	if err != nil {
		return nil, fmt.Errorf("register asset: %w", err)
	}
	rv := &Reviewed{
		Asset:  asset,
		Video:  a.Video,
		Result: domain.AssetResult{AssetID: asset.ID, Path: a.Video, Issues: []domain.Issue{}},
	}

	if err := p.review(ctx, a, rv, logger); err != nil {
		rv.Result.Fail(err)
		p.setStatus(asset, store.AssetStatusFailed, 0, logger)
		return rv, err
	}

	rv.Result.Status = domain.StatusReviewed
	p.setStatus(asset, store.AssetStatusReviewed, rv.Result.RetentionRate, logger)
	return rv, nil
}

func (p *Pipeline) review(ctx context.Context, a Asset, rv *Reviewed, logger zerolog.Logger) error {
	src := p.deps.Open(a.Video)
	if err := src.Open(); err != nil {
		return domain.NewError(domain.KindIO, "pipeline.ReviewAsset", err)
	}
	defer src.Close()

	w, h := src.Size()
	rv.FPS = src.FPS()
	rv.Asset.Width, rv.Asset.Height = w, h

	index, err := frameindex.Build(src, frameindex.Options{Policy: p.cfg.DuplicatePolicy, Logger: logger})
	if err != nil {
		return err
	}
	rv.Index = index
	rv.Asset.Frames = index.Len()

	in, err := loadTracks(a, w, h)
	if err != nil {
		return err
	}
	rv.Result.Issues = append(rv.Result.Issues, in.issues...)
	rv.Result.Detections = in.raw.Len()

	prior, err := p.deps.Store.Classifications().ListByAsset(rv.Asset.ID)
	if err != nil {
		return fmt.Errorf("load prior classifications: %w", err)
	}

	classifier := classify.New(p.deps.Reviewer, p.cfg.Classifier, logger)
	classes, err := classifier.Classify(ctx, classify.Input{
		AssetID: rv.Asset.ID,
		Index:   index,
		Source:  src,
		Raw:     in.raw,
		Merged:  in.merged,
		Aux:     in.aux,
		Prior:   prior,
	})
	if err != nil {
		return err
	}
	rv.Result.Issues = append(rv.Result.Issues, classes.Issues...)
	sorted := classes.Sorted()
	rv.Result.Classified = len(sorted)
	if err := p.deps.Store.Classifications().Save(rv.Asset.ID, sorted); err != nil {
		return fmt.Errorf("save classifications: %w", err)
	}
	if classes.Cancelled {
		return fmt.Errorf("%d of %d detections classified: %w", len(sorted), in.raw.Len(), ErrIncomplete)
	}

	walk, err := schedule.Walk(index, in.merged, sorted)
	if err != nil {
		return err
	}
	chunks := schedule.Partition(walk.Needs)
	items := schedule.Plan(index, chunks, p.cfg.Spacing)
	rv.Result.NeedsFrames = len(walk.Needs)
	rv.Result.Chunks = len(chunks)

	priorManual, err := p.deps.Store.ManualBoxes().Load(rv.Asset.ID)
	if err != nil {
		return fmt.Errorf("load prior manual boxes: %w", err)
	}

	collector := &schedule.Collector{Reviewer: p.deps.Reviewer, Logger: logger}
	collected, err := collector.Collect(ctx, schedule.CollectInput{
		AssetID: rv.Asset.ID,
		Items:   items,
		Source:  src,
		Index:   index,
		Suggest: walk.Trusted,
		Prior:   priorManual,
	})
	if err != nil {
		return err
	}
	rv.Result.Issues = append(rv.Result.Issues, collected.Issues...)
	if err := p.deps.Store.ManualBoxes().Save(rv.Asset.ID, collected.Manual); err != nil {
		return fmt.Errorf("save manual boxes: %w", err)
	}
	if collected.Cancelled {
		return fmt.Errorf("%d of %d manual boxes entered: %w", collected.Manual.Len(), len(items), ErrIncomplete)
	}

	rv.Corrected = walk.Trusted.Merge(collected.Manual)
	rv.Result.ManualBoxes = collected.Manual.Len()
	rv.Result.RetentionRate = schedule.RetentionRate(collected.Manual.Len(), len(walk.Needs))

	if err := p.putTrack(rv, store.TrackCorrected, rv.Corrected); err != nil {
		return err
	}
	if err := p.putTrack(rv, store.TrackManual, collected.Manual); err != nil {
		return err
	}

	logger.Info().
		Int("detections", rv.Result.Detections).
		Int("needs_frames", rv.Result.NeedsFrames).
		Int("manual_boxes", rv.Result.ManualBoxes).
		Float64("retention_rate", rv.Result.RetentionRate).
		Msg("asset reviewed")
	return nil
}

func (p *Pipeline) putTrack(rv *Reviewed, kind string, path *track.Boxes) error {
	data, err := ingest.MarshalTrack(path, ingest.Meta{
		Asset:  rv.Asset.ID,
		Kind:   kind,
		Width:  rv.Asset.Width,
		Height: rv.Asset.Height,
	})
	if err != nil {
		return fmt.Errorf("encode %s track: %w", kind, err)
	}
	if err := p.deps.Store.Tracks().Put(rv.Asset.ID, kind, data); err != nil {
		return fmt.Errorf("save %s track: %w", kind, err)
	}
	return nil
}

// RenderAsset renders the corrected track of a reviewed asset into OutputDir, hands the clip to
// the compositor when one is configured and announces it. rv.Result is updated in place.
func (p *Pipeline) RenderAsset(ctx context.Context, rv *Reviewed) error {
	logger := p.deps.Logger.With().Str("video", rv.Video).Logger()

	clip, err := p.render(ctx, rv, logger)
	if err != nil {
		rv.Result.Fail(err)
		p.setStatus(rv.Asset, store.AssetStatusFailed, 0, logger)
		return err
	}
	rv.Result.Status = domain.StatusRendered
	rv.Result.Clip = clip
	p.setStatus(rv.Asset, store.AssetStatusRendered, rv.Result.RetentionRate, logger)

	ev := notify.ClipReady{
		AssetID:        rv.Asset.ID,
		Source:         rv.Video,
		Clip:           clip,
		RetentionRate:  rv.Result.RetentionRate,
		RenderedFrames: rv.Result.RenderedFrames,
	}
	if err := p.deps.Notifier.Notify(ctx, ev); err != nil {
		logger.Warn().Err(err).Msg("clip ready notification failed")
	}
	return nil
}

func (p *Pipeline) render(ctx context.Context, rv *Reviewed, logger zerolog.Logger) (string, error) {
	const op = "pipeline.RenderAsset"

	if rv.Index == nil || rv.Corrected == nil {
		return "", domain.NewError(domain.KindConsistency, op, errors.New("asset has not been reviewed"))
	}
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return "", domain.NewError(domain.KindIO, op, err)
	}

	src := p.deps.Open(rv.Video)
	if err := src.Open(); err != nil {
		return "", domain.NewError(domain.KindIO, op, err)
	}
	defer src.Close()

	renderer := render.New(p.cfg.Render, logger)
	// with parallel workers RunBatch shows one bar for the whole batch
	if p.cfg.Workers == 1 {
		renderer.Progress = p.deps.Progress
	}

	w, h := src.Size()
	base := strings.TrimSuffix(filepath.Base(rv.Video), filepath.Ext(rv.Video))
	clip := filepath.Join(p.cfg.OutputDir, base+".camera.mp4")
	sink, err := p.deps.NewSink(clip, src.FPS(), renderer.OutputSize(w, h))
	if err != nil {
		return "", domain.NewError(domain.KindIO, op, err)
	}

	stats, err := renderer.Render(ctx, src, rv.Index, rv.Corrected, sink)
	if cerr := sink.Close(); err == nil && cerr != nil {
		err = domain.NewError(domain.KindIO, op, cerr)
	}
	if stats != nil {
		rv.Result.RenderedFrames = stats.Frames
		rv.Result.Issues = append(rv.Result.Issues, stats.Issues...)
	}
	if err != nil {
		return "", err
	}
	logger.Info().Str("clip", clip).Int("frames", stats.Frames).Msg("clip rendered")

	if p.cfg.Compositor == "" {
		return clip, nil
	}
	return p.compose(ctx, rv, clip, filepath.Join(p.cfg.OutputDir, base+".reel.mp4"), logger)
}

func (p *Pipeline) compose(ctx context.Context, rv *Reviewed, clip, output string, logger zerolog.Logger) (string, error) {
	const op = "pipeline.compose"

	c, err := p.deps.Compositors.Get(p.cfg.Compositor)
	if err != nil {
		return "", domain.NewError(domain.KindIO, op, err)
	}
	resp, err := p.deps.Executor.Execute(ctx, c, &composite.Request{
		AssetID:   rv.Asset.ID,
		Clip:      clip,
		Audio:     rv.Video,
		Output:    output,
		Watermark: p.cfg.Watermark,
	})
	if err != nil {
		return "", domain.NewError(domain.KindIO, op, err)
	}
	logger.Info().Str("compositor", c.Manifest.Name).Str("output", resp.Output).Msg("clip composed")
	return resp.Output, nil
}

func (p *Pipeline) setStatus(a *store.Asset, status store.AssetStatus, retention float64, logger zerolog.Logger) {
	a.Status = status
	a.RetentionRate = retention
	if err := p.deps.Store.Assets().Update(a); err != nil {
		logger.Warn().Err(err).Str("status", string(status)).Msg("failed to update asset status")
	}
}
