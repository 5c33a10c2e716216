// Package render turns a box track and a source video into cropped, resized output frames.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"

	"github.com/ayusman/reelcam/internal/capture"
	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/frameindex"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/track"
)

// Mode selects the geometry used for the crop window.
type Mode string

const (
	// ModeFullFrame keeps the source aspect ratio.
	ModeFullFrame Mode = "full-frame"
	// ModeTargetAspect crops to Config.Target.Aspect, e.g. vertical reels.
	ModeTargetAspect Mode = "target-aspect"
)

// ParseMode validates a configured mode name. The empty string means ModeFullFrame.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeFullFrame, nil
	case ModeFullFrame, ModeTargetAspect:
		return m, nil
	default:
		return "", fmt.Errorf("unknown render mode %q", s)
	}
}

// Config configures a Renderer.
type Config struct {
	Mode      Mode
	FullFrame geom.FullFrameOptions
	Target    geom.TargetOptions
	// Width and Height set the output size. Zero derives it from the source and mode.
	Width  int
	Height int
}

// DefaultConfig returns full-frame rendering at source size.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeFullFrame,
		FullFrame: geom.DefaultFullFrameOptions(),
		Target:    geom.DefaultTargetOptions(),
	}
}

// Sink receives rendered frames in timestamp order. It must not retain frame after Write returns.
type Sink interface {
	Write(ts int64, frame gocv.Mat) error
	Close() error
}

// Stats summarises one Render call.
type Stats struct {
	Frames int
	Issues []domain.Issue
}

// Renderer crops every source frame around the interpolated track.
type Renderer struct {
	cfg    Config
	logger zerolog.Logger
	// Progress, when set, receives a progress bar.
	Progress io.Writer
}

// New creates a Renderer.
func New(cfg Config, logger zerolog.Logger) *Renderer {
	if cfg.Mode == "" {
		cfg.Mode = ModeFullFrame
	}
	return &Renderer{cfg: cfg, logger: logger}
}

// OutputSize returns the configured size, or one derived from the source: the source size in
// full-frame mode, the source height with the target aspect otherwise. Both are even.
func (r *Renderer) OutputSize(srcW, srcH int) image.Point {
	if r.cfg.Width > 0 && r.cfg.Height > 0 {
		return image.Pt(r.cfg.Width&^1, r.cfg.Height&^1)
	}
	if r.cfg.Mode == ModeTargetAspect {
		h := srcH &^ 1
		w := int(float64(h)*r.cfg.Target.Aspect+1) &^ 1
		return image.Pt(min(w, srcW&^1), h)
	}
	return image.Pt(srcW&^1, srcH&^1)
}

// Window computes the crop window at ts. An empty path yields the full frame.
func (r *Renderer) Window(srcW, srcH int, path *track.Boxes, ts int64) (image.Rectangle, error) {
	minimal, ok := path.At(ts)
	if !ok {
		minimal = geom.Box{Left: 0, Top: 0, Right: float64(srcW), Bottom: float64(srcH)}
	}
	if r.cfg.Mode == ModeTargetAspect {
		return geom.ExpandToTargetAspect(srcW, srcH, minimal, r.cfg.Target)
	}
	return geom.ExpandToFullFrame(srcW, srcH, minimal, r.cfg.FullFrame)
}

// Render decodes src from the first frame and writes one output frame per indexed frame. src
// must be open. Corrupt frames are skipped and reported; geometry failures abort.
func (r *Renderer) Render(ctx context.Context, src capture.Source, index *frameindex.Index, path *track.Boxes, sink Sink) (*Stats, error) {
	const op = "render.Render"

	if !src.IsOpen() {
		return nil, domain.NewError(domain.KindIO, op, capture.ErrSourceNotOpen)
	}
	if err := src.Seek(0); err != nil {
		return nil, domain.NewError(domain.KindIO, op, err)
	}

	srcW, srcH := src.Size()
	size := r.OutputSize(srcW, srcH)
	stats := &Stats{}

	var bar *progressbar.ProgressBar
	if r.Progress != nil {
		bar = progressbar.NewOptions(index.Len(),
			progressbar.OptionSetWriter(r.Progress),
			progressbar.OptionSetDescription("Rendering"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetRenderBlankState(true),
		)
		defer bar.Finish()
	}

	decoded := 0
	for ord := 0; ord < index.Len(); ord++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ts, _ := index.Timestamp(ord)

		// frames the index dropped as duplicates are decoded but not rendered
		for ; decoded < index.Frame(ord); decoded++ {
			if !src.Grab() {
				break
			}
		}
		decoded++

		frame, err := src.ReadFrame()
		if err != nil {
			is := domain.IssueFrom(domain.NewErrorAt(domain.KindSkippedFrame, op, ts, err))
			r.logger.Warn().Int64("timestamp", ts).Err(err).Msg("skipping unreadable frame")
			stats.Issues = append(stats.Issues, is)
			continue
		}

		err = r.renderFrame(frame, srcW, srcH, size, path, ts, sink)
		frame.Close()
		if err != nil {
			return stats, err
		}
		stats.Frames++
		if bar != nil {
			bar.Add(1)
		}
	}

	return stats, nil
}

func (r *Renderer) renderFrame(frame *gocv.Mat, srcW, srcH int, size image.Point, path *track.Boxes, ts int64, sink Sink) error {
	const op = "render.Render"

	// decoders may report a different size than they deliver
	if frame.Cols() != srcW || frame.Rows() != srcH {
		srcW, srcH = frame.Cols(), frame.Rows()
	}

	window, err := r.Window(srcW, srcH, path, ts)
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			derr.Timestamp = ts
		}
		return err
	}

	region := frame.Region(window)
	defer region.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.Resize(region, &out, size, 0, 0, gocv.InterpolationArea)
	if out.Empty() {
		return domain.NewErrorAt(domain.KindIO, op, ts, fmt.Errorf("resize %v to %v produced no pixels", window, size))
	}

	if err := sink.Write(ts, out); err != nil {
		return domain.NewErrorAt(domain.KindIO, op, ts, fmt.Errorf("write frame: %w", err))
	}
	return nil
}
