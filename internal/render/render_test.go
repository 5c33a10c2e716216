package render

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/reelcam/internal/capture"
	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/frameindex"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/track"
	"github.com/ayusman/reelcam/testdata"
)

const (
	srcW = 320
	srcH = 180
)

func fixture(t *testing.T, n int) (*capture.MockSource, *frameindex.Index, []*gocv.Mat) {
	t.Helper()
	frames := testdata.Sequence(srcW, srcH, n, image.Rect(20, 20, 60, 50), image.Rect(240, 110, 280, 140))
	src := capture.NewMockSource(frames, nil)
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	x, err := frameindex.FromTimestamps(src.Timestamps(), frameindex.Options{})
	if err != nil {
		t.Fatalf("FromTimestamps() error = %v", err)
	}
	return src, x, frames
}

func subjectPath() *track.Boxes {
	return track.NewPath([]track.Sample[geom.Box]{
		{Timestamp: 0, Value: geom.Box{Left: 20, Top: 20, Right: 60, Bottom: 50}},
		{Timestamp: 360, Value: geom.Box{Left: 240, Top: 110, Right: 280, Bottom: 140}},
	})
}

func TestRenderer_FullFrame(t *testing.T) {
	src, x, frames := fixture(t, 10)
	defer testdata.CloseAll(frames)
	defer src.Close()

	r := New(DefaultConfig(), zerolog.Nop())
	sink := NewMemorySink()
	defer sink.Close()

	stats, err := r.Render(context.Background(), src, x, subjectPath(), sink)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if stats.Frames != 10 {
		t.Errorf("Frames = %d, want 10", stats.Frames)
	}

	out := sink.Frames()
	if len(out) != 10 {
		t.Fatalf("sink has %d frames, want 10", len(out))
	}
	for i, f := range out {
		if f.Size != image.Pt(srcW, srcH) {
			t.Errorf("frame %d size = %v, want %dx%d", i, f.Size, srcW, srcH)
		}
		if f.Timestamp != int64(i)*40 {
			t.Errorf("frame %d timestamp = %d", i, f.Timestamp)
		}
	}
}

func TestRenderer_TargetAspect(t *testing.T) {
	src, x, frames := fixture(t, 4)
	defer testdata.CloseAll(frames)
	defer src.Close()

	cfg := DefaultConfig()
	cfg.Mode = ModeTargetAspect
	cfg.Width, cfg.Height = 90, 160
	r := New(cfg, zerolog.Nop())
	sink := NewMemorySink()
	defer sink.Close()

	if _, err := r.Render(context.Background(), src, x, subjectPath(), sink); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for i, f := range sink.Frames() {
		if f.Size != image.Pt(90, 160) {
			t.Errorf("frame %d size = %v, want 90x160", i, f.Size)
		}
	}
}

func TestRenderer_SkipsCorruptFrames(t *testing.T) {
	src, x, frames := fixture(t, 6)
	defer testdata.CloseAll(frames)
	defer src.Close()
	src.SetUnreadable(2)

	sink := NewMemorySink()
	defer sink.Close()
	stats, err := New(DefaultConfig(), zerolog.Nop()).Render(context.Background(), src, x, subjectPath(), sink)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if stats.Frames != 5 || len(stats.Issues) != 1 {
		t.Fatalf("stats = %+v, want 5 frames and 1 issue", stats)
	}
	if is := stats.Issues[0]; is.Kind != domain.KindSkippedFrame || is.Timestamp != 80 {
		t.Errorf("issue = %+v", is)
	}
}

func TestRenderer_DroppedDuplicateFrame(t *testing.T) {
	var frames []*gocv.Mat
	for _, v := range []float64{10, 20, 30, 40} {
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), srcH, srcW, gocv.MatTypeCV8UC3)
		frames = append(frames, &m)
	}
	defer testdata.CloseAll(frames)

	src := capture.NewMockSource(frames, []int64{0, 40, 40, 80})
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()
	x, err := frameindex.FromTimestamps(src.Timestamps(), frameindex.Options{Policy: frameindex.PolicyKeepFirst, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("FromTimestamps() error = %v", err)
	}

	sink := NewMemorySink()
	defer sink.Close()
	stats, err := New(DefaultConfig(), zerolog.Nop()).Render(context.Background(), src, x, subjectPath(), sink)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if stats.Frames != 3 {
		t.Fatalf("Frames = %d, want 3", stats.Frames)
	}

	// the second decoded 40ms frame is skipped, so 80ms shows the last frame
	want := []struct {
		ts   int64
		gray float64
	}{{0, 10}, {40, 20}, {80, 40}}
	for i, f := range sink.Frames() {
		if f.Timestamp != want[i].ts {
			t.Errorf("frame %d timestamp = %d, want %d", i, f.Timestamp, want[i].ts)
		}
		if got := f.Mat.Mean().Val1; math.Abs(got-want[i].gray) > 0.5 {
			t.Errorf("frame %d at %dms has gray %.1f, want %.0f", i, f.Timestamp, got, want[i].gray)
		}
	}
}

func TestRenderer_NotOpen(t *testing.T) {
	src := capture.NewMockSource(nil, []int64{0})
	x, _ := frameindex.FromTimestamps([]int64{0}, frameindex.Options{})

	_, err := New(DefaultConfig(), zerolog.Nop()).Render(context.Background(), src, x, nil, NewMemorySink())
	if domain.KindOf(err) != domain.KindIO {
		t.Errorf("Render() error = %v, want io error", err)
	}
}

func TestRenderer_Cancelled(t *testing.T) {
	src, x, frames := fixture(t, 3)
	defer testdata.CloseAll(frames)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := NewMemorySink()
	defer sink.Close()

	if _, err := New(DefaultConfig(), zerolog.Nop()).Render(ctx, src, x, subjectPath(), sink); err == nil {
		t.Error("Render() should stop on a cancelled context")
	}
}

func TestRenderer_Window(t *testing.T) {
	r := New(DefaultConfig(), zerolog.Nop())

	full, err := r.Window(srcW, srcH, nil, 100)
	if err != nil {
		t.Fatalf("Window(empty path) error = %v", err)
	}
	if full != image.Rect(0, 0, srcW, srcH) {
		t.Errorf("Window(empty path) = %v, want full frame", full)
	}

	path := subjectPath()
	for ts := int64(0); ts <= 360; ts += 20 {
		w, err := r.Window(srcW, srcH, path, ts)
		if err != nil {
			t.Fatalf("Window(%d) error = %v", ts, err)
		}
		if !w.In(image.Rect(0, 0, srcW, srcH)) || w.Dx()%2 != 0 || w.Dy()%2 != 0 {
			t.Errorf("Window(%d) = %v", ts, w)
		}
		if d := math.Abs(float64(w.Dy()) - float64(w.Dx())*srcH/srcW); d > 1 {
			t.Errorf("Window(%d) = %v, %.2fpx off aspect", ts, w, d)
		}
	}
}

func TestRenderer_OutputSize(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want image.Point
	}{
		{name: "source size", cfg: DefaultConfig(), want: image.Pt(1920, 1080)},
		{name: "configured odd size", cfg: Config{Width: 721, Height: 1281}, want: image.Pt(720, 1280)},
		{name: "derived reel size", cfg: Config{Mode: ModeTargetAspect, Target: geom.DefaultTargetOptions()}, want: image.Pt(608, 1080)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.cfg, zerolog.Nop()).OutputSize(1920, 1080); got != tt.want {
				t.Errorf("OutputSize() = %v, want %v", got, tt.want)
			}
		})
	}
}
