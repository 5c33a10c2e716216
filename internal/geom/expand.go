package geom

import (
	"fmt"
	"image"
	"math"

	"github.com/ayusman/reelcam/internal/domain"
)

// FullFrameOptions configures ExpandToFullFrame.
type FullFrameOptions struct {
	// MinFrameFactor is the smallest allowed fraction of each source dimension.
	MinFrameFactor float64
	// Margin is added on every side as a fraction of the matching source dimension.
	Margin float64
}

// DefaultFullFrameOptions returns MinFrameFactor 0.3 and Margin 0.1.
func DefaultFullFrameOptions() FullFrameOptions {
	return FullFrameOptions{MinFrameFactor: 0.3, Margin: 0.1}
}

// TargetOptions configures ExpandToTargetAspect.
type TargetOptions struct {
	// Aspect is the requested width/height ratio, e.g. 9/16 for vertical reels.
	Aspect float64
	// Margin is added on every side as a fraction of the matching source dimension.
	Margin float64
}

// DefaultTargetOptions returns a 9:16 aspect with a 0.1 margin.
func DefaultTargetOptions() TargetOptions {
	return TargetOptions{Aspect: 9.0 / 16.0, Margin: 0.1}
}

// ExpandToFullFrame computes a camera frame with the source aspect ratio around minimal.
//
// The minimal box is grown by the margin, then the shorter side is grown to the source aspect,
// then both sides are grown to at least MinFrameFactor of the source. The result is shifted,
// never rescaled, to lie inside the source. When the required size reaches the source size the
// full frame is returned.
func ExpandToFullFrame(srcW, srcH int, minimal Box, opts FullFrameOptions) (image.Rectangle, error) {
	const op = "geom.ExpandToFullFrame"

	if srcW <= 0 || srcH <= 0 {
		return image.Rectangle{}, geometryError(op, "source %dx%d has no extent", srcW, srcH)
	}
	full := fullFrame(srcW, srcH)
	if minimal.Covers(srcW, srcH) {
		return full, nil
	}
	if !minimal.Valid() {
		return image.Rectangle{}, geometryError(op, "minimal box %v has no extent", minimal)
	}

	W, H := float64(srcW), float64(srcH)
	b := grow(minimal, opts.Margin*W, opts.Margin*H)
	aspect := W / H

	w, h := b.Width(), b.Height()
	if w/h < aspect {
		w = h * aspect
	} else {
		h = w / aspect
	}
	minW, minH := opts.MinFrameFactor*W, opts.MinFrameFactor*H
	if w < minW {
		w = minW
		h = w / aspect
	}
	if h < minH {
		h = minH
		w = h * aspect
	}
	if w >= W || h >= H {
		return full, nil
	}

	wi, hi := alignedSize(b, aspect, minW, minH)
	if wi == 0 {
		// round up, never below the margin box; widen until the height is within a pixel of
		// the aspect
		for wi = ceilEven(w); wi < srcW; wi += 2 {
			hi = ceilEven(float64(wi) / aspect)
			if float64(hi)-float64(wi)/aspect <= 1 {
				break
			}
		}
	}
	if wi >= srcW || hi >= srcH {
		return full, nil
	}

	c := b.Center()
	r := image.Rect(0, 0, wi, hi).Add(image.Pt(
		int(math.Round(c.X-float64(wi)/2)),
		int(math.Round(c.Y-float64(hi)/2)),
	))
	return checked(op, shiftInside(r, srcW, srcH), srcW, srcH)
}

// ExpandToTargetAspect computes a reel frame with the requested aspect around minimal.
//
// The margin-expanded box is clamped to the source, then the deficient dimension grows by
// alternately adding pixels to both sides. Once one side reaches a source edge the remaining
// growth goes to the other side. When the needed extent reaches the source extent on that axis,
// the axis collapses to the full source extent.
func ExpandToTargetAspect(srcW, srcH int, minimal Box, opts TargetOptions) (image.Rectangle, error) {
	const op = "geom.ExpandToTargetAspect"

	if srcW <= 0 || srcH <= 0 {
		return image.Rectangle{}, geometryError(op, "source %dx%d has no extent", srcW, srcH)
	}
	if !(opts.Aspect > 0) || math.IsInf(opts.Aspect, 0) {
		return image.Rectangle{}, geometryError(op, "target aspect %v is not positive", opts.Aspect)
	}
	if minimal.Covers(srcW, srcH) {
		return fullFrame(srcW, srcH), nil
	}
	if !minimal.Valid() {
		return image.Rectangle{}, geometryError(op, "minimal box %v has no extent", minimal)
	}

	bounds := image.Rect(0, 0, srcW, srcH)
	b := grow(minimal, opts.Margin*float64(srcW), opts.Margin*float64(srcH))
	r := evenOut(b.Rect().Intersect(bounds), srcW, srcH)
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return image.Rectangle{}, geometryError(op, "clamped box %v has no extent", r)
	}

	ratio := float64(r.Dx()) / float64(r.Dy())
	switch {
	case ratio < opts.Aspect:
		need := nearestEven(float64(r.Dy()) * opts.Aspect)
		r.Min.X, r.Max.X = growAxis(r.Min.X, r.Max.X, need, srcW)
	case ratio > opts.Aspect:
		need := nearestEven(float64(r.Dx()) / opts.Aspect)
		r.Min.Y, r.Max.Y = growAxis(r.Min.Y, r.Max.Y, need, srcH)
	}
	return checked(op, Even(r), srcW, srcH)
}

// growAxis widens [lo,hi) to need pixels inside [0,limit).
func growAxis(lo, hi, need, limit int) (int, int) {
	if need >= limit {
		return 0, limit
	}
	d := need - (hi - lo)
	if d <= 0 {
		return lo, hi
	}
	addLo, addHi := (d+1)/2, d/2
	if addLo > lo {
		addHi += addLo - lo
		addLo = lo
	}
	if room := limit - hi; addHi > room {
		addLo += addHi - room
		addHi = room
	}
	return lo - addLo, hi + addHi
}

// alignedSize returns the size of b when it is already a valid camera frame: whole even pixels,
// at least the minimum size and within one pixel of the aspect. Otherwise it returns zeros.
func alignedSize(b Box, aspect, minW, minH float64) (int, int) {
	w, h := b.Width(), b.Height()
	if b.Left != math.Trunc(b.Left) || b.Top != math.Trunc(b.Top) || w != math.Trunc(w) || h != math.Trunc(h) {
		return 0, 0
	}
	wi, hi := int(w), int(h)
	if wi%2 != 0 || hi%2 != 0 || w < minW || h < minH {
		return 0, 0
	}
	if math.Abs(h-w/aspect) > 1 {
		return 0, 0
	}
	return wi, hi
}

func grow(b Box, dx, dy float64) Box {
	return Box{Left: b.Left - dx, Top: b.Top - dy, Right: b.Right + dx, Bottom: b.Bottom + dy}
}

func shiftInside(r image.Rectangle, w, h int) image.Rectangle {
	var dx, dy int
	switch {
	case r.Min.X < 0:
		dx = -r.Min.X
	case r.Max.X > w:
		dx = w - r.Max.X
	}
	switch {
	case r.Min.Y < 0:
		dy = -r.Min.Y
	case r.Max.Y > h:
		dy = h - r.Max.Y
	}
	return r.Add(image.Pt(dx, dy))
}

func fullFrame(w, h int) image.Rectangle {
	return Even(image.Rect(0, 0, w, h))
}

// evenOut widens an odd side of r by one pixel, towards whichever edge has room.
func evenOut(r image.Rectangle, w, h int) image.Rectangle {
	if r.Dx()%2 != 0 {
		if r.Max.X < w {
			r.Max.X++
		} else if r.Min.X > 0 {
			r.Min.X--
		}
	}
	if r.Dy()%2 != 0 {
		if r.Max.Y < h {
			r.Max.Y++
		} else if r.Min.Y > 0 {
			r.Min.Y--
		}
	}
	return Even(r)
}

func ceilEven(x float64) int {
	n := int(math.Ceil(x/2-1e-9)) * 2
	if n < 2 {
		n = 2
	}
	return n
}

func nearestEven(x float64) int {
	n := int(math.Round(x/2)) * 2
	if n < 2 {
		n = 2
	}
	return n
}

func checked(op string, r image.Rectangle, w, h int) (image.Rectangle, error) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return image.Rectangle{}, geometryError(op, "computed box %v has no extent", r)
	}
	if !r.In(image.Rect(0, 0, w, h)) {
		return image.Rectangle{}, geometryError(op, "computed box %v leaves %dx%d source", r, w, h)
	}
	return r, nil
}

func geometryError(op, format string, args ...any) error {
	return domain.NewError(domain.KindGeometry, op, fmt.Errorf(format, args...))
}
