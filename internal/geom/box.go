// Package geom provides the box primitives and the camera/reel frame expansion used by reelcam.
package geom

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// Box is an axis-aligned region in source pixels. A valid box has Left<Right and Top<Bottom.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Point is a location in source pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Width returns Right-Left.
func (b Box) Width() float64 { return b.Right - b.Left }

// Height returns Bottom-Top.
func (b Box) Height() float64 { return b.Bottom - b.Top }

// Center returns the box center.
func (b Box) Center() Point {
	return Point{X: (b.Left + b.Right) / 2, Y: (b.Top + b.Bottom) / 2}
}

// Valid reports whether every edge is finite and the box has positive extent.
func (b Box) Valid() bool {
	for _, v := range [...]float64{b.Left, b.Top, b.Right, b.Bottom} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Left < b.Right && b.Top < b.Bottom
}

// Area returns the box area, or 0 for an invalid box.
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Rect rounds every edge to the nearest pixel.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.Left)),
		int(math.Round(b.Top)),
		int(math.Round(b.Right)),
		int(math.Round(b.Bottom)),
	)
}

// BoxFromRect converts an integer rectangle.
func BoxFromRect(r image.Rectangle) Box {
	return Box{
		Left:   float64(r.Min.X),
		Top:    float64(r.Min.Y),
		Right:  float64(r.Max.X),
		Bottom: float64(r.Max.Y),
	}
}

// Denormalize maps a box given in 0..1 coordinates onto a w×h source.
func (b Box) Denormalize(w, h int) Box {
	return Box{
		Left:   b.Left * float64(w),
		Top:    b.Top * float64(h),
		Right:  b.Right * float64(w),
		Bottom: b.Bottom * float64(h),
	}
}

// Covers reports whether b contains the whole w×h source.
func (b Box) Covers(w, h int) bool {
	return b.Left <= 0 && b.Top <= 0 && b.Right >= float64(w) && b.Bottom >= float64(h)
}

// Overlaps reports whether b shares any area with the w×h source.
func (b Box) Overlaps(w, h int) bool {
	return b.Right > 0 && b.Bottom > 0 && b.Left < float64(w) && b.Top < float64(h)
}

// Lerp interpolates every edge towards to and snaps the result to whole pixels with even
// width and height.
func (b Box) Lerp(to Box, ratio float64) Box {
	mixed := Box{
		Left:   lerp(b.Left, to.Left, ratio),
		Top:    lerp(b.Top, to.Top, ratio),
		Right:  lerp(b.Right, to.Right, ratio),
		Bottom: lerp(b.Bottom, to.Bottom, ratio),
	}
	return BoxFromRect(Even(mixed.Rect()))
}

// Lerp interpolates both coordinates towards to.
func (p Point) Lerp(to Point, ratio float64) Point {
	return Point{X: lerp(p.X, to.X, ratio), Y: lerp(p.Y, to.Y, ratio)}
}

func lerp(a, b, ratio float64) float64 {
	return a + (b-a)*ratio
}

func (b Box) String() string {
	return fmt.Sprintf("(%.1f,%.1f,%.1f,%.1f)", b.Left, b.Top, b.Right, b.Bottom)
}

// ErrDegeneratePoints is returned when points do not span a region.
var ErrDegeneratePoints = errors.New("points do not span a region")

// BoxFromPoints returns the bounding box of pts, as entered by a reviewer clicking four corners.
func BoxFromPoints(pts ...Point) (Box, error) {
	if len(pts) == 0 {
		return Box{}, ErrDegeneratePoints
	}
	b := Box{Left: pts[0].X, Top: pts[0].Y, Right: pts[0].X, Bottom: pts[0].Y}
	for _, p := range pts[1:] {
		b.Left = math.Min(b.Left, p.X)
		b.Top = math.Min(b.Top, p.Y)
		b.Right = math.Max(b.Right, p.X)
		b.Bottom = math.Max(b.Bottom, p.Y)
	}
	if !b.Valid() {
		return Box{}, ErrDegeneratePoints
	}
	return b, nil
}

// IoU returns intersection-over-union of a and b in [0,1].
func IoU(a, b Box) float64 {
	ix := math.Min(a.Right, b.Right) - math.Max(a.Left, b.Left)
	iy := math.Min(a.Bottom, b.Bottom) - math.Max(a.Top, b.Top)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Even trims the right and bottom edges by one pixel when width or height is odd.
func Even(r image.Rectangle) image.Rectangle {
	if r.Dx()%2 != 0 {
		r.Max.X--
	}
	if r.Dy()%2 != 0 {
		r.Max.Y--
	}
	return r
}
