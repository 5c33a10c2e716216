// Package testdata generates synthetic frames and clips for tests.
package testdata

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var subjectColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// SubjectFrame returns a black w×h frame with a filled white subject rectangle.
// The caller closes the Mat.
func SubjectFrame(w, h int, subject image.Rectangle) *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&mat, subject, subjectColor, -1)
	return &mat
}

// Sequence returns n frames with the subject moving linearly from start to end.
func Sequence(w, h, n int, start, end image.Rectangle) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		ratio := 0.0
		if n > 1 {
			ratio = float64(i) / float64(n-1)
		}
		r := image.Rect(
			lerp(start.Min.X, end.Min.X, ratio),
			lerp(start.Min.Y, end.Min.Y, ratio),
			lerp(start.Max.X, end.Max.X, ratio),
			lerp(start.Max.Y, end.Max.Y, ratio),
		)
		frames[i] = SubjectFrame(w, h, r)
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// WriteClip encodes frames into an MJPG clip at path.
func WriteClip(path string, frames []*gocv.Mat, fps float64) error {
	if len(frames) == 0 {
		return fmt.Errorf("write clip %s: no frames", path)
	}
	w, err := gocv.VideoWriterFile(path, "MJPG", fps, frames[0].Cols(), frames[0].Rows(), true)
	if err != nil {
		return fmt.Errorf("write clip %s: %w", path, err)
	}
	defer w.Close()

	for i, f := range frames {
		if err := w.Write(*f); err != nil {
			return fmt.Errorf("write clip %s frame %d: %w", path, i, err)
		}
	}
	return nil
}

func lerp(a, b int, ratio float64) int {
	return a + int(float64(b-a)*ratio+0.5)
}
