// Package capture provides video source access using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/reelcam/internal/domain"
)

// ErrSourceNotOpen is returned when trying to read from a source that is not open.
var ErrSourceNotOpen = errors.New("source is not open")

// Source defines the video handle used by indexing, review and rendering.
//
// Grab advances one frame without decoding pixels. Position reports the decoder timestamp in
// milliseconds of the most recently grabbed or read frame. ReadFrame decodes the next frame;
// the caller is responsible for closing the returned Mat.
type Source interface {
	Open() error
	Close() error
	IsOpen() bool
	FrameCount() int
	FPS() float64
	Size() (width, height int)
	Grab() bool
	Position() int64
	Seek(ordinal int) error
	ReadFrame() (*gocv.Mat, error)
}

// Opener creates a closed Source for a video path.
type Opener func(path string) Source

// fileSource manages video decoding from a file using GoCV.
type fileSource struct {
	path    string
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewFileSource creates a Source reading the video at path.
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

// Open opens the video file. Failure is an IOError.
func (s *fileSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	capture, err := gocv.VideoCaptureFile(s.path)
	if err != nil {
		return domain.NewError(domain.KindIO, "capture.Open", fmt.Errorf("%s: %w", s.path, err))
	}
	if !capture.IsOpened() {
		capture.Close()
		return domain.NewError(domain.KindIO, "capture.Open", fmt.Errorf("%s: cannot be decoded", s.path))
	}

	s.capture = capture
	s.running = true

	return nil
}

// Close closes the video and releases resources.
func (s *fileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		s.running = false
		return nil
	}

	err := s.capture.Close()
	s.capture = nil
	s.running = false

	return err
}

func (s *fileSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

func (s *fileSource) FrameCount() int {
	return int(s.get(gocv.VideoCaptureFrameCount))
}

func (s *fileSource) FPS() float64 {
	return s.get(gocv.VideoCaptureFPS)
}

func (s *fileSource) Size() (int, int) {
	return int(s.get(gocv.VideoCaptureFrameWidth)), int(s.get(gocv.VideoCaptureFrameHeight))
}

// Grab reports whether the decoder advanced by one frame.
func (s *fileSource) Grab() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		return false
	}

	before := s.capture.Get(gocv.VideoCapturePosFrames)
	s.capture.Grab(1)
	return s.capture.Get(gocv.VideoCapturePosFrames) > before
}

func (s *fileSource) Position() int64 {
	return int64(math.Round(s.get(gocv.VideoCapturePosMsec)))
}

// Seek positions the decoder so the next ReadFrame returns the given ordinal.
func (s *fileSource) Seek(ordinal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		return ErrSourceNotOpen
	}

	s.capture.Set(gocv.VideoCapturePosFrames, float64(ordinal))
	if got := int(s.capture.Get(gocv.VideoCapturePosFrames)); got != ordinal {
		return fmt.Errorf("seek to frame %d landed on %d", ordinal, got)
	}
	return nil
}

// ReadFrame decodes the next frame.
// The caller is responsible for closing the returned Mat.
func (s *fileSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		return nil, ErrSourceNotOpen
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from source")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("decoded frame is empty")
	}

	return &mat, nil
}

func (s *fileSource) get(prop gocv.VideoCaptureProperties) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		return 0
	}
	return s.capture.Get(prop)
}

// ReadAt seeks to ordinal and decodes that frame. Seek or read failures are SkippedFrame
// errors carrying ts.
func ReadAt(src Source, ordinal int, ts int64) (*gocv.Mat, error) {
	const op = "capture.ReadAt"

	if err := src.Seek(ordinal); err != nil {
		return nil, domain.NewErrorAt(domain.KindSkippedFrame, op, ts, err)
	}
	mat, err := src.ReadFrame()
	if err != nil {
		return nil, domain.NewErrorAt(domain.KindSkippedFrame, op, ts, err)
	}
	return mat, nil
}
