package render

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// VideoFileSink encodes frames into a video file.
type VideoFileSink struct {
	path   string
	writer *gocv.VideoWriter
}

// NewVideoFileSink opens path for writing with a four-character codec such as "mp4v" or "MJPG".
func NewVideoFileSink(path, codec string, fps float64, size image.Point) (*VideoFileSink, error) {
	w, err := gocv.VideoWriterFile(path, codec, fps, size.X, size.Y, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer %s: %w", path, err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("open video writer %s: codec %q unavailable", path, codec)
	}
	return &VideoFileSink{path: path, writer: w}, nil
}

// Path returns the output file path.
func (s *VideoFileSink) Path() string { return s.path }

func (s *VideoFileSink) Write(_ int64, frame gocv.Mat) error {
	return s.writer.Write(frame)
}

func (s *VideoFileSink) Close() error {
	return s.writer.Close()
}

// MemoryFrame is one frame kept by MemorySink.
type MemoryFrame struct {
	Timestamp int64
	Size      image.Point
	Mat       gocv.Mat
}

// MemorySink keeps clones of every written frame. Close releases them.
type MemorySink struct {
	mu     sync.Mutex
	frames []MemoryFrame
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(ts int64, frame gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, MemoryFrame{
		Timestamp: ts,
		Size:      image.Pt(frame.Cols(), frame.Rows()),
		Mat:       frame.Clone(),
	})
	return nil
}

// Frames returns the frames written so far. The Mats stay owned by the sink.
func (s *MemorySink) Frames() []MemoryFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MemoryFrame(nil), s.frames...)
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		f.Mat.Close()
	}
	s.frames = nil
	return nil
}
