package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back in-memory frames with fixed timestamps for testing
type MockSource struct {
	frames     []*gocv.Mat
	timestamps []int64
	unreadable map[int]bool
	openErr    error
	fps        float64

	mu      sync.Mutex
	next    int
	running bool
	closed  int
}

// NewMockSource pairs frames with timestamps in milliseconds. When timestamps is nil the frames
// are spaced 40ms apart.
func NewMockSource(frames []*gocv.Mat, timestamps []int64) *MockSource {
	if timestamps == nil {
		timestamps = make([]int64, len(frames))
		for i := range timestamps {
			timestamps[i] = int64(i) * 40
		}
	}
	return &MockSource{
		frames:     frames,
		timestamps: timestamps,
		unreadable: make(map[int]bool),
		fps:        25,
	}
}

func (s *MockSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.running = true
	s.next = 0
	return nil
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.closed++
	return nil
}

func (s *MockSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *MockSource) FrameCount() int { return len(s.timestamps) }
func (s *MockSource) FPS() float64    { return s.fps }

func (s *MockSource) Size() (int, int) {
	if len(s.frames) == 0 {
		return 0, 0
	}
	return s.frames[0].Cols(), s.frames[0].Rows()
}

func (s *MockSource) Grab() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.next >= len(s.timestamps) {
		return false
	}
	s.next++
	return true
}

func (s *MockSource) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == 0 {
		return 0
	}
	return s.timestamps[s.next-1]
}

func (s *MockSource) Seek(ordinal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrSourceNotOpen
	}
	if ordinal < 0 || ordinal >= len(s.timestamps) || s.unreadable[ordinal] {
		return fmt.Errorf("cannot seek to frame %d", ordinal)
	}
	s.next = ordinal
	return nil
}

func (s *MockSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}
	if s.next >= len(s.frames) {
		return nil, fmt.Errorf("no more frames")
	}
	if s.unreadable[s.next] {
		s.next++
		return nil, fmt.Errorf("frame %d is corrupt", s.next-1)
	}

	// Clone the frame so the original isn't modified
	frame := s.frames[s.next].Clone()
	s.next++

	return &frame, nil
}

// SetUnreadable marks ordinals that fail to seek and decode
func (s *MockSource) SetUnreadable(ordinals ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range ordinals {
		s.unreadable[o] = true
	}
}

// SetOpenError makes Open fail with err
func (s *MockSource) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// CloseCount returns how many times Close was called
func (s *MockSource) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Timestamps returns a copy of the presentation timestamps in milliseconds
func (s *MockSource) Timestamps() []int64 {
	return append([]int64(nil), s.timestamps...)
}
