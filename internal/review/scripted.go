package review

import (
	"context"
	"sync"

	"github.com/ayusman/reelcam/internal/geom"
)

// Scripted is a Reviewer that replays pre-configured answers. Once an answer list is exhausted
// it returns ErrCancelled. It records every prompt it receives, without frames.
type Scripted struct {
	mu        sync.Mutex
	decisions []Decision
	boxes     [][4]geom.Point
	presented []Prompt
	entered   []BoxPrompt
}

// NewScripted creates a Scripted reviewer.
func NewScripted() *Scripted {
	return &Scripted{}
}

// SetDecisions sets the replies returned by Present, in order.
func (s *Scripted) SetDecisions(actions ...Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = s.decisions[:0]
	for _, a := range actions {
		s.decisions = append(s.decisions, Decision{Action: a})
	}
}

// SetBoxes sets the replies returned by EnterBox, in order.
func (s *Scripted) SetBoxes(boxes ...[4]geom.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes = append(s.boxes[:0], boxes...)
}

func (s *Scripted) Present(ctx context.Context, p Prompt) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Frame = nil
	s.presented = append(s.presented, p)
	if len(s.decisions) == 0 {
		return Decision{}, ErrCancelled
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

func (s *Scripted) EnterBox(ctx context.Context, p BoxPrompt) ([4]geom.Point, error) {
	if err := ctx.Err(); err != nil {
		return [4]geom.Point{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Frame = nil
	s.entered = append(s.entered, p)
	if len(s.boxes) == 0 {
		return [4]geom.Point{}, ErrCancelled
	}
	b := s.boxes[0]
	s.boxes = s.boxes[1:]
	return b, nil
}

// Presented returns the prompts seen by Present.
func (s *Scripted) Presented() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.presented...)
}

// Entered returns the prompts seen by EnterBox.
func (s *Scripted) Entered() []BoxPrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BoxPrompt(nil), s.entered...)
}

// Corners returns the four corners of b, clockwise from top-left.
func Corners(b geom.Box) [4]geom.Point {
	return [4]geom.Point{
		{X: b.Left, Y: b.Top},
		{X: b.Right, Y: b.Top},
		{X: b.Right, Y: b.Bottom},
		{X: b.Left, Y: b.Bottom},
	}
}
