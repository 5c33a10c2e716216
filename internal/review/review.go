// Package review defines the synchronous boundary between the correction algorithms and a human
// reviewer, plus terminal and scripted reviewers.
package review

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/reelcam/internal/geom"
)

// ErrCancelled is returned by a Reviewer when the operator ends the session.
var ErrCancelled = errors.New("review cancelled")

// Hint is the automatic, advisory assessment of one detection.
type Hint int

const (
	LikelyCorrect Hint = iota
	LikelyIncorrect
)

func (h Hint) String() string {
	if h == LikelyIncorrect {
		return "likely incorrect"
	}
	return "likely correct"
}

func (h Hint) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hint) UnmarshalText(b []byte) error {
	switch string(b) {
	case "likely correct":
		*h = LikelyCorrect
	case "likely incorrect":
		*h = LikelyIncorrect
	default:
		return fmt.Errorf("unknown hint %q", b)
	}
	return nil
}

// Action is the reviewer's answer to a Prompt.
type Action int

const (
	// Accept takes the hint as the verdict.
	Accept Action = iota
	// Flip takes the opposite of the hint.
	Flip
	// Back re-presents the previous detection.
	Back
)

func (a Action) String() string {
	switch a {
	case Accept:
		return "accept"
	case Flip:
		return "flip"
	case Back:
		return "back"
	default:
		return "unknown"
	}
}

// Decision is the reviewer's reply to one Prompt.
type Decision struct {
	Action Action
}

// Prompt asks for a verdict on one raw detection. Frame is owned by the caller and is only
// valid for the duration of Present.
type Prompt struct {
	AssetID   string
	Timestamp int64
	Ordinal   int
	Box       geom.Box
	Hint      Hint
	Frame     *gocv.Mat
	// Position and Total locate the prompt within the asset's detections, 1-based.
	Position int
	Total    int
}

// BoxPrompt asks for a four-point box on one frame that needs manual enhancement.
type BoxPrompt struct {
	AssetID   string
	Timestamp int64
	Ordinal   int
	Chunk     int
	Frame     *gocv.Mat
	// Suggested is the interpolated box at Timestamp, if any.
	Suggested *geom.Box
}

// Reviewer is a blocking request/response review session. Implementations return ErrCancelled
// (or the context error) when the operator stops the session.
type Reviewer interface {
	Present(ctx context.Context, p Prompt) (Decision, error)
	EnterBox(ctx context.Context, p BoxPrompt) ([4]geom.Point, error)
}

// Cancelled reports whether err ends a review session without failing the asset.
func Cancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
