// Package frameindex maps frame ordinals to decoder timestamps and back.
package frameindex

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ayusman/reelcam/internal/capture"
	"github.com/ayusman/reelcam/internal/domain"
)

// DuplicatePolicy decides what happens when the decoder reports a timestamp that does not
// increase over its predecessor.
type DuplicatePolicy string

const (
	// PolicyError rejects the video with a NonMonotonicError.
	PolicyError DuplicatePolicy = "error"
	// PolicyKeepFirst keeps the earlier ordinal and drops every later report of the same or an
	// older timestamp.
	PolicyKeepFirst DuplicatePolicy = "keep-first"
	// PolicyDropLater is PolicyKeepFirst without the warning per dropped frame; one summary
	// warning is logged instead.
	PolicyDropLater DuplicatePolicy = "drop-later"
)

// ParsePolicy validates a configured policy name. The empty string means PolicyError.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case "":
		return PolicyError, nil
	case PolicyError, PolicyKeepFirst, PolicyDropLater:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate timestamp policy %q", s)
	}
}

// NonMonotonicError reports a decoder timestamp that does not increase.
type NonMonotonicError struct {
	Ordinal int
	Prev    int64
	Got     int64
}

func (e *NonMonotonicError) Error() string {
	return fmt.Sprintf("frame %d reports timestamp %dms after %dms", e.Ordinal, e.Got, e.Prev)
}

// Options configures index construction.
type Options struct {
	Policy DuplicatePolicy
	Logger zerolog.Logger
}

// Index is an immutable bijection between frame ordinals and timestamps in milliseconds.
// Timestamps are strictly increasing by ordinal. When a duplicate policy drops frames, index
// ordinals no longer match decoder positions; Frame maps one to the other.
type Index struct {
	ts     []int64
	frames []int
	tol    int64
}

// Build scans src frame headers without decoding pixels. src must be open.
func Build(src capture.Source, opts Options) (*Index, error) {
	const op = "frameindex.Build"

	if !src.IsOpen() {
		return nil, domain.NewError(domain.KindIO, op, capture.ErrSourceNotOpen)
	}

	limit := src.FrameCount()
	ts := make([]int64, 0, max(limit, 0))
	for limit <= 0 || len(ts) < limit {
		if !src.Grab() {
			break
		}
		ts = append(ts, src.Position())
	}
	if len(ts) == 0 {
		return nil, domain.NewError(domain.KindIO, op, fmt.Errorf("no decodable frames"))
	}

	return FromTimestamps(ts, opts)
}

// FromTimestamps builds an index from timestamps listed in decode order.
func FromTimestamps(ts []int64, opts Options) (*Index, error) {
	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}

	out := make([]int64, 0, len(ts))
	frames := make([]int, 0, len(ts))
	dropped := 0
	for i, t := range ts {
		if n := len(out); n > 0 && t <= out[n-1] {
			if policy == PolicyError {
				return nil, &NonMonotonicError{Ordinal: i, Prev: out[n-1], Got: t}
			}
			if policy == PolicyKeepFirst {
				opts.Logger.Warn().
					Int("ordinal", i).
					Int64("prev", out[n-1]).
					Int64("timestamp", t).
					Msg("dropping non-monotonic frame timestamp")
			}
			dropped++
			continue
		}
		out = append(out, t)
		frames = append(frames, i)
	}
	if dropped > 0 && policy == PolicyDropLater {
		opts.Logger.Warn().Int("dropped", dropped).Msg("dropped non-monotonic frame timestamps")
	}

	return &Index{ts: out, frames: frames, tol: tolerance(out)}, nil
}

// tolerance is half the shortest frame interval.
func tolerance(ts []int64) int64 {
	var gap int64
	for i := 1; i < len(ts); i++ {
		if d := ts[i] - ts[i-1]; gap == 0 || d < gap {
			gap = d
		}
	}
	return gap / 2
}

// Len returns the number of indexed frames.
func (x *Index) Len() int { return len(x.ts) }

// Timestamp returns the timestamp of ordinal.
func (x *Index) Timestamp(ordinal int) (int64, bool) {
	if ordinal < 0 || ordinal >= len(x.ts) {
		return 0, false
	}
	return x.ts[ordinal], true
}

// Frame returns the decoder position of ordinal, the value to seek a source to.
func (x *Index) Frame(ordinal int) int {
	if ordinal < 0 || ordinal >= len(x.frames) {
		return ordinal
	}
	return x.frames[ordinal]
}

// Tolerance returns how far, in milliseconds, Snap looks for a frame around a timestamp.
func (x *Index) Tolerance() int64 { return x.tol }

// Snap returns the ordinal nearest to ts when it lies within Tolerance. Detector and tracker
// timestamps may be rounded differently from the decoder's.
func (x *Index) Snap(ts int64) (int, bool) {
	ord := x.Nearest(ts)
	if ord < 0 {
		return 0, false
	}
	d := x.ts[ord] - ts
	if d < 0 {
		d = -d
	}
	if d > x.tol {
		return 0, false
	}
	return ord, true
}

// Ordinal returns the ordinal whose timestamp is exactly ts.
func (x *Index) Ordinal(ts int64) (int, bool) {
	i := sort.Search(len(x.ts), func(i int) bool { return x.ts[i] >= ts })
	if i < len(x.ts) && x.ts[i] == ts {
		return i, true
	}
	return 0, false
}

// Nearest returns the ordinal whose timestamp is closest to ts, preferring the earlier frame on
// a tie. It returns -1 for an empty index.
func (x *Index) Nearest(ts int64) int {
	if len(x.ts) == 0 {
		return -1
	}
	i := sort.Search(len(x.ts), func(i int) bool { return x.ts[i] >= ts })
	switch {
	case i == 0:
		return 0
	case i == len(x.ts):
		return i - 1
	case x.ts[i]-ts < ts-x.ts[i-1]:
		return i
	default:
		return i - 1
	}
}

// Timestamps returns a copy of the timestamps in ordinal order.
func (x *Index) Timestamps() []int64 {
	return append([]int64(nil), x.ts...)
}

// Coverage marks every ordinal that some timestamp in ts snaps to. Timestamps too far from any
// frame are ignored.
func (x *Index) Coverage(ts []int64) []bool {
	covered := make([]bool, len(x.ts))
	for _, t := range ts {
		if ord, ok := x.Snap(t); ok {
			covered[ord] = true
		}
	}
	return covered
}
