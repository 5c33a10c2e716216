package classify

import (
	"fmt"
	"sort"
)

// SplitPolicy decides how the frames between two detections are shared when no merged-track
// discontinuity and no auxiliary evidence bounds a span.
type SplitPolicy string

const (
	// SplitFavorCurrent gives each side ceil(gap/2) frames. The detection reviewed first keeps
	// the middle frame of an odd gap.
	SplitFavorCurrent SplitPolicy = "favor-current"
	// SplitConservative gives each side floor(gap/2) frames. The middle frame of an odd gap stays
	// unresolved and is scheduled for manual enhancement.
	SplitConservative SplitPolicy = "conservative"
)

// ParseSplitPolicy validates a configured policy name. The empty string means SplitFavorCurrent.
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch p := SplitPolicy(s); p {
	case "":
		return SplitFavorCurrent, nil
	case SplitFavorCurrent, SplitConservative:
		return p, nil
	default:
		return "", fmt.Errorf("unknown split policy %q", s)
	}
}

func (p SplitPolicy) share(gap int) int {
	if gap <= 0 {
		return 0
	}
	if p == SplitConservative {
		return gap / 2
	}
	return (gap + 1) / 2
}

// Span is an inclusive range of frame ordinals and their timestamps.
type Span struct {
	Start   int   `json:"start"`
	End     int   `json:"end"`
	StartTS int64 `json:"start_ts"`
	EndTS   int64 `json:"end_ts"`
}

// Contains reports whether ordinal lies in the span.
func (s Span) Contains(ordinal int) bool {
	return ordinal >= s.Start && ordinal <= s.End
}

// Overlaps reports whether the two spans share an ordinal.
func (s Span) Overlaps(o Span) bool {
	return s.Start <= o.End && o.Start <= s.End
}

// timeline is the per-asset evidence used to bound spans, all in frame ordinals.
type timeline struct {
	covered  []bool
	forward  []int
	backward []int
	split    SplitPolicy
}

// forwardEnd returns the last ordinal of the forward half-span of the detection at o. next is
// the ordinal of the following raw detection, or len(covered) when there is none.
func (tl *timeline) forwardEnd(o, next int) int {
	limit := next - 1
	end := -1
	for g := o; g < limit; g++ {
		if tl.covered[g] != tl.covered[g+1] {
			end = g
			break
		}
	}
	if a, ok := firstAfter(tl.forward, o); ok && a <= limit && (end < 0 || a < end) {
		end = a
	}
	if end >= 0 {
		return end
	}
	if next >= len(tl.covered) {
		return len(tl.covered) - 1
	}
	return o + tl.split.share(next-o-1)
}

// backwardStart mirrors forwardEnd. prev is the ordinal of the preceding raw detection, or -1.
func (tl *timeline) backwardStart(o, prev int) int {
	limit := prev + 1
	start := -1
	for g := o; g > limit; g-- {
		if tl.covered[g] != tl.covered[g-1] {
			start = g
			break
		}
	}
	if a, ok := lastBefore(tl.backward, o); ok && a >= limit && (start < 0 || a > start) {
		start = a
	}
	if start >= 0 {
		return start
	}
	if prev < 0 {
		return 0
	}
	return o - tl.split.share(o-prev-1)
}

func firstAfter(sorted []int, o int) (int, bool) {
	i := sort.SearchInts(sorted, o+1)
	if i < len(sorted) {
		return sorted[i], true
	}
	return 0, false
}

func lastBefore(sorted []int, o int) (int, bool) {
	i := sort.SearchInts(sorted, o)
	if i > 0 {
		return sorted[i-1], true
	}
	return 0, false
}
