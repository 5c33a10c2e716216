// Package schedule finds the frames no reviewed detection or trusted track accounts for and picks
// an evenly spaced subset of them for manual box entry.
package schedule

import (
	"fmt"

	"github.com/ayusman/reelcam/internal/classify"
	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/frameindex"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/track"
)

// WalkResult is the outcome of Walk.
type WalkResult struct {
	// Trusted holds merged boxes inside confirmed spans and merged boxes nobody reviewed.
	Trusted *track.Boxes
	// Needs lists the ordinals that need manual enhancement, strictly increasing.
	Needs []int
}

// Walk visits every ordinal once. Confirmed spans contribute their merged boxes, plus the
// confirmed detection itself where merged has nothing, and are skipped as a whole. Ordinals in
// rejected spans, or with neither a classification nor merged coverage, need enhancement.
func Walk(index *frameindex.Index, merged *track.Boxes, classes []classify.Classification) (*WalkResult, error) {
	const op = "schedule.Walk"

	n := index.Len()
	// merged samples by the ordinal they snap to; the closest one wins
	atOrd := make(map[int]track.Sample[geom.Box])
	for _, s := range merged.Samples() {
		o, ok := index.Snap(s.Timestamp)
		if !ok {
			continue
		}
		if prev, dup := atOrd[o]; dup && distance(index, o, prev.Timestamp) <= distance(index, o, s.Timestamp) {
			continue
		}
		atOrd[o] = s
	}
	owner := make([]int, n)
	for i := range owner {
		owner[i] = -1
	}
	for i, c := range classes {
		for o := max(c.Span.Start, 0); o <= c.Span.End && o < n; o++ {
			owner[o] = i
		}
	}

	var trusted []track.Sample[geom.Box]
	var needs []int
	need := func(o int) error {
		if k := len(needs); k > 0 && needs[k-1] >= o {
			ts, _ := index.Timestamp(o)
			return domain.NewErrorAt(domain.KindConsistency, op, ts,
				fmt.Errorf("ordinal %d appended after %d", o, needs[k-1]))
		}
		needs = append(needs, o)
		return nil
	}
	keep := func(o int) {
		if s, ok := atOrd[o]; ok {
			trusted = append(trusted, s)
		}
	}

	for o := 0; o < n; {
		if i := owner[o]; i >= 0 {
			c := classes[i]
			if c.Verdict == classify.Confirmed {
				for g := o; g <= c.Span.End && g < n; g++ {
					_, covered := atOrd[g]
					switch {
					case covered:
						keep(g)
					case g == c.Ordinal:
						trusted = append(trusted, track.Sample[geom.Box]{Timestamp: c.Timestamp, Value: c.Box})
					}
				}
				o = c.Span.End + 1
				continue
			}
			if err := need(o); err != nil {
				return nil, err
			}
			o++
			continue
		}
		if _, covered := atOrd[o]; covered {
			keep(o)
		} else if err := need(o); err != nil {
			return nil, err
		}
		o++
	}

	return &WalkResult{Trusted: track.NewPath(trusted), Needs: needs}, nil
}

func distance(index *frameindex.Index, o int, ts int64) int64 {
	f, _ := index.Timestamp(o)
	if f > ts {
		return f - ts
	}
	return ts - f
}

// Chunk is a maximal run of consecutive ordinals needing enhancement.
type Chunk struct {
	ID    int `json:"id"`
	Start int `json:"start"`
	// Len is the number of ordinals in the chunk.
	Len int `json:"len"`
}

// End returns the last ordinal of the chunk.
func (c Chunk) End() int { return c.Start + c.Len - 1 }

// Partition splits strictly increasing ordinals into maximal contiguous chunks.
func Partition(needs []int) []Chunk {
	var chunks []Chunk
	for i, o := range needs {
		if i > 0 && o-needs[i-1] == 1 {
			chunks[len(chunks)-1].Len++
			continue
		}
		chunks = append(chunks, Chunk{ID: len(chunks), Start: o, Len: 1})
	}
	return chunks
}

// SampleOffsets returns exactly floor(l/spacing)+1 offsets into a chunk of length l, evenly
// spaced and centered, clamped to l-1.
func SampleOffsets(l, spacing int) []int {
	if l <= 0 {
		return nil
	}
	spacing = max(spacing, 1)

	n := l/spacing + 1
	step := l/n + 1
	start := max((l%step+1)/2-1, 0)

	offsets := make([]int, n)
	for k := range offsets {
		offsets[k] = min(start+k*step, l-1)
	}
	return offsets
}

// Item is one frame scheduled for manual box entry.
type Item struct {
	Ordinal   int   `json:"ordinal"`
	Timestamp int64 `json:"timestamp"`
	Chunk     int   `json:"chunk"`
}

// Plan samples every chunk. Offsets that clamp onto the same ordinal are scheduled once.
func Plan(index *frameindex.Index, chunks []Chunk, spacing int) []Item {
	var items []Item
	for _, c := range chunks {
		last := -1
		for _, off := range SampleOffsets(c.Len, spacing) {
			o := c.Start + off
			if o == last {
				continue
			}
			last = o
			ts, _ := index.Timestamp(o)
			items = append(items, Item{Ordinal: o, Timestamp: ts, Chunk: c.ID})
		}
	}
	return items
}

// RetentionRate is the share of in-scope frames that received an explicit manual box. With
// nothing in scope every frame is accounted for and the rate is 1.
func RetentionRate(manual, scope int) float64 {
	if scope <= 0 {
		return 1
	}
	return float64(min(manual, scope)) / float64(scope)
}
