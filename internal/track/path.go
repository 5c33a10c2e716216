// Package track holds time-sorted sample sequences and their piecewise-linear evaluation.
package track

import (
	"sort"

	"github.com/ayusman/reelcam/internal/geom"
)

// Value is anything a Path can interpolate. Lerp must return the receiver unchanged for ratio 0.
type Value[T any] interface {
	Lerp(to T, ratio float64) T
}

// Sample is one timestamped value.
type Sample[T any] struct {
	Timestamp int64 `json:"timestamp"`
	Value     T     `json:"value"`
}

// Path is an immutable, strictly time-increasing sequence of samples.
type Path[T Value[T]] struct {
	samples []Sample[T]
}

// Boxes is the track type used for detections, merged tracks and manual corrections.
type Boxes = Path[geom.Box]

// NewPath sorts samples by timestamp. Duplicate timestamps collapse to the sample supplied last.
func NewPath[T Value[T]](samples []Sample[T]) *Path[T] {
	s := make([]Sample[T], len(samples))
	copy(s, samples)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp < s[j].Timestamp })

	out := s[:0]
	for _, smp := range s {
		if n := len(out); n > 0 && out[n-1].Timestamp == smp.Timestamp {
			out[n-1] = smp
			continue
		}
		out = append(out, smp)
	}
	return &Path[T]{samples: out}
}

// FromMap builds a path from a timestamp-keyed map.
func FromMap[T Value[T]](m map[int64]T) *Path[T] {
	samples := make([]Sample[T], 0, len(m))
	for ts, v := range m {
		samples = append(samples, Sample[T]{Timestamp: ts, Value: v})
	}
	return NewPath(samples)
}

// Len returns the number of samples. A nil path is empty.
func (p *Path[T]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.samples)
}

// Samples returns a copy of the samples in time order.
func (p *Path[T]) Samples() []Sample[T] {
	if p == nil {
		return nil
	}
	return append([]Sample[T](nil), p.samples...)
}

// Timestamps returns the sample timestamps in order.
func (p *Path[T]) Timestamps() []int64 {
	out := make([]int64, p.Len())
	for i := range out {
		out[i] = p.samples[i].Timestamp
	}
	return out
}

// At evaluates the path at t. Before the first sample it returns the first value, after the
// last it returns the last value, and between samples it interpolates linearly. The second
// result is false only for an empty path.
func (p *Path[T]) At(t int64) (T, bool) {
	var zero T
	n := p.Len()
	if n == 0 {
		return zero, false
	}
	if t <= p.samples[0].Timestamp {
		return p.samples[0].Value, true
	}
	if t >= p.samples[n-1].Timestamp {
		return p.samples[n-1].Value, true
	}

	i := p.search(t)
	if p.samples[i].Timestamp == t {
		return p.samples[i].Value, true
	}
	a, b := p.samples[i-1], p.samples[i]
	ratio := float64(t-a.Timestamp) / float64(b.Timestamp-a.Timestamp)
	return a.Value.Lerp(b.Value, ratio), true
}

// Get returns the sample stored exactly at t.
func (p *Path[T]) Get(t int64) (T, bool) {
	var zero T
	i := p.search(t)
	if i < p.Len() && p.samples[i].Timestamp == t {
		return p.samples[i].Value, true
	}
	return zero, false
}

// Has reports whether a sample is stored exactly at t.
func (p *Path[T]) Has(t int64) bool {
	_, ok := p.Get(t)
	return ok
}

// Before returns the last sample strictly before t.
func (p *Path[T]) Before(t int64) (Sample[T], bool) {
	i := p.search(t)
	if i == 0 {
		return Sample[T]{}, false
	}
	return p.samples[i-1], true
}

// After returns the first sample strictly after t.
func (p *Path[T]) After(t int64) (Sample[T], bool) {
	i := p.search(t)
	if i < p.Len() && p.samples[i].Timestamp == t {
		i++
	}
	if i >= p.Len() {
		return Sample[T]{}, false
	}
	return p.samples[i], true
}

// Merge returns a new path holding every sample of p and overrides; overrides win on equal
// timestamps.
func (p *Path[T]) Merge(overrides *Path[T]) *Path[T] {
	all := make([]Sample[T], 0, p.Len()+overrides.Len())
	all = append(all, p.Samples()...)
	all = append(all, overrides.Samples()...)
	return NewPath(all)
}

// search returns the index of the first sample with Timestamp >= t.
func (p *Path[T]) search(t int64) int {
	n := p.Len()
	return sort.Search(n, func(i int) bool { return p.samples[i].Timestamp >= t })
}
