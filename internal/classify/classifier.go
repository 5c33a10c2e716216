// Package classify scores raw detections against a merged track, records a reviewer's verdict
// for each and computes the span of frames that verdict covers.
package classify

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ayusman/reelcam/internal/capture"
	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/frameindex"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/review"
	"github.com/ayusman/reelcam/internal/track"
)

// Verdict is the reviewed status of one raw detection.
type Verdict string

const (
	Confirmed Verdict = "confirmed"
	Rejected  Verdict = "rejected"
)

// Direction tells which side of a span an auxiliary track may bound.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// Aux is an auxiliary track used only as span evidence.
type Aux struct {
	Direction Direction
	Path      *track.Boxes
}

// Classification is the reviewed state of one raw detection. Once stored it is never mutated.
type Classification struct {
	Timestamp int64       `json:"timestamp"`
	Ordinal   int         `json:"ordinal"`
	Box       geom.Box    `json:"box"`
	Hint      review.Hint `json:"hint"`
	Verdict   Verdict     `json:"verdict"`
	Span      Span        `json:"span"`
}

// Config holds the tunable classifier policies.
type Config struct {
	// Tolerance is subtracted from 1 to get the IoU below which merged neighbors count as
	// dissimilar.
	Tolerance float64
	Split     SplitPolicy
}

// DefaultConfig returns a tolerance of 0.02 and the favor-current split.
func DefaultConfig() Config {
	return Config{Tolerance: 0.02, Split: SplitFavorCurrent}
}

// Input is everything Classify needs for one asset.
type Input struct {
	AssetID string
	Index   *frameindex.Index
	// Source is optional; when set the reviewer is shown the decoded frame and unreadable
	// frames are skipped.
	Source capture.Source
	Raw    *track.Boxes
	Merged *track.Boxes
	Aux    []Aux
	// Prior holds classifications from an earlier session; they are reused without prompting.
	Prior map[int64]Classification
}

// Result is the outcome of one Classify call.
type Result struct {
	Classifications map[int64]Classification
	Issues          []domain.Issue
	// Cancelled is set when the reviewer stopped before every detection was classified.
	Cancelled bool
}

// Sorted returns the classifications in timestamp order.
func (r *Result) Sorted() []Classification {
	out := make([]Classification, 0, len(r.Classifications))
	for _, c := range r.Classifications {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Classifier drives the review of raw detections.
type Classifier struct {
	cfg      Config
	reviewer review.Reviewer
	logger   zerolog.Logger
}

// New creates a Classifier. Zero config fields take their defaults.
func New(reviewer review.Reviewer, cfg Config, logger zerolog.Logger) *Classifier {
	def := DefaultConfig()
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.Split == "" {
		cfg.Split = def.Split
	}
	return &Classifier{cfg: cfg, reviewer: reviewer, logger: logger}
}

// Hint compares the merged boxes strictly before and after ts. Dissimilar neighbors suggest
// the detection tracks real motion; a missing neighbor gives no evidence against it.
func Hint(merged *track.Boxes, ts int64, tolerance float64) review.Hint {
	before, ok := merged.Before(ts)
	if !ok {
		return review.LikelyCorrect
	}
	after, ok := merged.After(ts)
	if !ok {
		return review.LikelyCorrect
	}
	if geom.IoU(before.Value, after.Value) < 1-tolerance {
		return review.LikelyCorrect
	}
	return review.LikelyIncorrect
}

func verdictFor(h review.Hint, a review.Action) Verdict {
	agree := h == review.LikelyCorrect
	if a == review.Flip {
		agree = !agree
	}
	if agree {
		return Confirmed
	}
	return Rejected
}

type detection struct {
	ts  int64
	ord int
	box geom.Box
}

// Classify presents every raw detection in timestamp order and assigns spans. A cancelled
// review returns the classifications made so far with Cancelled set; only a reviewer failure
// other than cancellation is returned as an error.
func (c *Classifier) Classify(ctx context.Context, in Input) (*Result, error) {
	const op = "classify.Classify"

	res := &Result{Classifications: make(map[int64]Classification)}
	if in.Index == nil || in.Index.Len() == 0 {
		return nil, domain.NewError(domain.KindConsistency, op, fmt.Errorf("empty frame index"))
	}

	var dets []detection
	for _, s := range in.Raw.Samples() {
		ord, ok := in.Index.Snap(s.Timestamp)
		if !ok {
			c.skip(res, domain.NewErrorAt(domain.KindSkippedFrame, op, s.Timestamp, fmt.Errorf("no frame at timestamp")))
			continue
		}
		if k := len(dets); k > 0 && dets[k-1].ord == ord {
			c.skip(res, domain.NewErrorAt(domain.KindSkippedFrame, op, s.Timestamp,
				fmt.Errorf("frame %d already has the detection at %dms", ord, dets[k-1].ts)))
			continue
		}
		dets = append(dets, detection{ts: s.Timestamp, ord: ord, box: s.Value})
	}

	tl := c.timeline(in)

	var stack []int
	for i := 0; i < len(dets); {
		d := dets[i]

		if prior, ok := in.Prior[d.ts]; ok {
			res.Classifications[d.ts] = prior
			i++
			continue
		}

		hint := Hint(in.Merged, d.ts, c.cfg.Tolerance)
		decision, err := c.present(ctx, in, d, hint, i, len(dets))
		if err != nil {
			if review.Cancelled(err) {
				c.logger.Info().Str("asset", in.AssetID).Int("remaining", len(dets)-i).Msg("review cancelled")
				res.Cancelled = true
				break
			}
			if domain.KindOf(err) == domain.KindSkippedFrame {
				c.skip(res, err)
				i++
				continue
			}
			return nil, fmt.Errorf("present detection at %dms: %w", d.ts, err)
		}

		if decision.Action == review.Back {
			if n := len(stack); n > 0 {
				i = stack[n-1]
				stack = stack[:n-1]
				delete(res.Classifications, dets[i].ts)
			}
			continue
		}

		span := c.span(tl, in, dets, i, res)
		res.Classifications[d.ts] = Classification{
			Timestamp: d.ts,
			Ordinal:   d.ord,
			Box:       d.box,
			Hint:      hint,
			Verdict:   verdictFor(hint, decision.Action),
			Span:      span,
		}
		stack = append(stack, i)
		i++
	}

	return res, nil
}

func (c *Classifier) present(ctx context.Context, in Input, d detection, hint review.Hint, i, total int) (review.Decision, error) {
	p := review.Prompt{
		AssetID:   in.AssetID,
		Timestamp: d.ts,
		Ordinal:   d.ord,
		Box:       d.box,
		Hint:      hint,
		Position:  i + 1,
		Total:     total,
	}
	if in.Source != nil {
		frame, err := capture.ReadAt(in.Source, in.Index.Frame(d.ord), d.ts)
		if err != nil {
			return review.Decision{}, err
		}
		defer frame.Close()
		p.Frame = frame
	}
	return c.reviewer.Present(ctx, p)
}

func (c *Classifier) skip(res *Result, err error) {
	is := domain.IssueFrom(err)
	c.logger.Warn().Int64("timestamp", is.Timestamp).Err(err).Msg("skipping detection")
	res.Issues = append(res.Issues, is)
}

func (c *Classifier) timeline(in Input) *timeline {
	tl := &timeline{
		covered: in.Index.Coverage(in.Merged.Timestamps()),
		split:   c.cfg.Split,
	}
	for _, a := range in.Aux {
		var ords []int
		for _, ts := range a.Path.Timestamps() {
			if ord, ok := in.Index.Snap(ts); ok && !tl.covered[ord] {
				ords = append(ords, ord)
			}
		}
		switch a.Direction {
		case Forward:
			tl.forward = append(tl.forward, ords...)
		case Backward:
			tl.backward = append(tl.backward, ords...)
		}
	}
	sort.Ints(tl.forward)
	sort.Ints(tl.backward)
	return tl
}

// span computes the span of dets[i], clamped so it never overlaps the classification of an
// earlier detection or a prior classification of the next one.
func (c *Classifier) span(tl *timeline, in Input, dets []detection, i int, res *Result) Span {
	o := dets[i].ord
	prev, next := -1, len(tl.covered)
	if i > 0 {
		prev = dets[i-1].ord
	}
	if i+1 < len(dets) {
		next = dets[i+1].ord
	}

	start := tl.backwardStart(o, prev)
	end := tl.forwardEnd(o, next)

	for j := i - 1; j >= 0; j-- {
		if cl, ok := res.Classifications[dets[j].ts]; ok {
			start = max(start, cl.Span.End+1)
			break
		}
	}
	if i+1 < len(dets) {
		if cl, ok := in.Prior[dets[i+1].ts]; ok {
			end = min(end, cl.Span.Start-1)
		}
	}
	start = min(start, o)
	end = max(end, o)

	s := Span{Start: start, End: end}
	s.StartTS, _ = in.Index.Timestamp(start)
	s.EndTS, _ = in.Index.Timestamp(end)
	return s
}
