package schedule

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ayusman/reelcam/internal/capture"
	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/frameindex"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/review"
	"github.com/ayusman/reelcam/internal/track"
)

// Collector asks a reviewer for one four-point box per planned frame.
type Collector struct {
	Reviewer review.Reviewer
	Logger   zerolog.Logger
}

// CollectInput describes one manual-entry session.
type CollectInput struct {
	AssetID string
	Items   []Item
	// Source is optional; when set the reviewer is shown each frame.
	Source capture.Source
	// Index maps item ordinals to decoder positions in Source. Nil seeks to the ordinal.
	Index *frameindex.Index
	// Suggest is evaluated at each item to pre-fill the prompt.
	Suggest *track.Boxes
	// Prior holds manual boxes from an earlier session; those items are not asked again.
	Prior *track.Boxes
}

// Collected is the outcome of Collect.
type Collected struct {
	Manual    *track.Boxes
	Issues    []domain.Issue
	Cancelled bool
}

// Collect walks the plan in order. Unreadable frames and degenerate point sets are recorded as
// recoverable issues; cancellation keeps the boxes entered so far.
func (c *Collector) Collect(ctx context.Context, in CollectInput) (*Collected, error) {
	const op = "schedule.Collect"

	out := &Collected{}
	var manual []track.Sample[geom.Box]

	for i, it := range in.Items {
		if b, ok := in.Prior.Get(it.Timestamp); ok {
			manual = append(manual, track.Sample[geom.Box]{Timestamp: it.Timestamp, Value: b})
			continue
		}

		pts, err := c.enter(ctx, in, it)
		if err != nil {
			if review.Cancelled(err) {
				c.Logger.Info().Str("asset", in.AssetID).Int("remaining", len(in.Items)-i).Msg("manual entry cancelled")
				out.Cancelled = true
				break
			}
			if domain.KindOf(err) == domain.KindSkippedFrame {
				c.issue(out, err)
				continue
			}
			return nil, fmt.Errorf("enter box at %dms: %w", it.Timestamp, err)
		}

		b, err := geom.BoxFromPoints(pts[:]...)
		if err != nil {
			c.issue(out, domain.NewErrorAt(domain.KindInputFormat, op, it.Timestamp, err))
			continue
		}
		manual = append(manual, track.Sample[geom.Box]{Timestamp: it.Timestamp, Value: b})
	}

	out.Manual = track.NewPath(manual)
	return out, nil
}

func (c *Collector) enter(ctx context.Context, in CollectInput, it Item) ([4]geom.Point, error) {
	p := review.BoxPrompt{
		AssetID:   in.AssetID,
		Timestamp: it.Timestamp,
		Ordinal:   it.Ordinal,
		Chunk:     it.Chunk,
	}
	if b, ok := in.Suggest.At(it.Timestamp); ok {
		p.Suggested = &b
	}
	if in.Source != nil {
		pos := it.Ordinal
		if in.Index != nil {
			pos = in.Index.Frame(it.Ordinal)
		}
		frame, err := capture.ReadAt(in.Source, pos, it.Timestamp)
		if err != nil {
			return [4]geom.Point{}, err
		}
		defer frame.Close()
		p.Frame = frame
	}
	return c.Reviewer.EnterBox(ctx, p)
}

func (c *Collector) issue(out *Collected, err error) {
	is := domain.IssueFrom(err)
	c.Logger.Warn().Int64("timestamp", is.Timestamp).Err(err).Msg("manual box dropped")
	out.Issues = append(out.Issues, is)
}
