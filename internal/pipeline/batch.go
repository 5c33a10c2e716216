package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/review"
)

// ErrNotReviewed marks assets left unreviewed because the review session ended early.
var ErrNotReviewed = errors.New("not reviewed: review session ended")

// RunBatch reviews every asset in order on the single review session, then renders the
// reviewed assets with up to Config.Workers clips in parallel. Per-asset failures are recorded
// in the report; only a failure to store the report is returned.
func (p *Pipeline) RunBatch(ctx context.Context, assets []Asset) (*domain.RunReport, error) {
	report := &domain.RunReport{StartedAt: time.Now()}
	results := make([]domain.AssetResult, len(assets))

	var reviewed []int
	rvs := make([]*Reviewed, len(assets))
	stopped := false
	for i, a := range assets {
		if stopped || ctx.Err() != nil {
			results[i] = skipped(a)
			continue
		}
		rv, err := p.ReviewAsset(ctx, a)
		if rv != nil {
			results[i] = rv.Result
		}
		switch {
		case err == nil:
			rvs[i] = rv
			reviewed = append(reviewed, i)
		case errors.Is(err, ErrIncomplete) || review.Cancelled(err):
			p.deps.Logger.Warn().Str("video", a.Video).Msg("review session ended, remaining assets skipped")
			stopped = true
		default:
			p.deps.Logger.Error().Str("video", a.Video).Err(err).Msg("asset review failed")
		}
		if rv == nil {
			results[i] = failed(a, err)
		}
	}

	p.renderAll(ctx, reviewed, rvs)
	for _, i := range reviewed {
		results[i] = rvs[i].Result
	}

	report.Assets = results
	report.FinishedAt = time.Now()
	report.Finalize()

	if err := p.deps.Store.Runs().Create(report); err != nil {
		return report, fmt.Errorf("save run report: %w", err)
	}
	p.deps.Logger.Info().
		Str("run", report.RunID).
		Int("succeeded", report.Summary.Succeeded).
		Int("failed", report.Summary.Failed).
		Float64("mean_retention", report.Summary.MeanRetention).
		Msg("batch finished")
	return report, nil
}

// renderAll renders rvs[i] for every i in idx. Each worker only touches the Reviewed it was
// handed.
func (p *Pipeline) renderAll(ctx context.Context, idx []int, rvs []*Reviewed) {
	jobs := make(chan int)

	var bar *progressbar.ProgressBar
	if p.cfg.Workers > 1 && p.deps.Progress != nil && len(idx) > 0 {
		bar = progressbar.NewOptions(len(idx),
			progressbar.OptionSetWriter(p.deps.Progress),
			progressbar.OptionSetDescription("Rendered clips"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetRenderBlankState(true),
		)
		defer bar.Finish()
	}

	var wg sync.WaitGroup
	for w := 0; w < min(p.cfg.Workers, len(idx)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rv := rvs[i]
				if err := ctx.Err(); err != nil {
					rv.Result.Fail(err)
					continue
				}
				started := time.Now()
				err := p.RenderAsset(ctx, rv)
				if bar != nil {
					bar.Add(1)
				}
				if err != nil {
					p.deps.Logger.Error().Str("video", rv.Video).Err(err).Msg("asset render failed")
					continue
				}
				p.deps.Logger.Debug().Str("video", rv.Video).Dur("took", time.Since(started)).Msg("asset done")
			}
		}()
	}

	for _, i := range idx {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func skipped(a Asset) domain.AssetResult {
	return failed(a, ErrNotReviewed)
}

func failed(a Asset, err error) domain.AssetResult {
	r := domain.AssetResult{Path: a.Video, Issues: []domain.Issue{}}
	r.Fail(err)
	return r
}
