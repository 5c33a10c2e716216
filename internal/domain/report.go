package domain

import (
	"errors"
	"sort"
	"time"
)

const (
	StatusRendered = "rendered"
	StatusReviewed = "reviewed"
	StatusFailed   = "failed"
)

// Issue is one recoverable problem recorded while processing an asset.
type Issue struct {
	Kind      Kind   `json:"kind"`
	Op        string `json:"op"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// IssueFrom converts err into an Issue. Non-taxonomy errors become KindUnknown.
func IssueFrom(err error) Issue {
	is := Issue{Kind: KindOf(err), Timestamp: -1, Message: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		is.Op = e.Op
		is.Timestamp = e.Timestamp
		if e.Err != nil {
			is.Message = e.Err.Error()
		}
	}
	return is
}

// AssetResult is the per-asset outcome of a run.
type AssetResult struct {
	AssetID string `json:"asset_id"`
	Path    string `json:"path"`
	Status  string `json:"status"`

	ErrorKind Kind   `json:"error_kind,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Detections     int     `json:"detections"`
	Classified     int     `json:"classified"`
	NeedsFrames    int     `json:"needs_frames"`
	Chunks         int     `json:"chunks"`
	ManualBoxes    int     `json:"manual_boxes"`
	RetentionRate  float64 `json:"retention_rate"`
	RenderedFrames int     `json:"rendered_frames"`
	Clip           string  `json:"clip,omitempty"`

	Issues []Issue `json:"issues"`
}

// Fail marks the result failed with err; the retention rate of a failed asset is 0.
func (r *AssetResult) Fail(err error) {
	r.Status = StatusFailed
	r.ErrorKind = KindOf(err)
	r.ErrorMsg = err.Error()
	r.RetentionRate = 0
}

// RunReport is the stable output of one batch run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Summary    ReportSummary `json:"summary"`
	Assets     []AssetResult `json:"assets"`
}

// ReportSummary aggregates successful assets only; failed assets are counted but excluded
// from every other figure.
type ReportSummary struct {
	Succeeded        int     `json:"succeeded"`
	Failed           int     `json:"failed"`
	Frames           int     `json:"frames"`
	ManualBoxes      int     `json:"manual_boxes"`
	NeedsFrames      int     `json:"needs_frames"`
	MeanRetention    float64 `json:"mean_retention"`
	RecoverableIssue int     `json:"recoverable_issues"`
}

// Finalize normalizes times to UTC, sorts assets by path and derives the summary.
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Assets, func(i, j int) bool {
		return r.Assets[i].Path < r.Assets[j].Path
	})

	var s ReportSummary
	var retention float64
	for _, a := range r.Assets {
		if a.Status == StatusFailed {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.Frames += a.RenderedFrames
		s.ManualBoxes += a.ManualBoxes
		s.NeedsFrames += a.NeedsFrames
		s.RecoverableIssue += len(a.Issues)
		retention += a.RetentionRate
	}
	if s.Succeeded > 0 {
		s.MeanRetention = retention / float64(s.Succeeded)
	}
	r.Summary = s
}
