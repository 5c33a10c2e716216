package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestError_KindAndUnwrap(t *testing.T) {
	cause := errors.New("seek failed")
	err := fmt.Errorf("classify: %w", NewErrorAt(KindSkippedFrame, "classify.present", 1200, cause))

	if got := KindOf(err); got != KindSkippedFrame {
		t.Errorf("KindOf() = %v, want %v", got, KindSkippedFrame)
	}
	if IsFatal(err) {
		t.Error("skipped frame must not be fatal")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() did not reach the cause")
	}
	want := "classify: classify.present: skipped_frame at 1200ms: seek failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if !IsFatal(errors.New("plain")) {
		t.Error("errors outside the taxonomy must be fatal")
	}
	if IsFatal(nil) {
		t.Error("nil must not be fatal")
	}
}

func TestIssueFrom(t *testing.T) {
	is := IssueFrom(NewErrorAt(KindInputFormat, "ingest.parse", 40, errors.New("left >= right")))
	if is.Kind != KindInputFormat || is.Op != "ingest.parse" || is.Timestamp != 40 || is.Message != "left >= right" {
		t.Errorf("IssueFrom() = %+v", is)
	}

	is = IssueFrom(errors.New("boom"))
	if is.Kind != KindUnknown || is.Timestamp != -1 || is.Message != "boom" {
		t.Errorf("IssueFrom(plain) = %+v", is)
	}
}

func TestRunReport_Finalize(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	failed := AssetResult{Path: "a.mp4", Status: StatusRendered, RetentionRate: 0.9, RenderedFrames: 500, ManualBoxes: 9}
	failed.Fail(NewError(KindIO, "capture.Open", errors.New("no such file")))

	r := RunReport{
		StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, loc),
		FinishedAt: time.Date(2026, 3, 1, 12, 5, 0, 0, loc),
		Assets: []AssetResult{
			{Path: "c.mp4", Status: StatusRendered, RetentionRate: 1, RenderedFrames: 100, NeedsFrames: 0},
			failed,
			{Path: "b.mp4", Status: StatusRendered, RetentionRate: 0.5, RenderedFrames: 200, ManualBoxes: 3, NeedsFrames: 6,
				Issues: []Issue{{Kind: KindSkippedFrame, Timestamp: 33}}},
		},
	}
	r.Finalize()

	if r.StartedAt.Location() != time.UTC || r.FinishedAt.Location() != time.UTC {
		t.Error("times not normalized to UTC")
	}
	for i, want := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		if r.Assets[i].Path != want {
			t.Errorf("Assets[%d].Path = %q, want %q", i, r.Assets[i].Path, want)
		}
	}
	if r.Assets[0].RetentionRate != 0 || r.Assets[0].ErrorKind != KindIO {
		t.Errorf("failed asset = %+v", r.Assets[0])
	}

	want := ReportSummary{
		Succeeded:        2,
		Failed:           1,
		Frames:           300,
		ManualBoxes:      3,
		NeedsFrames:      6,
		MeanRetention:    0.75,
		RecoverableIssue: 1,
	}
	if r.Summary != want {
		t.Errorf("Summary = %+v, want %+v", r.Summary, want)
	}
}
