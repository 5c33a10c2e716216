package schedule

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ayusman/reelcam/internal/classify"
	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/frameindex"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/review"
	"github.com/ayusman/reelcam/internal/track"
)

func testIndex(t *testing.T, n int) *frameindex.Index {
	t.Helper()
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = int64(i) * 40
	}
	x, err := frameindex.FromTimestamps(ts, frameindex.Options{})
	if err != nil {
		t.Fatalf("FromTimestamps() error = %v", err)
	}
	return x
}

func mergedAt(ords ...int) *track.Boxes {
	var s []track.Sample[geom.Box]
	for _, o := range ords {
		s = append(s, track.Sample[geom.Box]{Timestamp: int64(o) * 40, Value: geom.Box{Left: 0, Top: 0, Right: 10, Bottom: 10}})
	}
	return track.NewPath(s)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSampleOffsets(t *testing.T) {
	tests := []struct {
		l, s int
		want []int
	}{
		{l: 10, s: 4, want: []int{0, 4, 8}},
		{l: 1, s: 4, want: []int{0}},
		{l: 4, s: 4, want: []int{0, 3}},
		{l: 7, s: 3, want: []int{0, 3, 6}},
		{l: 20, s: 5, want: []int{0, 5, 10, 15, 19}},
		{l: 11, s: 4, want: []int{1, 5, 9}},
		{l: 3, s: 1, want: []int{0, 1, 2, 2}},
		{l: 5, s: 0, want: []int{0, 1, 2, 3, 4, 4}},
	}

	for _, tt := range tests {
		got := SampleOffsets(tt.l, tt.s)
		if !equalInts(got, tt.want) {
			t.Errorf("SampleOffsets(%d, %d) = %v, want %v", tt.l, tt.s, got, tt.want)
		}
	}
}

func TestSampleOffsets_Count(t *testing.T) {
	for l := 1; l <= 120; l++ {
		for s := 1; s <= 15; s++ {
			got := SampleOffsets(l, s)
			if len(got) != l/s+1 {
				t.Fatalf("SampleOffsets(%d, %d) has %d offsets, want %d", l, s, len(got), l/s+1)
			}
			for i, off := range got {
				if off < 0 || off >= l {
					t.Fatalf("SampleOffsets(%d, %d)[%d] = %d out of chunk", l, s, i, off)
				}
				if i > 0 && off < got[i-1] {
					t.Fatalf("SampleOffsets(%d, %d) = %v not ascending", l, s, got)
				}
			}
		}
	}
}

func TestPartition(t *testing.T) {
	needs := []int{3, 4, 5, 9, 11, 12}
	chunks := Partition(needs)

	want := []Chunk{{ID: 0, Start: 3, Len: 3}, {ID: 1, Start: 9, Len: 1}, {ID: 2, Start: 11, Len: 2}}
	if len(chunks) != len(want) {
		t.Fatalf("Partition() = %v, want %v", chunks, want)
	}
	var flat []int
	for i, c := range chunks {
		if c != want[i] {
			t.Errorf("chunk %d = %+v, want %+v", i, c, want[i])
		}
		for o := c.Start; o <= c.End(); o++ {
			flat = append(flat, o)
		}
	}
	if !equalInts(flat, needs) {
		t.Errorf("chunks cover %v, want %v", flat, needs)
	}
	if Partition(nil) != nil {
		t.Error("Partition(nil) should be empty")
	}
}

func TestPlan_Scenario(t *testing.T) {
	x := testIndex(t, 40)
	needs := []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}

	items := Plan(x, Partition(needs), 4)

	want := []int{10, 14, 18}
	var got []int
	for _, it := range items {
		got = append(got, it.Ordinal)
		if it.Timestamp != int64(it.Ordinal)*40 || it.Chunk != 0 {
			t.Errorf("item %+v", it)
		}
	}
	if !equalInts(got, want) {
		t.Errorf("Plan() ordinals = %v, want %v", got, want)
	}
}

func TestPlan_DeduplicatesClamped(t *testing.T) {
	items := Plan(testIndex(t, 10), []Chunk{{ID: 0, Start: 2, Len: 3}}, 1)
	if len(items) != 3 {
		t.Errorf("Plan() = %v, want 3 distinct items", items)
	}
}

func TestWalk(t *testing.T) {
	x := testIndex(t, 30)
	merged := mergedAt(0, 1, 2, 3, 4, 5, 6, 7, 8, 20, 21)

	classes := []classify.Classification{
		// confirmed detection at 12 with no merged box of its own
		{Timestamp: 480, Ordinal: 12, Box: geom.Box{Left: 1, Top: 1, Right: 5, Bottom: 5}, Verdict: classify.Confirmed,
			Span: classify.Span{Start: 11, End: 14}},
		// rejected detection spanning merged frames
		{Timestamp: 800, Ordinal: 20, Verdict: classify.Rejected, Span: classify.Span{Start: 19, End: 20}},
	}

	res, err := Walk(x, merged, classes)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	wantNeeds := []int{9, 10, 15, 16, 17, 18, 19, 20, 22, 23, 24, 25, 26, 27, 28, 29}
	if !equalInts(res.Needs, wantNeeds) {
		t.Errorf("Needs = %v, want %v", res.Needs, wantNeeds)
	}

	wantTrusted := []int64{0, 40, 80, 120, 160, 200, 240, 280, 320, 480, 840}
	got := res.Trusted.Timestamps()
	if len(got) != len(wantTrusted) {
		t.Fatalf("Trusted = %v, want %v", got, wantTrusted)
	}
	for i := range got {
		if got[i] != wantTrusted[i] {
			t.Fatalf("Trusted = %v, want %v", got, wantTrusted)
		}
	}
	if b, _ := res.Trusted.Get(480); b != classes[0].Box {
		t.Errorf("confirmed raw box = %v, want %v", b, classes[0].Box)
	}
}

func TestWalk_NoClassifications(t *testing.T) {
	res, err := Walk(testIndex(t, 6), mergedAt(1, 2, 4), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if !equalInts(res.Needs, []int{0, 3, 5}) {
		t.Errorf("Needs = %v, want [0 3 5]", res.Needs)
	}
	if res.Trusted.Len() != 3 {
		t.Errorf("Trusted has %d samples, want 3", res.Trusted.Len())
	}
}

func TestWalk_SnapsMergedTimestamps(t *testing.T) {
	box := geom.Box{Left: 0, Top: 0, Right: 10, Bottom: 10}
	merged := track.NewPath([]track.Sample[geom.Box]{
		{Timestamp: 41, Value: box},
		{Timestamp: 79, Value: box},
		{Timestamp: 81, Value: geom.Box{Left: 20, Top: 0, Right: 30, Bottom: 10}},
		{Timestamp: 300, Value: box},
	})

	res, err := Walk(testIndex(t, 4), merged, nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if !equalInts(res.Needs, []int{0, 3}) {
		t.Errorf("Needs = %v, want [0 3]", res.Needs)
	}
	ts := res.Trusted.Timestamps()
	if len(ts) != 2 || ts[0] != 41 || ts[1] != 79 {
		t.Errorf("Trusted timestamps = %v, want [41 79]", ts)
	}
}

func TestRetentionRate(t *testing.T) {
	tests := []struct {
		manual, scope int
		want          float64
	}{
		{manual: 3, scope: 10, want: 0.3},
		{manual: 0, scope: 0, want: 1},
		{manual: 12, scope: 10, want: 1},
	}
	for _, tt := range tests {
		if got := RetentionRate(tt.manual, tt.scope); got != tt.want {
			t.Errorf("RetentionRate(%d, %d) = %v, want %v", tt.manual, tt.scope, got, tt.want)
		}
	}
}

func TestCollect(t *testing.T) {
	r := review.NewScripted()
	r.SetBoxes(
		review.Corners(geom.Box{Left: 10, Top: 10, Right: 50, Bottom: 40}),
		[4]geom.Point{{X: 1, Y: 1}, {X: 1, Y: 9}, {X: 1, Y: 3}, {X: 1, Y: 4}},
	)
	c := &Collector{Reviewer: r, Logger: zerolog.Nop()}

	items := []Item{
		{Ordinal: 10, Timestamp: 400},
		{Ordinal: 14, Timestamp: 560},
		{Ordinal: 16, Timestamp: 640},
		{Ordinal: 18, Timestamp: 720},
	}
	prior := track.FromMap(map[int64]geom.Box{640: {Left: 2, Top: 2, Right: 4, Bottom: 4}})

	got, err := c.Collect(context.Background(), CollectInput{
		AssetID: "a1",
		Items:   items,
		Suggest: mergedAt(0, 30),
		Prior:   prior,
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	// 400 entered, 560 degenerate, 640 from prior, 720 cancelled
	if !got.Cancelled {
		t.Error("Cancelled not set")
	}
	ts := got.Manual.Timestamps()
	if len(ts) != 2 || ts[0] != 400 || ts[1] != 640 {
		t.Errorf("Manual timestamps = %v, want [400 640]", ts)
	}
	if len(got.Issues) != 1 || got.Issues[0].Kind != domain.KindInputFormat || got.Issues[0].Timestamp != 560 {
		t.Errorf("Issues = %+v", got.Issues)
	}
	entered := r.Entered()
	if len(entered) != 3 || entered[0].Suggested == nil {
		t.Errorf("Entered() = %+v", entered)
	}
}
