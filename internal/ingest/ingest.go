// Package ingest reads detection maps and writes box tracks as JSON.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/track"
)

// Options supplies the frame size used to denormalize boxes when the document does not state it.
type Options struct {
	Width  int
	Height int
}

// Detections is a parsed detection map.
type Detections struct {
	Track      *track.Boxes
	Width      int
	Height     int
	Normalized bool
	// Issues lists every dropped sample.
	Issues []domain.Issue
}

var (
	errNotJSON       = errors.New("document is not valid JSON")
	errNoDetections  = errors.New("document has no detections")
	errNoFrameSize   = errors.New("normalized boxes need a frame size")
	errBadBoxShape   = errors.New("box must be [left, top, right, bottom] or an object with left/top/right/bottom")
	errBadTimestamp  = errors.New("timestamp must be a non-negative integer")
	errNonFiniteEdge = errors.New("box edge is not a finite number")
)

// ParseDetections accepts either an object
//
//	{"width": W, "height": H, "normalized": false, "detections": {"<ts>": [l, t, r, b], ...}}
//
// where detections may also be an array, or a bare array of {"timestamp": ts, "box": ...}
// entries. Boxes are given as four numbers or as an object with left, top, right and bottom.
// Malformed samples are dropped and reported; a document that cannot be read at all is an error.
func ParseDetections(data []byte, opts Options) (*Detections, error) {
	const op = "ingest.ParseDetections"

	if !gjson.ValidBytes(data) {
		return nil, domain.NewError(domain.KindInputFormat, op, errNotJSON)
	}
	root := gjson.ParseBytes(data)

	out := &Detections{Width: opts.Width, Height: opts.Height}
	entries := root
	if root.IsObject() {
		if w := root.Get("width"); w.Exists() {
			out.Width = int(w.Int())
		}
		if h := root.Get("height"); h.Exists() {
			out.Height = int(h.Int())
		}
		out.Normalized = root.Get("normalized").Bool()
		entries = root.Get("detections")
	}
	if !entries.IsObject() && !entries.IsArray() {
		return nil, domain.NewError(domain.KindInputFormat, op, errNoDetections)
	}
	if out.Normalized && (out.Width <= 0 || out.Height <= 0) {
		return nil, domain.NewError(domain.KindInputFormat, op, errNoFrameSize)
	}

	var samples []track.Sample[geom.Box]
	add := func(tsRaw gjson.Result, boxRaw gjson.Result, where string) {
		ts, err := parseTimestamp(tsRaw)
		if err != nil {
			out.Issues = append(out.Issues, domain.IssueFrom(domain.NewError(domain.KindInputFormat, op, fmt.Errorf("%s: %w", where, err))))
			return
		}
		b, err := parseBox(boxRaw)
		if err == nil && out.Normalized {
			b = b.Denormalize(out.Width, out.Height)
		}
		if err == nil && !b.Valid() {
			err = fmt.Errorf("box %v has no extent", b)
		}
		if err == nil && out.Width > 0 && out.Height > 0 && !b.Overlaps(out.Width, out.Height) {
			err = fmt.Errorf("box %v lies outside the %dx%d frame", b, out.Width, out.Height)
		}
		if err != nil {
			out.Issues = append(out.Issues, domain.IssueFrom(domain.NewErrorAt(domain.KindInputFormat, op, ts, err)))
			return
		}
		samples = append(samples, track.Sample[geom.Box]{Timestamp: ts, Value: b})
	}

	if entries.IsObject() {
		entries.ForEach(func(key, value gjson.Result) bool {
			add(key, value, "key "+strconv.Quote(key.String()))
			return true
		})
	} else {
		i := 0
		entries.ForEach(func(_, value gjson.Result) bool {
			add(value.Get("timestamp"), value.Get("box"), fmt.Sprintf("entry %d", i))
			i++
			return true
		})
	}

	out.Track = track.NewPath(samples)
	return out, nil
}

func parseTimestamp(r gjson.Result) (int64, error) {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		v, err := strconv.ParseFloat(r.Str, 64)
		if err != nil {
			return 0, errBadTimestamp
		}
		f = v
	default:
		return 0, errBadTimestamp
	}
	if f < 0 || f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errBadTimestamp
	}
	return int64(f), nil
}

func parseBox(r gjson.Result) (geom.Box, error) {
	var edges []gjson.Result
	switch {
	case r.IsArray():
		edges = r.Array()
	case r.IsObject():
		edges = []gjson.Result{r.Get("left"), r.Get("top"), r.Get("right"), r.Get("bottom")}
	default:
		return geom.Box{}, errBadBoxShape
	}
	if len(edges) != 4 {
		return geom.Box{}, errBadBoxShape
	}

	var v [4]float64
	for i, e := range edges {
		if e.Type != gjson.Number {
			return geom.Box{}, errBadBoxShape
		}
		if math.IsInf(e.Num, 0) || math.IsNaN(e.Num) {
			return geom.Box{}, errNonFiniteEdge
		}
		v[i] = e.Num
	}
	return geom.Box{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

// Meta describes a track written by MarshalTrack.
type Meta struct {
	Asset  string
	Kind   string // "corrected" or "manual"
	Width  int
	Height int
}

// MarshalTrack writes path in the array form read by ParseDetections, in pixel coordinates.
func MarshalTrack(path *track.Boxes, meta Meta) ([]byte, error) {
	doc := []byte(`{}`)
	var err error

	set := func(key string, v any) {
		if err == nil {
			doc, err = sjson.SetBytes(doc, key, v)
		}
	}
	set("asset", meta.Asset)
	set("kind", meta.Kind)
	set("width", meta.Width)
	set("height", meta.Height)
	set("normalized", false)
	if err == nil {
		doc, err = sjson.SetRawBytes(doc, "detections", []byte(`[]`))
	}

	for _, s := range path.Samples() {
		if err != nil {
			break
		}
		item := []byte(`{}`)
		item, err = sjson.SetBytes(item, "timestamp", s.Timestamp)
		if err != nil {
			break
		}
		b := s.Value
		item, err = sjson.SetBytes(item, "box", []float64{b.Left, b.Top, b.Right, b.Bottom})
		if err != nil {
			break
		}
		doc, err = sjson.SetRawBytes(doc, "detections.-1", item)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s track: %w", meta.Kind, err)
	}
	return doc, nil
}
