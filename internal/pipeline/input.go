package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayusman/reelcam/internal/classify"
	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/ingest"
	"github.com/ayusman/reelcam/internal/track"
)

// Sidecar file suffixes, appended to the video path without its extension.
const (
	SuffixDetections = ".detections.json"
	SuffixMerged     = ".merged.json"
	SuffixForward    = ".forward.json"
	SuffixBackward   = ".backward.json"
)

// Asset names one video and its detection tracks.
type Asset struct {
	Video string
	// Detections is the raw detector output. Required.
	Detections string
	// Merged is the combined detector and tracker output; empty means the raw detections.
	Merged   string
	Forward  []string
	Backward []string
}

// SidecarsFor returns the Asset for video using the conventional sidecar names. Optional tracks
// are included only when their file exists.
func SidecarsFor(video string) Asset {
	base := strings.TrimSuffix(video, filepath.Ext(video))
	a := Asset{Video: video, Detections: base + SuffixDetections}
	if exists(base + SuffixMerged) {
		a.Merged = base + SuffixMerged
	}
	if exists(base + SuffixForward) {
		a.Forward = []string{base + SuffixForward}
	}
	if exists(base + SuffixBackward) {
		a.Backward = []string{base + SuffixBackward}
	}
	return a
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// tracks holds the parsed inputs of one asset.
type tracks struct {
	raw    *track.Boxes
	merged *track.Boxes
	aux    []classify.Aux
	issues []domain.Issue
}

// loadTracks parses every track of a in pixel coordinates of a w×h video.
func loadTracks(a Asset, w, h int) (*tracks, error) {
	const op = "pipeline.loadTracks"

	out := &tracks{}
	opts := ingest.Options{Width: w, Height: h}

	read := func(path string) (*track.Boxes, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.NewError(domain.KindIO, op, err)
		}
		det, err := ingest.ParseDetections(data, opts)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", path, err)
		}
		out.issues = append(out.issues, det.Issues...)
		return det.Track, nil
	}

	var err error
	if out.raw, err = read(a.Detections); err != nil {
		return nil, err
	}
	out.merged = out.raw
	if a.Merged != "" {
		if out.merged, err = read(a.Merged); err != nil {
			return nil, err
		}
	}
	for _, p := range a.Forward {
		t, err := read(p)
		if err != nil {
			return nil, err
		}
		out.aux = append(out.aux, classify.Aux{Direction: classify.Forward, Path: t})
	}
	for _, p := range a.Backward {
		t, err := read(p)
		if err != nil {
			return nil, err
		}
		out.aux = append(out.aux, classify.Aux{Direction: classify.Backward, Path: t})
	}
	return out, nil
}
