// Package main provides a compositor that muxes the source audio back into a rendered clip
// with ffmpeg and optionally overlays a watermark.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Request represents the input from the compositor executor.
type Request struct {
	AssetID   string          `json:"asset_id"`
	Clip      string          `json:"clip"`
	Audio     string          `json:"audio"`
	Output    string          `json:"output"`
	Watermark string          `json:"watermark,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
}

// Response represents the output to the compositor executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Output  string `json:"output,omitempty"`
}

// Options tunes the ffmpeg invocation.
type Options struct {
	Binary     string `json:"ffmpeg"`
	AudioCodec string `json:"audio_codec"`
	VideoCodec string `json:"video_codec"`
	CRF        int    `json:"crf"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	opts := Options{Binary: "ffmpeg", AudioCodec: "aac", VideoCodec: "libx264", CRF: 20}
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse options: %v", err))
			return
		}
	}

	args, err := buildArgs(req, opts)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	cmd := exec.Command(opts.Binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		writeErrorResponse(fmt.Sprintf("ffmpeg failed: %v: %s", err, tail(output, 2048)))
		return
	}

	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Output: req.Output})
}

// buildArgs returns the ffmpeg arguments for req. Without a watermark the video stream is copied.
func buildArgs(req Request, opts Options) ([]string, error) {
	if req.Clip == "" || req.Output == "" {
		return nil, fmt.Errorf("clip and output are required")
	}

	args := []string{"-y", "-loglevel", "error", "-i", req.Clip}
	audioInput := -1
	if req.Audio != "" {
		args = append(args, "-i", req.Audio)
		audioInput = 1
	}

	if req.Watermark != "" {
		wm := 1
		if audioInput >= 0 {
			wm = 2
		}
		args = append(args, "-i", req.Watermark,
			"-filter_complex", fmt.Sprintf("[0:v][%d:v]overlay=W-w-16:H-h-16[v]", wm),
			"-map", "[v]",
			"-c:v", opts.VideoCodec, "-crf", strconv.Itoa(opts.CRF))
	} else {
		args = append(args, "-map", "0:v:0", "-c:v", "copy")
	}

	if audioInput >= 0 {
		// sources without sound still produce a silent clip
		args = append(args, "-map", fmt.Sprintf("%d:a:0?", audioInput), "-c:a", opts.AudioCodec, "-shortest")
	}

	return append(args, req.Output), nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{
		Success: false,
		Error:   errMsg,
	})
}
