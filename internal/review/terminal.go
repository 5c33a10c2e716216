package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/reelcam/internal/geom"
)

// Terminal reviews on a line-oriented console. When PreviewDir is set every prompted frame is
// written there as a JPEG so it can be opened in an image viewer.
type Terminal struct {
	scanner    *bufio.Scanner
	out        io.Writer
	PreviewDir string
}

// NewTerminal creates a Terminal reading answers from in and printing prompts to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{scanner: bufio.NewScanner(in), out: out}
}

// Present asks y (accept the hint), n (flip), b (back) or q (quit).
func (t *Terminal) Present(ctx context.Context, p Prompt) (Decision, error) {
	fmt.Fprintf(t.out, "\n[%d/%d] %s @ %dms (frame %d)\n", p.Position, p.Total, p.AssetID, p.Timestamp, p.Ordinal)
	fmt.Fprintf(t.out, "box %v, hint: %s\n", p.Box, p.Hint)
	if path := t.preview(p.Frame, p.AssetID, p.Ordinal); path != "" {
		fmt.Fprintf(t.out, "preview: %s\n", path)
	}

	for {
		line, err := t.ask(ctx, "agree with hint? [y]es/[n]o/[b]ack/[q]uit: ")
		if err != nil {
			return Decision{}, err
		}
		switch line {
		case "y", "yes", "":
			return Decision{Action: Accept}, nil
		case "n", "no":
			return Decision{Action: Flip}, nil
		case "b", "back":
			return Decision{Action: Back}, nil
		case "q", "quit":
			return Decision{}, ErrCancelled
		}
		fmt.Fprintf(t.out, "unrecognised answer %q\n", line)
	}
}

// EnterBox reads four x,y corner points on one line, e.g. "10 20 200 20 200 120 10 120".
func (t *Terminal) EnterBox(ctx context.Context, p BoxPrompt) ([4]geom.Point, error) {
	fmt.Fprintf(t.out, "\nmanual box for %s @ %dms (frame %d, chunk %d)\n", p.AssetID, p.Timestamp, p.Ordinal, p.Chunk)
	if p.Suggested != nil {
		fmt.Fprintf(t.out, "interpolated box %v\n", *p.Suggested)
	}
	if path := t.preview(p.Frame, p.AssetID, p.Ordinal); path != "" {
		fmt.Fprintf(t.out, "preview: %s\n", path)
	}

	for {
		line, err := t.ask(ctx, "four corners x1 y1 x2 y2 x3 y3 x4 y4 (q to quit): ")
		if err != nil {
			return [4]geom.Point{}, err
		}
		if line == "q" || line == "quit" {
			return [4]geom.Point{}, ErrCancelled
		}
		pts, err := ParsePoints(line)
		if err == nil {
			return pts, nil
		}
		fmt.Fprintf(t.out, "%v\n", err)
	}
}

func (t *Terminal) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(t.out, prompt)
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrCancelled
	}
	return strings.ToLower(strings.TrimSpace(t.scanner.Text())), nil
}

func (t *Terminal) preview(frame *gocv.Mat, assetID string, ordinal int) string {
	if t.PreviewDir == "" || frame == nil || frame.Empty() {
		return ""
	}
	path := filepath.Join(t.PreviewDir, fmt.Sprintf("%s-%06d.jpg", assetID, ordinal))
	if !gocv.IMWrite(path, *frame) {
		return ""
	}
	return path
}

// ParsePoints parses eight numbers separated by spaces or commas into four points.
func ParsePoints(s string) ([4]geom.Point, error) {
	var pts [4]geom.Point
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	if len(fields) != 8 {
		return pts, fmt.Errorf("need 8 numbers, got %d", len(fields))
	}
	for i := range pts {
		x, err := strconv.ParseFloat(fields[2*i], 64)
		if err != nil {
			return pts, fmt.Errorf("point %d x: %w", i+1, err)
		}
		y, err := strconv.ParseFloat(fields[2*i+1], 64)
		if err != nil {
			return pts, fmt.Errorf("point %d y: %w", i+1, err)
		}
		pts[i] = geom.Point{X: x, Y: y}
	}
	return pts, nil
}
