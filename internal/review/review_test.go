package review

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ayusman/reelcam/internal/geom"
)

func TestTerminal_Present(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Action
		wantErr error
	}{
		{name: "yes", input: "y\n", want: Accept},
		{name: "empty line accepts", input: "\n", want: Accept},
		{name: "no", input: "N\n", want: Flip},
		{name: "back", input: "back\n", want: Back},
		{name: "retry after garbage", input: "maybe\nn\n", want: Flip},
		{name: "quit", input: "q\n", wantErr: ErrCancelled},
		{name: "eof", input: "", wantErr: ErrCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			term := NewTerminal(strings.NewReader(tt.input), &out)

			d, err := term.Present(context.Background(), Prompt{AssetID: "a1", Timestamp: 40, Ordinal: 1, Position: 1, Total: 3})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Present() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Present() error = %v", err)
			}
			if d.Action != tt.want {
				t.Errorf("Present() = %v, want %v", d.Action, tt.want)
			}
			if !strings.Contains(out.String(), "likely correct") {
				t.Errorf("prompt %q does not show the hint", out.String())
			}
		})
	}
}

func TestTerminal_Present_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	term := NewTerminal(strings.NewReader("y\n"), &bytes.Buffer{})
	_, err := term.Present(ctx, Prompt{})
	if !Cancelled(err) {
		t.Errorf("Present() error = %v, want cancellation", err)
	}
}

func TestTerminal_EnterBox(t *testing.T) {
	term := NewTerminal(strings.NewReader("1 2 3\n10,20, 200,20, 200,120, 10,120\n"), &bytes.Buffer{})

	pts, err := term.EnterBox(context.Background(), BoxPrompt{AssetID: "a1", Timestamp: 400, Ordinal: 10})
	if err != nil {
		t.Fatalf("EnterBox() error = %v", err)
	}
	b, err := geom.BoxFromPoints(pts[:]...)
	if err != nil {
		t.Fatalf("BoxFromPoints() error = %v", err)
	}
	if want := (geom.Box{Left: 10, Top: 20, Right: 200, Bottom: 120}); b != want {
		t.Errorf("box = %v, want %v", b, want)
	}
}

func TestParsePoints_Errors(t *testing.T) {
	for _, in := range []string{"", "1 2 3 4 5 6 7", "1 2 3 4 5 6 7 x"} {
		if _, err := ParsePoints(in); err == nil {
			t.Errorf("ParsePoints(%q) should fail", in)
		}
	}
}

func TestScripted(t *testing.T) {
	s := NewScripted()
	s.SetDecisions(Accept, Flip)
	s.SetBoxes(Corners(geom.Box{Left: 1, Top: 2, Right: 3, Bottom: 4}))
	ctx := context.Background()

	if d, _ := s.Present(ctx, Prompt{Timestamp: 1}); d.Action != Accept {
		t.Errorf("first decision = %v, want accept", d.Action)
	}
	if d, _ := s.Present(ctx, Prompt{Timestamp: 2}); d.Action != Flip {
		t.Errorf("second decision = %v, want flip", d.Action)
	}
	if _, err := s.Present(ctx, Prompt{Timestamp: 3}); !errors.Is(err, ErrCancelled) {
		t.Errorf("exhausted Present() error = %v, want %v", err, ErrCancelled)
	}
	if got := len(s.Presented()); got != 3 {
		t.Errorf("Presented() has %d prompts, want 3", got)
	}

	pts, err := s.EnterBox(ctx, BoxPrompt{Timestamp: 5})
	if err != nil || pts[2] != (geom.Point{X: 3, Y: 4}) {
		t.Errorf("EnterBox() = %v, %v", pts, err)
	}
	if _, err := s.EnterBox(ctx, BoxPrompt{}); !errors.Is(err, ErrCancelled) {
		t.Errorf("exhausted EnterBox() error = %v, want %v", err, ErrCancelled)
	}
}
