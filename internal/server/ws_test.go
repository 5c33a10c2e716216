package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/review"
)

func startHub(t *testing.T) (*ReviewHub, string) {
	t.Helper()
	hub := NewReviewHub(zerolog.Nop())
	ts := httptest.NewServer(New(Config{Hub: hub}))
	t.Cleanup(ts.Close)
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/review"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		// the previous client may not have detached yet
		if resp == nil || resp.StatusCode != http.StatusConflict || time.Now().After(deadline) {
			t.Fatalf("dial error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readPrompt(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

type presentResult struct {
	decision review.Decision
	err      error
}

func present(hub *ReviewHub, p review.Prompt) <-chan presentResult {
	out := make(chan presentResult, 1)
	go func() {
		d, err := hub.Present(context.Background(), p)
		out <- presentResult{d, err}
	}()
	return out
}

func TestReviewHub_Present(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	box := geom.Box{Left: 10, Top: 20, Right: 110, Bottom: 220}
	res := present(hub, review.Prompt{AssetID: "a1", Timestamp: 400, Ordinal: 10, Box: box, Hint: review.LikelyIncorrect, Position: 3, Total: 7})

	msg := readPrompt(t, conn)
	if msg.Type != msgClassify || msg.Asset != "a1" || msg.Timestamp != 400 || msg.Ordinal != 10 {
		t.Fatalf("prompt = %+v", msg)
	}
	if msg.Hint != "likely incorrect" || msg.Position != 3 || msg.Total != 7 {
		t.Errorf("prompt = %+v", msg)
	}
	if msg.Box == nil || *msg.Box != box {
		t.Errorf("box = %v, want %v", msg.Box, box)
	}

	// stale replies are dropped
	conn.WriteJSON(clientMessage{Type: msgDecision, Seq: msg.Seq + 100, Action: "accept"})
	conn.WriteJSON(clientMessage{Type: msgDecision, Seq: msg.Seq, Action: "flip"})

	select {
	case r := <-res:
		if r.err != nil || r.decision.Action != review.Flip {
			t.Errorf("Present() = %+v, %v; want flip", r.decision, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Present() did not return")
	}
}

func TestReviewHub_EnterBox(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	type boxResult struct {
		pts [4]geom.Point
		err error
	}
	res := make(chan boxResult, 1)
	suggested := geom.Box{Left: 5, Top: 5, Right: 50, Bottom: 80}
	go func() {
		pts, err := hub.EnterBox(context.Background(), review.BoxPrompt{AssetID: "a1", Timestamp: 800, Ordinal: 20, Chunk: 2, Suggested: &suggested})
		res <- boxResult{pts, err}
	}()

	msg := readPrompt(t, conn)
	if msg.Type != msgBox || msg.Chunk != 2 || msg.Suggested == nil || *msg.Suggested != suggested {
		t.Fatalf("prompt = %+v", msg)
	}

	// a short reply is rejected and the hub keeps waiting
	conn.WriteJSON(clientMessage{Type: msgBox, Seq: msg.Seq, Points: [][2]float64{{0, 0}}})
	conn.WriteJSON(clientMessage{Type: msgBox, Seq: msg.Seq, Points: [][2]float64{{1, 2}, {30, 2}, {30, 40}, {1, 40}}})

	select {
	case r := <-res:
		if r.err != nil {
			t.Fatalf("EnterBox() error = %v", r.err)
		}
		if r.pts[2] != (geom.Point{X: 30, Y: 40}) {
			t.Errorf("points = %v", r.pts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EnterBox() did not return")
	}
}

func TestReviewHub_Quit(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	res := present(hub, review.Prompt{AssetID: "a1"})
	msg := readPrompt(t, conn)
	conn.WriteJSON(clientMessage{Type: msgQuit, Seq: msg.Seq})

	select {
	case r := <-res:
		if !errors.Is(r.err, review.ErrCancelled) {
			t.Errorf("Present() error = %v, want ErrCancelled", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Present() did not return")
	}
}

func TestReviewHub_ResendsAfterReconnect(t *testing.T) {
	hub, url := startHub(t)
	first := dial(t, url)

	res := present(hub, review.Prompt{AssetID: "a1", Timestamp: 40})
	msg := readPrompt(t, first)

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("second client should be refused with 409, err = %v", err)
	}

	first.Close()
	second := dial(t, url)

	again := readPrompt(t, second)
	if again.Seq != msg.Seq || again.Timestamp != 40 {
		t.Fatalf("resent prompt = %+v, want seq %d", again, msg.Seq)
	}
	second.WriteJSON(clientMessage{Type: msgDecision, Seq: again.Seq, Action: "back"})

	select {
	case r := <-res:
		if r.err != nil || r.decision.Action != review.Back {
			t.Errorf("Present() = %+v, %v; want back", r.decision, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Present() did not return")
	}
}

func TestReviewHub_ContextCancelled(t *testing.T) {
	hub := NewReviewHub(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := hub.Present(ctx, review.Prompt{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Present() without a client error = %v, want DeadlineExceeded", err)
	}
}

type staticFrames []byte

func (f staticFrames) Frame() []byte { return f }

func TestFrameHandler(t *testing.T) {
	t.Run("no frame", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewFrameHandler(staticFrames(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/review/frame", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("single jpeg", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewFrameHandler(staticFrames("jpegdata")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/review/frame", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "jpegdata" {
			t.Errorf("got %d %q", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %s", ct)
		}
	})

	t.Run("stream", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, "/api/review/frame?stream=1", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		h := NewFrameHandler(staticFrames("jpegdata"))
		h.interval = 5 * time.Millisecond
		h.ServeHTTP(rec, req)

		body := rec.Body.String()
		if strings.Count(body, "--frame") != 1 || !strings.Contains(body, "jpegdata") {
			t.Errorf("an unchanged frame should be sent once, body = %q", body)
		}
	})

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewFrameHandler(staticFrames(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/review/frame", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}
