package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/review"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message types exchanged on /api/review.
const (
	msgClassify = "classify"
	msgBox      = "box"
	msgDecision = "decision"
	msgQuit     = "quit"
)

// serverMessage is a prompt sent to the review client.
type serverMessage struct {
	Type      string    `json:"type"`
	Seq       int64     `json:"seq"`
	Asset     string    `json:"asset"`
	Timestamp int64     `json:"timestamp"`
	Ordinal   int       `json:"ordinal"`
	Box       *geom.Box `json:"box,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	Position  int       `json:"position,omitempty"`
	Total     int       `json:"total,omitempty"`
	Chunk     int       `json:"chunk,omitempty"`
	Suggested *geom.Box `json:"suggested,omitempty"`
	// Frame is the JPEG-encoded frame, base64 in JSON.
	Frame []byte `json:"frame,omitempty"`
}

// clientMessage is a reply from the review client.
type clientMessage struct {
	Type   string       `json:"type"`
	Seq    int64        `json:"seq"`
	Action string       `json:"action,omitempty"`
	Points [][2]float64 `json:"points,omitempty"`
}

type session struct {
	conn    *websocket.Conn
	replies chan clientMessage
	done    chan struct{}
	writeMu sync.Mutex
}

func (s *session) send(msg serverMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// ReviewHub is a review.Reviewer backed by one websocket client. Prompts block until the client
// replies; a prompt pending when the client disconnects is sent again to the next client.
type ReviewHub struct {
	logger zerolog.Logger

	mu       sync.Mutex
	current  *session
	attached chan struct{}
	seq      int64
	frame    []byte

	// serialises prompts
	askMu sync.Mutex
}

// NewReviewHub creates a hub with no client attached.
func NewReviewHub(logger zerolog.Logger) *ReviewHub {
	return &ReviewHub{logger: logger, attached: make(chan struct{})}
}

// ServeHTTP upgrades the request and attaches it as the review client. Only one client may be
// attached at a time.
func (h *ReviewHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	busy := h.current != nil
	h.mu.Unlock()
	if busy {
		http.Error(w, "review session already attached", http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &session{conn: conn, replies: make(chan clientMessage, 8), done: make(chan struct{})}
	if !h.attach(s) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session busy"))
		return
	}
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("review client attached")
	defer func() {
		h.detach(s)
		h.logger.Info().Str("remote", r.RemoteAddr).Msg("review client detached")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var m clientMessage
		if err := json.Unmarshal(data, &m); err != nil {
			h.logger.Warn().Err(err).Msg("ignoring malformed review message")
			continue
		}
		select {
		case s.replies <- m:
		default:
			h.logger.Warn().Int64("seq", m.Seq).Msg("ignoring unsolicited review message")
		}
	}
}

func (h *ReviewHub) attach(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		return false
	}
	h.current = s
	close(h.attached)
	return true
}

func (h *ReviewHub) detach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == s {
		h.current = nil
		h.attached = make(chan struct{})
	}
	close(s.done)
}

// Attached reports whether a review client is connected.
func (h *ReviewHub) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// Frame returns the JPEG of the most recently prompted frame, or nil.
func (h *ReviewHub) Frame() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame
}

func (h *ReviewHub) waitSession(ctx context.Context) (*session, error) {
	for {
		h.mu.Lock()
		s, ch := h.current, h.attached
		h.mu.Unlock()
		if s != nil {
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ask sends msg and waits for the matching reply, resending to a new client after a disconnect.
func (h *ReviewHub) ask(ctx context.Context, msg serverMessage) (clientMessage, error) {
	h.askMu.Lock()
	defer h.askMu.Unlock()

	h.mu.Lock()
	h.seq++
	msg.Seq = h.seq
	h.mu.Unlock()

	for {
		s, err := h.waitSession(ctx)
		if err != nil {
			return clientMessage{}, err
		}
		if err := s.send(msg); err != nil {
			h.logger.Warn().Err(err).Int64("seq", msg.Seq).Msg("review prompt not delivered")
			select {
			case <-s.done:
				continue
			case <-ctx.Done():
				return clientMessage{}, ctx.Err()
			}
		}

	wait:
		for {
			select {
			case m := <-s.replies:
				if m.Type == msgQuit {
					return clientMessage{}, review.ErrCancelled
				}
				if m.Seq != msg.Seq {
					continue
				}
				return m, nil
			case <-s.done:
				break wait
			case <-ctx.Done():
				return clientMessage{}, ctx.Err()
			}
		}
	}
}

func (h *ReviewHub) encode(frame *gocv.Mat) []byte {
	if frame == nil || frame.Empty() {
		return nil
	}
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode review frame")
		return nil
	}
	defer buf.Close()

	jpeg := append([]byte(nil), buf.GetBytes()...)
	h.mu.Lock()
	h.frame = jpeg
	h.mu.Unlock()
	return jpeg
}

// Present implements review.Reviewer.
func (h *ReviewHub) Present(ctx context.Context, p review.Prompt) (review.Decision, error) {
	box := p.Box
	msg := serverMessage{
		Type:      msgClassify,
		Asset:     p.AssetID,
		Timestamp: p.Timestamp,
		Ordinal:   p.Ordinal,
		Box:       &box,
		Hint:      p.Hint.String(),
		Position:  p.Position,
		Total:     p.Total,
		Frame:     h.encode(p.Frame),
	}

	for {
		reply, err := h.ask(ctx, msg)
		if err != nil {
			return review.Decision{}, err
		}
		if reply.Type != msgDecision {
			h.logger.Warn().Str("type", reply.Type).Msg("expected a decision")
			continue
		}
		switch reply.Action {
		case "accept":
			return review.Decision{Action: review.Accept}, nil
		case "flip":
			return review.Decision{Action: review.Flip}, nil
		case "back":
			return review.Decision{Action: review.Back}, nil
		default:
			h.logger.Warn().Str("action", reply.Action).Msg("unknown review action")
		}
	}
}

// EnterBox implements review.Reviewer.
func (h *ReviewHub) EnterBox(ctx context.Context, p review.BoxPrompt) ([4]geom.Point, error) {
	msg := serverMessage{
		Type:      msgBox,
		Asset:     p.AssetID,
		Timestamp: p.Timestamp,
		Ordinal:   p.Ordinal,
		Chunk:     p.Chunk,
		Suggested: p.Suggested,
		Frame:     h.encode(p.Frame),
	}

	for {
		reply, err := h.ask(ctx, msg)
		if err != nil {
			return [4]geom.Point{}, err
		}
		pts, err := toPoints(reply)
		if err != nil {
			h.logger.Warn().Err(err).Msg("rejecting box reply")
			continue
		}
		return pts, nil
	}
}

func toPoints(m clientMessage) ([4]geom.Point, error) {
	var pts [4]geom.Point
	if m.Type != msgBox {
		return pts, fmt.Errorf("expected a box reply, got %q", m.Type)
	}
	if len(m.Points) != 4 {
		return pts, fmt.Errorf("box needs 4 points, got %d", len(m.Points))
	}
	for i, p := range m.Points {
		pts[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return pts, nil
}
