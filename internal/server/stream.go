package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// FrameSource supplies the JPEG of the frame currently under review.
type FrameSource interface {
	Frame() []byte
}

// FrameHandler serves the frame under review, either as a single JPEG or, with ?stream=1, as
// an MJPEG stream that pushes a part whenever the frame changes.
type FrameHandler struct {
	source   FrameSource
	interval time.Duration
}

// NewFrameHandler creates a new FrameHandler reading from source.
func NewFrameHandler(source FrameSource) *FrameHandler {
	return &FrameHandler{source: source, interval: 100 * time.Millisecond}
}

// ServeHTTP implements http.Handler.
func (h *FrameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Query().Get("stream") == "" {
		jpeg := h.source.Frame()
		if jpeg == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(jpeg)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		if jpeg := h.source.Frame(); jpeg != nil && !bytes.Equal(jpeg, last) {
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
			if _, err := w.Write(jpeg); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			last = jpeg
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
