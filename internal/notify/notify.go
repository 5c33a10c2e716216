// Package notify announces finished clips to the downstream publishing stage.
package notify

import (
	"context"
	"sync"
)

// ClipReady is published after a clip has been written.
type ClipReady struct {
	AssetID        string  `json:"asset"`
	Source         string  `json:"source"`
	Clip           string  `json:"clip"`
	RetentionRate  float64 `json:"retention_rate"`
	RenderedFrames int     `json:"rendered_frames"`
}

// Notifier delivers ClipReady events.
type Notifier interface {
	Notify(ctx context.Context, ev ClipReady) error
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, ClipReady) error { return nil }
func (Nop) Close()                                  {}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []ClipReady
}

func (r *Recorder) Notify(_ context.Context, ev ClipReady) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() {}

// Events returns the recorded events in arrival order.
func (r *Recorder) Events() []ClipReady {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ClipReady(nil), r.events...)
}
