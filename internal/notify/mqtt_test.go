package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type fakeToken struct {
	done    bool
	err     error
	doneCh  chan struct{}
	initOne sync.Once
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	t.initOne.Do(func() {
		t.doneCh = make(chan struct{})
		close(t.doneCh)
	})
	return t.doneCh
}

type publication struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	token        *fakeToken
	published    []publication
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publication{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func TestMQTTNotifier_Notify(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: true}}
	n := newMQTTNotifier(MQTTConfig{TopicPrefix: "studio", QoS: 1}, client, zerolog.Nop())

	ev := ClipReady{AssetID: "a1", Source: "/in/a.mp4", Clip: "/out/a.mp4", RetentionRate: 0.25, RenderedFrames: 300}
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if len(client.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.published))
	}
	p := client.published[0]
	if p.topic != "studio/clips/a1" || p.qos != 1 {
		t.Errorf("topic = %q qos = %d", p.topic, p.qos)
	}

	var got map[string]any
	if err := json.Unmarshal(p.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["asset"] != "a1" || got["clip"] != "/out/a.mp4" || got["retention_rate"] != 0.25 {
		t.Errorf("payload = %s", p.payload)
	}

	if pub, failed := n.Stats(); pub != 1 || failed != 0 {
		t.Errorf("Stats() = %d, %d", pub, failed)
	}

	n.Close()
	if !client.disconnected {
		t.Error("Close() should disconnect")
	}
}

func TestMQTTNotifier_Failures(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{name: "timeout", token: &fakeToken{done: false}},
		{name: "broker error", token: &fakeToken{done: true, err: errors.New("not authorized")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newMQTTNotifier(MQTTConfig{TopicPrefix: "reelcam"}, &fakeClient{token: tt.token}, zerolog.Nop())
			if err := n.Notify(context.Background(), ClipReady{AssetID: "a1"}); err == nil {
				t.Fatal("Notify() should fail")
			}
			if _, failed := n.Stats(); failed != 1 {
				t.Errorf("failed = %d, want 1", failed)
			}
		})
	}
}

func TestMQTTNotifier_CancelledContext(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: true}}
	n := newMQTTNotifier(MQTTConfig{TopicPrefix: "reelcam"}, client, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Notify(ctx, ClipReady{AssetID: "a1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Notify() error = %v, want context.Canceled", err)
	}
	if len(client.published) != 0 {
		t.Error("nothing should be published after cancellation")
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var n Notifier = &r
	n.Notify(context.Background(), ClipReady{AssetID: "a"})
	n.Notify(context.Background(), ClipReady{AssetID: "b"})

	if ev := r.Events(); len(ev) != 2 || ev[1].AssetID != "b" {
		t.Errorf("Events() = %+v", ev)
	}

	n = Nop{}
	if err := n.Notify(context.Background(), ClipReady{}); err != nil {
		t.Errorf("Nop.Notify() error = %v", err)
	}
}
