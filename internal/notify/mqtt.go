package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTConfig configures an MQTTNotifier.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTNotifier publishes ClipReady events as JSON on <prefix>/clips/<asset>.
type MQTTNotifier struct {
	cfg    MQTTConfig
	client publisher
	logger zerolog.Logger

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// DialMQTT connects to the broker and returns a notifier using the connection.
func DialMQTT(cfg MQTTConfig, logger zerolog.Logger) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", cfg.Broker).Str("client_id", cfg.ClientID).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTNotifier(cfg, client, logger), nil
}

func newMQTTNotifier(cfg MQTTConfig, client publisher, logger zerolog.Logger) *MQTTNotifier {
	return &MQTTNotifier{cfg: cfg, client: client, logger: logger}
}

// Topic returns the topic for an asset.
func (n *MQTTNotifier) Topic(assetID string) string {
	return fmt.Sprintf("%s/clips/%s", n.cfg.TopicPrefix, assetID)
}

func (n *MQTTNotifier) Notify(ctx context.Context, ev ClipReady) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.fail()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := n.Topic(ev.AssetID)
	token := n.client.Publish(topic, n.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		n.fail()
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		n.fail()
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()

	n.logger.Debug().Str("topic", topic).Int("size", len(payload)).Msg("clip event published")
	return nil
}

// Stats returns the number of published and failed events.
func (n *MQTTNotifier) Stats() (published, failed uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.published, n.errors
}

func (n *MQTTNotifier) fail() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// Close disconnects from the broker, waiting briefly for in-flight messages.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
