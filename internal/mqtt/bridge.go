package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/thane-voice/internal/config"
	"github.com/nugget/thane-voice/internal/events"
	"github.com/nugget/thane-voice/internal/ipc"
)

// Submitter accepts raw command messages. [ipc.Queue] satisfies it.
type Submitter interface {
	Submit(data []byte, origin string) (ipc.Command, error)
}

// Origin tags commands that arrived over MQTT.
const Origin = "mqtt"

const (
	commandRateLimit    = 20
	commandRateInterval = 10 * time.Second
)

// Bridge owns the broker connection.
type Bridge struct {
	cfg      config.MQTTConfig
	clientID string
	queue    Submitter
	bus      *events.Bus
	logger   *slog.Logger
	limiter  *rateLimiter

	mu    sync.Mutex
	cm    *autopaho.ConnectionManager
	state *StatePayload
}

// New creates a bridge but does not connect. Call [Bridge.Start].
func New(cfg config.MQTTConfig, clientID string, queue Submitter, bus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt")
	return &Bridge{
		cfg:      cfg,
		clientID: clientID,
		queue:    queue,
		bus:      bus,
		logger:   logger,
		limiter:  newRateLimiter(commandRateLimit, commandRateInterval, logger),
	}
}

// Topic joins suffix onto the configured prefix.
func (b *Bridge) Topic(suffix string) string {
	return strings.TrimSuffix(b.cfg.TopicPrefix, "/") + "/" + suffix
}

func (b *Bridge) commandTopic() string      { return b.Topic("command") }
func (b *Bridge) stateTopic() string        { return b.Topic("state") }
func (b *Bridge) availabilityTopic() string { return b.Topic("availability") }

// Start connects to the broker and forwards listener state changes
// until ctx is cancelled. Connection failures after the first attempt
// are retried in the background by autopaho.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	// Subscribe before connecting so the first state change is not lost.
	evs, unsubscribe := b.bus.Subscribe(16)
	defer unsubscribe()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   b.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected to broker", "broker", b.cfg.Broker)
			b.onConnect(ctx, cm)
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					b.handleMessage(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.mu.Lock()
	b.cm = cm
	b.mu.Unlock()

	go b.limiter.run(ctx)

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil && ctx.Err() == nil {
		b.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	b.forward(ctx, evs)
	return nil
}

// Stop publishes "offline" and disconnects.
func (b *Bridge) Stop(ctx context.Context) error {
	cm := b.conn()
	if cm == nil {
		return nil
	}
	b.publish(ctx, cm, b.availabilityTopic(), []byte("offline"), 1)
	return cm.Disconnect(ctx)
}

func (b *Bridge) conn() *autopaho.ConnectionManager {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cm
}

// onConnect runs on every (re-)connect.
func (b *Bridge) onConnect(ctx context.Context, cm *autopaho.ConnectionManager) {
	b.publish(ctx, cm, b.availabilityTopic(), []byte("online"), 1)

	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: b.commandTopic(), QoS: 1}},
	}); err != nil {
		b.logger.Warn("mqtt subscribe failed", "topic", b.commandTopic(), "error", err)
	} else {
		b.logger.Debug("mqtt subscribed", "topic", b.commandTopic())
	}

	if s, ok := b.lastState(); ok {
		b.publish(ctx, cm, b.stateTopic(), s.encode(), 0)
	}
}

// handleMessage feeds a command-topic message into the queue.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	if topic != b.commandTopic() {
		b.logger.Debug("mqtt message on unexpected topic", "topic", topic, "payload_size", len(payload))
		return
	}
	if !b.limiter.allow() {
		return
	}
	cmd, err := b.queue.Submit(payload, Origin)
	if err != nil {
		b.logger.Warn("mqtt command rejected", "error", err, "payload_size", len(payload))
		return
	}
	b.logger.Debug("mqtt command queued", "action", cmd.Action, "id", cmd.ID)
	b.bus.Emit(events.SourceIPC, events.KindCommandReceived, map[string]any{
		"action": string(cmd.Action),
		"origin": Origin,
	})
}

// forward publishes listener state changes until ctx ends.
func (b *Bridge) forward(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-evs:
			if !ok {
				return
			}
			s, ok := statePayload(e, b.cfg.DeviceName)
			if !ok {
				continue
			}
			b.mu.Lock()
			b.state = &s
			cm := b.cm
			b.mu.Unlock()
			if cm != nil {
				b.publish(ctx, cm, b.stateTopic(), s.encode(), 0)
			}
		}
	}
}

func (b *Bridge) lastState() (StatePayload, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return StatePayload{}, false
	}
	return *b.state, true
}

// publish sends a retained message, logging rather than returning
// failures since autopaho reconnects on its own.
func (b *Bridge) publish(ctx context.Context, cm *autopaho.ConnectionManager, topic string, payload []byte, qos byte) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  true,
	}); err != nil {
		b.logger.Debug("mqtt publish failed", "topic", topic, "error", err)
	}
}
