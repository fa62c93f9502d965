// Package pubsub provides an MQTT-backed Transport. Nodes publish unicast
// frames to a per-neighbor topic and broadcast frames to a shared topic,
// all under "{prefix}/{meshID}/...". MQTT is a shared-fabric substrate: it
// cannot attribute an inbound frame to a specific point-to-point link, so
// Receive always reports transport.UnknownNeighbor (spec §6).
package pubsub

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/lsrlab/meshrouter/transport"
)

// DefaultTopicPrefix is the default MQTT topic prefix.
const DefaultTopicPrefix = "meshrouter"

// Config holds the configuration for an MQTT transport.
type Config struct {
	Broker      string
	Username    string
	Password    string
	UseTLS      bool
	ClientID    string
	TopicPrefix string // default DefaultTopicPrefix
	MeshID      string // identifies the shared mesh topic namespace
	SelfID      string // this node's id, used for the per-neighbor topic
	Logger      *slog.Logger
}

type inbound struct {
	data []byte
}

// Transport implements transport.Transport over an MQTT broker.
type Transport struct {
	cfg Config
	log *slog.Logger

	client paho.Client

	mu           sync.RWMutex
	connected    bool
	stateHandler transport.StateHandler

	inbox     chan inbound
	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New creates an MQTT transport. Call Start before use.
func New(cfg Config) *Transport {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		cfg:    cfg,
		log:    cfg.Logger.WithGroup("pubsub"),
		inbox:  make(chan inbound, 256),
		closed: make(chan struct{}),
	}
}

// SetStateHandler registers a callback for connectivity events.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// Start connects to the broker and subscribes to this node's topics.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Broker == "" {
		return errors.New("pubsub: broker URL is required")
	}
	if t.cfg.MeshID == "" {
		return errors.New("pubsub: mesh id is required")
	}
	if t.cfg.SelfID == "" {
		return errors.New("pubsub: self id is required")
	}

	clientID := t.cfg.ClientID
	if clientID == "" {
		clientID = "meshrouter-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(t.onConnected).
		SetConnectionLostHandler(t.onConnectionLost).
		SetReconnectingHandler(t.onReconnecting)

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}
	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	t.client = paho.NewClient(opts)

	token := t.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("pubsub: connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("pubsub: connecting to broker: %w", token.Error())
	}
	return nil
}

func (t *Transport) unicastTopic() string {
	return t.cfg.TopicPrefix + "/" + t.cfg.MeshID + "/" + t.cfg.SelfID
}

func (t *Transport) broadcastTopic() string {
	return t.cfg.TopicPrefix + "/" + t.cfg.MeshID + "/broadcast"
}

func (t *Transport) subscribe() {
	for _, topic := range []string{t.unicastTopic(), t.broadcastTopic()} {
		t.client.Subscribe(topic, 0, t.handleMessage)
		t.log.Debug("subscribed to topic", "topic", topic)
	}
}

func (t *Transport) handleMessage(_ paho.Client, message paho.Message) {
	data, err := base64.StdEncoding.DecodeString(string(message.Payload()))
	if err != nil {
		t.log.Debug("dropping frame with invalid base64 payload", "error", err)
		return
	}
	select {
	case t.inbox <- inbound{data: data}:
	case <-t.closed:
	}
}

// SendUnicast publishes frame to neighborID's private topic.
func (t *Transport) SendUnicast(ctx context.Context, neighborID string, frame []byte) error {
	topic := t.cfg.TopicPrefix + "/" + t.cfg.MeshID + "/" + neighborID
	return t.publish(ctx, topic, frame)
}

// SendBroadcast publishes frame to the shared mesh topic.
func (t *Transport) SendBroadcast(ctx context.Context, frame []byte) error {
	return t.publish(ctx, t.broadcastTopic(), frame)
}

func (t *Transport) publish(_ context.Context, topic string, frame []byte) error {
	if !t.IsConnected() {
		return errors.New("pubsub: not connected")
	}
	payload := base64.StdEncoding.EncodeToString(frame)
	token := t.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("pubsub: timeout publishing")
	}
	return token.Error()
}

// Receive blocks until a frame arrives, ctx is canceled, or Close is
// called. MQTT cannot attribute a frame to a specific link, so
// fromNeighbor is always transport.UnknownNeighbor.
func (t *Transport) Receive(ctx context.Context) ([]byte, string, error) {
	select {
	case in := <-t.inbox:
		return in.data, transport.UnknownNeighbor, nil
	case <-t.closed:
		return nil, "", transport.ErrClosed
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

// IsConnected reports whether the broker connection is up.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && t.client != nil && t.client.IsConnected()
}

// Close disconnects from the broker and unblocks any pending Receive.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.client != nil {
			t.client.Disconnect(250)
		}
	})
	return nil
}

func (t *Transport) onConnected(_ paho.Client) {
	t.mu.Lock()
	t.connected = true
	handler := t.stateHandler
	t.mu.Unlock()

	t.subscribe()
	t.log.Info("connected to broker", "broker", t.cfg.Broker)
	if handler != nil {
		handler(transport.EventConnected)
	}
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	t.log.Error("broker connection lost", "error", err)
	if handler != nil {
		handler(transport.EventDisconnected)
	}
}

func (t *Transport) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	t.mu.RLock()
	handler := t.stateHandler
	t.mu.RUnlock()

	t.log.Info("reconnecting to broker")
	if handler != nil {
		handler(transport.EventReconnecting)
	}
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
