package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/sensor-collector/internal/infrastructure/config"
)

// State is the lifecycle state of a Client.
type State int32

const (
	// StateDisconnected means no session is open (initial state, after a drop, after Close).
	StateDisconnected State = iota

	// StateConnecting means a connection attempt is in progress.
	StateConnecting

	// StateConnected means the broker accepted the CONNECT.
	StateConnected

	// StateSubscribed means every registered route has been acknowledged.
	StateSubscribed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConnectEvent describes an accepted connection.
//
// SessionPresent comes from the first CONNACK only: paho does not expose
// the flag on automatic reconnects, so it is always false when Reconnect is set.
type ConnectEvent struct {
	ReturnCode     byte
	SessionPresent bool
	Reconnect      bool
}

// DisconnectEvent describes the end of a connection.
//
// Code is DisconnectRequested (0) and Err nil when the disconnect was
// requested through Close. A dropped connection carries
// packets.ErrNetworkError and the cause.
type DisconnectEvent struct {
	Code byte
	Err  error
}

// DisconnectRequested is the DisconnectEvent code for a Close.
const DisconnectRequested byte = 0

// Logger is the logging surface the client needs.
// Compatible with logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// ctx belongs to the client and is cancelled by Close. Handlers run one at
// a time in arrival order, so a slow handler delays the next message.
// A returned error is logged and does not affect acknowledgement.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

// route is one entry of the routing table, restored on every connect.
type route struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// Client is a persistent-session MQTT subscriber built on paho.mqtt.golang.
//
// Routes may be registered before Connect: messages the broker queued for
// the session are then dispatched as soon as the CONNACK arrives.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are re-issued after every (re)connect.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	logger  Logger

	ctx    context.Context
	cancel context.CancelFunc

	state    atomic.Int32
	connects atomic.Int64
	closed   atomic.Bool

	routes  map[string]route
	routeMu sync.RWMutex

	onConnect    func(ConnectEvent)
	onDisconnect func(DisconnectEvent)
	onMessage    func(topic string, payload []byte)
	callbackMu   sync.RWMutex
}

// New builds a client from configuration without connecting.
// A nil logger discards client logs.
func New(cfg config.MQTTConfig, logger Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		routes: make(map[string]route),
	}

	opts := buildClientOptions(cfg)
	opts.SetConnectionAttemptHandler(func(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
		c.handleAttempt(broker)
		return tlsCfg
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.state.Store(int32(StateConnecting))
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	// Subscriptions are made without a paho callback, so every message,
	// including ones queued before the SUBSCRIBE is re-issued, lands here.
	opts.SetDefaultPublishHandler(c.dispatch)

	c.options = opts
	c.client = pahomqtt.NewClient(opts)
	return c
}

// Connect builds a client and blocks until the broker accepts the
// connection or ctx ends. Failed attempts are logged and retried by paho.
func Connect(ctx context.Context, cfg config.MQTTConfig, logger Logger) (*Client, error) {
	c := New(cfg, logger)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect opens the session and blocks until the first CONNACK or until
// ctx ends. Registered routes are subscribed by the connect callback.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.logger.Info("connecting to MQTT broker",
		"broker", brokerURL(c.cfg),
		"client_id", c.cfg.Broker.ClientID,
	)

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		// Ends paho's retry loop; the pending token completes with an error.
		c.client.Disconnect(0)
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	var event ConnectEvent
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		event.ReturnCode = ct.ReturnCode()
		event.SessionPresent = ct.SessionPresent()
	}
	if err := token.Error(); err != nil {
		c.logger.Error("MQTT connection refused",
			"broker", brokerURL(c.cfg),
			"code", event.ReturnCode,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect callback runs on its own goroutine and may not have run yet.
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected))

	c.logger.Info("connected to MQTT broker",
		"code", event.ReturnCode,
		"session_present", event.SessionPresent,
	)
	c.notifyConnect(event)
	return nil
}

// handleAttempt is called by paho before each connection attempt.
func (c *Client) handleAttempt(broker *url.URL) {
	c.state.Store(int32(StateConnecting))
	c.logger.Info("attempting MQTT connection", "broker", broker.Redacted())
}

// handleConnect is called by paho (on its own goroutine) for every accepted connection.
func (c *Client) handleConnect() {
	n := c.connects.Add(1)
	c.state.Store(int32(StateConnected))

	c.restoreSubscriptions()

	// The first connection is reported by Connect, which holds the CONNACK token.
	if n > 1 {
		c.logger.Info("reconnected to MQTT broker", "connects", n)
		c.notifyConnect(ConnectEvent{ReturnCode: packets.Accepted, Reconnect: true})
	}
}

// handleConnectionLost is called by paho when an open connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.state.Store(int32(StateDisconnected))
	c.logger.Warn("MQTT connection lost", "code", packets.ErrNetworkError, "error", err)
	c.notifyDisconnect(DisconnectEvent{Code: packets.ErrNetworkError, Err: err})
}

// restoreSubscriptions re-subscribes every route after a (re)connect.
func (c *Client) restoreSubscriptions() {
	routes := c.snapshotRoutes()
	if len(routes) == 0 {
		return
	}

	failed := 0
	for _, r := range routes {
		if err := c.subscribe(r); err != nil {
			failed++
			c.logger.Warn("MQTT resubscribe failed", "topic", r.filter, "error", err)
		}
	}

	if failed == 0 {
		c.state.CompareAndSwap(int32(StateConnected), int32(StateSubscribed))
	}
}

// Close disconnects from the broker after a quiesce period and cancels the
// context handed to message handlers. Calling Close twice is harmless.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.state.Store(int32(StateDisconnected))
	c.cancel()

	c.logger.Info("disconnected from MQTT broker")
	c.notifyDisconnect(DisconnectEvent{Code: DisconnectRequested})
	return nil
}

// HealthCheck verifies the MQTT connection is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently open.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	return c.State() >= StateConnected && c.client.IsConnectionOpen()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// SetOnConnect sets a callback invoked after every accepted connection.
func (c *Client) SetOnConnect(callback func(ConnectEvent)) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection drops or is closed.
func (c *Client) SetOnDisconnect(callback func(DisconnectEvent)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnMessage sets a callback for messages that match no route.
func (c *Client) SetOnMessage(callback func(topic string, payload []byte)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

func (c *Client) notifyConnect(event ConnectEvent) {
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(event)
	}
}

func (c *Client) notifyDisconnect(event DisconnectEvent) {
	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(event)
	}
}

// dispatch routes one message to its handler, recovering panics.
func (c *Client) dispatch(_ pahomqtt.Client, msg pahomqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("MQTT handler panic recovered",
				"topic", topic,
				"panic", r,
			)
		}
	}()

	handler := c.lookup(topic)
	if handler == nil {
		c.logger.Debug("unrouted MQTT message",
			"topic", topic,
			"payload", string(payload),
		)
		c.callbackMu.RLock()
		callback := c.onMessage
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(topic, payload)
		}
		return
	}

	if err := handler(c.ctx, topic, payload); err != nil {
		c.logger.Warn("MQTT handler returned error",
			"topic", topic,
			"error", err,
		)
	}
}
