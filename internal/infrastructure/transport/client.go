package transport

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/appliance-link/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang as a transport.Conn.
//
// It provides connection management, message publishing, subscription
// handling, and automatic reconnection with exponential backoff. The
// broker variant (local tcp vs cloud-routed TLS) is selected once at
// construction from the broker configuration.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.BrokerConfig

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Callbacks for connection and message events.
	onConnect  func()
	onLost     func(err error)
	onMessage  MessageHandler
	callbackMu sync.RWMutex

	// logger for handler panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New creates a transport client for the configured broker variant.
// No network activity happens until Connect is called.
//
// Parameters:
//   - cfg: Broker configuration (host, port, TLS, cloud flag, backoff)
//   - creds: Device credentials for broker authentication
//
// Returns:
//   - *Client: Ready for Connect
func New(cfg config.BrokerConfig, creds config.CredentialsConfig) *Client {
	c := &Client{
		cfg: cfg,
	}
	c.options = buildClientOptions(cfg, creds)

	c.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	// Route every inbound message through one handler so arrival order
	// is preserved across topics.
	c.options.SetOrderMatters(true)
	c.options.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(msg.Topic(), msg.Payload())
	})

	return c
}

// Connect establishes the initial session with the broker.
//
// After a successful initial connection, paho keeps the session alive
// and retries with exponential backoff on loss; each re-establishment
// fires the OnConnect callback again.
//
// Returns:
//   - error: If the initial connection fails within the timeout
func (c *Client) Connect() error {
	c.client = pahomqtt.NewClient(c.options)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet; set connected here so IsConnected() is true on return.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// handleConnect is called by paho when a session is (re-)established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleConnectionLost is called by paho when the session drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// dispatch forwards an inbound message to the registered handler with
// panic recovery.
func (c *Client) dispatch(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("message handler panic recovered",
					"topic", topic,
					"panic", r,
				)
			}
		}
	}()

	c.callbackMu.RLock()
	handler := c.onMessage
	c.callbackMu.RUnlock()
	if handler != nil {
		handler(topic, payload)
	}
}

// Publish sends a message to the specified topic.
//
// Parameters:
//   - topic: The topic to publish to
//   - payload: The message payload (typically JSON)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// SubscribeMultiple issues one subscribe call for all filters.
//
// The broker answers with a granted QoS per topic; refused topics carry
// GrantRejected. Deciding whether a partial grant is acceptable is the
// caller's concern, so a valid SUBACK with rejections is not an error
// here.
//
// Parameters:
//   - filters: Map of topic filter to requested QoS
//
// Returns:
//   - map[string]byte: Granted QoS per topic filter
//   - error: If the subscribe call itself fails or times out
func (c *Client) SubscribeMultiple(filters map[string]byte) (map[string]byte, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: no topic filters", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	token := c.client.SubscribeMultiple(filters, nil)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	subToken, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected token type %T", ErrSubscribeFailed, token)
	}

	return subToken.Result(), nil
}

// Close gracefully disconnects from the broker.
//
// It waits for pending operations during a short quiesce period and
// returns once teardown is complete. Safe to call multiple times.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked on every session establishment,
// initial connect and reconnect alike.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnConnectionLost sets a callback invoked when the session drops.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onLost = callback
	c.callbackMu.Unlock()
}

// SetOnMessage sets the handler for all inbound messages.
func (c *Client) SetOnMessage(handler MessageHandler) {
	c.callbackMu.Lock()
	c.onMessage = handler
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for handler panic logging.
// If not set, recovered panics are silently discarded.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
