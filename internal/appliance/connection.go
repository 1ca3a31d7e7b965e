package appliance

import (
	"fmt"
	"sync"

	"github.com/nerrad567/appliance-link/internal/infrastructure/transport"
)

// Logger is the logging interface for this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Connection owns the transport's lifecycle and surfaces connect/close
// as coordinator inputs.
//
// Its contract is deliberately small: it raises close each time
// connectivity is lost and connect each time a session is
// (re-)established, regardless of cause. Retry policy lives in the
// transport; interpreting repeated closes as unreachability lives in the
// coordinator.
type Connection struct {
	conn   transport.Conn
	logger Logger

	stopOnce sync.Once
	stopErr  error
}

// NewConnection wraps a transport. Callbacks must be registered before
// Start so no early event is missed.
func NewConnection(conn transport.Conn, logger Logger) *Connection {
	return &Connection{
		conn:   conn,
		logger: logger,
	}
}

// SetOnConnect registers the session-established callback.
// Fires on the initial connect and on every reconnect.
func (c *Connection) SetOnConnect(callback func()) {
	c.conn.SetOnConnect(callback)
}

// SetOnClose registers the connectivity-lost callback.
// The error describes the cause; a close is not itself an error.
func (c *Connection) SetOnClose(callback func(err error)) {
	c.conn.SetOnConnectionLost(callback)
}

// SetOnMessage registers the inbound message handler.
func (c *Connection) SetOnMessage(handler transport.MessageHandler) {
	c.conn.SetOnMessage(handler)
}

// Start begins attempting to connect. After the initial session the
// transport retries internally on loss; each re-establishment fires the
// connect callback again.
//
// Returns:
//   - error: If the initial connection attempt fails
func (c *Connection) Start() error {
	if err := c.conn.Connect(); err != nil {
		return fmt.Errorf("starting connection: %w", err)
	}
	return nil
}

// Publish forwards a publish to the transport.
func (c *Connection) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return c.conn.Publish(topic, payload, qos, retained)
}

// IsConnected reports the transport's last known session state.
func (c *Connection) IsConnected() bool {
	return c.conn.IsConnected()
}

// Stop gracefully disconnects the transport and returns once teardown
// is complete. Idempotent.
func (c *Connection) Stop() error {
	c.stopOnce.Do(func() {
		c.logger.Debug("disconnecting transport")
		c.stopErr = c.conn.Close()
	})
	return c.stopErr
}
