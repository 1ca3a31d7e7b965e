package transport

// GrantRejected is the granted-QoS value a broker returns for a
// subscription it refused (MQTT SUBACK failure code).
const GrantRejected = 0x80

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked sequentially in message arrival order for a given
// connection. They should not block for extended periods.
type MessageHandler func(topic string, payload []byte)

// Conn is the capability surface the link layer requires from a
// publish/subscribe transport. It is implemented by *Client (paho-backed,
// local or cloud-routed variant selected at construction) and by replay
// or mock variants in tests.
//
// Socket lifecycle, TLS, and reconnect backoff are the implementation's
// concern; callers only observe connect/lost events.
type Conn interface {
	// Connect establishes the initial session. The transport keeps
	// retrying internally after connection loss.
	Connect() error

	// Publish sends a payload to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// SubscribeMultiple issues a single subscribe call for all filters
	// and returns the per-topic granted QoS. A rejected topic carries
	// GrantRejected. Inbound messages are delivered to the handler set
	// via SetOnMessage.
	SubscribeMultiple(filters map[string]byte) (map[string]byte, error)

	// Close disconnects gracefully and returns once teardown completes.
	// Safe to call multiple times.
	Close() error

	// IsConnected reports the last known session state.
	IsConnected() bool

	// SetOnConnect registers a callback invoked on every session
	// establishment, initial and reconnect alike.
	SetOnConnect(func())

	// SetOnConnectionLost registers a callback invoked each time the
	// session drops, with the cause.
	SetOnConnectionLost(func(err error))

	// SetOnMessage registers the handler for all inbound messages.
	SetOnMessage(MessageHandler)
}
