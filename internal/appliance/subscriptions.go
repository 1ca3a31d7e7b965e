package appliance

import (
	"fmt"
	"strings"

	"github.com/nerrad567/appliance-link/internal/infrastructure/config"
	"github.com/nerrad567/appliance-link/internal/infrastructure/transport"
)

// qosAtLeastOnce is the QoS level for all subscriptions and publishes.
const qosAtLeastOnce byte = 1

// fullWildcard subscribes to all broker traffic (local brokers only;
// cloud relays drop the session when asked for it).
const fullWildcard = "#"

// Subscriber is the transport capability the subscription manager needs.
type Subscriber interface {
	SubscribeMultiple(filters map[string]byte) (map[string]byte, error)
}

// SubscriptionManager translates device identity and configuration into
// concrete subscriptions and classifies every inbound topic.
//
// Subscriptions do not survive reconnection; the coordinator calls
// Subscribe again on every transport connect event.
type SubscriptionManager struct {
	rootTopic string
	serial    string

	commandTopic string
	subscribed   map[string]bool
	expected     map[string]bool

	// wildcardTopic is the extra diagnostic filter added in wildcard
	// mode: "#" locally, the command topic on cloud-routed brokers.
	// Empty when wildcard mode is off.
	wildcardTopic string

	conn   Subscriber
	logger Logger
}

// NewSubscriptionManager resolves all configured topic templates against
// the device identity.
//
// Parameters:
//   - device: Device identity (root topic, serial)
//   - cfg: Topic template configuration
//   - cloud: Whether the broker is cloud-routed
//   - conn: Transport used for subscribe calls
//   - logger: Structured logger (required)
func NewSubscriptionManager(device config.DeviceConfig, cfg config.SubscriptionsConfig, cloud bool, conn Subscriber, logger Logger) *SubscriptionManager {
	s := &SubscriptionManager{
		rootTopic:  device.RootTopic,
		serial:     device.SerialNumber,
		subscribed: make(map[string]bool, len(cfg.Subscribe)),
		expected:   make(map[string]bool, len(cfg.Other)),
		conn:       conn,
		logger:     logger,
	}

	s.commandTopic = s.resolve(cfg.Command)
	for _, tmpl := range cfg.Subscribe {
		s.subscribed[s.resolve(tmpl)] = true
	}
	for _, tmpl := range cfg.Other {
		s.expected[s.resolve(tmpl)] = true
	}

	if cfg.Wildcard {
		if cloud {
			s.wildcardTopic = s.commandTopic
		} else {
			s.wildcardTopic = fullWildcard
		}
	}

	return s
}

// resolve substitutes this device's identity into a template.
func (s *SubscriptionManager) resolve(template string) string {
	return ResolveTemplate(template, s.rootTopic, s.serial)
}

// CommandTopic returns the resolved topic for outbound commands.
func (s *SubscriptionManager) CommandTopic() string {
	return s.commandTopic
}

// Subscribe issues one QoS-1 subscribe call for all resolved topics and
// accounts for the broker's per-topic grants.
//
// Grant outcomes:
//   - Zero granted: total failure, returns ErrSubscriptionFailed; the
//     transport's next reconnect retries the attempt.
//   - Partial grant: logs a warning naming the rejected topics; the
//     session is degraded but usable, so no error.
//   - All granted: logs success.
//
// Returns:
//   - error: Only for total failure or a failed subscribe call
func (s *SubscriptionManager) Subscribe() error {
	filters := make(map[string]byte, len(s.subscribed)+1)
	for topic := range s.subscribed {
		filters[topic] = qosAtLeastOnce
	}
	if s.wildcardTopic != "" {
		filters[s.wildcardTopic] = qosAtLeastOnce
	}

	granted, err := s.conn.SubscribeMultiple(filters)
	if err != nil {
		return fmt.Errorf("subscribing to %d topics: %w", len(filters), err)
	}

	var rejected []string
	for topic := range filters {
		if qos, ok := granted[topic]; !ok || qos == transport.GrantRejected {
			rejected = append(rejected, topic)
		}
	}

	switch {
	case len(rejected) == len(filters):
		return fmt.Errorf("%w: %d of %d topics rejected", ErrSubscriptionFailed, len(rejected), len(filters))

	case len(rejected) > 0:
		s.logger.Warn("subscription partially rejected",
			"rejected_count", len(rejected),
			"total", len(filters),
			"rejected_topics", strings.Join(rejected, ","),
		)

	default:
		s.logger.Info("subscriptions established",
			"topics", len(filters),
		)
	}

	return nil
}

// Classify returns the classification of a concrete inbound topic by
// exact match against the resolved templates.
//
// Unexpected topics get a root-cause diagnosis in the log: a root-topic
// mismatch (wrong product type) is reported over a serial mismatch
// (wrong device), which is reported over a fully unrecognised topic.
func (s *SubscriptionManager) Classify(topic string) TopicClass {
	switch {
	case topic == s.commandTopic:
		return TopicCommand
	case s.subscribed[topic]:
		return TopicSubscribed
	case s.expected[topic]:
		return TopicExpected
	}

	s.diagnoseUnexpected(topic)
	return TopicUnexpected
}

// diagnoseUnexpected logs the most specific explanation for a topic
// that matched nothing, comparing its identity segments to ours.
func (s *SubscriptionManager) diagnoseUnexpected(topic string) {
	parts := strings.SplitN(topic, "/", topicSegments+1)

	switch {
	case len(parts) > 0 && parts[0] != s.rootTopic:
		s.logger.Warn("unexpected topic: root topic mismatch",
			"topic", topic,
			"got_root", parts[0],
			"want_root", s.rootTopic,
		)

	case len(parts) > 1 && parts[1] != s.serial:
		s.logger.Warn("unexpected topic: serial number mismatch",
			"topic", topic,
			"got_serial", parts[1],
			"want_serial", s.serial,
		)

	default:
		s.logger.Warn("unexpected topic: unrecognised path",
			"topic", topic,
		)
	}
}
