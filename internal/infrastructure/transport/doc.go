// Package transport provides the publish/subscribe transport for
// Appliance Link.
//
// This package manages:
//   - Connection to the appliance's broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Batch subscriptions with per-topic grant reporting
//   - Connect/lost/message event callbacks
//
// # Architecture
//
// The link layer never talks to paho directly; it depends on the Conn
// interface. The paho-backed *Client covers both broker variants:
//
//   - Local: plain tcp to the appliance's embedded broker
//   - Cloud-routed: TLS to a relay broker (Cloud flag in config)
//
// A replay or mock variant implements Conn in tests. The variant is
// selected once, at construction, from the broker configuration.
//
// Reconnect backoff, keepalive, and TLS are this package's concern.
// Interpreting repeated connection losses as unreachability is not;
// that judgement belongs to the appliance coordinator.
package transport
