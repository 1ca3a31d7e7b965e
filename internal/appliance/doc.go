// Package appliance maintains the reliable, typed, deduplicated
// event/command channel between Appliance Link and one device.
//
// The device disconnects, reconnects, and resends overlapping state;
// this package reconciles those unordered, sometimes-duplicated network
// events into one consistent picture:
//
//   - Connection: owns the transport lifecycle, surfaces connect/close
//   - SubscriptionManager: resolves topic templates from device
//     identity, re-subscribes on every connect, classifies inbound
//     topics
//   - ParseStatusMessage: structural validation of the tagged message
//     envelope
//   - Filter: per-kind duplicate suppression (timestamp excluded)
//   - Coordinator: reachability state machine with grace-period
//     hysteresis, initialization barrier, typed publish and dispatch
//
// # Reachability hysteresis
//
// A transport close while reachable starts a grace timer instead of
// flipping the flag: normal fast reconnect cycles resubscribe inside
// the grace period and the externally visible reachability never
// toggles. Only a grace expiry without an intervening subscription
// confirms unreachability, and that is logged at error severity.
//
// # Concurrency
//
// One event loop goroutine owns all state. Transport events are
// processed strictly in arrival order; the receive pipeline for one
// message (classify, normalize, filter, dispatch) completes before the
// next message is examined, so duplicate detection and reachability
// transitions never race. External readers observe Status snapshots
// only.
package appliance
