package appliance

// Status is the externally visible link state for one appliance.
// Mutated only by the coordinator's event loop; external readers only
// observe snapshots.
type Status struct {
	// Reachable is true while the device has a working subscription and
	// any transport blip is still inside the grace period.
	Reachable bool

	// Initialised is true once the owning application has observed the
	// full initial state it requires. Signalled externally via
	// SetInitialised; this layer only carries the flag.
	Initialised bool
}

// reachabilityState is the coordinator's internal hysteresis state.
type reachabilityState int

const (
	// stateUnreachable: no working session, grace expired (or never
	// established).
	stateUnreachable reachabilityState = iota

	// statePendingUnreachable: transport closed while reachable; the
	// grace timer is running and the external flag still reads true.
	statePendingUnreachable

	// stateReachable: subscriptions established.
	stateReachable
)

// String returns the state name for logging.
func (s reachabilityState) String() string {
	switch s {
	case statePendingUnreachable:
		return "pending_unreachable"
	case stateReachable:
		return "reachable"
	default:
		return "unreachable"
	}
}
