package appliance

import "errors"

// Domain errors for the appliance link package.
var (
	// ErrSubscriptionFailed is returned when the broker rejects every
	// requested topic. The session is unusable; the transport's next
	// reconnect retries the whole attempt.
	ErrSubscriptionFailed = errors.New("appliance: all subscriptions rejected")

	// ErrUnknownKind is returned when a message carries a discriminant
	// value outside the known kind set.
	ErrUnknownKind = errors.New("appliance: unknown message kind")

	// ErrMalformedMessage is returned when a payload of a recognised
	// kind fails structural validation.
	ErrMalformedMessage = errors.New("appliance: malformed message")

	// ErrNotCommandKind is returned when publishing a kind that is not
	// an outbound command.
	ErrNotCommandKind = errors.New("appliance: not a command kind")

	// ErrMissingParameters is returned when a command kind's required
	// parameters are absent.
	ErrMissingParameters = errors.New("appliance: missing command parameters")

	// ErrStopped is returned for operations on a stopped coordinator.
	ErrStopped = errors.New("appliance: coordinator stopped")
)
