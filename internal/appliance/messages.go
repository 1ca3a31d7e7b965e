package appliance

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the discriminant of the message envelope's tagged union.
type Kind string

// Inbound status kinds.
const (
	// KindCurrentState is the device's full state snapshot.
	KindCurrentState Kind = "CURRENT-STATE"

	// KindStateChange reports a delta in the device's state.
	KindStateChange Kind = "STATE-CHANGE"

	// KindSensorData carries environmental sensor readings.
	KindSensorData Kind = "SENSOR-DATA"

	// KindFaultStatus carries the device's fault table.
	KindFaultStatus Kind = "FAULT-STATUS"
)

// Outbound command kinds.
const (
	// KindRequestCurrentState asks the device to republish its state.
	KindRequestCurrentState Kind = "REQUEST-CURRENT-STATE"

	// KindSetState changes device settings; requires a "data" parameter.
	KindSetState Kind = "SET-STATE"
)

// statusShapes maps each inbound kind to the payload field that must be
// a JSON object for the message to be structurally valid. The set is
// closed: a kind absent here is unknown, which is a distinct error from
// a malformed payload of a known kind.
var statusShapes = map[Kind]string{
	KindCurrentState: "state",
	KindStateChange:  "state",
	KindSensorData:   "data",
	KindFaultStatus:  "faults",
}

// commandParams maps each command kind to its required parameter field.
// Empty means the command takes no parameters.
var commandParams = map[Kind]string{
	KindRequestCurrentState: "",
	KindSetState:            "data",
}

// Message is a validated, typed inbound message.
type Message struct {
	// Kind is the envelope discriminant.
	Kind Kind

	// Time is the device-stamped envelope timestamp.
	Time time.Time

	// Topic is the concrete topic the message arrived on.
	Topic string

	// Fields holds the kind-specific payload fields, excluding the
	// envelope's discriminant and timestamp.
	Fields map[string]any
}

// envelope is the wire shape shared by every message.
type envelope struct {
	Msg  string `json:"msg"`
	Time string `json:"time"`
}

// ParseStatusMessage validates a raw payload from a status topic against
// the expected shape for its declared kind.
//
// Failure is a per-message processing error, never fatal to the
// connection: the caller drops the message and continues.
//
// Parameters:
//   - topic: The concrete topic the payload arrived on
//   - payload: Raw JSON payload
//
// Returns:
//   - *Message: The validated, typed message
//   - error: ErrUnknownKind for an unrecognised discriminant,
//     ErrMalformedMessage for structural failures
func ParseStatusMessage(topic string, payload []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrMalformedMessage, err)
	}
	if env.Msg == "" {
		return nil, fmt.Errorf("%w: missing discriminant field \"msg\"", ErrMalformedMessage)
	}

	kind := Kind(env.Msg)
	shapeField, known := statusShapes[kind]
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Msg)
	}

	if env.Time == "" {
		return nil, fmt.Errorf("%w: %s missing \"time\" field", ErrMalformedMessage, kind)
	}
	ts, err := time.Parse(time.RFC3339, env.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has invalid timestamp %q: %w", ErrMalformedMessage, kind, env.Time, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON object: %w", ErrMalformedMessage, err)
	}
	delete(fields, "msg")
	delete(fields, "time")

	// The kind-specific field must be present and must be an object.
	raw, ok := fields[shapeField]
	if !ok {
		return nil, fmt.Errorf("%w: %s missing %q field", ErrMalformedMessage, kind, shapeField)
	}
	var shape map[string]any
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: %s field %q is not an object: %w", ErrMalformedMessage, kind, shapeField, err)
	}

	decoded := make(map[string]any, len(fields))
	for k, v := range fields {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, fmt.Errorf("%w: %s field %q undecodable: %w", ErrMalformedMessage, kind, k, err)
		}
		decoded[k] = val
	}

	return &Message{
		Kind:   kind,
		Time:   ts,
		Topic:  topic,
		Fields: decoded,
	}, nil
}

// ParseCommandEcho extracts the kind of a payload seen on the command
// topic. Such traffic is an echo of our own publish; it is recognised
// for logging but not normalised the way status traffic is.
//
// Returns:
//   - Kind: The echoed command kind (may be empty if absent)
//   - error: ErrMalformedMessage only if the payload is not JSON
func ParseCommandEcho(payload []byte) (Kind, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("%w: command echo is not JSON: %w", ErrMalformedMessage, err)
	}
	return Kind(env.Msg), nil
}

// EncodeCommand builds the wire envelope for an outbound command.
//
// The caller-supplied params map is copied, never mutated; the envelope
// adds the discriminant and an ISO-8601 timestamp.
//
// Parameters:
//   - kind: An outbound command kind
//   - params: Kind-specific parameters (may be nil)
//   - now: Timestamp to stamp into the envelope
//
// Returns:
//   - []byte: Serialized envelope
//   - error: ErrNotCommandKind for non-command kinds,
//     ErrMissingParameters when a required parameter is absent
func EncodeCommand(kind Kind, params map[string]any, now time.Time) ([]byte, error) {
	required, ok := commandParams[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotCommandKind, kind)
	}
	if required != "" {
		if _, present := params[required]; !present {
			return nil, fmt.Errorf("%w: %s requires %q", ErrMissingParameters, kind, required)
		}
	}

	wire := make(map[string]any, len(params)+2)
	for k, v := range params {
		wire[k] = v
	}
	wire["msg"] = string(kind)
	wire["time"] = now.UTC().Format(time.RFC3339)

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", kind, err)
	}
	return payload, nil
}
