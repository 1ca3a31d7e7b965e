package appliance

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const testTopic = "475/AB1-CD-EFG2345H/status/current"

func TestParseStatusMessageValidKinds(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    Kind
	}{
		{
			name:    "current state",
			payload: `{"msg":"CURRENT-STATE","time":"2026-08-26T10:00:00Z","state":{"power":"on"}}`,
			kind:    KindCurrentState,
		},
		{
			name:    "state change",
			payload: `{"msg":"STATE-CHANGE","time":"2026-08-26T10:00:00Z","state":{"power":"off"}}`,
			kind:    KindStateChange,
		},
		{
			name:    "sensor data",
			payload: `{"msg":"SENSOR-DATA","time":"2026-08-26T10:00:00Z","data":{"pm25":12}}`,
			kind:    KindSensorData,
		},
		{
			name:    "fault status",
			payload: `{"msg":"FAULT-STATUS","time":"2026-08-26T10:00:00Z","faults":{"filter":"ok"}}`,
			kind:    KindFaultStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseStatusMessage(testTopic, []byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseStatusMessage() error = %v", err)
			}
			if msg.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", msg.Kind, tt.kind)
			}
			if msg.Topic != testTopic {
				t.Errorf("Topic = %q, want %q", msg.Topic, testTopic)
			}
			want := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
			if !msg.Time.Equal(want) {
				t.Errorf("Time = %v, want %v", msg.Time, want)
			}
		})
	}
}

func TestParseStatusMessageFieldsExcludeEnvelope(t *testing.T) {
	payload := `{"msg":"CURRENT-STATE","time":"2026-08-26T10:00:00Z","state":{"power":"on"},"rssi":-54}`

	msg, err := ParseStatusMessage(testTopic, []byte(payload))
	if err != nil {
		t.Fatalf("ParseStatusMessage() error = %v", err)
	}

	if _, ok := msg.Fields["msg"]; ok {
		t.Error("Fields contains envelope discriminant")
	}
	if _, ok := msg.Fields["time"]; ok {
		t.Error("Fields contains envelope timestamp")
	}
	if _, ok := msg.Fields["state"]; !ok {
		t.Error("Fields missing kind-specific field")
	}
	if _, ok := msg.Fields["rssi"]; !ok {
		t.Error("Fields missing extra payload field")
	}
}

func TestParseStatusMessageUnknownKind(t *testing.T) {
	payload := `{"msg":"FIRMWARE-UPDATE","time":"2026-08-26T10:00:00Z","data":{}}`

	_, err := ParseStatusMessage(testTopic, []byte(payload))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}
	if errors.Is(err, ErrMalformedMessage) {
		t.Error("unknown kind must not also report malformed")
	}
}

func TestParseStatusMessageMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not JSON", `not json at all`},
		{"missing discriminant", `{"time":"2026-08-26T10:00:00Z","state":{}}`},
		{"missing time", `{"msg":"CURRENT-STATE","state":{}}`},
		{"invalid time", `{"msg":"CURRENT-STATE","time":"yesterday","state":{}}`},
		{"missing shape field", `{"msg":"CURRENT-STATE","time":"2026-08-26T10:00:00Z"}`},
		{"shape field not object", `{"msg":"CURRENT-STATE","time":"2026-08-26T10:00:00Z","state":"on"}`},
		{"wrong shape field for kind", `{"msg":"SENSOR-DATA","time":"2026-08-26T10:00:00Z","state":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStatusMessage(testTopic, []byte(tt.payload))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("error = %v, want ErrMalformedMessage", err)
			}
		})
	}
}

func TestParseCommandEcho(t *testing.T) {
	kind, err := ParseCommandEcho([]byte(`{"msg":"SET-STATE","time":"2026-08-26T10:00:00Z","data":{"power":"on"}}`))
	if err != nil {
		t.Fatalf("ParseCommandEcho() error = %v", err)
	}
	if kind != KindSetState {
		t.Errorf("kind = %q, want %q", kind, KindSetState)
	}

	if _, err := ParseCommandEcho([]byte(`garbage`)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("error = %v, want ErrMalformedMessage", err)
	}
}

func TestEncodeCommand(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)
	params := map[string]any{"data": map[string]any{"power": "on"}}

	payload, err := EncodeCommand(KindSetState, params, now)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}

	if wire["msg"] != string(KindSetState) {
		t.Errorf("msg = %v, want %q", wire["msg"], KindSetState)
	}
	if wire["time"] != "2026-08-26T10:30:00Z" {
		t.Errorf("time = %v, want RFC3339 timestamp", wire["time"])
	}
	if _, ok := wire["data"]; !ok {
		t.Error("envelope missing data parameter")
	}
}

func TestEncodeCommandDoesNotMutateParams(t *testing.T) {
	params := map[string]any{"data": map[string]any{"power": "on"}}

	if _, err := EncodeCommand(KindSetState, params, time.Now()); err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}

	if len(params) != 1 {
		t.Errorf("params mutated: %v", params)
	}
	if _, ok := params["msg"]; ok {
		t.Error("params gained envelope discriminant")
	}
}

func TestEncodeCommandNoParameters(t *testing.T) {
	payload, err := EncodeCommand(KindRequestCurrentState, nil, time.Now())
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if len(wire) != 2 {
		t.Errorf("envelope has %d fields, want msg and time only", len(wire))
	}
}

func TestEncodeCommandRejectsStatusKind(t *testing.T) {
	_, err := EncodeCommand(KindCurrentState, nil, time.Now())
	if !errors.Is(err, ErrNotCommandKind) {
		t.Errorf("error = %v, want ErrNotCommandKind", err)
	}
}

func TestEncodeCommandMissingParameters(t *testing.T) {
	_, err := EncodeCommand(KindSetState, nil, time.Now())
	if !errors.Is(err, ErrMissingParameters) {
		t.Errorf("error = %v, want ErrMissingParameters", err)
	}

	_, err = EncodeCommand(KindSetState, map[string]any{"other": 1}, time.Now())
	if !errors.Is(err, ErrMissingParameters) {
		t.Errorf("error = %v, want ErrMissingParameters", err)
	}
}
