package edge

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "ping without payload",
			msg:  Message{Type: MessageTypePing},
		},
		{
			name: "pong without payload",
			msg:  Message{Type: MessageTypePong},
		},
		{
			name: "edge version",
			msg: Message{
				Type:    MessageTypeEdgeVersion,
				Payload: &EdgeVersionPayload{Version: "1.4.2"},
			},
		},
		{
			name: "device config",
			msg: Message{
				Type: MessageTypeDeviceConfig,
				Payload: &DeviceConfigPayload{
					Drivers: []DriverMetadata{
						{
							Identifier:   "living-room-sht30",
							Direction:    DirectionInput,
							DriverModule: "sht30",
							Signals: []SignalDescriptor{
								{SignalIdentifier: "temperature", UnitOfMeasurement: UnitCelsius},
								{SignalIdentifier: "humidity", UnitOfMeasurement: UnitHumidityPercentage},
							},
						},
					},
				},
			},
		},
		{
			name: "device config response",
			msg: Message{
				Type: MessageTypeDeviceConfigResponse,
				Payload: &DeviceConfigResponsePayload{
					TimeseriesIndex: map[string]map[string]int64{
						"living-room-sht30": {"temperature": 17, "humidity": 18},
					},
				},
			},
		},
		{
			name: "device data",
			msg: Message{
				Type: MessageTypeDeviceData,
				Payload: &DeviceDataPayload{
					StagingID: "a1B2c3",
					Data: map[int64]DriverTimeseries{
						17: {
							TimestampsUTC: []int64{1700000000, 1700000150},
							Values:        []float64{21.5, 21.7},
						},
					},
				},
			},
		},
		{
			name: "device data ack",
			msg: Message{
				Type:    MessageTypeDeviceDataAck,
				Payload: &DeviceDataAckPayload{StagingID: "a1B2c3"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !strings.HasPrefix(raw, string(tt.msg.Type)) {
				t.Errorf("encoded frame %q does not start with tag %q", raw, tt.msg.Type)
			}

			decoded, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if decoded.Type != tt.msg.Type {
				t.Errorf("Decode() type = %v, want %v", decoded.Type, tt.msg.Type)
			}
			if tt.msg.Payload == nil && decoded.Payload != nil {
				t.Errorf("Decode() payload = %v, want nil", decoded.Payload)
			}

			again, err := Encode(decoded)
			if err != nil {
				t.Fatalf("Encode(Decode()) error = %v", err)
			}
			if again != raw {
				t.Errorf("re-encoded frame = %q, want %q", again, raw)
			}
		})
	}
}

func TestEncodeRejectsMismatchedPayload(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "ping with payload",
			msg:  Message{Type: MessageTypePing, Payload: &EdgeVersionPayload{Version: "1.0.0"}},
		},
		{
			name: "edge version without payload",
			msg:  Message{Type: MessageTypeEdgeVersion},
		},
		{
			name: "wrong payload type",
			msg:  Message{Type: MessageTypeDeviceData, Payload: &DeviceDataAckPayload{StagingID: "abc123"}},
		},
		{
			name: "unknown message type",
			msg:  Message{Type: MessageType("telemetry")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.msg); err == nil {
				t.Error("Encode() error = nil, want error")
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty frame", raw: ""},
		{name: "unknown tag", raw: "telemetry|{}"},
		{name: "payload on ping", raw: "ping|{}"},
		{name: "missing payload", raw: "edge_version"},
		{name: "invalid json", raw: "edge_version|{not json"},
		{name: "unknown field", raw: `edge_version|{"v":"1.0.0","extra":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			if err == nil {
				t.Fatal("Decode() error = nil, want error")
			}
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("Decode() error = %v, want ErrMalformedEnvelope", err)
			}
		})
	}
}

func TestNewStagingID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewStagingID()
		if len(id) != StagingIDLength {
			t.Fatalf("staging id %q has length %d, want %d", id, len(id), StagingIDLength)
		}
		for _, r := range id {
			alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !alnum {
				t.Fatalf("staging id %q contains non-alphanumeric %q", id, r)
			}
		}
		seen[id] = true
	}
	if len(seen) < 90 {
		t.Errorf("generated %d distinct ids out of 100, expected near-unique output", len(seen))
	}
}
