package edge

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType identifies the kind of message carried by an envelope.
type MessageType string

// Message types exchanged between the server and the edge devices.
const (
	// MessageTypePing requests the peer to respond with a PONG. Used to
	// check that the peer is still reachable.
	MessageTypePing MessageType = "ping"

	// MessageTypePong is the response to a PING.
	MessageTypePong MessageType = "pong"

	// MessageTypeEdgeVersion carries the edge software version known to
	// the sender. The server sends it right after a device connects so
	// the device can decide whether it needs an update.
	MessageTypeEdgeVersion MessageType = "edge_version"

	// MessageTypeDeviceConfig is sent by the device after connecting.
	// It describes the device's drivers and signals so the server can
	// create the matching data structures.
	MessageTypeDeviceConfig MessageType = "device_config"

	// MessageTypeDeviceConfigResponse is the server's answer to a
	// DEVICE_CONFIG message. It maps every driver signal to its
	// server-side timeseries id.
	MessageTypeDeviceConfigResponse MessageType = "device_config_response"

	// MessageTypeDeviceData carries a staged batch of samples from the
	// device to the server.
	MessageTypeDeviceData MessageType = "device_data"

	// MessageTypeDeviceDataAck confirms that a DEVICE_DATA batch has
	// been persisted. The device deletes the batch on receipt.
	MessageTypeDeviceDataAck MessageType = "device_data_ack"
)

// separator splits the message tag from the optional JSON payload.
const separator = "|"

// Payload is implemented by every message payload type.
type Payload interface {
	payloadType() MessageType
}

// Message is the envelope exchanged over the edge link. Payload is nil
// for types that carry none (PING, PONG).
type Message struct {
	Type    MessageType
	Payload Payload
}

// EdgeVersionPayload is the payload of an EDGE_VERSION message.
type EdgeVersionPayload struct {
	// Version of the edge software in semantic-version form.
	Version string `json:"v"`
}

func (*EdgeVersionPayload) payloadType() MessageType { return MessageTypeEdgeVersion }

// DeviceConfigPayload is the payload of a DEVICE_CONFIG message.
type DeviceConfigPayload struct {
	Drivers []DriverMetadata `json:"drivers"`
}

func (*DeviceConfigPayload) payloadType() MessageType { return MessageTypeDeviceConfig }

// DeviceConfigResponsePayload is the payload of a DEVICE_CONFIG_RESPONSE
// message. The index maps driver identifier to signal identifier to the
// server-side timeseries id.
type DeviceConfigResponsePayload struct {
	TimeseriesIndex map[string]map[string]int64 `json:"timeseries_index"`
}

func (*DeviceConfigResponsePayload) payloadType() MessageType {
	return MessageTypeDeviceConfigResponse
}

// DriverTimeseries holds the samples of a single signal. The timestamp
// and value slices are parallel arrays of equal length.
type DriverTimeseries struct {
	// TimestampsUTC are Unix seconds in UTC.
	TimestampsUTC []int64 `json:"ts"`

	Values []float64 `json:"v"`
}

// DeviceDataPayload is the payload of a DEVICE_DATA message. Data maps
// the server-side timeseries id to the samples of that signal.
type DeviceDataPayload struct {
	StagingID string `json:"sid"`

	Data map[int64]DriverTimeseries `json:"d"`
}

func (*DeviceDataPayload) payloadType() MessageType { return MessageTypeDeviceData }

// DeviceDataAckPayload is the payload of a DEVICE_DATA_ACK message.
type DeviceDataAckPayload struct {
	StagingID string `json:"sid"`
}

func (*DeviceDataAckPayload) payloadType() MessageType { return MessageTypeDeviceDataAck }

// StagingIDLength is the length of a staging id. Staging ids tag a
// batch so its confirmation can delete exactly that batch.
const StagingIDLength = 6

const stagingIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewStagingID generates a random staging id.
func NewStagingID() string {
	b := make([]byte, StagingIDLength)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("edge: reading random bytes: %v", err))
	}
	for i := range b {
		b[i] = stagingIDAlphabet[int(b[i])%len(stagingIDAlphabet)]
	}
	return string(b)
}

// newPayload returns a zero payload value for the given message type,
// or nil for types without a payload. The second return reports whether
// the type is known.
func newPayload(t MessageType) (Payload, bool) {
	switch t {
	case MessageTypePing, MessageTypePong:
		return nil, true
	case MessageTypeEdgeVersion:
		return &EdgeVersionPayload{}, true
	case MessageTypeDeviceConfig:
		return &DeviceConfigPayload{}, true
	case MessageTypeDeviceConfigResponse:
		return &DeviceConfigResponsePayload{}, true
	case MessageTypeDeviceData:
		return &DeviceDataPayload{}, true
	case MessageTypeDeviceDataAck:
		return &DeviceDataAckPayload{}, true
	default:
		return nil, false
	}
}

// Encode serialises a message into its wire form: the ASCII tag,
// followed by '|' and the JSON payload for types that carry one.
func Encode(m Message) (string, error) {
	want, known := newPayload(m.Type)
	if !known {
		return "", fmt.Errorf("%w: unknown message type %q", ErrMalformedEnvelope, m.Type)
	}

	if want == nil {
		if m.Payload != nil {
			return "", fmt.Errorf("%w: message type %s does not carry a payload",
				ErrMalformedEnvelope, m.Type)
		}
		return string(m.Type), nil
	}

	if m.Payload == nil {
		return "", fmt.Errorf("%w: message type %s requires a payload",
			ErrMalformedEnvelope, m.Type)
	}
	if m.Payload.payloadType() != m.Type {
		return "", fmt.Errorf("%w: payload type %s does not match message type %s",
			ErrMalformedEnvelope, m.Payload.payloadType(), m.Type)
	}

	data, err := json.Marshal(m.Payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	return string(m.Type) + separator + string(data), nil
}

// Decode parses a wire frame into a message. It rejects unknown tags,
// missing payloads and payloads that do not match the schema of the
// message type.
func Decode(raw string) (Message, error) {
	tag, payload, hasPayload := strings.Cut(raw, separator)

	want, known := newPayload(MessageType(tag))
	if !known {
		return Message{}, fmt.Errorf("%w: unknown message type %q", ErrMalformedEnvelope, tag)
	}

	msg := Message{Type: MessageType(tag)}

	if want == nil {
		if hasPayload {
			return Message{}, fmt.Errorf("%w: message type %s does not carry a payload",
				ErrMalformedEnvelope, msg.Type)
		}
		return msg, nil
	}

	if !hasPayload || payload == "" {
		return Message{}, fmt.Errorf("%w: missing payload for message type %s",
			ErrMalformedEnvelope, msg.Type)
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(want); err != nil {
		return Message{}, fmt.Errorf("%w: invalid payload for message type %s: %v",
			ErrMalformedEnvelope, msg.Type, err)
	}

	msg.Payload = want
	return msg, nil
}
