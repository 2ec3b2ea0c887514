package edge

import "errors"

// Protocol errors. Check with errors.Is.
var (
	// ErrDisconnected is returned by Send/Receive when the underlying
	// connection is closed. It unwinds the communication handler loop.
	ErrDisconnected = errors.New("edge: connection disconnected")

	// ErrConnectionFailed is returned by Connect when the connection
	// attempt fails. The device retries it with a backoff policy.
	ErrConnectionFailed = errors.New("edge: connection failed")

	// ErrMalformedEnvelope is returned by the codec for frames with an
	// unknown tag, a missing separator, or a payload that does not
	// match the schema of its message type.
	ErrMalformedEnvelope = errors.New("edge: malformed envelope")
)
