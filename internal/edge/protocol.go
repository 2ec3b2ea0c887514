package edge

import "context"

// Protocol is the abstract full-duplex channel between the server and a
// device. The websocket transports on both sides implement it.
//
// Messages are delivered whole and in FIFO order per endpoint. The
// protocol has no built-in retry; callers compose reconnection with a
// retry policy.
type Protocol interface {
	// Send transmits a message. Returns ErrDisconnected when the
	// connection is closed.
	Send(ctx context.Context, msg Message) error

	// Receive blocks until the next message arrives. Returns
	// ErrDisconnected when the connection is closed.
	Receive(ctx context.Context) (Message, error)

	// Connect establishes the connection. It is idempotent: calling it
	// on an open connection is a no-op. On success it fires the
	// endpoint's on-connect callback, if any. Returns
	// ErrConnectionFailed when the attempt fails.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Safe to call when already
	// disconnected.
	Disconnect() error

	// IsConnected reports whether the connection is currently open.
	IsConnected() bool
}

// OnConnectFunc is invoked by a protocol endpoint after a successful
// Connect.
type OnConnectFunc func(ctx context.Context, p Protocol) error
