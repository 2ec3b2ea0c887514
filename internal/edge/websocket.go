package edge

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketEndpoint adapts an established websocket connection to the
// Protocol interface. Both sides of the link use it: the server wraps
// the upgraded connection, the device wraps the dialled one.
//
// gorilla/websocket allows one concurrent writer, so Send serializes
// writes with a mutex. Receive must only be called from one goroutine,
// which the communication handler's loop guarantees.
type WebsocketEndpoint struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewWebsocketEndpoint wraps an already-established connection.
func NewWebsocketEndpoint(conn *websocket.Conn) *WebsocketEndpoint {
	return &WebsocketEndpoint{conn: conn}
}

// Connect is a no-op on an open endpoint. The connection was
// established before the endpoint was created, so a closed endpoint
// cannot be reconnected.
func (e *WebsocketEndpoint) Connect(context.Context) error {
	if !e.IsConnected() {
		return fmt.Errorf("%w: endpoint is closed", ErrConnectionFailed)
	}
	return nil
}

// Send encodes and transmits a message as one text frame.
func (e *WebsocketEndpoint) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.IsConnected() {
		return ErrDisconnected
	}

	raw, err := Encode(msg)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		e.markClosed()
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return nil
}

// Receive blocks until the next frame arrives and decodes it. Decoding
// failures are returned as ErrMalformedEnvelope without closing the
// connection.
func (e *WebsocketEndpoint) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if !e.IsConnected() {
		return Message{}, ErrDisconnected
	}

	_, raw, err := e.conn.ReadMessage()
	if err != nil {
		e.markClosed()
		return Message{}, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return Decode(string(raw))
}

// Disconnect sends a close frame and closes the connection. Safe to
// call repeatedly.
func (e *WebsocketEndpoint) Disconnect() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.writeMu.Lock()
	//nolint:errcheck // Best-effort close frame; the peer may be gone
	e.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	e.writeMu.Unlock()

	return e.conn.Close()
}

// IsConnected reports whether the connection is open.
func (e *WebsocketEndpoint) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

func (e *WebsocketEndpoint) markClosed() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
