package edge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// HandlerFunc processes a single received message. Errors other than
// ErrDisconnected are logged by the dispatch loop and do not stop it.
type HandlerFunc func(ctx context.Context, p Protocol, msg Message) error

// Logger is the minimal logging interface the handler needs. The
// infrastructure logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommunicationHandler reads messages from a protocol endpoint and
// dispatches them to handlers registered by message type.
//
// Handlers never run concurrently on the same endpoint: the loop reads
// one message, dispatches it, and only then reads the next. PING and
// PONG handlers are built in.
type CommunicationHandler struct {
	protocol Protocol
	deviceID string
	logger   Logger

	mu       sync.RWMutex
	handlers map[MessageType]HandlerFunc

	stopped atomic.Bool
}

// NewCommunicationHandler creates a handler for the given endpoint.
// The device id identifies the peer in logs and server-side bookkeeping.
func NewCommunicationHandler(protocol Protocol, deviceID string) *CommunicationHandler {
	h := &CommunicationHandler{
		protocol: protocol,
		deviceID: deviceID,
		logger:   noopLogger{},
		handlers: make(map[MessageType]HandlerFunc),
	}

	h.handlers[MessageTypePing] = handlePing
	h.handlers[MessageTypePong] = handlePong

	return h
}

// SetLogger sets the logger used by the dispatch loop.
func (h *CommunicationHandler) SetLogger(logger Logger) {
	h.logger = logger
}

// Protocol returns the endpoint this handler reads from.
func (h *CommunicationHandler) Protocol() Protocol { return h.protocol }

// DeviceID returns the id of the peer device.
func (h *CommunicationHandler) DeviceID() string { return h.deviceID }

// RegisterHandlers adds the given handlers, replacing any previously
// registered handler for the same message type. Nil handlers are
// rejected.
func (h *CommunicationHandler) RegisterHandlers(handlers map[MessageType]HandlerFunc) error {
	for messageType, handler := range handlers {
		if handler == nil {
			return fmt.Errorf("handler for message type %s is nil", messageType)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for messageType, handler := range handlers {
		h.handlers[messageType] = handler
	}
	return nil
}

// Stop causes Listen to return after the in-flight handler completes.
func (h *CommunicationHandler) Stop() {
	h.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (h *CommunicationHandler) Stopped() bool {
	return h.stopped.Load()
}

// Send transmits a message over the endpoint.
func (h *CommunicationHandler) Send(ctx context.Context, msg Message) error {
	h.logger.Debug("sending message", "type", msg.Type, "device_id", h.deviceID)
	return h.protocol.Send(ctx, msg)
}

// Listen reads and dispatches messages until the endpoint disconnects,
// the context is cancelled, or Stop is called.
//
// Handler failures are logged and the loop continues; only
// ErrDisconnected (returned), context cancellation (returned as the
// context error) and Stop (returns nil) terminate it.
func (h *CommunicationHandler) Listen(ctx context.Context) error {
	if !h.protocol.IsConnected() {
		if err := h.protocol.Connect(ctx); err != nil {
			return err
		}
	}

	for !h.stopped.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := h.protocol.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrDisconnected) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Malformed frames are skipped, not fatal.
			h.logger.Warn("dropping unreadable frame", "device_id", h.deviceID, "error", err)
			continue
		}

		h.HandleMessage(ctx, msg)
	}
	return nil
}

// HandleMessage dispatches a single message to its registered handler.
// Messages without a handler are logged and dropped.
func (h *CommunicationHandler) HandleMessage(ctx context.Context, msg Message) {
	h.logger.Debug("received message", "type", msg.Type, "device_id", h.deviceID)

	h.mu.RLock()
	handler, ok := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !ok {
		h.logger.Warn("no handler for message type", "type", msg.Type, "device_id", h.deviceID)
		return
	}

	if err := handler(ctx, h.protocol, msg); err != nil {
		h.logger.Error("message handler failed",
			"type", msg.Type, "device_id", h.deviceID, "error", err)
	}
}

// handlePing answers a PING with a PONG.
func handlePing(ctx context.Context, p Protocol, _ Message) error {
	return p.Send(ctx, Message{Type: MessageTypePong})
}

// handlePong ignores the message; receipt alone proves liveness.
func handlePong(_ context.Context, _ Protocol, _ Message) error {
	return nil
}
