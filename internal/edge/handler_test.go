package edge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeProtocol is a channel-backed endpoint for driving the handler in
// tests. Received messages are fed through inbox; sent messages are
// captured in sent.
type fakeProtocol struct {
	inbox chan Message

	mu        sync.Mutex
	sent      []Message
	connected bool
}

func newFakeProtocol() *fakeProtocol {
	return &fakeProtocol{inbox: make(chan Message, 16), connected: true}
}

func (f *fakeProtocol) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrDisconnected
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeProtocol) Receive(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-f.inbox:
		if !ok {
			return Message{}, ErrDisconnected
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (f *fakeProtocol) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeProtocol) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeProtocol) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeProtocol) sentMessages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestListenDispatchesInOrder(t *testing.T) {
	protocol := newFakeProtocol()
	handler := NewCommunicationHandler(protocol, "device-1")

	var (
		mu       sync.Mutex
		received []string
	)
	err := handler.RegisterHandlers(map[MessageType]HandlerFunc{
		MessageTypeEdgeVersion: func(_ context.Context, _ Protocol, msg Message) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, msg.Payload.(*EdgeVersionPayload).Version)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterHandlers() error = %v", err)
	}

	versions := []string{"1.0.0", "1.1.0", "2.0.0"}
	for _, v := range versions {
		protocol.inbox <- Message{Type: MessageTypeEdgeVersion, Payload: &EdgeVersionPayload{Version: v}}
	}
	close(protocol.inbox)

	if err := handler.Listen(context.Background()); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Listen() error = %v, want ErrDisconnected", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != len(versions) {
		t.Fatalf("dispatched %d messages, want %d", len(received), len(versions))
	}
	for i, v := range versions {
		if received[i] != v {
			t.Errorf("message %d = %q, want %q", i, received[i], v)
		}
	}
}

func TestListenAnswersPingWithPong(t *testing.T) {
	protocol := newFakeProtocol()
	handler := NewCommunicationHandler(protocol, "device-1")

	protocol.inbox <- Message{Type: MessageTypePing}
	close(protocol.inbox)

	if err := handler.Listen(context.Background()); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Listen() error = %v, want ErrDisconnected", err)
	}

	sent := protocol.sentMessages()
	if len(sent) != 1 || sent[0].Type != MessageTypePong {
		t.Fatalf("sent = %v, want single pong", sent)
	}
}

func TestListenContinuesAfterHandlerError(t *testing.T) {
	protocol := newFakeProtocol()
	handler := NewCommunicationHandler(protocol, "device-1")

	var calls int
	err := handler.RegisterHandlers(map[MessageType]HandlerFunc{
		MessageTypeEdgeVersion: func(context.Context, Protocol, Message) error {
			calls++
			return errors.New("boom")
		},
	})
	if err != nil {
		t.Fatalf("RegisterHandlers() error = %v", err)
	}

	protocol.inbox <- Message{Type: MessageTypeEdgeVersion, Payload: &EdgeVersionPayload{Version: "1.0.0"}}
	protocol.inbox <- Message{Type: MessageTypeEdgeVersion, Payload: &EdgeVersionPayload{Version: "1.0.1"}}
	close(protocol.inbox)

	if err := handler.Listen(context.Background()); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Listen() error = %v, want ErrDisconnected", err)
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}

func TestListenStop(t *testing.T) {
	protocol := newFakeProtocol()
	handler := NewCommunicationHandler(protocol, "device-1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- handler.Listen(ctx) }()

	handler.Stop()
	// Unblock the pending Receive so the loop observes the stop flag.
	protocol.inbox <- Message{Type: MessageTypePong}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Listen() after Stop() error = %v, want nil", err)
		}
	case <-ctx.Done():
		t.Fatal("Listen() did not return after Stop()")
	}
	if !handler.Stopped() {
		t.Error("Stopped() = false after Stop()")
	}
}

func TestListenReturnsContextError(t *testing.T) {
	protocol := newFakeProtocol()
	handler := NewCommunicationHandler(protocol, "device-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := handler.Listen(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Listen() error = %v, want context.Canceled", err)
	}
}

func TestRegisterHandlersRejectsNil(t *testing.T) {
	handler := NewCommunicationHandler(newFakeProtocol(), "device-1")
	err := handler.RegisterHandlers(map[MessageType]HandlerFunc{MessageTypePing: nil})
	if err == nil {
		t.Fatal("RegisterHandlers() error = nil, want error")
	}
}
