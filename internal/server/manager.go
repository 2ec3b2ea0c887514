package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

// LifecycleNotifier receives device connect and disconnect events,
// typically an MQTT publisher. Implementations must tolerate being
// called from multiple connection goroutines.
type LifecycleNotifier interface {
	PublishDeviceOnline(deviceID uuid.UUID) error
	PublishDeviceOffline(deviceID uuid.UUID) error
}

// ConnectionManager tracks the live protocol endpoint of every
// connected device. A device has at most one endpoint; a newer
// connection replaces and closes the previous one.
type ConnectionManager struct {
	logger      *logging.Logger
	edgeVersion string
	notifier    LifecycleNotifier

	mu        sync.RWMutex
	endpoints map[uuid.UUID]edge.Protocol
}

// NewConnectionManager creates an empty connection manager. The edge
// version is sent as the greeting to every device that connects.
func NewConnectionManager(logger *logging.Logger, edgeVersion string) *ConnectionManager {
	return &ConnectionManager{
		logger:      logger,
		edgeVersion: edgeVersion,
		endpoints:   make(map[uuid.UUID]edge.Protocol),
	}
}

// SetNotifier registers a lifecycle notifier. Must be called before
// the first device connects.
func (m *ConnectionManager) SetNotifier(notifier LifecycleNotifier) {
	m.notifier = notifier
}

// Add registers a device's endpoint and sends the version greeting.
// The greeting is the first message on every connection so the device
// can decide whether it needs a software update before exchanging
// anything else.
func (m *ConnectionManager) Add(ctx context.Context, deviceID uuid.UUID, endpoint edge.Protocol) error {
	m.mu.Lock()
	previous := m.endpoints[deviceID]
	m.endpoints[deviceID] = endpoint
	m.mu.Unlock()

	if previous != nil {
		m.logger.Info("replacing device connection", "device_id", deviceID)
		if err := previous.Disconnect(); err != nil {
			m.logger.Warn("closing replaced connection", "device_id", deviceID, "error", err)
		}
	}

	greeting := edge.Message{
		Type:    edge.MessageTypeEdgeVersion,
		Payload: &edge.EdgeVersionPayload{Version: m.edgeVersion},
	}
	if err := endpoint.Send(ctx, greeting); err != nil {
		m.remove(deviceID, endpoint)
		return fmt.Errorf("sending version greeting: %w", err)
	}

	m.logger.Info("device connected", "device_id", deviceID, "connections", m.Count())
	if m.notifier != nil {
		if err := m.notifier.PublishDeviceOnline(deviceID); err != nil {
			m.logger.Warn("publishing device online event", "device_id", deviceID, "error", err)
		}
	}
	return nil
}

// Remove unregisters the endpoint of a device. It is a no-op when the
// device is not connected or has already been replaced by a newer
// endpoint.
func (m *ConnectionManager) Remove(deviceID uuid.UUID, endpoint edge.Protocol) {
	if m.remove(deviceID, endpoint) {
		m.logger.Info("device disconnected", "device_id", deviceID, "connections", m.Count())
		if m.notifier != nil {
			if err := m.notifier.PublishDeviceOffline(deviceID); err != nil {
				m.logger.Warn("publishing device offline event", "device_id", deviceID, "error", err)
			}
		}
	}
}

func (m *ConnectionManager) remove(deviceID uuid.UUID, endpoint edge.Protocol) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.endpoints[deviceID]
	if !ok || current != endpoint {
		return false
	}
	delete(m.endpoints, deviceID)
	return true
}

// Send transmits a message to one device. Returns ErrDeviceNotConnected
// when the device has no live endpoint.
func (m *ConnectionManager) Send(ctx context.Context, deviceID uuid.UUID, msg edge.Message) error {
	m.mu.RLock()
	endpoint, ok := m.endpoints[deviceID]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, deviceID)
	}
	return endpoint.Send(ctx, msg)
}

// Broadcast sends a message to every connected device. Send failures
// are logged and do not stop the broadcast.
func (m *ConnectionManager) Broadcast(ctx context.Context, msg edge.Message) {
	m.mu.RLock()
	endpoints := make(map[uuid.UUID]edge.Protocol, len(m.endpoints))
	for id, endpoint := range m.endpoints {
		endpoints[id] = endpoint
	}
	m.mu.RUnlock()

	for deviceID, endpoint := range endpoints {
		if err := endpoint.Send(ctx, msg); err != nil {
			m.logger.Warn("broadcast send failed", "device_id", deviceID, "error", err)
		}
	}
}

// IsConnected reports whether the device has a live endpoint.
func (m *ConnectionManager) IsConnected(deviceID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.endpoints[deviceID]
	return ok
}

// Count returns the number of connected devices.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.endpoints)
}
