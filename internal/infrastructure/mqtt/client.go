package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/flxdot/carlos-sub000/internal/infrastructure/config"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second

	statusQoS = 1
)

// Client wraps the paho client for lifecycle publishing. Safe for
// concurrent use; the paho library reconnects on its own.
type Client struct {
	client pahomqtt.Client

	mu        sync.RWMutex
	connected bool
}

// Connect builds the client, registers the server's Last Will and
// performs the initial connection. Returns ErrDisabled when the
// publisher is switched off.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := buildClientOptions(cfg)
	c := &Client{}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.setConnected(true)
		c.publishServerStatus("online", "")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, _ error) {
		c.setConnected(false)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The on-connect handler runs asynchronously and may not have fired
	// yet, so mark the state here as well.
	c.setConnected(true)
	return c, nil
}

// buildClientOptions maps the YAML configuration onto paho options.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	opts.SetWill(serverStatusTopic, statusPayload("offline", "unexpected_disconnect"), statusQoS, true)
	return opts
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

// publish sends one payload and waits for the ack.
func (c *Client) publish(topic, payload string, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, statusQoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// publishServerStatus publishes the server's own availability. Errors
// are deliberately dropped; a missing status beat is not actionable.
func (c *Client) publishServerStatus(status, reason string) {
	_ = c.publish(serverStatusTopic, statusPayload(status, reason), true)
}

// PublishDeviceOnline announces that a device connected.
func (c *Client) PublishDeviceOnline(deviceID uuid.UUID) error {
	return c.publish(deviceStatusTopic(deviceID), statusPayload("online", ""), true)
}

// PublishDeviceOffline announces that a device disconnected.
func (c *Client) PublishDeviceOffline(deviceID uuid.UUID) error {
	return c.publish(deviceStatusTopic(deviceID), statusPayload("offline", ""), true)
}

// HealthCheck reports the connection state.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishServerStatus("offline", "graceful_shutdown")
	}
	c.client.Disconnect(disconnectQuiesce)
	c.setConnected(false)
	return nil
}
