package device

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flxdot/carlos-sub000/internal/blackbox"
	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

// handshakeTokenTTL mirrors the server-side token lifetime. The cached
// token is considered valid for this long after it was fetched.
const handshakeTokenTTL = time.Minute

// Client is the device side of the link: an edge.Protocol that dials
// the server's websocket endpoint, fetching and caching the handshake
// token as needed. Connect is idempotent; a broken connection is
// reconnected by calling Connect again, usually through a retry policy.
type Client struct {
	settings ConnectionSettings
	deviceID uuid.UUID
	db       *sql.DB
	logger   *logging.Logger

	httpClient *http.Client
	dialer     *websocket.Dialer
	onConnect  edge.OnConnectFunc
	hostname   string

	mu       sync.Mutex
	endpoint *edge.WebsocketEndpoint
}

// NewClient creates a websocket client for the given device. The
// database handle is the blackbox store, used to cache the handshake
// token across restarts.
func NewClient(settings ConnectionSettings, deviceID uuid.UUID, db *sql.DB, logger *logging.Logger) *Client {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = deviceID.String()
	}
	return &Client{
		settings:   settings,
		deviceID:   deviceID,
		db:         db,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		hostname: hostname,
	}
}

// SetOnConnect sets the callback fired after every successful Connect.
// The runtime uses it to replay the registration handshake on
// reconnects.
func (c *Client) SetOnConnect(fn edge.OnConnectFunc) {
	c.onConnect = fn
}

// Connect fetches a handshake token and dials the websocket endpoint.
// Calling it on an open connection is a no-op. Transient failures are
// returned as ErrConnectionFailed so retry policies can match them;
// an unusable server URL surfaces as ErrInvalidSettings instead, since
// retrying a broken configuration cannot succeed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.endpoint != nil && c.endpoint.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token, err := c.handshakeToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", edge.ErrConnectionFailed, err)
	}

	wsURL, err := c.settings.WebsocketURL(c.deviceID)
	if err != nil {
		return err
	}

	header := http.Header{"X-Client-Hostname": []string{c.hostname}}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL+"?token="+token, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		// A rejected token may simply be stale; drop the cache so the
		// next attempt fetches a fresh one.
		c.dropCachedToken(ctx)
		return fmt.Errorf("%w: dialling %s: %w", edge.ErrConnectionFailed, wsURL, err)
	}

	endpoint := edge.NewWebsocketEndpoint(conn)
	c.mu.Lock()
	c.endpoint = endpoint
	c.mu.Unlock()

	c.logger.Info("connected to server", "url", wsURL)
	if c.onConnect != nil {
		if err := c.onConnect(ctx, c); err != nil {
			// Count a failed handshake as a failed connection so retry
			// policies treat it as transient.
			return fmt.Errorf("%w: on-connect: %w", edge.ErrConnectionFailed, err)
		}
	}
	return nil
}

// Send transmits a message over the current connection.
func (c *Client) Send(ctx context.Context, msg edge.Message) error {
	endpoint := c.currentEndpoint()
	if endpoint == nil {
		return edge.ErrDisconnected
	}
	return endpoint.Send(ctx, msg)
}

// Receive blocks until the next message arrives.
func (c *Client) Receive(ctx context.Context) (edge.Message, error) {
	endpoint := c.currentEndpoint()
	if endpoint == nil {
		return edge.Message{}, edge.ErrDisconnected
	}
	return endpoint.Receive(ctx)
}

// Disconnect closes the current connection.
func (c *Client) Disconnect() error {
	endpoint := c.currentEndpoint()
	if endpoint == nil {
		return nil
	}
	return endpoint.Disconnect()
}

// IsConnected reports whether a connection is currently open.
func (c *Client) IsConnected() bool {
	endpoint := c.currentEndpoint()
	return endpoint != nil && endpoint.IsConnected()
}

func (c *Client) currentEndpoint() *edge.WebsocketEndpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// handshakeToken returns a valid token, preferring the cached one.
func (c *Client) handshakeToken(ctx context.Context) (string, error) {
	cached, err := blackbox.ReadAPIToken(ctx, c.db)
	if err != nil {
		return "", err
	}
	if cached != nil && cached.Valid() {
		return cached.Token, nil
	}
	return c.fetchToken(ctx)
}

// fetchToken requests a fresh handshake token and caches it.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	tokenURL, err := c.settings.TokenURL(c.deviceID)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.settings.BearerToken)
	req.Header.Set("X-Client-Hostname", c.hostname)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	token := string(body)

	cached := blackbox.APIToken{
		Token:         token,
		ValidUntilUTC: time.Now().UTC().Add(handshakeTokenTTL),
	}
	if err := blackbox.StoreAPIToken(ctx, c.db, cached); err != nil {
		c.logger.Warn("caching handshake token failed", "error", err)
	}
	return token, nil
}

// dropCachedToken invalidates the cached token after a rejected dial.
func (c *Client) dropCachedToken(ctx context.Context) {
	expired := blackbox.APIToken{Token: "", ValidUntilUTC: time.Unix(0, 0).UTC()}
	if err := blackbox.StoreAPIToken(ctx, c.db, expired); err != nil {
		c.logger.Warn("dropping cached token failed", "error", err)
	}
}
