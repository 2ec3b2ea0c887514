package device

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/flxdot/carlos-sub000/internal/driver"
)

// Config is the device's own configuration: its identity and the
// drivers attached to it. Loaded once at startup and never written by
// the runtime.
type Config struct {
	DeviceID uuid.UUID          `yaml:"device_id"`
	Drivers  []driver.RawConfig `yaml:"drivers"`
}

// LoadConfig reads and validates the device configuration. The driver
// entries are checked for address-space conflicts here so the process
// refuses to start on a config that cannot work.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing device config: %w", err)
	}

	if cfg.DeviceID == uuid.Nil {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidSettings)
	}
	if err := driver.ValidateAddressSpace(cfg.Drivers); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConnectionSettings tells the device where its server lives and how
// to authenticate the handshake token request.
type ConnectionSettings struct {
	// ServerURL is the HTTP(S) base of the server.
	ServerURL string `yaml:"server_url"`

	// BearerToken authenticates GET /devices/{id}/ws/token.
	BearerToken string `yaml:"bearer_token"`
}

// LoadConnectionSettings reads and validates the connection settings.
func LoadConnectionSettings(path string) (*ConnectionSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connection settings: %w", err)
	}

	settings := &ConnectionSettings{}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing connection settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks the settings are usable.
func (s ConnectionSettings) Validate() error {
	parsed, err := url.Parse(s.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: server_url: %v", ErrInvalidSettings, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: server_url scheme must be http or https, got %q",
			ErrInvalidSettings, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: server_url has no host", ErrInvalidSettings)
	}
	return nil
}

// WebsocketURL derives the websocket endpoint for the device by
// swapping the scheme: http becomes ws, https becomes wss.
func (s ConnectionSettings) WebsocketURL(deviceID uuid.UUID) (string, error) {
	parsed, err := url.Parse(s.ServerURL)
	if err != nil {
		return "", fmt.Errorf("%w: server_url: %v", ErrInvalidSettings, err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: server_url scheme must be http or https, got %q",
			ErrInvalidSettings, parsed.Scheme)
	}
	parsed.Path = joinPath(parsed.Path, fmt.Sprintf("devices/%s/ws", deviceID))
	return parsed.String(), nil
}

// TokenURL derives the handshake token endpoint for the device.
func (s ConnectionSettings) TokenURL(deviceID uuid.UUID) (string, error) {
	parsed, err := url.Parse(s.ServerURL)
	if err != nil {
		return "", fmt.Errorf("%w: server_url: %v", ErrInvalidSettings, err)
	}
	parsed.Path = joinPath(parsed.Path, fmt.Sprintf("devices/%s/ws/token", deviceID))
	return parsed.String(), nil
}

func joinPath(base, suffix string) string {
	return strings.TrimSuffix(base, "/") + "/" + suffix
}
