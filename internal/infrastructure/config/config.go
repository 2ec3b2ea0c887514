package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variables that override
// database credentials from config.yaml.
const EnvPrefix = "CARLOS_DB_"

// Config is the root configuration structure for the Carlos server.
// All configuration is loaded from YAML; database credentials can be
// overridden by CARLOS_DB_* environment variables.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig contains HTTP API server settings.
//
// Secret signs the short-lived websocket handshake tokens and can be
// overridden by the CARLOS_API_SECRET environment variable.
// DeviceToken is the pre-shared credential devices present to the
// token endpoint; CARLOS_API_DEVICE_TOKEN overrides it.
type APIConfig struct {
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	Secret      string           `yaml:"secret"`
	DeviceToken string           `yaml:"device_token"`
	Timeouts    APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains PostgreSQL connection settings.
//
// Host, Port, Name, User and Password can each be overridden by the
// corresponding CARLOS_DB_{HOST,PORT,NAME,USER,PASSWORD} environment
// variable, which takes precedence over the YAML value.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Engine tuning. Zero values fall back to the documented defaults.
	MaxOpenConns    int  `yaml:"max_open_conns"`    // default 10
	MaxIdleConns    int  `yaml:"max_idle_conns"`    // default 5
	ConnMaxLifetime int  `yaml:"conn_max_lifetime"` // seconds, default 1800
	ConnectTimeout  int  `yaml:"connect_timeout"`   // seconds, default 10
	Debug           bool `yaml:"debug"`             // log every statement
}

// Database engine defaults.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 1800
	DefaultConnectTimeout  = 10
)

// InfluxDBConfig contains settings for the optional ingest mirror.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// MQTTConfig contains settings for the optional device lifecycle
// event publisher.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and validates the configuration from the given YAML file.
// Environment overrides are applied after parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in defaults for unset values.
func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Timeouts.Read == 0 {
		c.API.Timeouts.Read = 15
	}
	if c.API.Timeouts.Write == 0 {
		c.API.Timeouts.Write = 15
	}
	if c.API.Timeouts.Idle == 0 {
		c.API.Timeouts.Idle = 60
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "carlos-server"
	}
}

// applyEnvOverrides replaces database credentials with values from the
// CARLOS_DB_* environment variables where set.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvPrefix + "HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv(EnvPrefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %sPORT: %w", EnvPrefix, err)
		}
		c.Database.Port = port
	}
	if v := os.Getenv(EnvPrefix + "NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv(EnvPrefix + "USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv(EnvPrefix + "PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("CARLOS_API_SECRET"); v != "" {
		c.API.Secret = v
	}
	if v := os.Getenv("CARLOS_API_DEVICE_TOKEN"); v != "" {
		c.API.DeviceToken = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Host == "" {
		problems = append(problems, "database host is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database name is required")
	}
	if c.Database.User == "" {
		problems = append(problems, "database user is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("api port %d out of range", c.API.Port))
	}
	if c.API.Secret == "" {
		problems = append(problems, "api secret is required")
	}
	if c.API.DeviceToken == "" {
		problems = append(problems, "api device token is required")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		problems = append(problems, "influxdb url is required when influxdb is enabled")
	}
	if c.MQTT.Enabled && c.MQTT.Host == "" {
		problems = append(problems, "mqtt host is required when mqtt is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// DSN returns the PostgreSQL connection string for the configured database.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s connect_timeout=%d sslmode=prefer",
		d.Host, d.Port, d.Name, d.User, d.Password, d.ConnectTimeout,
	)
}
