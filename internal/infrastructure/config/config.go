package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for LabGate Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Relay     RelayConfig     `yaml:"relay"`
	Auth      AuthConfig      `yaml:"auth"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains deployment-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains relay WebSocket settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBufferSize int    `yaml:"send_buffer_size"`
}

// RelayConfig contains pairing relay lifecycle settings.
type RelayConfig struct {
	// DisconnectGrace is how long a session with both connection slots empty
	// survives before the reaper collects it (seconds).
	DisconnectGrace int `yaml:"disconnect_grace"`

	// MaxSessionAge is the absolute age limit for any pairing session,
	// regardless of connection state (seconds). Bounds memory even if
	// disconnect events are lost.
	MaxSessionAge int `yaml:"max_session_age"`

	// ReapInterval is how often the reaper scans for collectable sessions (seconds).
	ReapInterval int `yaml:"reap_interval"`

	// RedirectURL is included in access_granted broadcasts so the desktop
	// knows where to send the user after a successful pairing.
	RedirectURL string `yaml:"redirect_url"`

	// ServerGeofenceCheck enables the advisory server-side re-evaluation of
	// reported locations on location_check_complete. Disagreements with the
	// desktop's verdict are audited but do not override the decision.
	ServerGeofenceCheck bool `yaml:"server_geofence_check"`
}

// AuthConfig contains credential and token settings.
type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// MQTTConfig contains optional MQTT broker connection settings for
// access-event publication (door controllers, lab integrations).
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains optional telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LABGATE_SECTION_KEY
// For example: LABGATE_DATABASE_PATH, LABGATE_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "LabGate",
		},
		Database: DatabaseConfig{
			Path:        "./data/labgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/relay",
			MaxMessageSize: 16384,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 64,
		},
		Relay: RelayConfig{
			DisconnectGrace: 120,
			MaxSessionAge:   3600,
			ReapInterval:    30,
			RedirectURL:     "/dashboard",
		},
		Auth: AuthConfig{
			AccessTokenTTL: 15,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "labgate-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LABGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LABGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("LABGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Secrets should always come from the environment in production.
	if v := os.Getenv("LABGATE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("LABGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LABGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LABGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("LABGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Relay.DisconnectGrace <= 0 {
		errs = append(errs, "relay.disconnect_grace must be positive")
	}
	if c.Relay.MaxSessionAge <= 0 {
		errs = append(errs, "relay.max_session_age must be positive")
	}
	if c.Relay.MaxSessionAge < c.Relay.DisconnectGrace {
		errs = append(errs, "relay.max_session_age must not be shorter than relay.disconnect_grace")
	}
	if c.Relay.ReapInterval <= 0 {
		errs = append(errs, "relay.reap_interval must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// JWT secret is REQUIRED. The relay gates physical lab access; an empty
	// or weak secret would allow attackers to forge access tokens.
	const minJWTSecretLength = 32
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (set LABGATE_JWT_SECRET environment variable)")
	} else if len(c.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "auth.jwt_secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetDisconnectGrace returns the relay disconnect grace period as a Duration.
func (r RelayConfig) GetDisconnectGrace() time.Duration {
	return time.Duration(r.DisconnectGrace) * time.Second
}

// GetMaxSessionAge returns the absolute session age limit as a Duration.
func (r RelayConfig) GetMaxSessionAge() time.Duration {
	return time.Duration(r.MaxSessionAge) * time.Second
}

// GetReapInterval returns the reaper scan interval as a Duration.
func (r RelayConfig) GetReapInterval() time.Duration {
	return time.Duration(r.ReapInterval) * time.Second
}
