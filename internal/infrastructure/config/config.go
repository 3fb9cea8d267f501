package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Felshare bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud    CloudConfig    `yaml:"cloud"`
	Device   DeviceConfig   `yaml:"device"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Hub      HubConfig      `yaml:"hub"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	API      APIConfig      `yaml:"api"`
	Security SecurityConfig `yaml:"security"`
}

// CloudConfig contains the Felshare cloud account and endpoints.
type CloudConfig struct {
	APIBase  string `yaml:"api_base"`
	FrontURL string `yaml:"front_url"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// DeviceConfig identifies the diffuser this bridge talks to.
type DeviceConfig struct {
	ID string `yaml:"id"`
}

// MQTTConfig contains the cloud broker connection settings.
// The broker is only reachable over WebSocket-over-TLS.
type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	WSPath   string `yaml:"ws_path"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ClientIDSuffix follows the device id in the client id ("{device}{suffix}ha_{instance}").
	ClientIDSuffix string `yaml:"client_id_suffix"`

	// ClientInstance pins the per-installation disambiguator. When empty a
	// generated id is persisted in the database and reused.
	ClientInstance string `yaml:"client_instance"`

	// KeepAlive in seconds.
	KeepAlive int `yaml:"keepalive"`
}

// HubConfig holds the tunables of the device communication hub. Values
// outside their documented ranges are clamped by the hub rather than rejected.
type HubConfig struct {
	MaxBackoffSeconds         int     `yaml:"max_backoff_seconds"`
	MinPublishIntervalSeconds float64 `yaml:"min_publish_interval_seconds"`
	MaxBurstMessages          int     `yaml:"max_burst_messages"`
	StatusMinIntervalSeconds  int     `yaml:"status_min_interval_seconds"`
	BulkIntervalHours         int     `yaml:"bulk_interval_hours"`
	StartupStaleMinutes       int     `yaml:"startup_stale_minutes"`
	PollIntervalMinutes       int     `yaml:"poll_interval_minutes"`
	EnableTXDLearning         bool    `yaml:"enable_txd_learning"`
	LearningWindowSeconds     float64 `yaml:"learning_window_seconds"`
	OfflineAfterMinutes       int     `yaml:"offline_after_minutes"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT settings. An empty secret leaves the API unauthenticated,
// which is only accepted when the API binds to a loopback address.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FELSHARE_SECTION_KEY
// For example: FELSHARE_CLOUD_EMAIL, FELSHARE_DEVICE_ID
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated is Load without Validate, for commands that only need a
// subset of the settings. A missing file yields the defaults.
func LoadUnvalidated(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with the cloud's published endpoints and
// the hub's documented defaults.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			APIBase:  "http://app.felsharegroup.com:7001",
			FrontURL: "https://app.felsharegroup.com",
		},
		MQTT: MQTTConfig{
			Host:           "app.felsharegroup.com",
			Port:           443,
			WSPath:         "/mqtt",
			Username:       "jtdevice",
			Password:       "jiutiankeji",
			ClientIDSuffix: "40",
			KeepAlive:      20,
		},
		Hub: HubConfig{
			MaxBackoffSeconds:         900,
			MinPublishIntervalSeconds: 1.0,
			MaxBurstMessages:          3,
			StatusMinIntervalSeconds:  60,
			BulkIntervalHours:         6,
			StartupStaleMinutes:       30,
			PollIntervalMinutes:       30,
			LearningWindowSeconds:     2.0,
			OfflineAfterMinutes:       15,
		},
		Database: DatabaseConfig{
			Path:        "./data/felshare.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "felshare",
			Bucket:        "diffuser",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8480,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             10,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Cloud account
	if v := os.Getenv("FELSHARE_CLOUD_EMAIL"); v != "" {
		cfg.Cloud.Email = v
	}
	if v := os.Getenv("FELSHARE_CLOUD_PASSWORD"); v != "" {
		cfg.Cloud.Password = v
	}
	if v := os.Getenv("FELSHARE_CLOUD_API_BASE"); v != "" {
		cfg.Cloud.APIBase = v
	}

	// Device
	if v := os.Getenv("FELSHARE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// MQTT
	if v := os.Getenv("FELSHARE_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("FELSHARE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Port = port
		}
	}

	// Hub
	if v := os.Getenv("FELSHARE_HUB_ENABLE_TXD_LEARNING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Hub.EnableTXDLearning = b
		}
	}

	// Database
	if v := os.Getenv("FELSHARE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("FELSHARE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("FELSHARE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("FELSHARE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required (set FELSHARE_DEVICE_ID)")
	}

	errs = append(errs, c.ValidateCloud()...)

	if c.MQTT.Host == "" {
		errs = append(errs, "mqtt.host is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.MQTT.WSPath, "/") {
		errs = append(errs, "mqtt.ws_path must start with /")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		const minJWTSecretLength = 32
		switch {
		case c.Security.JWT.Secret == "" && !isLoopback(c.API.Host):
			errs = append(errs, "security.jwt.secret is required when the api listens beyond loopback (set FELSHARE_JWT_SECRET)")
		case c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength:
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateCloud reports missing cloud credentials. The devices command only
// needs this subset.
func (c *Config) ValidateCloud() []string {
	var errs []string
	if c.Cloud.APIBase == "" {
		errs = append(errs, "cloud.api_base is required")
	}
	if c.Cloud.Email == "" {
		errs = append(errs, "cloud.email is required (set FELSHARE_CLOUD_EMAIL)")
	}
	if c.Cloud.Password == "" {
		errs = append(errs, "cloud.password is required (set FELSHARE_CLOUD_PASSWORD)")
	}
	return errs
}

func isLoopback(host string) bool {
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

// BrokerURL returns the WebSocket URL of the cloud broker.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("wss://%s:%d%s", c.MQTT.Host, c.MQTT.Port, c.MQTT.WSPath)
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
