package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Appliance Link.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device        DeviceConfig        `yaml:"device"`
	Broker        BrokerConfig        `yaml:"broker"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Reachability  ReachabilityConfig  `yaml:"reachability"`
	Watchdog      WatchdogConfig      `yaml:"watchdog"`
	Database      DatabaseConfig      `yaml:"database"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DeviceConfig identifies the appliance this instance talks to.
// Immutable for the lifetime of a coordinator.
type DeviceConfig struct {
	// RootTopic is the short product-type code used as the first
	// topic path segment (e.g. "475").
	RootTopic string `yaml:"root_topic"`

	// SerialNumber is the appliance serial (e.g. "AB1-CD-EFG2345H"),
	// used as the second topic path segment.
	SerialNumber string `yaml:"serial_number"`

	// Credentials authenticate against the appliance's broker.
	Credentials CredentialsConfig `yaml:"credentials"`
}

// CredentialsConfig contains broker authentication credentials.
type CredentialsConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BrokerConfig contains MQTT broker connection details.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`

	// Cloud marks a cloud-routed broker. Cloud brokers reject broad
	// wildcard subscriptions by dropping the session, so wildcard mode
	// subscribes to the command topic instead of "#".
	Cloud bool `yaml:"cloud"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains transport reconnection settings.
// The transport owns the retry policy; these only bound its backoff.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// SubscriptionsConfig describes the topic templates for one appliance.
//
// Templates use the "@" placeholder marker: the first occurrence resolves
// to the device root topic, the second to the serial number.
type SubscriptionsConfig struct {
	// Command is the template for the outbound command topic.
	Command string `yaml:"command"`

	// Subscribe lists required status topic templates. Failing to
	// obtain any of these is a total subscription failure.
	Subscribe []string `yaml:"subscribe"`

	// Other lists informational topic templates. Messages on these are
	// expected but their absence is never an error.
	Other []string `yaml:"other"`

	// Wildcard enables diagnostic wide subscriptions: "#" on local
	// brokers, the command topic on cloud-routed brokers.
	Wildcard bool `yaml:"wildcard"`
}

// ReachabilityConfig tunes the offline-declaration hysteresis.
type ReachabilityConfig struct {
	// GraceSeconds is how long after a transport close the device keeps
	// its reachable flag while waiting for a reconnect + resubscribe.
	GraceSeconds int `yaml:"grace_seconds"`
}

// WatchdogConfig tunes the periodic state poll and its watchdog.
type WatchdogConfig struct {
	// IntervalSeconds is how often to request current state.
	IntervalSeconds int `yaml:"interval_seconds"`

	// TimeoutSeconds is how long without inbound evidence before the
	// poll watchdog reports the appliance down.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DatabaseConfig contains SQLite settings for the link event journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for link telemetry.
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
// Environment variables follow the pattern: APPLIANCELINK_SECTION_KEY
// For example: APPLIANCELINK_BROKER_HOST, APPLIANCELINK_DEVICE_SERIAL_NUMBER
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
// Device identity and credentials have no defaults and must be supplied.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "appliancelink",
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Subscriptions: SubscriptionsConfig{
			Command: "@/@/command",
			Subscribe: []string{
				"@/@/status/current",
				"@/@/status/faults",
			},
			Other: []string{
				"@/@/status/connection",
				"@/@/status/software",
			},
		},
		Reachability: ReachabilityConfig{
			GraceSeconds: 5,
		},
		Watchdog: WatchdogConfig{
			IntervalSeconds: 60,
			TimeoutSeconds:  300,
		},
		Database: DatabaseConfig{
			Enabled:     false,
			Path:        "./data/appliancelink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate checks the configuration for consistency and required fields.
//
// Returns:
//   - error: Description of the first validation failure, or nil
func (c *Config) Validate() error {
	if c.Device.RootTopic == "" {
		return fmt.Errorf("device.root_topic is required")
	}
	if c.Device.SerialNumber == "" {
		return fmt.Errorf("device.serial_number is required")
	}
	if c.Broker.Host == "" {
		return fmt.Errorf("broker.host is required")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port must be 1-65535, got %d", c.Broker.Port)
	}
	if c.Subscriptions.Command == "" {
		return fmt.Errorf("subscriptions.command is required")
	}
	if len(c.Subscriptions.Subscribe) == 0 {
		return fmt.Errorf("subscriptions.subscribe must list at least one topic template")
	}
	if c.Reachability.GraceSeconds <= 0 {
		return fmt.Errorf("reachability.grace_seconds must be positive, got %d", c.Reachability.GraceSeconds)
	}
	if c.Watchdog.IntervalSeconds <= 0 {
		return fmt.Errorf("watchdog.interval_seconds must be positive, got %d", c.Watchdog.IntervalSeconds)
	}
	if c.Watchdog.TimeoutSeconds < c.Watchdog.IntervalSeconds {
		return fmt.Errorf("watchdog.timeout_seconds (%d) must be >= interval_seconds (%d)",
			c.Watchdog.TimeoutSeconds, c.Watchdog.IntervalSeconds)
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when database is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides overrides config values from APPLIANCELINK_* environment variables.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setInt := func(key string, target *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}
	setBool := func(key string, target *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*target = b
			}
		}
	}

	setString("APPLIANCELINK_DEVICE_ROOT_TOPIC", &cfg.Device.RootTopic)
	setString("APPLIANCELINK_DEVICE_SERIAL_NUMBER", &cfg.Device.SerialNumber)
	setString("APPLIANCELINK_DEVICE_USERNAME", &cfg.Device.Credentials.Username)
	setString("APPLIANCELINK_DEVICE_PASSWORD", &cfg.Device.Credentials.Password)

	setString("APPLIANCELINK_BROKER_HOST", &cfg.Broker.Host)
	setInt("APPLIANCELINK_BROKER_PORT", &cfg.Broker.Port)
	setBool("APPLIANCELINK_BROKER_TLS", &cfg.Broker.TLS)
	setBool("APPLIANCELINK_BROKER_CLOUD", &cfg.Broker.Cloud)
	setString("APPLIANCELINK_BROKER_CLIENT_ID", &cfg.Broker.ClientID)

	setInt("APPLIANCELINK_REACHABILITY_GRACE_SECONDS", &cfg.Reachability.GraceSeconds)
	setInt("APPLIANCELINK_WATCHDOG_INTERVAL_SECONDS", &cfg.Watchdog.IntervalSeconds)
	setInt("APPLIANCELINK_WATCHDOG_TIMEOUT_SECONDS", &cfg.Watchdog.TimeoutSeconds)

	setBool("APPLIANCELINK_DATABASE_ENABLED", &cfg.Database.Enabled)
	setString("APPLIANCELINK_DATABASE_PATH", &cfg.Database.Path)

	setBool("APPLIANCELINK_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	setString("APPLIANCELINK_INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("APPLIANCELINK_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	setString("APPLIANCELINK_INFLUXDB_ORG", &cfg.InfluxDB.Org)
	setString("APPLIANCELINK_INFLUXDB_BUCKET", &cfg.InfluxDB.Bucket)

	setString("APPLIANCELINK_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("APPLIANCELINK_LOGGING_FORMAT", &cfg.Logging.Format)
	setString("APPLIANCELINK_LOGGING_OUTPUT", &cfg.Logging.Output)
}
