// Package config loads the agent's configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Device model: a JSON file describing devices and their data items.
	DevicesFile   string `env:"DEVICES_FILE,required"`
	DefaultDevice string `env:"DEFAULT_DEVICE"`
	WatchDevices  bool   `env:"WATCH_DEVICES" envDefault:"true"`

	// MQTT source + sink. Leaving the broker URL empty disables both.
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTTopics    string `env:"MQTT_TOPICS" envDefault:"#"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"mtc-ingest"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	// Entity sink topic prefixes.
	ObservationTopic string `env:"OBSERVATION_TOPIC" envDefault:"MTConnect/Observation/"`
	AssetTopic       string `env:"ASSET_TOPIC" envDefault:"MTConnect/Asset/"`
	DeviceTopic      string `env:"DEVICE_TOPIC" envDefault:"MTConnect/Device/"`

	// SHDR decoding options.
	ShdrVersion         int  `env:"SHDR_VERSION" envDefault:"1"`
	IgnoreTimestamps    bool `env:"IGNORE_TIMESTAMPS" envDefault:"false"`
	RelativeTime        bool `env:"RELATIVE_TIME" envDefault:"false"`
	UpcaseDataItemValue bool `env:"UPCASE_DATA_ITEM_VALUE" envDefault:"false"`
	ConversionRequired  bool `env:"CONVERSION_REQUIRED" envDefault:"true"`
	FilterDuplicates    bool `env:"FILTER_DUPLICATES" envDefault:"true"`

	// Validation.
	Validation    bool   `env:"VALIDATION" envDefault:"true"`
	SchemaVersion string `env:"SCHEMA_VERSION" envDefault:"2.3"`

	// Buffers.
	BufferSize int `env:"BUFFER_SIZE" envDefault:"131072"`
	MaxAssets  int `env:"MAX_ASSETS" envDefault:"1024"`

	// Upstream agent adapter. Empty URL disables it.
	UpstreamURL               string        `env:"UPSTREAM_URL"`
	UpstreamDevice            string        `env:"UPSTREAM_DEVICE"`
	UpstreamSourceDevice      string        `env:"UPSTREAM_SOURCE_DEVICE"`
	UpstreamCount             int           `env:"UPSTREAM_COUNT" envDefault:"1000"`
	UpstreamHeartbeat         time.Duration `env:"UPSTREAM_HEARTBEAT" envDefault:"10s"`
	UpstreamPollingInterval   time.Duration `env:"UPSTREAM_POLLING_INTERVAL" envDefault:"500ms"`
	UpstreamReconnectInterval time.Duration `env:"UPSTREAM_RECONNECT_INTERVAL" envDefault:"10s"`
	UpstreamTimeout           time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	UpstreamUsePolling        bool          `env:"UPSTREAM_USE_POLLING" envDefault:"false"`
	UpstreamProbeAgent        bool          `env:"UPSTREAM_PROBE_AGENT" envDefault:"false"`
	UpstreamAutoAvailable     bool          `env:"UPSTREAM_AUTO_AVAILABLE" envDefault:"false"`
	UpstreamTLSCert           string        `env:"UPSTREAM_TLS_CERT"`
	UpstreamTLSKey            string        `env:"UPSTREAM_TLS_KEY"`
	UpstreamTLSCA             string        `env:"UPSTREAM_TLS_CA"`

	// Health/metrics endpoint.
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Validate checks that at least one observation source is configured and
// the schema version parses.
func (c *Config) Validate() error {
	if c.MQTTBrokerURL == "" && c.UpstreamURL == "" {
		return fmt.Errorf("at least one of MQTT_BROKER_URL or UPSTREAM_URL must be set")
	}
	if _, err := ParseSchemaVersion(c.SchemaVersion); err != nil {
		return err
	}
	if c.ShdrVersion != 1 && c.ShdrVersion != 2 {
		return fmt.Errorf("SHDR_VERSION must be 1 or 2, got %d", c.ShdrVersion)
	}
	if c.UpstreamURL != "" && c.UpstreamDevice == "" {
		return fmt.Errorf("UPSTREAM_DEVICE must be set when UPSTREAM_URL is configured")
	}
	return nil
}

// ParseSchemaVersion encodes "major.minor" as major*100+minor.
func ParseSchemaVersion(s string) (int32, error) {
	var major, minor int32
	if _, err := fmt.Sscanf(s, "%d.%d", &major, &minor); err != nil {
		return 0, fmt.Errorf("SCHEMA_VERSION must be major.minor, got %q", s)
	}
	return major*100 + minor, nil
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DevicesFile   string
	MQTTBrokerURL string
	UpstreamURL   string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DevicesFile != "" {
		cfg.DevicesFile = overrides.DevicesFile
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.UpstreamURL != "" {
		cfg.UpstreamURL = overrides.UpstreamURL
	}

	return cfg, nil
}
