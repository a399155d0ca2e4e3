// Package config holds the runtime configuration for the service.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// APP_CONFIG, then APP_* environment variables (a .env file is loaded into
// the environment first by main).
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the core runtime configuration for the service.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	ListenAddr string `koanf:"listen_addr"`

	// DatabaseURL is a postgres:// or postgresql:// URL.
	DatabaseURL string `koanf:"database_url"`

	// Timezone names the IANA location timeframes and bucket keys are
	// computed in. "Local" uses the host zone.
	Timezone string `koanf:"timezone"`

	// CORSAllowedOrigins is a comma separated list; "*" allows any origin.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`

	// TokenTTLMinutes is the lifetime of access tokens issued by /token.
	TokenTTLMinutes int `koanf:"token_ttl_minutes"`

	// RequestTimeoutSeconds bounds store calls made while serving a request.
	RequestTimeoutSeconds int `koanf:"request_timeout_seconds"`

	// RetentionDays deletes readings older than this many days. 0 keeps
	// everything.
	RetentionDays int `koanf:"retention_days"`

	// DemoUser, DemoEmail and DemoPassword describe the bootstrap account.
	// Leaving DemoUser or DemoPassword empty skips the bootstrap.
	DemoUser     string `koanf:"demo_user"`
	DemoEmail    string `koanf:"demo_email"`
	DemoPassword string `koanf:"demo_password"`

	// SeedDemoData fills the demo account with SeedDays of synthetic
	// readings when it has none.
	SeedDemoData bool `koanf:"seed_demo_data"`
	SeedDays     int  `koanf:"seed_days"`

	KafkaEnabled   bool   `koanf:"kafka_enabled"`
	KafkaBrokers   string `koanf:"kafka_brokers"`
	KafkaTopic     string `koanf:"kafka_topic"`
	KafkaGroupID   string `koanf:"kafka_group_id"`
	KafkaBatchSize int    `koanf:"kafka_batch_size"`
	KafkaFlushMS   int    `koanf:"kafka_flush_ms"`

	InfluxEnabled bool   `koanf:"influx_enabled"`
	InfluxURL     string `koanf:"influx_url"`
	InfluxToken   string `koanf:"influx_token"`
	InfluxOrg     string `koanf:"influx_org"`
	InfluxBucket  string `koanf:"influx_bucket"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		ListenAddr:            ":8000",
		Timezone:              "Local",
		CORSAllowedOrigins:    "*",
		TokenTTLMinutes:       30,
		RequestTimeoutSeconds: 15,
		RetentionDays:         0,
		DemoUser:              "demo",
		DemoEmail:             "demo@example.com",
		DemoPassword:          "password",
		SeedDemoData:          false,
		SeedDays:              365,
		KafkaBrokers:          "localhost:9092",
		KafkaTopic:            "energy-readings",
		KafkaGroupID:          "energyinsight",
		KafkaBatchSize:        500,
		KafkaFlushMS:          1000,
		InfluxURL:             "http://localhost:8086",
		InfluxBucket:          "energy",
	}
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ListenAddr) == "":
		return fmt.Errorf("%w: listen_addr must not be empty", ErrInvalidConfig)
	case c.TokenTTLMinutes <= 0:
		return fmt.Errorf("%w: token_ttl_minutes must be positive", ErrInvalidConfig)
	case c.RequestTimeoutSeconds <= 0:
		return fmt.Errorf("%w: request_timeout_seconds must be positive", ErrInvalidConfig)
	case c.RetentionDays < 0:
		return fmt.Errorf("%w: retention_days must not be negative", ErrInvalidConfig)
	case c.SeedDemoData && c.SeedDays <= 0:
		return fmt.Errorf("%w: seed_days must be positive when seeding", ErrInvalidConfig)
	case c.KafkaEnabled && (len(c.Brokers()) == 0 || c.KafkaTopic == ""):
		return fmt.Errorf("%w: kafka_brokers and kafka_topic are required when kafka is enabled", ErrInvalidConfig)
	case c.KafkaEnabled && (c.KafkaBatchSize <= 0 || c.KafkaFlushMS <= 0):
		return fmt.Errorf("%w: kafka_batch_size and kafka_flush_ms must be positive", ErrInvalidConfig)
	case c.InfluxEnabled && (c.InfluxURL == "" || c.InfluxOrg == "" || c.InfluxBucket == ""):
		return fmt.Errorf("%w: influx_url, influx_org and influx_bucket are required when influx is enabled", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// TokenTTL is TokenTTLMinutes as a duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// RequestTimeout is RequestTimeoutSeconds as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// KafkaFlushInterval is KafkaFlushMS as a duration.
func (c *Config) KafkaFlushInterval() time.Duration {
	return time.Duration(c.KafkaFlushMS) * time.Millisecond
}

// Brokers splits KafkaBrokers on commas, dropping blanks.
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins splits CORSAllowedOrigins on commas, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
