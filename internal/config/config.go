// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Cache      CacheConfig      `mapstructure:"cache"`
	DB         DBConfig         `mapstructure:"db"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Events     EventsConfig     `mapstructure:"events"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SnapshotsConfig governs the snapshot job lifecycle.
type SnapshotsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelays     []string      `mapstructure:"retry_delays"`
	InitialJitter   time.Duration `mapstructure:"initial_jitter"`
	WorkerTimeout   time.Duration `mapstructure:"worker_timeout"`
	LocalMode       bool          `mapstructure:"local_mode"`
	ContentType     string        `mapstructure:"content_type"`
	StoragePrefix   string        `mapstructure:"storage_prefix"`
	MaxDeliveryBody int64         `mapstructure:"max_delivery_body"`
}

// PolitenessConfig controls per-domain fetch throttling.
type PolitenessConfig struct {
	Window   time.Duration `mapstructure:"window"`
	EntryTTL time.Duration `mapstructure:"entry_ttl"`
}

// QuotaConfig controls the per-user submission quota.
type QuotaConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// AuthConfig holds job delivery authentication material.
type AuthConfig struct {
	SigningKeyCurrent string `mapstructure:"signing_key_current"`
	SigningKeyNext    string `mapstructure:"signing_key_next"`
	WorkerSecret      string `mapstructure:"worker_secret"`
}

// CacheConfig points at the shared Redis cache backing the gates.
type CacheConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// StorageConfig sets the bucket and content type for blob persistence.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	ContentType string `mapstructure:"content_type"`
}

// BrokerConfig configures the HTTP push message broker.
type BrokerConfig struct {
	PublishURL string `mapstructure:"publish_url"`
	Token      string `mapstructure:"token"`
	WorkerURL  string `mapstructure:"worker_url"`
}

// EventsConfig holds metadata for snapshot lifecycle notifications.
type EventsConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ExtractorConfig points at the external content extraction service.
type ExtractorConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RPS       float64       `mapstructure:"rps"`
	UserAgent string        `mapstructure:"user_agent"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)

	v.SetDefault("snapshots.enabled", true)
	v.SetDefault("snapshots.max_attempts", 3)
	v.SetDefault("snapshots.retry_delays", []string{"5m", "30m", "2h"})
	v.SetDefault("snapshots.initial_jitter", "5s")
	v.SetDefault("snapshots.worker_timeout", "30s")
	v.SetDefault("snapshots.local_mode", false)
	v.SetDefault("snapshots.content_type", "text/html; charset=utf-8")
	v.SetDefault("snapshots.storage_prefix", "snapshots")
	v.SetDefault("snapshots.max_delivery_body", 64*1024)

	v.SetDefault("politeness.window", "1s")
	v.SetDefault("politeness.entry_ttl", "60s")

	v.SetDefault("quota.limit", 100)
	v.SetDefault("quota.window", "24h")

	v.SetDefault("storage.content_type", "text/html; charset=utf-8")

	v.SetDefault("extractor.timeout", "25s")
	v.SetDefault("extractor.rps", 4)
	v.SetDefault("extractor.user_agent", "pagekeep-snapshot/1.0 (+https://github.com/pagekeep/pagekeep)")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Snapshots.MaxAttempts <= 0 {
		return fmt.Errorf("snapshots.max_attempts must be > 0")
	}
	if len(c.Snapshots.RetryDelays) == 0 {
		return fmt.Errorf("snapshots.retry_delays must not be empty")
	}
	if _, err := c.RetryDelays(); err != nil {
		return err
	}
	if c.Snapshots.WorkerTimeout <= 0 {
		return fmt.Errorf("snapshots.worker_timeout must be > 0")
	}
	if c.Politeness.Window <= 0 {
		return fmt.Errorf("politeness.window must be > 0")
	}
	if c.Politeness.EntryTTL < c.Politeness.Window {
		return fmt.Errorf("politeness.entry_ttl must cover the politeness window")
	}
	if c.Quota.Limit <= 0 || c.Quota.Window <= 0 {
		return fmt.Errorf("quota.limit and quota.window must be > 0")
	}
	if c.Broker.PublishURL != "" && c.Broker.WorkerURL == "" {
		return fmt.Errorf("broker.worker_url must be set when broker.publish_url is set")
	}
	return nil
}

// RetryDelays parses the configured delay table.
func (c Config) RetryDelays() ([]time.Duration, error) {
	delays := make([]time.Duration, 0, len(c.Snapshots.RetryDelays))
	prev := time.Duration(0)
	for _, raw := range c.Snapshots.RetryDelays {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse snapshots.retry_delays entry %q: %w", raw, err)
		}
		if d < prev {
			return nil, fmt.Errorf("snapshots.retry_delays must be non-decreasing")
		}
		delays = append(delays, d)
		prev = d
	}
	return delays, nil
}
