// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Fetch backends.
const (
	BackendColly    = "colly"
	BackendHeadless = "headless"
)

// Storage backends.
const (
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageGCS    = "gcs"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Catalogue CatalogueConfig `mapstructure:"catalogue"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Cookies   CookiesConfig   `mapstructure:"cookies"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CatalogueConfig describes the site being crawled.
type CatalogueConfig struct {
	Origin      string `mapstructure:"origin"`
	ListingPath string `mapstructure:"listing_path"`
	Sort        string `mapstructure:"sort"`
	// Resume reuses pages already in the blob store.
	Resume bool `mapstructure:"resume"`
}

// FetchConfig governs the worker pool and the HTTP client behind it.
type FetchConfig struct {
	Workers        int     `mapstructure:"workers"`
	Backend        string  `mapstructure:"backend"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
	// Headers are sent with every request. Keys are case-insensitive.
	Headers map[string]string `mapstructure:"headers"`
}

// HeadlessConfig configures the Chrome-backed client.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// CookiesConfig points at the cookie file sent with every request.
type CookiesConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig selects where fetched pages are written.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the creature table. An empty DSN disables it.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig names the topic creature events are published to. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// KafkaConfig is the alternative event sink. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RedisConfig caches creature records in Redis. An empty addr disables it.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Prefix     string `mapstructure:"prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("catalogue.origin", "https://www.dndbeyond.com")
	v.SetDefault("catalogue.listing_path", "/monsters")
	v.SetDefault("catalogue.sort", "cr")
	v.SetDefault("catalogue.resume", false)
	v.SetDefault("fetch.workers", 10)
	v.SetDefault("fetch.backend", BackendColly)
	v.SetDefault("fetch.user_agent", "bestiary-crawler/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_body_bytes", 0)
	v.SetDefault("fetch.rate_per_second", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("cookies.path", "cookies.txt")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "target/monsters")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.table", "creatures")
	// Registered so the keys can be set from the environment alone.
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "creatures")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "creatures")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.prefix", "creature:")
	v.SetDefault("redis.ttl_seconds", 0)
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	origin, err := url.Parse(c.Catalogue.Origin)
	if err != nil || (origin.Scheme != "http" && origin.Scheme != "https") || origin.Host == "" {
		return fmt.Errorf("catalogue.origin must be an absolute http(s) url, got %q", c.Catalogue.Origin)
	}
	if !strings.HasPrefix(c.Catalogue.ListingPath, "/") {
		return fmt.Errorf("catalogue.listing_path must start with /")
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must be >= 0")
	}
	if c.Fetch.RatePerSecond < 0 {
		return fmt.Errorf("fetch.rate_per_second must be >= 0")
	}
	switch c.Fetch.Backend {
	case BackendColly:
	case BackendHeadless:
		if c.Headless.MaxParallel <= 0 {
			return fmt.Errorf("headless.max_parallel must be > 0 when the headless backend is selected")
		}
		if c.Headless.NavTimeoutSec <= 0 {
			return fmt.Errorf("headless.nav_timeout_seconds must be > 0")
		}
	default:
		return fmt.Errorf("fetch.backend must be %q or %q, got %q", BackendColly, BackendHeadless, c.Fetch.Backend)
	}
	if strings.TrimSpace(c.Cookies.Path) == "" {
		return fmt.Errorf("cookies.path is required")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case StorageGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend must be one of local, memory, gcs, got %q", c.Storage.Backend)
	}
	if c.PubSub.ProjectID != "" && strings.TrimSpace(c.PubSub.Topic) == "" {
		return fmt.Errorf("pubsub.topic is required when pubsub.project_id is set")
	}
	if len(c.Kafka.Brokers) > 0 {
		if c.PubSub.ProjectID != "" {
			return fmt.Errorf("pubsub.project_id and kafka.brokers are mutually exclusive")
		}
		if strings.TrimSpace(c.Kafka.Topic) == "" {
			return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
		}
	}
	if c.DB.DSN != "" && c.Redis.Addr != "" {
		return fmt.Errorf("db.dsn and redis.addr are mutually exclusive")
	}
	if c.Redis.TTLSeconds < 0 {
		return fmt.Errorf("redis.ttl_seconds must be >= 0")
	}
	if c.DB.MaxConns < 0 {
		return fmt.Errorf("db.max_conns must be >= 0")
	}
	return nil
}

// FetchTimeout converts the per-request timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FetchHeaders returns the configured request headers, or nil when none are set.
func (c Config) FetchHeaders() http.Header {
	if len(c.Fetch.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(c.Fetch.Headers))
	for k, v := range c.Fetch.Headers {
		h.Set(k, v)
	}
	return h
}

// RedisTTL converts the record expiry into a duration.
func (c Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// NavigationTimeout converts the headless navigation timeout into a duration.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
