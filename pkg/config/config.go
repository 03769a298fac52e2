// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// indexing pipeline, the lookup API and the optional backing services
// (Postgres, Kafka, Redis).
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	Server   ServerConfig   `yaml:"server"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexerConfig controls a pipeline run.
type IndexerConfig struct {
	Roots          []string      `yaml:"roots"`
	Workers        int           `yaml:"workers"`
	Crawlers       int           `yaml:"crawlers"`
	Ordering       string        `yaml:"ordering"`
	FollowSymlinks bool          `yaml:"followSymlinks"`
	MaxTokenSize   int           `yaml:"maxTokenSize"`
	RunTimeout     time.Duration `yaml:"runTimeout"`
	Filter         FilterConfig  `yaml:"filter"`
}

// FilterConfig selects which crawled entries are indexed. Patterns use
// gitignore syntax relative to the crawl root.
type FilterConfig struct {
	Exclude     []string `yaml:"exclude"`
	Include     []string `yaml:"include"`
	SkipHidden  bool     `yaml:"skipHidden"`
	MaxFileSize int64    `yaml:"maxFileSize"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimit is requests per minute per client address; 0 disables it.
	RateLimit int `yaml:"rateLimit"`
}

// LookupConfig controls query limits and the in-process result cache.
type LookupConfig struct {
	DefaultLimit   int `yaml:"defaultLimit"`
	MaxResults     int `yaml:"maxResults"`
	LocalCacheSize int `yaml:"localCacheSize"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty Host
// disables the run ledger.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether a Postgres host is configured.
func (p PostgresConfig) Enabled() bool { return p.Host != "" }

// KafkaConfig holds Kafka broker and topic settings. No brokers disables
// event publishing and the index-request consumer.
type KafkaConfig struct {
	Brokers         []string    `yaml:"brokers"`
	ConsumerGroup   string      `yaml:"consumerGroup"`
	Topics          KafkaTopics `yaml:"topics"`
	ErrorBuffer     int         `yaml:"errorBuffer"`
	PublishAttempts int         `yaml:"publishAttempts"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexRequests string `yaml:"indexRequests"`
	IndexComplete string `yaml:"indexComplete"`
	IndexErrors   string `yaml:"indexErrors"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the shared cache tier.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// Namespace prefixes every key so indexers sharing one Redis do not
	// read or flush each other's entries.
	Namespace string `yaml:"namespace"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// LoggingConfig controls structured logging level and output format. An
// empty format lets the binary choose based on the terminal.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging at the end of each run.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config suitable for indexing a local tree with no
// backing services.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			Workers:        runtime.NumCPU(),
			Crawlers:       runtime.NumCPU(),
			Ordering:       "concurrent",
			FollowSymlinks: true,
			MaxTokenSize:   1 << 20,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimit:       600,
		},
		Lookup: LookupConfig{
			DefaultLimit:   20,
			MaxResults:     1000,
			LocalCacheSize: 1024,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "fileindexer",
			User:            "fileindexer",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "file-indexer",
			Topics: KafkaTopics{
				IndexRequests: "index.requests",
				IndexComplete: "index.complete",
				IndexErrors:   "index.errors",
			},
			ErrorBuffer:     1024,
			PublishAttempts: 3,
		},
		Redis: RedisConfig{
			PoolSize:  10,
			CacheTTL:  60 * time.Second,
			Namespace: "fi:",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate checks settings that would otherwise fail a run at start-up.
// Roots are not required here; the CLI may supply them as arguments.
func (c *Config) Validate() error {
	var errs []error
	if c.Indexer.Workers < 1 {
		errs = append(errs, fmt.Errorf("indexer.workers must be at least 1, got %d", c.Indexer.Workers))
	}
	if c.Indexer.Crawlers < 1 {
		errs = append(errs, fmt.Errorf("indexer.crawlers must be at least 1, got %d", c.Indexer.Crawlers))
	}
	switch c.Indexer.Ordering {
	case "concurrent", "producers-first":
	default:
		errs = append(errs, fmt.Errorf("indexer.ordering must be concurrent or producers-first, got %q", c.Indexer.Ordering))
	}
	if c.Indexer.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("indexer.runTimeout must not be negative"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit))
	}
	if c.Lookup.DefaultLimit < 1 || c.Lookup.MaxResults < c.Lookup.DefaultLimit {
		errs = append(errs, fmt.Errorf("lookup limits invalid: defaultLimit=%d maxResults=%d", c.Lookup.DefaultLimit, c.Lookup.MaxResults))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides reads FI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FI_INDEXER_ROOTS"); v != "" {
		cfg.Indexer.Roots = splitList(v)
	}
	if v := os.Getenv("FI_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("FI_INDEXER_CRAWLERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Crawlers = n
		}
	}
	if v := os.Getenv("FI_INDEXER_ORDERING"); v != "" {
		cfg.Indexer.Ordering = v
	}
	if v := os.Getenv("FI_INDEXER_FOLLOW_SYMLINKS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.FollowSymlinks = b
		}
	}
	if v := os.Getenv("FI_INDEXER_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.RunTimeout = d
		}
	}
	if v := os.Getenv("FI_INDEXER_EXCLUDE"); v != "" {
		cfg.Indexer.Filter.Exclude = splitList(v)
	}
	if v := os.Getenv("FI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("FI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FI_REDIS_NAMESPACE"); v != "" {
		cfg.Redis.Namespace = v
	}
	if v := os.Getenv("FI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
