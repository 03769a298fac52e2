package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cfg.Indexer.Workers, 1)
	assert.Equal(t, "concurrent", cfg.Indexer.Ordering)
	assert.True(t, cfg.Indexer.FollowSymlinks)
	assert.False(t, cfg.Postgres.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
indexer:
  roots: [/srv/a, /srv/b]
  workers: 3
  ordering: producers-first
  runTimeout: 90s
  filter:
    exclude: ["*.log", "node_modules/"]
    skipHidden: true
kafka:
  brokers: [kafka:9092]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/a", "/srv/b"}, cfg.Indexer.Roots)
	assert.Equal(t, 3, cfg.Indexer.Workers)
	assert.Equal(t, "producers-first", cfg.Indexer.Ordering)
	assert.Equal(t, 90*time.Second, cfg.Indexer.RunTimeout)
	assert.Equal(t, []string{"*.log", "node_modules/"}, cfg.Indexer.Filter.Exclude)
	assert.True(t, cfg.Indexer.Filter.SkipHidden)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "index.errors", cfg.Kafka.Topics.IndexErrors)
	// untouched sections keep defaults
	assert.Equal(t, Default().Indexer.Crawlers, cfg.Indexer.Crawlers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FI_INDEXER_ROOTS", " /data , /more,")
	t.Setenv("FI_INDEXER_WORKERS", "7")
	t.Setenv("FI_INDEXER_FOLLOW_SYMLINKS", "false")
	t.Setenv("FI_REDIS_ADDR", "redis:6379")
	t.Setenv("FI_REDIS_NAMESPACE", "team-a:")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"/data", "/more"}, cfg.Indexer.Roots)
	assert.Equal(t, 7, cfg.Indexer.Workers)
	assert.False(t, cfg.Indexer.FollowSymlinks)
	assert.Equal(t, "team-a:", cfg.Redis.Namespace)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Indexer.Workers = 0 }},
		{"zero crawlers", func(c *Config) { c.Indexer.Crawlers = 0 }},
		{"bad ordering", func(c *Config) { c.Indexer.Ordering = "random" }},
		{"negative timeout", func(c *Config) { c.Indexer.RunTimeout = -time.Second }},
		{"limit above max", func(c *Config) { c.Lookup.DefaultLimit = 50; c.Lookup.MaxResults = 10 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}
