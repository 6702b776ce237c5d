// Package config loads forge.yaml with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aretw0/forge/internal/logging"
	"github.com/aretw0/forge/pkg/scanner"
	"gopkg.in/yaml.v3"
)

// FileName is the project config file searched upward from the working directory.
const FileName = "forge.yaml"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the complete forge configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Compose  ComposeConfig  `yaml:"compose"`
	Resolver ResolverConfig `yaml:"resolver"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ComposeConfig configures composition defaults.
type ComposeConfig struct {
	TokenLimit    int    `yaml:"token_limit"`
	EnforceBudget bool   `yaml:"enforce_budget"`
	DefaultBranch string `yaml:"default_branch"`
}

// ResolverConfig configures usage-based resolution.
type ResolverConfig struct {
	MinSamples int `yaml:"min_samples"`
}

// ScannerConfig configures the commit-time content scanner.
type ScannerConfig struct {
	BlockAt string `yaml:"block_at"`
}

// EventsConfig configures event publishing.
type EventsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join(".forge", "forge.db"),
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "forge:"},
		},
		Compose: ComposeConfig{
			TokenLimit:    8192,
			DefaultBranch: "main",
		},
		Resolver: ResolverConfig{MinSamples: 3},
		Scanner:  ScannerConfig{BlockAt: "critical"},
		Log:      LogConfig{Level: "warn", Format: "text"},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverBadger, DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", c.Store.Driver)
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Compose.TokenLimit < 0 {
		return fmt.Errorf("compose.token_limit must not be negative")
	}
	if c.Resolver.MinSamples < 1 {
		return fmt.Errorf("resolver.min_samples must be at least 1")
	}
	if _, err := scanner.ParseSeverity(c.Scanner.BlockAt); err != nil {
		return fmt.Errorf("scanner.block_at: %w", err)
	}
	if c.Events.Enabled && c.Events.NATSURL == "" {
		return fmt.Errorf("events.nats_url is required when events are enabled")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// LoadFromFile reads path over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Find searches dir and its parents for FileName. It returns "" when none exists.
func Find(dir string) string {
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load builds the configuration from defaults, the config file and the
// environment, in that order. An explicit path must exist; otherwise
// forge.yaml is searched upward from the working directory. It returns the
// file that was used, if any.
func Load(path string) (*Config, string, error) {
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = Find(cwd)
		}
	}

	cfg := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// ApplyEnv overrides fields from FORGE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"FORGE_STORE_DRIVER":   &c.Store.Driver,
		"FORGE_STORE_PATH":     &c.Store.Path,
		"FORGE_REDIS_ADDR":     &c.Store.Redis.Addr,
		"FORGE_REDIS_PASSWORD": &c.Store.Redis.Password,
		"FORGE_REDIS_PREFIX":   &c.Store.Redis.Prefix,
		"FORGE_NATS_URL":       &c.Events.NATSURL,
		"FORGE_SCANNER_BLOCK":  &c.Scanner.BlockAt,
		"FORGE_LOG_LEVEL":      &c.Log.Level,
		"FORGE_LOG_FORMAT":     &c.Log.Format,
		"FORGE_METRICS_ADDR":   &c.Metrics.Addr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("FORGE_NATS_URL"); ok && v != "" {
		c.Events.Enabled = true
	}

	ints := map[string]*int{
		"FORGE_REDIS_DB":             &c.Store.Redis.DB,
		"FORGE_TOKEN_LIMIT":          &c.Compose.TokenLimit,
		"FORGE_RESOLVER_MIN_SAMPLES": &c.Resolver.MinSamples,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
	}
	return nil
}
