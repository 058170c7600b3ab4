package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrConfigFileNotFound is returned when an explicitly requested config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// EnvConfigPath names the environment variable that selects a config file.
const EnvConfigPath = "SEEDBED_CONFIG"

// Config holds all seedbed configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Lifecycle  LifecycleConfig  `koanf:"lifecycle"`
	Moderation ModerationConfig `koanf:"moderation"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// RedisConfig points at the optional recently-seen cache.
type RedisConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"`
}

// LifecycleConfig tunes the periodic driver.
type LifecycleConfig struct {
	Interval        time.Duration `koanf:"interval"`         // stage transitions
	ArchiveInterval time.Duration `koanf:"archive_interval"` // archival + marker pruning
	Workers         int           `koanf:"workers"`
	MarkerRetention time.Duration `koanf:"marker_retention"`
}

type ModerationConfig struct {
	Provider string        `koanf:"provider"` // "none", "http"
	URL      string        `koanf:"url"`
	Timeout  time.Duration `koanf:"timeout"`
	Retries  uint64        `koanf:"retries"`
}

type LoggingConfig struct {
	Level       string `koanf:"level"` // debug, info, warn, error
	Development bool   `koanf:"development"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Redis: RedisConfig{
			Address: "127.0.0.1:6379",
		},
		Lifecycle: LifecycleConfig{
			Interval:        5 * time.Minute,
			ArchiveInterval: 24 * time.Hour,
			Workers:         4,
			MarkerRetention: 30 * 24 * time.Hour,
		},
		Moderation: ModerationConfig{
			Provider: "none",
			Timeout:  10 * time.Second,
			Retries:  2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// SearchPaths lists where Load looks for seedbed.toml when no path is given.
func SearchPaths() []string {
	paths := []string{"seedbed.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".seedbed", "seedbed.toml"))
	}
	return append(paths, "/etc/seedbed/seedbed.toml")
}

// Load overlays a TOML file onto Default. An explicit path (argument, then
// $SEEDBED_CONFIG) must exist. Otherwise SearchPaths is tried in order and
// defaults are returned if nothing is found. The second return value is the
// file that was used, empty for pure defaults.
func Load(path string) (Config, string, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	candidates := SearchPaths()
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		candidates = []string{path}
	}

	k := koanf.New(".")
	used := ""
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
			return cfg, "", fmt.Errorf("load config %s: %w", p, err)
		}
		used = p
		break
	}
	if used == "" {
		return cfg, "", nil
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, "", fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, "", fmt.Errorf("invalid config %s: %w", used, err)
	}
	return cfg, used, nil
}

// Validate rejects settings the driver cannot run with.
func (c *Config) Validate() error {
	if c.Lifecycle.Interval <= 0 {
		return errors.New("lifecycle.interval must be positive")
	}
	if c.Lifecycle.ArchiveInterval <= 0 {
		return errors.New("lifecycle.archive_interval must be positive")
	}
	if c.Lifecycle.Workers < 1 {
		return errors.New("lifecycle.workers must be at least 1")
	}
	switch c.Moderation.Provider {
	case "", "none", "http":
	default:
		return fmt.Errorf("unknown moderation provider %q", c.Moderation.Provider)
	}
	return nil
}
