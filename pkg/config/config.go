// Package config handles loading and saving canopy configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config: ~/.config/canopy/config.yaml
//   - State:  ~/.local/state/canopy/ (viewport and tree cache)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig describes the canopy backend and the retry policy for it.
type ServerConfig struct {
	URL           string `yaml:"url"`
	RetryAttempts int    `yaml:"retry_attempts,omitempty"`
	RetryBaseMS   int    `yaml:"retry_base_ms,omitempty"`
	RetryMaxMS    int    `yaml:"retry_max_ms,omitempty"`
}

// RetryBaseWait returns the first backoff interval.
func (s ServerConfig) RetryBaseWait() time.Duration {
	return time.Duration(s.RetryBaseMS) * time.Millisecond
}

// RetryMaxWait returns the backoff cap.
func (s ServerConfig) RetryMaxWait() time.Duration {
	return time.Duration(s.RetryMaxMS) * time.Millisecond
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	DefaultZoom float64 `yaml:"default_zoom,omitempty"`
	ShowStats   bool    `yaml:"show_stats,omitempty"`
}

// CacheConfig controls the local state cache.
type CacheConfig struct {
	TTLMinutes int    `yaml:"ttl_minutes,omitempty"`
	Path       string `yaml:"path,omitempty"` // defaults to StateDir()/cache.db
}

// TTL returns the cache expiry as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Config is the top-level configuration for canopy.
type Config struct {
	Server ServerConfig `yaml:"server"`
	UI     UIConfig     `yaml:"ui,omitempty"`
	Cache  CacheConfig  `yaml:"cache,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			URL:           "http://localhost:8080",
			RetryAttempts: 4,
			RetryBaseMS:   250,
			RetryMaxMS:    4000,
		},
		UI: UIConfig{
			DefaultZoom: 1.0,
			ShowStats:   true,
		},
		Cache: CacheConfig{
			TTLMinutes: 5,
		},
	}
}

// ConfigDir returns the XDG config directory for canopy.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "canopy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "canopy")
}

// StateDir returns the XDG state directory for canopy.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "canopy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "canopy")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// CachePath returns the cache database path from cfg, or the default.
func (c Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	dir := StateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "cache.db")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	// Zero retry settings fall back to defaults; a config that only names
	// the server URL should still retry.
	def := DefaultConfig()
	if cfg.Server.RetryAttempts <= 0 {
		cfg.Server.RetryAttempts = def.Server.RetryAttempts
	}
	if cfg.Server.RetryBaseMS <= 0 {
		cfg.Server.RetryBaseMS = def.Server.RetryBaseMS
	}
	if cfg.Server.RetryMaxMS <= 0 {
		cfg.Server.RetryMaxMS = def.Server.RetryMaxMS
	}
	if cfg.Cache.TTLMinutes <= 0 {
		cfg.Cache.TTLMinutes = def.Cache.TTLMinutes
	}

	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
