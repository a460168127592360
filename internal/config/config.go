// Package config loads the client configuration and persists the UI layout
// preferences. Entity data is never written here; the backend is the source
// of truth for everything except how the user likes their panes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	configEnvVar   = "NOTELM_CONFIG"
	serverEnvVar   = "NOTELM_SERVER_URL"
	configSubpath  = "notelm/config.toml"
	defaultBaseURL = "http://localhost:8000"
)

// Config is the full on-disk configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	UI     UIConfig     `toml:"ui"`
}

// ServerConfig locates the backend.
type ServerConfig struct {
	BaseURL               string `toml:"base_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	ReconnectDelaySeconds int    `toml:"reconnect_delay_seconds"`
}

// UIConfig is the persisted layout-preference subset.
type UIConfig struct {
	SidebarWidth  int    `toml:"sidebar_width"`
	ShowCitations bool   `toml:"show_citations"`
	Theme         string `toml:"theme"`
}

// RequestTimeout returns the configured request timeout as a duration.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ReconnectDelay returns the push-channel reconnect delay as a duration.
func (c ServerConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:               defaultBaseURL,
			RequestTimeoutSeconds: 90,
			ReconnectDelaySeconds: 3,
		},
		UI: UIConfig{
			SidebarWidth:  32,
			ShowCitations: true,
			Theme:         "dark",
		},
	}
}

// DefaultPath returns the per-user config location, honoring NOTELM_CONFIG.
func DefaultPath() string {
	if env := os.Getenv(configEnvVar); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = filepath.Join(os.TempDir(), "notelm-config")
	}
	return filepath.Join(base, configSubpath)
}

// Load reads the config file at path, applying defaults for anything unset.
// A missing file is not an error; NOTELM_SERVER_URL overrides the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}
	if env := os.Getenv(serverEnvVar); env != "" {
		cfg.Server.BaseURL = env
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaultBaseURL
	}
	if cfg.Server.RequestTimeoutSeconds <= 0 {
		cfg.Server.RequestTimeoutSeconds = 90
	}
	if cfg.Server.ReconnectDelaySeconds <= 0 {
		cfg.Server.ReconnectDelaySeconds = 3
	}
	return cfg, nil
}

// Save writes the config back to path, creating parent directories as
// needed. Called when the user changes a layout preference.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("encode config file failed: %w", err)
	}
	return nil
}
