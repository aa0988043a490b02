// ABOUTME: YAML-based configuration loading for the pulse dashboard client.
// ABOUTME: Resolves XDG config/data directories and applies PULSE_* env overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pulse configuration, loaded from config.yaml.
type Config struct {
	ServerURL string          `yaml:"server_url"`
	Token     string          `yaml:"token"`
	Provider  string          `yaml:"provider"`
	Model     string          `yaml:"model"`
	OrgID     string          `yaml:"org_id"`
	DataDir   string          `yaml:"data_dir"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig tunes the websocket reconnection schedule.
type ReconnectConfig struct {
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

// BaseDelay returns the first reconnect delay as a duration.
func (r ReconnectConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the reconnect delay cap as a duration.
func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// Load reads a YAML config file from path and returns a validated Config.
// A missing file is not an error: defaults and env overrides still apply.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Parse(nil)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays PULSE_* environment variables onto the config.
// Env always wins over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("PULSE_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("PULSE_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("PULSE_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("PULSE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("PULSE_ORG_ID"); v != "" {
		c.OrgID = v
	}
	if v := os.Getenv("PULSE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("PULSE_RECONNECT_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reconnect.MaxAttempts = n
		}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() error {
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:8788"
	}
	if c.Provider == "" {
		c.Provider = "anthropic"
	}
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	if c.Reconnect.BaseDelayMS == 0 {
		c.Reconnect.BaseDelayMS = 1000
	}
	if c.Reconnect.MaxDelayMS == 0 {
		c.Reconnect.MaxDelayMS = 30000
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = 5
	}
	return nil
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		errs = append(errs, "server_url must start with http:// or https://")
	}
	if c.Reconnect.BaseDelayMS < 0 || c.Reconnect.MaxDelayMS < 0 {
		errs = append(errs, "reconnect delays must be non-negative")
	}
	if c.Reconnect.MaxDelayMS < c.Reconnect.BaseDelayMS {
		errs = append(errs, "reconnect.max_delay_ms must be >= base_delay_ms")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DefaultPath returns the default config file location, honoring XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	dir, err := defaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// defaultConfigDir checks XDG_CONFIG_HOME first, then falls back to ~/.config/pulse.
func defaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pulse"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "pulse"), nil
}

// defaultDataDir checks XDG_DATA_HOME first, then falls back to ~/.local/share/pulse.
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pulse"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "pulse"), nil
}
