// ABOUTME: Configuration loading and parsing for the instantly-mcp HTTP server
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/instantly-mcp/internal/instantly"
)

// EnvConfigPath names a config file when --config is not given.
const EnvConfigPath = "INSTANTLY_MCP_CONFIG"

// Defaults applied after parsing.
const (
	DefaultHTTPAddr       = "0.0.0.0:8080"
	DefaultBaseURL        = instantly.DefaultBaseURL
	DefaultBackendTimeout = instantly.DefaultTimeout
	DefaultMaxRetries     = instantly.DefaultMaxRetries
	DefaultSessionIdle    = 30 * time.Minute
	DefaultHistoryTTL     = time.Hour
	DefaultKeepAlive      = 25 * time.Second
	DefaultMetricsPath    = "/metrics"
)

// Config represents the complete instantly-mcp configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listener and session limits
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr" toml:"http_addr"`
	MaxSessions int    `yaml:"max_sessions" toml:"max_sessions"`

	SessionIdleTimeout time.Duration `yaml:"-" toml:"-"`
	HistoryTTL         time.Duration `yaml:"-" toml:"-"`
	KeepAlive          time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	SessionIdleTimeoutRaw string `yaml:"session_idle_timeout" toml:"session_idle_timeout"`
	HistoryTTLRaw         string `yaml:"history_ttl" toml:"history_ttl"`
	KeepAliveRaw          string `yaml:"keepalive" toml:"keepalive"`
}

// BackendConfig holds the Instantly API client settings
type BackendConfig struct {
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	MaxRetries *int   `yaml:"max_retries" toml:"max_retries"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel, implies HTTPS on :443
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyPortOverride(os.Getenv("PORT"))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault resolves the config path and loads it. An explicit path
// (flag or INSTANTLY_MCP_CONFIG) must exist; a missing file at the default
// location yields the built-in defaults.
func LoadDefault(flagPath string) (*Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		return Load(path)
	}

	path = DefaultPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.applyPortOverride(os.Getenv("PORT"))
		return cfg, nil
	}
	return Load(path)
}

// DefaultPath returns $XDG_CONFIG_HOME/instantly-mcp/config.yaml, falling
// back to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "instantly-mcp", "config.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.SessionIdleTimeout == 0 {
		c.Server.SessionIdleTimeout = DefaultSessionIdle
	}
	if c.Server.HistoryTTL == 0 {
		c.Server.HistoryTTL = DefaultHistoryTTL
	}
	if c.Server.KeepAlive == 0 {
		c.Server.KeepAlive = DefaultKeepAlive
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBaseURL
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Backend.MaxRetries == nil {
		n := DefaultMaxRetries
		c.Backend.MaxRetries = &n
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// applyPortOverride replaces the port of server.http_addr, as platforms
// that inject PORT expect.
func (c *Config) applyPortOverride(port string) {
	if port == "" {
		return
	}
	host, _, err := net.SplitHostPort(c.Server.HTTPAddr)
	if err != nil {
		host = ""
	}
	c.Server.HTTPAddr = net.JoinHostPort(host, port)
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("server.max_sessions must not be negative")
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Backend.MaxRetries != nil && *c.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend.max_retries must not be negative")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn or error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.session_idle_timeout", cfg.Server.SessionIdleTimeoutRaw, &cfg.Server.SessionIdleTimeout},
		{"server.history_ttl", cfg.Server.HistoryTTLRaw, &cfg.Server.HistoryTTL},
		{"server.keepalive", cfg.Server.KeepAliveRaw, &cfg.Server.KeepAlive},
		{"backend.timeout", cfg.Backend.TimeoutRaw, &cfg.Backend.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
