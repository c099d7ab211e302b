// ABOUTME: Configuration loading and parsing for openclaw-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete openclaw-gateway configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// TrustedProxies lists CIDR ranges whose X-Forwarded-* headers are
	// believed for client IP extraction and Secure-cookie decisions.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// StorageConfig holds data directory and database configuration
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"` // defaults to {data_dir}/gateway.db
}

// SessionConfig holds session lifetime and persistence tuning
type SessionConfig struct {
	TTL          time.Duration `yaml:"-"`
	PersistDelay time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TTLRaw          string `yaml:"ttl"`
	PersistDelayRaw string `yaml:"persist_delay"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// TokenSecret signs handoff tokens. Empty means a random
	// per-process secret (tokens don't survive restarts).
	TokenSecret string `yaml:"token_secret"`
	TotpIssuer  string `yaml:"totp_issuer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with all defaults applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultConfigPath returns the standard config file location,
// honoring XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "openclaw", "gateway.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "gateway.yaml")
	}
	return filepath.Join(home, ".config", "openclaw", "gateway.yaml")
}

// DefaultDataDir returns the standard data directory, honoring
// XDG_DATA_HOME.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "openclaw")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "openclaw-data")
	}
	return filepath.Join(home, ".local", "share", "openclaw")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values, then defaults
// fill any unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields with their default values.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8080"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir()
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(c.Storage.DataDir, "gateway.db")
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 168 * time.Hour
	}
	if c.Session.PersistDelay == 0 {
		c.Session.PersistDelay = 2 * time.Second
	}
	if c.Auth.TotpIssuer == "" {
		c.Auth.TotpIssuer = "OpenClaw Gateway"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	for _, cidr := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("server.trusted_proxies entry %q is not a valid CIDR: %w", cidr, err)
		}
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Session.PersistDelay <= 0 {
		return fmt.Errorf("session.persist_delay must be positive")
	}

	// A guessable signing secret is worse than an ephemeral one.
	if c.Auth.TokenSecret != "" && len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("auth.token_secret must be at least 32 characters")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Session.TTLRaw != "" {
		cfg.Session.TTL, err = time.ParseDuration(cfg.Session.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session.ttl %q: %w", cfg.Session.TTLRaw, err)
		}
	}

	if cfg.Session.PersistDelayRaw != "" {
		cfg.Session.PersistDelay, err = time.ParseDuration(cfg.Session.PersistDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing session.persist_delay %q: %w", cfg.Session.PersistDelayRaw, err)
		}
	}

	return nil
}
