// ABOUTME: Configuration loading and parsing for wordchain-gateway
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wordchain-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Notify   NotifyConfig   `yaml:"notify"`
	Game     GameConfig     `yaml:"game"`
	Agents   AgentsConfig   `yaml:"agents"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the admin HTTP listener address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds credential store configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// EncryptionKey seals stored access tokens. Empty stores them unsealed.
	EncryptionKey string `yaml:"encryption_key"`
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// MatrixConfig holds the homeserver agents connect to
type MatrixConfig struct {
	Homeserver string           `yaml:"homeserver"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

// EncryptionConfig enables E2EE for agent accounts
type EncryptionConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// NotifyConfig holds the operator notification room. Leaving room_id empty
// sends notifications to the log instead.
type NotifyConfig struct {
	Homeserver  string `yaml:"homeserver"` // defaults to matrix.homeserver
	AccessToken string `yaml:"access_token"`
	RoomID      string `yaml:"room_id"`
	QueueSize   int    `yaml:"queue_size"`
}

// GameConfig holds word game behavior
type GameConfig struct {
	Dictionary        string   `yaml:"dictionary"`
	PatternsFile      string   `yaml:"patterns_file"`
	Chats             []string `yaml:"chats"`
	HostSenders       []string `yaml:"host_senders"`
	RequireTurnMarker bool     `yaml:"require_turn_marker"`
	MinLength         int      `yaml:"min_length"`

	ReplyDelayMin time.Duration `yaml:"-"`
	ReplyDelayMax time.Duration `yaml:"-"`
	SkipCooldown  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReplyDelayMinRaw string `yaml:"reply_delay_min"`
	ReplyDelayMaxRaw string `yaml:"reply_delay_max"`
	SkipCooldownRaw  string `yaml:"skip_cooldown"`
}

// AgentsConfig holds agent lifecycle configuration
type AgentsConfig struct {
	ResumeOnStart  *bool  `yaml:"resume_on_start"`
	ConnectRetries uint64 `yaml:"connect_retries"`

	StopTimeout    time.Duration `yaml:"-"`
	ConnectBackoff time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	StopTimeoutRaw    string `yaml:"stop_timeout"`
	ConnectBackoffRaw string `yaml:"connect_backoff"`
}

// Resume reports whether stored credentials are resumed at startup (default true).
func (a AgentsConfig) Resume() bool {
	return a.ResumeOnStart == nil || *a.ResumeOnStart
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults
const (
	DefaultHTTPAddr       = "127.0.0.1:8080"
	DefaultMinLength      = 3
	DefaultReplyDelayMin  = 1800 * time.Millisecond
	DefaultReplyDelayMax  = 3500 * time.Millisecond
	DefaultSkipCooldown   = 5 * time.Second
	DefaultStopTimeout    = 10 * time.Second
	DefaultConnectRetries = 3
	DefaultConnectBackoff = 500 * time.Millisecond

	minJWTSecretLength = 32
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration content, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Notify.Homeserver == "" {
		c.Notify.Homeserver = c.Matrix.Homeserver
	}
	if c.Game.MinLength == 0 {
		c.Game.MinLength = DefaultMinLength
	}
	if c.Game.ReplyDelayMinRaw == "" && c.Game.ReplyDelayMaxRaw == "" {
		c.Game.ReplyDelayMin = DefaultReplyDelayMin
		c.Game.ReplyDelayMax = DefaultReplyDelayMax
	}
	if c.Game.SkipCooldown == 0 {
		c.Game.SkipCooldown = DefaultSkipCooldown
	}
	if c.Agents.StopTimeout == 0 {
		c.Agents.StopTimeout = DefaultStopTimeout
	}
	if c.Agents.ConnectRetries == 0 {
		c.Agents.ConnectRetries = DefaultConnectRetries
	}
	if c.Agents.ConnectBackoff == 0 {
		c.Agents.ConnectBackoff = DefaultConnectBackoff
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLength)
	}

	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if u, err := url.Parse(c.Matrix.Homeserver); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("matrix.homeserver %q is not an absolute URL", c.Matrix.Homeserver)
	}

	if c.Notify.RoomID != "" && c.Notify.AccessToken == "" {
		return fmt.Errorf("notify.access_token is required when notify.room_id is set")
	}

	if c.Game.Dictionary == "" {
		return fmt.Errorf("game.dictionary is required")
	}
	if c.Game.MinLength < 1 {
		return fmt.Errorf("game.min_length must be at least 1")
	}
	if c.Game.ReplyDelayMin < 0 || c.Game.ReplyDelayMax < c.Game.ReplyDelayMin {
		return fmt.Errorf("game.reply_delay_min must be between 0 and game.reply_delay_max")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
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
		{"game.reply_delay_min", cfg.Game.ReplyDelayMinRaw, &cfg.Game.ReplyDelayMin},
		{"game.reply_delay_max", cfg.Game.ReplyDelayMaxRaw, &cfg.Game.ReplyDelayMax},
		{"game.skip_cooldown", cfg.Game.SkipCooldownRaw, &cfg.Game.SkipCooldown},
		{"agents.stop_timeout", cfg.Agents.StopTimeoutRaw, &cfg.Agents.StopTimeout},
		{"agents.connect_backoff", cfg.Agents.ConnectBackoffRaw, &cfg.Agents.ConnectBackoff},
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

	// A lone bound sets a fixed delay.
	if cfg.Game.ReplyDelayMinRaw != "" && cfg.Game.ReplyDelayMaxRaw == "" {
		cfg.Game.ReplyDelayMax = cfg.Game.ReplyDelayMin
	}
	if cfg.Game.ReplyDelayMaxRaw != "" && cfg.Game.ReplyDelayMinRaw == "" {
		cfg.Game.ReplyDelayMin = cfg.Game.ReplyDelayMax
	}

	return nil
}
