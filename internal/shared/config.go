package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Instance blacklist policies.
//
// With [BlacklistPolicyFlag] updates from blacklisted instances are logged and counted but still scheduled.
// With [BlacklistPolicyBlock] they are dropped.
const (
	BlacklistPolicyFlag  = "flag"
	BlacklistPolicyBlock = "block"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Nostr    NostrConfig    `toml:"nostr"`
	Sources  []SourceConfig `toml:"sources"`
	Queue    QueueConfig    `toml:"queue"`
	Listener ListenerConfig `toml:"listener"`
	Poster   PosterConfig   `toml:"poster"`
	Filter   FilterConfig   `toml:"filter"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains database connection settings.
//
// DSN accepts postgres:// URLs or sqlite (sqlite://path, file:path, bare path, :memory:).
type DatabaseConfig struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// NostrConfig contains target relay settings.
type NostrConfig struct {
	Relays         []string      `toml:"relays"`
	NIP05Domain    string        `toml:"nip05_domain"`
	PublishTimeout time.Duration `toml:"publish_timeout"`
	PublishRate    float64       `toml:"publish_rate"`
}

// SourceConfig describes a Mastodon instance to stream from.
type SourceConfig struct {
	InstanceURL  string `toml:"instance_url"`
	ClientKey    string `toml:"client_key"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
	Token        string `toml:"token"`
}

// QueueConfig contains job queue timing settings.
type QueueConfig struct {
	PollInterval  time.Duration `toml:"poll_interval"`
	LeaseTimeout  time.Duration `toml:"lease_timeout"`
	SweepInterval time.Duration `toml:"sweep_interval"`
}

// ListenerConfig contains stream supervision settings.
type ListenerConfig struct {
	Backoff              time.Duration `toml:"backoff"`
	Buffer               int           `toml:"buffer"`
	MaxRestartsPerMinute int           `toml:"max_restarts_per_minute"`
}

// PosterConfig contains job consumer settings.
type PosterConfig struct {
	Enabled bool `toml:"enabled"`
	Workers int  `toml:"workers"`
}

// FilterConfig contains eligibility rules.
type FilterConfig struct {
	InstanceBlacklistPolicy string `toml:"instance_blacklist_policy"`
}

// ServerConfig contains HTTP server settings for health, metrics and OAuth callbacks.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Sources = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate reports configuration that would prevent startup.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn is required")
	}
	if len(c.Nostr.Relays) == 0 {
		problems = append(problems, "nostr.relays must list at least one relay")
	}
	if c.Poster.Workers < 1 {
		problems = append(problems, "poster.workers must be at least 1")
	}
	if c.Listener.Buffer < 1 {
		problems = append(problems, "listener.buffer must be at least 1")
	}
	if c.Listener.Backoff <= 0 {
		problems = append(problems, "listener.backoff must be positive")
	}
	if c.Queue.PollInterval <= 0 {
		problems = append(problems, "queue.poll_interval must be positive")
	}
	if c.Queue.LeaseTimeout < 0 {
		problems = append(problems, "queue.lease_timeout cannot be negative")
	}
	switch c.Filter.InstanceBlacklistPolicy {
	case BlacklistPolicyFlag, BlacklistPolicyBlock:
	default:
		problems = append(problems, fmt.Sprintf("filter.instance_blacklist_policy must be %q or %q", BlacklistPolicyFlag, BlacklistPolicyBlock))
	}

	for i, src := range c.Sources {
		if src.InstanceURL == "" {
			problems = append(problems, fmt.Sprintf("sources[%d].instance_url is required", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
