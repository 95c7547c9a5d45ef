package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.DSN != "sqlite://nostodon.db" {
			t.Errorf("expected database dsn sqlite://nostodon.db, got %s", config.Database.DSN)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Listener.Backoff != 250*time.Millisecond {
			t.Errorf("expected listener backoff 250ms, got %v", config.Listener.Backoff)
		}

		if config.Queue.LeaseTimeout != 15*time.Minute {
			t.Errorf("expected lease timeout 15m, got %v", config.Queue.LeaseTimeout)
		}

		if config.Filter.InstanceBlacklistPolicy != BlacklistPolicyFlag {
			t.Errorf("expected blacklist policy %q, got %q", BlacklistPolicyFlag, config.Filter.InstanceBlacklistPolicy)
		}

		if config.Nostr.NIP05Domain != "nostodon.org" {
			t.Errorf("expected nip05 domain nostodon.org, got %s", config.Nostr.NIP05Domain)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.DSN != DefaultConfig().Database.DSN {
			t.Errorf("created config database dsn doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
dsn = "postgres://nostodon@localhost/nostodon?sslmode=disable"
max_open_conns = 20

[nostr]
relays = ["wss://relay.one", "wss://relay.two"]

[[sources]]
instance_url = "https://mastodon.social"
token = "secret"

[poster]
enabled = false
workers = 4

[filter]
instance_blacklist_policy = "block"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.MaxOpenConns != 20 {
			t.Errorf("expected max_open_conns 20, got %d", config.Database.MaxOpenConns)
		}
		if config.Database.MaxIdleConns != 4 {
			t.Errorf("expected max_idle_conns to keep default 4, got %d", config.Database.MaxIdleConns)
		}
		if len(config.Nostr.Relays) != 2 {
			t.Errorf("expected 2 relays, got %d", len(config.Nostr.Relays))
		}
		if len(config.Sources) != 1 || config.Sources[0].Token != "secret" {
			t.Errorf("expected one source with token, got %+v", config.Sources)
		}
		if config.Poster.Enabled {
			t.Error("expected poster to be disabled")
		}
		if config.Poster.Workers != 4 {
			t.Errorf("expected 4 workers, got %d", config.Poster.Workers)
		}
		if config.Filter.InstanceBlacklistPolicy != BlacklistPolicyBlock {
			t.Errorf("expected block policy, got %s", config.Filter.InstanceBlacklistPolicy)
		}
		if config.Listener.Buffer != 128 {
			t.Errorf("expected listener buffer default 128, got %d", config.Listener.Buffer)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("SaveConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Sources = append(config.Sources, SourceConfig{InstanceURL: "https://example.social", Token: "abc"})

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}

		if len(loaded.Sources) != 1 || loaded.Sources[0].InstanceURL != "https://example.social" {
			t.Errorf("expected saved source, got %+v", loaded.Sources)
		}
		if loaded.Queue.PollInterval != config.Queue.PollInterval {
			t.Errorf("expected poll interval %v, got %v", config.Queue.PollInterval, loaded.Queue.PollInterval)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name   string
			mutate func(*Config)
		}{
			{name: "empty dsn", mutate: func(c *Config) { c.Database.DSN = "" }},
			{name: "no relays", mutate: func(c *Config) { c.Nostr.Relays = nil }},
			{name: "zero workers", mutate: func(c *Config) { c.Poster.Workers = 0 }},
			{name: "unknown policy", mutate: func(c *Config) { c.Filter.InstanceBlacklistPolicy = "ignore" }},
			{name: "negative lease", mutate: func(c *Config) { c.Queue.LeaseTimeout = -time.Second }},
			{name: "source without url", mutate: func(c *Config) { c.Sources = []SourceConfig{{Token: "x"}} }},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)

				err := config.Validate()
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})
}
