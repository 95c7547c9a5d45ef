package shared

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestInstanceURL(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
	}{
		{name: "status url", input: "https://mastodon.social/@alice/109876543210", want: "https://mastodon.social/"},
		{name: "query and fragment", input: "https://fosstodon.org/@bob/1?foo=bar#top", want: "https://fosstodon.org/"},
		{name: "port kept", input: "http://localhost:3000/@carol/2", want: "http://localhost:3000/"},
		{name: "already base", input: "https://hachyderm.io/", want: "https://hachyderm.io/"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InstanceURL(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("InstanceURL() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("relative url", func(t *testing.T) {
		if _, err := InstanceURL("/@alice/1"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestExternalHandle(t *testing.T) {
	u, err := InstanceURL("https://mastodon.social:443/@alice/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := ExternalHandle("alice", u); got != "alice.mastodon.social" {
		t.Errorf("ExternalHandle() = %v, want alice.mastodon.social", got)
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "paragraph", input: "<p>Hello world</p>", want: "Hello world"},
		{name: "bold", input: "<p>Hello <strong>there</strong></p>", want: "Hello **there**"},
		{name: "link", input: `<p><a href="https://example.com">site</a></p>`, want: "[site](https://example.com)"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLToMarkdown(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.TrimSpace(got) != tt.want {
				t.Errorf("HTMLToMarkdown() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDSN(t *testing.T) {
	tc := []struct {
		name    string
		dsn     string
		dialect Dialect
		driver  string
	}{
		{name: "postgres", dsn: "postgres://u:p@localhost/db", dialect: DialectPostgres, driver: "postgres://u:p@localhost/db"},
		{name: "postgresql", dsn: "postgresql://localhost/db", dialect: DialectPostgres, driver: "postgresql://localhost/db"},
		{name: "sqlite scheme", dsn: "sqlite://nostodon.db", dialect: DialectSQLite, driver: "nostodon.db"},
		{name: "memory", dsn: ":memory:", dialect: DialectSQLite, driver: ":memory:"},
		{name: "file uri", dsn: "file:test.db?cache=shared", dialect: DialectSQLite, driver: "file:test.db?cache=shared"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			dialect, driver, err := ParseDSN(tt.dsn)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dialect != tt.dialect {
				t.Errorf("expected dialect %s, got %s", tt.dialect, dialect)
			}
			if driver != tt.driver {
				t.Errorf("expected driver dsn %s, got %s", tt.driver, driver)
			}
		})
	}

	t.Run("unsupported scheme", func(t *testing.T) {
		if _, _, err := ParseDSN("mysql://localhost/db"); !errors.Is(err, ErrUnsupportedDialect) {
			t.Errorf("expected ErrUnsupportedDialect, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, _, err := ParseDSN("  "); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &Database{dialect: DialectPostgres}
	lite := &Database{dialect: DialectSQLite}
	query := "UPDATE t SET a = ?, b = '?' WHERE c = ?"

	if got := pg.Rebind(query); got != "UPDATE t SET a = $1, b = '?' WHERE c = $2" {
		t.Errorf("unexpected postgres rebind: %s", got)
	}
	if got := lite.Rebind(query); got != query {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}
}

func TestDatabaseHealthCheck(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	if err := db.HealthCheck(t.Context()); err != nil {
		t.Errorf("expected healthy database, got %v", err)
	}

	db.Close()
	if err := db.HealthCheck(t.Context()); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable after close, got %v", err)
	}
}

func TestLogger(t *testing.T) {
	t.Run("ConfigureLogLevel", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)

		if err := ConfigureLogLevel(logger, "debug"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if logger.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", logger.GetLevel())
		}

		if err := ConfigureLogLevel(logger, "loud"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("WithLogger", func(t *testing.T) {
		var buf bytes.Buffer
		child := WithLogger(NewLogger(&buf), "source", "mastodon.social")
		child.Info("hello")

		if !strings.Contains(buf.String(), "source=mastodon.social") {
			t.Errorf("expected child fields in output, got %q", buf.String())
		}
	})
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateState()

	if a == "" || a == b {
		t.Errorf("expected distinct non-empty states, got %q and %q", a, b)
	}
}
