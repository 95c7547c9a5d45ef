package shared

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour behind a [Database].
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Database wraps [sql.DB] with the dialect it was opened with so that queries written with `?`
// placeholders can be rebound for Postgres.
type Database struct {
	*sql.DB
	dialect Dialect
	dsn     string
}

// ParseDSN resolves the driver dialect and driver-specific connection string for dsn.
//
//	postgres://... or postgresql://...  -> lib/pq
//	sqlite://path, file:path, path, :memory: -> go-sqlite3
func ParseDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("%w: empty database dsn", ErrInvalidConfig)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "sqlite3://"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite3://"), nil
	case strings.Contains(dsn, "://"):
		scheme := dsn[:strings.Index(dsn, "://")]
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedDialect, scheme)
	default:
		return DialectSQLite, dsn, nil
	}
}

// NewDatabase opens a connection for dsn and verifies it with a ping.
//
// SQLite connections are limited to a single open connection so that ":memory:" databases are shared
// by every caller and writes are serialized.
func NewDatabase(dsn string) (*Database, error) {
	dialect, driverDSN, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(dialect), driverDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db, dialect: dialect, dsn: driverDSN}, nil
}

// ConfigureDatabase sets connection pool settings for the database.
//
// SQLite keeps its single connection regardless of maxOpenConns.
func ConfigureDatabase(db *Database, maxOpenConns, maxIdleConns int) {
	if db.dialect == DialectSQLite {
		return
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
}

// Dialect reports the SQL flavour of the connection.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

// DSN returns the driver connection string, used by the Postgres notification listener.
func (d *Database) DSN() string {
	return d.dsn
}

// Rebind rewrites `?` placeholders to `$n` for Postgres. Quoted literals are left untouched.
func (d *Database) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	return rebindDollar(query)
}

// HealthCheck runs a trivial query against the database.
func (d *Database) HealthCheck(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, "select 1"); err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return nil
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
