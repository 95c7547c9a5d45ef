// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/services"
	"github.com/desertthunder/nostodon/internal/shared"
)

// StreamScript is one connection served by [MockSource].
//
// When OpenErr is set the connection fails to open. Otherwise Events are returned in order, then
// EndErr once, and then the stream blocks until its context is cancelled.
type StreamScript struct {
	OpenErr error
	Events  []models.Event
	EndErr  error
}

// MockSource is a test double for [services.Source] that serves scripted connections in order.
// Once the scripts run out every further connection blocks until its context ends.
type MockSource struct {
	name string

	mu      sync.Mutex
	scripts []StreamScript
	opened  int
}

// NewMockSource creates a source named name serving scripts.
func NewMockSource(name string, scripts ...StreamScript) *MockSource {
	return &MockSource{name: name, scripts: scripts}
}

func (m *MockSource) Name() string { return m.name }

// Opened returns the number of Stream calls so far.
func (m *MockSource) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

func (m *MockSource) Stream(ctx context.Context) (services.EventStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opened++
	if len(m.scripts) == 0 {
		return &mockStream{}, nil
	}

	script := m.scripts[0]
	m.scripts = m.scripts[1:]
	if script.OpenErr != nil {
		return nil, script.OpenErr
	}
	return &mockStream{events: script.Events, end: script.EndErr}, nil
}

type mockStream struct {
	events []models.Event
	end    error
}

func (s *mockStream) Next(ctx context.Context) (models.Event, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.end != nil {
		err := s.end
		s.end = nil
		return models.Event{}, err
	}
	<-ctx.Done()
	return models.Event{}, ctx.Err()
}

func (s *mockStream) Close() error { return nil }

// MockTarget is a test double for [services.Target] that records every call.
type MockTarget struct {
	PublishErr error
	ProfileErr error
	DeleteErr  error

	mu        sync.Mutex
	published []services.Note
	profiles  []models.Profile
	deleted   []string
	n         int
}

func (m *MockTarget) Publish(ctx context.Context, keys models.Keypair, note services.Note) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return "", m.PublishErr
	}
	m.published = append(m.published, note)
	return m.nextID(), nil
}

func (m *MockTarget) UpdateProfile(ctx context.Context, keys models.Keypair, profile models.Profile) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProfileErr != nil {
		return "", m.ProfileErr
	}
	m.profiles = append(m.profiles, profile)
	return m.nextID(), nil
}

func (m *MockTarget) Delete(ctx context.Context, keys models.Keypair, targetID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return "", m.DeleteErr
	}
	m.deleted = append(m.deleted, targetID)
	return m.nextID(), nil
}

func (m *MockTarget) nextID() string {
	m.n++
	return fmt.Sprintf("note%d", m.n)
}

// Published returns the notes published so far.
func (m *MockTarget) Published() []services.Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]services.Note(nil), m.published...)
}

// Profiles returns the profiles sent so far.
func (m *MockTarget) Profiles() []models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Profile(nil), m.profiles...)
}

// Deleted returns the target ids deleted so far.
func (m *MockTarget) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// MockIssuer is a test double for [services.CredentialIssuer] returning npubN/nsecN pairs.
type MockIssuer struct {
	Err error

	mu    sync.Mutex
	calls int
}

func (m *MockIssuer) Issue() (models.Keypair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.Keypair{}, m.Err
	}
	m.calls++
	return models.Keypair{PublicKey: fmt.Sprintf("npub%d", m.calls), PrivateKey: fmt.Sprintf("nsec%d", m.calls)}, nil
}

// Calls returns the number of keypairs issued.
func (m *MockIssuer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MustOpenDatabase opens an in-memory SQLite database with migrations applied.
func MustOpenDatabase(t *testing.T) *shared.Database {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
