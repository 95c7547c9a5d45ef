// Nostr implementation of [Target] and [CredentialIssuer]
//
// Event kinds per NIP-01 (metadata, text note) and NIP-09 (deletion).
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"golang.org/x/time/rate"
)

const (
	MirrorDisplayNamePrefix = "[Unofficial Mirror] "
	MirrorAboutPrefix       = "THIS IS AN UNNOFICIAL MIRROR. CHECK THE PROFILE FOR CORRECT INFO.\n\n"
	DeleteReason            = "deleted from remote source"
	DefaultNIP05Domain      = "nostodon.org"

	defaultPublishTimeout = 10 * time.Second
)

// Relay is the subset of [nostr.Relay] the target needs.
type Relay interface {
	Publish(ctx context.Context, event nostr.Event) error
	Close() error
}

// RelayDialer opens a relay connection.
type RelayDialer func(ctx context.Context, url string) (Relay, error)

func dialRelay(ctx context.Context, url string) (Relay, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// NostrOptions configures a [NostrTarget].
type NostrOptions struct {
	Relays      []string
	NIP05Domain string
	// Timeout bounds one publish across all relays.
	Timeout time.Duration
	// Rate is the number of events per second sent to relays. Zero disables pacing.
	Rate   float64
	Dialer RelayDialer
	Logger *log.Logger
}

// NostrTarget signs and publishes events to a fixed set of relays.
type NostrTarget struct {
	relays      []string
	nip05Domain string
	timeout     time.Duration
	limiter     *rate.Limiter
	dial        RelayDialer
	logger      *log.Logger

	mu    sync.Mutex
	conns map[string]Relay
}

// NewNostrTarget creates a target for opts.Relays. Relays are dialed lazily on first publish.
func NewNostrTarget(opts NostrOptions) (*NostrTarget, error) {
	if len(opts.Relays) == 0 {
		return nil, fmt.Errorf("%w: no nostr relays", shared.ErrInvalidConfig)
	}
	if opts.NIP05Domain == "" {
		opts.NIP05Domain = DefaultNIP05Domain
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPublishTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = dialRelay
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), max(1, int(opts.Rate)))
	}

	return &NostrTarget{
		relays:      opts.Relays,
		nip05Domain: opts.NIP05Domain,
		timeout:     opts.Timeout,
		limiter:     limiter,
		dial:        opts.Dialer,
		logger:      opts.Logger,
		conns:       make(map[string]Relay),
	}, nil
}

// Publish sends note as a text note and returns its bech32 note id. Replies carry a NIP-10
// marked "e" tag pointing at the parent.
func (t *NostrTarget) Publish(ctx context.Context, keys models.Keypair, note Note) (string, error) {
	ev := nostr.Event{
		Kind:    nostr.KindTextNote,
		Content: note.Content,
		Tags:    nostr.Tags{},
	}
	if note.InReplyTo != "" {
		parent, err := decodeEventID(note.InReplyTo)
		if err != nil {
			return "", err
		}
		ev.Tags = append(ev.Tags, nostr.Tag{"e", parent, "", "reply"})
	}
	return t.send(ctx, keys, ev)
}

// UpdateProfile publishes profile as kind 0 metadata, marking it as a mirror.
func (t *NostrTarget) UpdateProfile(ctx context.Context, keys models.Keypair, profile models.Profile) (string, error) {
	content, err := json.Marshal(t.Metadata(profile))
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}

	return t.send(ctx, keys, nostr.Event{
		Kind:    nostr.KindProfileMetadata,
		Content: string(content),
		Tags:    nostr.Tags{},
	})
}

// Delete requests deletion of the event with targetID (bech32 note id or hex).
func (t *NostrTarget) Delete(ctx context.Context, keys models.Keypair, targetID string) (string, error) {
	eventID, err := decodeEventID(targetID)
	if err != nil {
		return "", err
	}

	return t.send(ctx, keys, nostr.Event{
		Kind:    nostr.KindDeletion,
		Content: DeleteReason,
		Tags:    nostr.Tags{{"e", eventID}},
	})
}

// Metadata is the kind 0 content of a mirrored profile.
type Metadata struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
}

// Metadata formats profile for publication.
func (t *NostrTarget) Metadata(profile models.Profile) Metadata {
	m := Metadata{
		Name:        profile.Name,
		DisplayName: MirrorDisplayNamePrefix + profile.DisplayName,
		About:       MirrorAboutPrefix + profile.About,
		Picture:     profile.Picture,
		Banner:      profile.Banner,
	}
	if profile.NIP05 != "" {
		m.NIP05 = profile.NIP05 + "@" + t.nip05Domain
	}
	return m
}

func (t *NostrTarget) send(ctx context.Context, keys models.Keypair, ev nostr.Event) (string, error) {
	sk, err := decodeSecretKey(keys.PrivateKey)
	if err != nil {
		return "", err
	}

	pub, err := nostr.GetPublicKey(sk)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrMissingCredentials, err)
	}
	ev.PubKey = pub
	ev.CreatedAt = nostr.Now()
	if err := ev.Sign(sk); err != nil {
		return "", fmt.Errorf("failed to sign event: %w", err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var (
		errs     []error
		accepted int
	)
	for _, url := range t.relays {
		relay, err := t.relay(ctx, url)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		if err := relay.Publish(ctx, ev); err != nil {
			t.drop(url, relay)
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return "", fmt.Errorf("%w: kind %d: %v", shared.ErrPublishFailed, ev.Kind, errors.Join(errs...))
	}
	if len(errs) > 0 {
		t.logger.Warn("some relays rejected event", "id", ev.ID, "accepted", accepted, "error", errors.Join(errs...))
	}

	id, err := nip19.EncodeNote(ev.ID)
	if err != nil {
		return "", fmt.Errorf("failed to encode event id: %w", err)
	}
	return id, nil
}

func (t *NostrTarget) relay(ctx context.Context, url string) (Relay, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.conns[url]; ok {
		return r, nil
	}

	r, err := t.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	t.conns[url] = r
	return r, nil
}

func (t *NostrTarget) drop(url string, r Relay) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conns[url] == r {
		delete(t.conns, url)
	}
	r.Close()
}

// Close disconnects every cached relay.
func (t *NostrTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for url, r := range t.conns {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(t.conns, url)
	}
	return errors.Join(errs...)
}

func decodeSecretKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty private key", shared.ErrMissingCredentials)
	}
	if !strings.HasPrefix(key, "nsec") {
		return key, nil
	}

	prefix, value, err := nip19.Decode(key)
	if err != nil || prefix != "nsec" {
		return "", fmt.Errorf("%w: malformed nsec", shared.ErrMissingCredentials)
	}
	sk, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: malformed nsec", shared.ErrMissingCredentials)
	}
	return sk, nil
}

func decodeEventID(id string) (string, error) {
	if !strings.HasPrefix(id, "note") {
		return id, nil
	}

	prefix, value, err := nip19.Decode(id)
	if err != nil || prefix != "note" {
		return "", fmt.Errorf("%w: malformed note id %q", shared.ErrInvalidInput, id)
	}
	hex, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: malformed note id %q", shared.ErrInvalidInput, id)
	}
	return hex, nil
}

// NostrIssuer generates fresh Nostr keypairs.
type NostrIssuer struct{}

// Issue returns a new npub/nsec pair.
func (NostrIssuer) Issue() (models.Keypair, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return models.Keypair{}, fmt.Errorf("failed to derive public key: %w", err)
	}

	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		return models.Keypair{}, fmt.Errorf("failed to encode private key: %w", err)
	}
	npub, err := nip19.EncodePublicKey(pk)
	if err != nil {
		return models.Keypair{}, fmt.Errorf("failed to encode public key: %w", err)
	}

	return models.Keypair{PublicKey: npub, PrivateKey: nsec}, nil
}
