package services

import (
	"context"

	"github.com/desertthunder/nostodon/internal/models"
	"golang.org/x/oauth2"
)

// Source is a platform whose public stream is mirrored.
type Source interface {
	// Name identifies the source in logs and metrics, usually its base URL.
	Name() string

	// Stream opens the public stream. Callers must Close the returned stream.
	Stream(ctx context.Context) (EventStream, error)
}

// EventStream yields decoded events until the connection ends.
type EventStream interface {
	// Next blocks until the next event. Malformed messages return [shared.ErrInvalidEvent] and leave
	// the stream usable; any other error means the stream is finished.
	Next(ctx context.Context) (models.Event, error)
	Close() error
}

// Target is a platform that receives mirrored posts and profiles.
//
// Every call is signed with the identity's keys and returns the target-side identifier of the
// event it created.
type Target interface {
	Publish(ctx context.Context, keys models.Keypair, note Note) (string, error)
	UpdateProfile(ctx context.Context, keys models.Keypair, profile models.Profile) (string, error)
	Delete(ctx context.Context, keys models.Keypair, targetID string) (string, error)
}

// CredentialIssuer mints a keypair for a new identity.
type CredentialIssuer interface {
	Issue() (models.Keypair, error)
}

// OAuthService extends a source with the authorization code flow used by `sources auth`.
type OAuthService interface {
	GetAuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	OAuthConfig() *oauth2.Config
}

// Note is a post to publish. Content is Markdown.
type Note struct {
	Content string
	// InReplyTo is the target id of the parent note, if any.
	InReplyTo string
}
