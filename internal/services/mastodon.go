// Mastodon streaming API implementation of [Source]
//
// Message format based on https://docs.joinmastodon.org/methods/streaming/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"nhooyr.io/websocket"
)

const (
	mastodonStreamPath    = "/api/v1/streaming"
	mastodonAuthorizePath = "/oauth/authorize"
	mastodonTokenPath     = "/oauth/token"
	mastodonRedirectURL   = "http://localhost:3000/callback"

	// Statuses with long content and media descriptions exceed the websocket default of 32KiB.
	mastodonReadLimit = 1 << 20
)

var mastodonScopes = []string{"read"}

// StreamMessage is one frame of the streaming API.
//
// For "update" the payload is a JSON-encoded status; for "delete" it is the status id.
type StreamMessage struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// MastodonSource streams public statuses from one Mastodon instance.
type MastodonSource struct {
	instance   *url.URL
	config     *oauth2.Config
	tokens     oauth2.TokenSource
	httpClient *http.Client
}

// NewMastodonSource builds a source from stored credentials. No connection is made.
//
// A stored token is used as-is. Without one, the client key and secret are exchanged for an app
// token with the client credentials grant.
func NewMastodonSource(src models.Source) (*MastodonSource, error) {
	instance, err := shared.InstanceURL(src.InstanceURL)
	if err != nil {
		return nil, err
	}

	redirectURL := src.RedirectURL
	if redirectURL == "" {
		redirectURL = mastodonRedirectURL
	}

	base := strings.TrimSuffix(instance.String(), "/")
	config := &oauth2.Config{
		ClientID:     src.ClientKey,
		ClientSecret: src.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       mastodonScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  base + mastodonAuthorizePath,
			TokenURL: base + mastodonTokenPath,
		},
	}

	s := &MastodonSource{instance: instance, config: config, httpClient: http.DefaultClient}

	switch {
	case src.Token != "":
		s.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: src.Token, TokenType: "Bearer"})
	case src.ClientKey != "" && src.ClientSecret != "":
		cc := &clientcredentials.Config{
			ClientID:     src.ClientKey,
			ClientSecret: src.ClientSecret,
			TokenURL:     config.Endpoint.TokenURL,
			Scopes:       mastodonScopes,
		}
		s.tokens = cc.TokenSource(context.Background())
	default:
		return nil, fmt.Errorf("%w: %s needs a token or client key and secret", shared.ErrMissingCredentials, base)
	}

	return s, nil
}

// WithHTTPClient replaces the client used for the websocket handshake.
func (s *MastodonSource) WithHTTPClient(c *http.Client) *MastodonSource {
	s.httpClient = c
	return s
}

// Name returns the instance base URL.
func (s *MastodonSource) Name() string {
	return s.instance.String()
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *MastodonSource) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (s *MastodonSource) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// OAuthConfig exposes the authorization code configuration.
func (s *MastodonSource) OAuthConfig() *oauth2.Config {
	return s.config
}

// StreamURL returns the websocket URL of the public timeline stream.
func (s *MastodonSource) StreamURL() string {
	u := *s.instance
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = mastodonStreamPath
	u.RawQuery = url.Values{"stream": {"public"}}.Encode()
	return u.String()
}

// Stream opens the public timeline stream.
func (s *MastodonSource) Stream(ctx context.Context) (EventStream, error) {
	token, err := s.tokens.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && isAuthStatus(retrieveErr.Response.StatusCode) {
			return nil, fmt.Errorf("%w: token request returned %d", shared.ErrRevokedCredentials, retrieveErr.Response.StatusCode)
		}
		return nil, fmt.Errorf("failed to obtain token: %w", err)
	}

	header := http.Header{}
	token.SetAuthHeader(&http.Request{Header: header})

	conn, resp, err := websocket.Dial(ctx, s.StreamURL(), &websocket.DialOptions{
		HTTPClient: s.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && isAuthStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: stream handshake returned %d", shared.ErrRevokedCredentials, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	conn.SetReadLimit(mastodonReadLimit)

	return &mastodonStream{conn: conn}, nil
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

type mastodonStream struct {
	conn *websocket.Conn
}

func (m *mastodonStream) Next(ctx context.Context) (models.Event, error) {
	for {
		typ, data, err := m.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return models.Event{}, ctx.Err()
			}
			return models.Event{}, fmt.Errorf("%w: %v", shared.ErrStreamClosed, err)
		}
		if typ != websocket.MessageText {
			continue
		}

		event, ok, err := DecodeStreamMessage(data)
		if err != nil {
			return models.Event{}, err
		}
		if ok {
			return event, nil
		}
	}
}

func (m *mastodonStream) Close() error {
	return m.conn.Close(websocket.StatusNormalClosure, "")
}

// DecodeStreamMessage converts a raw frame into an event. ok is false for event types that are not
// mirrored (notifications, edits, filters).
func DecodeStreamMessage(data []byte) (event models.Event, ok bool, err error) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.Event{}, false, fmt.Errorf("%w: %v", shared.ErrInvalidEvent, err)
	}

	switch msg.Event {
	case string(models.EventUpdate):
		var status models.Status
		if err := json.Unmarshal([]byte(msg.Payload), &status); err != nil {
			return models.Event{}, false, fmt.Errorf("%w: update payload: %v", shared.ErrInvalidEvent, err)
		}
		if status.ID == "" {
			return models.Event{}, false, fmt.Errorf("%w: update without status id", shared.ErrInvalidEvent)
		}
		return models.NewUpdateEvent(&status), true, nil
	case string(models.EventDelete):
		if msg.Payload == "" {
			return models.Event{}, false, fmt.Errorf("%w: delete without id", shared.ErrInvalidEvent)
		}
		return models.NewDeleteEvent(msg.Payload), true, nil
	default:
		return models.Event{}, false, nil
	}
}
