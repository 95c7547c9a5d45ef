package shared

import (
	"fmt"
	"net/url"
	"strings"
)

// InstanceURL reduces a status or profile URL to the base URL of the instance that serves it.
//
// The path, query and fragment are dropped: "https://mastodon.social/@alice/1?x=y" -> "https://mastodon.social/".
func InstanceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidInput, raw)
	}

	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}

// ExternalHandle builds the cross-platform handle for a user: "<username>.<host>".
func ExternalHandle(username string, instance *url.URL) string {
	return fmt.Sprintf("%s.%s", username, instance.Hostname())
}

// NormalizeInstanceURL returns raw reduced to its instance base URL, or raw unchanged when it cannot be parsed.
func NormalizeInstanceURL(raw string) string {
	u, err := InstanceURL(raw)
	if err != nil {
		return raw
	}
	return u.String()
}
