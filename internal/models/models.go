// package models defines the data model for the mirror pipeline
package models

import (
	"fmt"
	"time"
)

// ChangeResult reports whether an idempotent write changed stored state.
//
// The zero value is [Unchanged].
type ChangeResult struct {
	ID string
}

// Unchanged is the result of a write that left stored state as it was.
var Unchanged = ChangeResult{}

// Changed returns a result for a write that inserted or modified the row with id.
func Changed(id string) ChangeResult {
	return ChangeResult{ID: id}
}

// Changed reports whether the write inserted or modified a row.
func (c ChangeResult) Changed() bool {
	return c.ID != ""
}

func (c ChangeResult) String() string {
	if c.Changed() {
		return fmt.Sprintf("changed(%s)", c.ID)
	}
	return "unchanged"
}

// Instance is an origin server identified by its base URL.
type Instance struct {
	ID          string
	URL         string
	Blacklisted bool
	CreatedAt   time.Time
}

// Keypair holds bech32-encoded target credentials.
type Keypair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"-"`
}

// Identity maps a source user, addressed by "<username>.<host>", to a target keypair.
//
// The keypair is minted on first sight and never rotated.
type Identity struct {
	ID             string
	InstanceID     string
	ExternalHandle string
	Keys           Keypair
}

// Profile is the target-side projection of a source account.
type Profile struct {
	ID          string `json:"id,omitempty"`
	InstanceID  string `json:"instance_id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Picture     string `json:"picture"`
	NIP05       string `json:"nip05"`
	Banner      string `json:"banner"`
}

// Source holds the credentials needed to stream from one instance.
type Source struct {
	ID           string
	InstanceURL  string
	ClientKey    string
	ClientSecret string
	RedirectURL  string
	Token        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks that the source can be connected to.
func (s Source) Validate() error {
	if s.InstanceURL == "" {
		return fmt.Errorf("source instance_url is required")
	}
	return nil
}
