// Package services defines the external platforms the pipeline talks to and implements them.
//
// # Sources
//
// A [Source] opens a stream of [models.Event] values. [MastodonSource] reads the public streaming
// API over a websocket, authenticating with a bearer token from [golang.org/x/oauth2]: either a
// stored access token or a client credentials grant when only the app key and secret are known.
//
// A 401 or 403 during the handshake is reported as [shared.ErrRevokedCredentials] so the listener
// can surface it instead of retrying silently.
//
// # Targets
//
// A [Target] publishes notes, profiles and deletions. [NostrTarget] signs events with the
// identity's key and sends them to every configured relay; a call succeeds when at least one relay
// accepts the event. Relay connections are cached and re-dialed after a failure.
//
// # Credentials
//
// [NostrIssuer] implements [CredentialIssuer] with freshly generated secp256k1 keys, encoded as
// npub/nsec.
package services
