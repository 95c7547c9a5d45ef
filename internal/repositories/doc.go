// Package repositories implements relational persistence for all domain entities.
//
// Every repository wraps a [shared.Database] and writes queries with `?` placeholders, rebound to `$n`
// when the connection is Postgres. Natural keys are enforced by unique constraints and conflicts are
// resolved in SQL (ON CONFLICT), so concurrent callers never need application locks.
//
// Key Implementations:
//   - [InstanceRepository] : fetch-or-create origin instances, operator blacklist flag
//   - [IdentityRepository] : fetch-or-create identities with a keypair minted once by a [CredentialIssuer]
//   - [ProfileRepository] : profile upsert reporting Changed only when a field differs
//   - [PublishedPostRepository] : idempotent publish records and the posted -> deleted flip
//   - [SourceRepository] : stream credentials per instance
package repositories
