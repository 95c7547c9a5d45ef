// Package tasks runs the mirror pipeline between a source platform and the target.
//
// # Pipeline
//
//  1. [Listener] : keeps one source stream open per instance
//     - Reconnects after a fixed backoff, capped by a restart limiter
//     - Fans decoded events out to subscribers through a bounded broadcaster
//     - Reports revoked credentials on [Listener.Errors] and state through [Listener.Health]
//
//  2. [Scheduler] : consumes a listener subscription
//     - Resolves the instance and identity of each update, minting keys on first sight
//     - Applies [Evaluate] and pushes eligible updates onto the job queue with a profile snapshot
//     - Executes deletes directly, restoring the published post when the remote delete fails
//
//  3. [Poster] : consumes the job queue
//     - Mirrors the profile snapshot when it changed, then publishes the note
//     - Records the published post and finishes the job, or marks it errored
//
//  4. [Sweeper] : requeues jobs whose claim outlived the lease
//
// # Eligibility
//
// Updates must be public and carry a URL. Blacklisted identities are always dropped; blacklisted
// instances are dropped or only flagged depending on the configured policy. Every rejection and
// flag is counted by reason.
//
// # Instrumentation
//
// [Instrument] wraps stores, the queue and the target so every call is timed by [metrics.Measure].
package tasks
