// Package models defines the domain entities shared by the listener, the job queue and the poster.
//
// The package contains two categories of types:
//
// 1. Stream payloads: decoded events from the source platform
//   - [Event] : an update (new or edited status) or a delete (status id)
//   - [Status] : a public post with its author [Account] and [Visibility]
//
// 2. Persistent entities: rows owned by the relational store
//   - [Instance] : an origin server, optionally blacklisted
//   - [Identity] : a source user mapped to a target keypair
//   - [Profile] : the last mirrored profile of an identity
//   - [ScheduledPost] : a queued unit of publish work with a profile snapshot
//   - [PublishedPost] : the link between a source post and the target event
//   - [Source] : stream credentials for one instance
//
// Idempotent writes report their outcome as a [ChangeResult].
package models
