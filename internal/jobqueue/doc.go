// package jobqueue is the durable work queue behind the poster.
//
// Jobs are rows in scheduled_posts. A job moves through
//
//	new -> running -> finished
//	running -> errored
//
// and is claimed by exactly one consumer at a time. On Postgres the claim uses
// `FOR UPDATE SKIP LOCKED` and consumers are woken by `LISTEN scheduled_posts_status_channel`;
// on SQLite the single writer connection serializes claims and consumers poll.
//
// Running jobs carry a claimed_at stamp so [Queue.RequeueStale] can hand abandoned jobs back
// to the queue once their lease expires.
package jobqueue
