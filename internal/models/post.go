package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a [ScheduledPost].
//
//	new -> running -> finished
//	running -> errored
//	running | errored -> new (requeue)
type JobStatus string

const (
	JobNew      JobStatus = "new"
	JobRunning  JobStatus = "running"
	JobFinished JobStatus = "finished"
	JobErrored  JobStatus = "errored"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobNew, JobRunning, JobFinished, JobErrored:
		return true
	}
	return false
}

// ParseJobStatus converts s into a [JobStatus].
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return status, nil
}

// ScheduledPost is a queued publish job. It carries a snapshot of the author's profile taken when the
// update was received so the poster never has to call back into the source.
type ScheduledPost struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	InstanceID     string    `json:"instance_id"`
	ExternalPostID string    `json:"external_post_id"`
	Content        string    `json:"content"`
	InReplyTo      string    `json:"in_reply_to,omitempty"`
	Status         JobStatus `json:"status"`
	Profile        Profile   `json:"profile"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	ClaimedAt      time.Time `json:"claimed_at,omitzero"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileSnapshot returns the job's profile bound to its identity and instance.
func (p ScheduledPost) ProfileSnapshot() Profile {
	profile := p.Profile
	profile.UserID = p.UserID
	profile.InstanceID = p.InstanceID
	return profile
}

// PostStatus is the state of a [PublishedPost].
type PostStatus string

const (
	PostPosted  PostStatus = "posted"
	PostDeleted PostStatus = "deleted"
)

// PublishedPost links a source post to the target event created for it.
type PublishedPost struct {
	ID             string
	InstanceID     string
	UserID         string
	ExternalPostID string
	TargetID       string
	Status         PostStatus
}

// JobStats counts jobs per status.
type JobStats map[JobStatus]int

// Total returns the number of jobs across all statuses.
func (s JobStats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}
