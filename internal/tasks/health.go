package tasks

import (
	"encoding/json"
	"time"
)

// State is the supervisor state of a [Listener].
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Healthy reports whether the listener is running normally or recovering from a transient error.
func (s State) Healthy() bool {
	switch s {
	case StateConnecting, StateStreaming, StateBackoff:
		return true
	}
	return false
}

// Health is a snapshot of a [Listener].
type Health struct {
	Source    string    `json:"source"`
	State     State     `json:"state"`
	Restarts  int       `json:"restarts"`
	LastError string    `json:"last_error,omitempty"`
	LastEvent time.Time `json:"last_event,omitzero"`
}
