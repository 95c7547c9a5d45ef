package models

import "fmt"

// EventKind distinguishes stream events.
type EventKind string

const (
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is one decoded item from a source stream.
//
// Update events carry a Status; delete events carry only the deleted status id.
type Event struct {
	Kind     EventKind
	Status   *Status
	DeleteID string
}

// NewUpdateEvent wraps status in an update event.
func NewUpdateEvent(status *Status) Event {
	return Event{Kind: EventUpdate, Status: status}
}

// NewDeleteEvent builds a delete event for the status with id.
func NewDeleteEvent(id string) Event {
	return Event{Kind: EventDelete, DeleteID: id}
}

func (e Event) String() string {
	switch e.Kind {
	case EventUpdate:
		if e.Status != nil {
			return fmt.Sprintf("update(%s)", e.Status.ID)
		}
	case EventDelete:
		return fmt.Sprintf("delete(%s)", e.DeleteID)
	}
	return string(e.Kind)
}

// Visibility is the audience of a status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Status is a post as delivered by the source stream.
type Status struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	URI         string     `json:"uri"`
	Content     string     `json:"content"`
	Visibility  Visibility `json:"visibility"`
	InReplyToID string     `json:"in_reply_to_id"`
	Account     Account    `json:"account"`
}

// Account is the author of a [Status].
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Note        string `json:"note"`
	Avatar      string `json:"avatar"`
	Header      string `json:"header"`
	URL         string `json:"url"`
}
