package models

import "time"

// Destination names where a reviewed capture is committed.
type Destination string

const (
	DestinationTask        Destination = "task"
	DestinationInteraction Destination = "interaction"
	DestinationJournal     Destination = "journal"
)

// Contact is a person known to the user. Owned by the contacts collaborator.
type Contact struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

// Task is a scheduled to-do handed to the task collaborator.
type Task struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"-"`
	ContactID   string    `json:"contact_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Interaction is a note about contact with a person.
type Interaction struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	ContactID  string    `json:"contact_id"`
	Note       string    `json:"note"`
	OccurredOn time.Time `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
