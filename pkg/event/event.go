package event

import (
	"time"

	"github.com/google/uuid"
)

// Item provenance values.
const (
	SourceParsed = "parsed"
	SourceManual = "manual"
)

// Event is the local mirror of one Google Calendar occurrence.
//
// Google is authoritative for title, description, times, attendees and the
// recurring series link; the local side owns checked state, archival and
// confirmations. An archived event is frozen: sync and user edits leave it
// untouched except for unarchiving.
type Event struct {
	ID               uuid.UUID
	GoogleEventID    string
	RecurringEventID string // empty for non-recurring events
	Title            string
	Description      string
	StartTime        time.Time
	EndTime          time.Time
	LastSynced       time.Time
	IsArchived       bool
}

// Item is one checklist entry owned by an Event. Its name is the identity
// key for reconciliation; IsChecked is purely local state.
type Item struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	Name      string
	IsChecked bool
	Source    string
}

// Attendee is fully remote-authoritative; every sync replaces the whole set.
type Attendee struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	Email          string
	DisplayName    string
	ResponseStatus string
}

// Confirmation is an append-only audit record created when every item of a
// non-archived event is checked. Sync never touches it.
type Confirmation struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	ConfirmedAt time.Time
	ConfirmedBy int
}
