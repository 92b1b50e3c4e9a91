package secondary

import (
	"context"
	"time"
)

// Domain event types.
const (
	EventCaseNoteCreated = "person.case-note.created"
	EventCaseNoteUpdated = "person.case-note.updated"
	EventCaseNoteDeleted = "person.case-note.deleted"
)

// CaseNoteEvent is a domain event keyed by note id. Delivery is at-least-once;
// consumers are idempotent on (Type, CaseNoteID).
type CaseNoteEvent struct {
	ID                       string
	Type                     string
	CaseNoteID               string
	PersonIdentifier         string
	PreviousPersonIdentifier string // set only when a note moved
	NoteType                 string
	NoteSubType              string
	Source                   string
	OccurredAt               time.Time
}

// EventPublisher defines the secondary port for emitting domain events.
// Implementations called inside a transaction must only make the events
// visible to consumers once the transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, events ...*CaseNoteEvent) error
}

// OutboxRepository defines the secondary port for draining published events.
type OutboxRepository interface {
	// Pending returns up to limit events neither published nor
	// dead-lettered, oldest first.
	Pending(ctx context.Context, limit int) ([]*OutboxEntry, error)

	// MarkPublished records successful delivery.
	MarkPublished(ctx context.Context, id string, at time.Time) error

	// MarkFailed records a failed delivery attempt.
	MarkFailed(ctx context.Context, id string, reason string) error

	// MarkDeadLettered records a final failed attempt and stops delivery
	// of the event.
	MarkDeadLettered(ctx context.Context, id string, reason string, at time.Time) error
}

// OutboxEntry is an event awaiting delivery.
type OutboxEntry struct {
	Event    *CaseNoteEvent
	Attempts int
}

// EventSink defines the secondary port for delivering one event downstream.
type EventSink interface {
	Send(ctx context.Context, event *CaseNoteEvent) error
}
