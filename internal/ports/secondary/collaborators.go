package secondary

import (
	"context"
	"time"
)

// AlertsClient defines the secondary port for the external alerts service.
// Implementations own timeout and retry mechanics.
type AlertsClient interface {
	// Alerts returns every alert instance of the person that became active or
	// inactive in [from, to).
	Alerts(ctx context.Context, personIdentifier string, from, to time.Time) ([]*AlertRecord, error)
}

// AlertRecord is one alert instance as reported by the alerts service.
type AlertRecord struct {
	Type               string
	TypeDescription    string
	SubType            string
	SubTypeDescription string
	ActiveFrom         time.Time
	ActiveTo           *time.Time
	CreatedAt          time.Time
	CreatedBy          string
	MadeInactiveAt     *time.Time
	MadeInactiveBy     string
}

// AuthorDirectory defines the secondary port for author resolution.
type AuthorDirectory interface {
	// Resolve maps a username to author details. Unknown users yield NOT_FOUND.
	Resolve(ctx context.Context, username string) (*AuthorRecord, error)
}

// AuthorRecord holds the display details of an author.
type AuthorRecord struct {
	Username    string
	UserID      string
	DisplayName string
}

// Telemetry defines the secondary port for engine metrics and the
// per-invocation reconciliation record.
type Telemetry interface {
	SyncRecorded(action string)
	MigrationRecorded(kept, created, deleted int)
	NotesMoved(count int)
	AdminMutation(cause string)
	ReconciliationRecorded(ctx context.Context, report ReconciliationReport)
}

// ReconciliationReport summarises one reconciliation invocation.
type ReconciliationReport struct {
	PersonIdentifier string
	From             time.Time
	To               time.Time
	ActiveMissing    int
	InactiveMissing  int
	ActiveCreated    int
	InactiveCreated  int
}
