// Package primary defines the primary ports (driving adapters) for the application.
// Each engine is one interface; request and response types live alongside.
package primary

import (
	"context"
	"time"

	"github.com/example/casenotes/internal/core/actor"
)

// SyncService defines the primary port for legacy-driven upserts.
type SyncService interface {
	// Sync upserts one note mirrored from the legacy system.
	Sync(ctx context.Context, by actor.Actor, req SyncRequest) (*SyncResult, error)

	// SyncAll upserts a batch. Every record is validated before any write;
	// each record is then applied in its own transaction and reported
	// individually.
	SyncAll(ctx context.Context, by actor.Actor, reqs []SyncRequest) ([]SyncResult, error)
}

// MigrationService defines the primary port for bulk-replacing a person's
// legacy-origin notes.
type MigrationService interface {
	Migrate(ctx context.Context, by actor.Actor, personIdentifier string, reqs []MigrationRequest) ([]MigrationResult, error)
}

// MoveService defines the primary port for re-parenting notes between persons.
type MoveService interface {
	Move(ctx context.Context, by actor.Actor, req MoveRequest) (*MoveResult, error)
}

// AdminService defines the primary port for audited administrative mutations.
type AdminService interface {
	// Replace overwrites a note's category, text, occurrence time and
	// amendment texts after archiving its prior state.
	Replace(ctx context.Context, by actor.Actor, noteID string, req ReplaceRequest) (*CaseNote, error)

	// Delete archives and then removes a note.
	Delete(ctx context.Context, by actor.Actor, noteID string, req DeleteRequest) error
}

// ReconciliationService defines the primary port for alert reconciliation.
type ReconciliationService interface {
	// Reconcile creates the synthetic alert notes missing for the person in
	// the half-open date range [from, to).
	Reconcile(ctx context.Context, personIdentifier string, from, to time.Time) (*ReconciliationSummary, error)
}

// CaseNoteQueryService defines the primary port for read access.
type CaseNoteQueryService interface {
	// GetCaseNote retrieves a note by id.
	GetCaseNote(ctx context.Context, noteID string) (*CaseNote, error)

	// ListDeleted retrieves the archived snapshots of a note, newest first.
	ListDeleted(ctx context.Context, noteID string) ([]*DeletedCaseNote, error)
}

// Author identifies who wrote a note or amendment.
type Author struct {
	Username    string `json:"username" validate:"required,max=64"`
	UserID      string `json:"userId" validate:"required,max=64"`
	DisplayName string `json:"displayName" validate:"required,max=80"`
}

// AmendmentRequest is an amendment as supplied by the legacy system.
type AmendmentRequest struct {
	Author    Author    `json:"author" validate:"required"`
	Text      string    `json:"text" validate:"required"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
	CreatedBy string    `json:"createdBy" validate:"required,max=64"`
}

// SyncRequest is one note mirrored from the legacy system. It names the note
// by id, by legacy id, or both.
type SyncRequest struct {
	ID               string             `json:"id,omitempty" validate:"omitempty,uuid"`
	LegacyID         int64              `json:"legacyId,omitempty" validate:"required_without=ID,omitempty,gt=0"`
	PersonIdentifier string             `json:"personIdentifier" validate:"required,max=12"`
	LocationCode     string             `json:"locationCode" validate:"max=12"`
	Type             string             `json:"type" validate:"required,max=12"`
	SubType          string             `json:"subType" validate:"required,max=12"`
	OccurredAt       time.Time          `json:"occurredAt" validate:"required"`
	Text             string             `json:"text" validate:"required"`
	SystemGenerated  bool               `json:"systemGenerated"`
	Author           Author             `json:"author" validate:"required"`
	CreatedAt        time.Time          `json:"createdAt" validate:"required"`
	CreatedBy        string             `json:"createdBy" validate:"required,max=64"`
	Amendments       []AmendmentRequest `json:"amendments" validate:"dive"`
}

// SyncAction says what a sync did to the store.
type SyncAction string

const (
	SyncCreated SyncAction = "CREATED"
	SyncUpdated SyncAction = "UPDATED"
)

// SyncResult reports the outcome of one sync record.
type SyncResult struct {
	ID       string     `json:"id,omitempty"`
	LegacyID int64      `json:"legacyId"`
	Action   SyncAction `json:"action,omitempty"`
	Err      error      `json:"-"`
}

// MigrationRequest is one legacy note in a migration batch. The owning person
// is given once for the whole batch.
type MigrationRequest struct {
	LegacyID        int64              `json:"legacyId" validate:"required,gt=0"`
	LocationCode    string             `json:"locationCode" validate:"max=12"`
	Type            string             `json:"type" validate:"required,max=12"`
	SubType         string             `json:"subType" validate:"required,max=12"`
	OccurredAt      time.Time          `json:"occurredAt" validate:"required"`
	Text            string             `json:"text" validate:"required"`
	SystemGenerated bool               `json:"systemGenerated"`
	Author          Author             `json:"author" validate:"required"`
	CreatedAt       time.Time          `json:"createdAt" validate:"required"`
	CreatedBy       string             `json:"createdBy" validate:"required,max=64"`
	Amendments      []AmendmentRequest `json:"amendments" validate:"dive"`
}

// MigrationResult maps a legacy id to the store id holding it.
type MigrationResult struct {
	LegacyID int64  `json:"legacyId"`
	ID       string `json:"id"`
}

// MoveRequest moves the listed notes from one person to another.
type MoveRequest struct {
	From    string   `json:"fromPersonIdentifier" validate:"required,max=12"`
	To      string   `json:"toPersonIdentifier" validate:"required,max=12,nefield=From"`
	NoteIDs []string `json:"caseNoteIds" validate:"required,min=1,dive,uuid"`
}

// MoveResult reports which notes moved and which were already in place.
type MoveResult struct {
	Moved   []string `json:"moved"`
	Skipped []string `json:"skipped"`
}

// AmendmentEdit replaces the text of an existing amendment.
type AmendmentEdit struct {
	ID   string `json:"id" validate:"required,uuid"`
	Text string `json:"text" validate:"required"`
}

// ReplaceRequest is an administrative overwrite of a note.
type ReplaceRequest struct {
	Type       string          `json:"type" validate:"required,max=12"`
	SubType    string          `json:"subType" validate:"required,max=12"`
	Text       string          `json:"text" validate:"required"`
	OccurredAt time.Time       `json:"occurredAt" validate:"required"`
	Amendments []AmendmentEdit `json:"amendments" validate:"dive"`
	Reason     string          `json:"reason" validate:"required,max=255"`
}

// DeleteRequest is an administrative removal of a note.
type DeleteRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// ReconciliationSummary reports the missing and created synthetic notes.
type ReconciliationSummary struct {
	PersonIdentifier string    `json:"personIdentifier"`
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	ActiveMissing    int       `json:"activeMissing"`
	InactiveMissing  int       `json:"inactiveMissing"`
	ActiveCreated    int       `json:"activeCreated"`
	InactiveCreated  int       `json:"inactiveCreated"`
}

// CaseNote represents a case note at the port boundary.
type CaseNote struct {
	ID               string      `json:"id"`
	LegacyID         int64       `json:"legacyId,omitempty"`
	PersonIdentifier string      `json:"personIdentifier"`
	Type             string      `json:"type"`
	SubType          string      `json:"subType"`
	OccurredAt       time.Time   `json:"occurredAt"`
	LocationCode     string      `json:"locationCode,omitempty"`
	Author           Author      `json:"author"`
	Text             string      `json:"text"`
	SystemGenerated  bool        `json:"systemGenerated"`
	Origin           string      `json:"origin"`
	CreatedAt        time.Time   `json:"createdAt"`
	CreatedBy        string      `json:"createdBy"`
	LastModifiedAt   *time.Time  `json:"lastModifiedAt,omitempty"`
	LastModifiedBy   string      `json:"lastModifiedBy,omitempty"`
	Amendments       []Amendment `json:"amendments"`
}

// Amendment represents an amendment at the port boundary.
type Amendment struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

// DeletedCaseNote represents an archived snapshot at the port boundary.
type DeletedCaseNote struct {
	ID        string    `json:"id"`
	Cause     string    `json:"cause"`
	DeletedBy string    `json:"deletedBy"`
	DeletedAt time.Time `json:"deletedAt"`
	Reason    string    `json:"reason,omitempty"`
	Snapshot  CaseNote  `json:"snapshot"`
}
