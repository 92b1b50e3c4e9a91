// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the engines drive storage, events and
// external collaborators.
package secondary

import (
	"context"
	"time"

	"github.com/example/casenotes/internal/core/casenote"
)

// Transactor runs work inside a single store transaction. Repositories called
// with the context passed to fn take part in the transaction; nested calls
// join the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CaseNoteRepository defines the secondary port for case note persistence.
type CaseNoteRepository interface {
	// Create persists a new note with its amendments. A DPS-origin note
	// without a legacy id is given the next value of the legacy id sequence.
	Create(ctx context.Context, note *CaseNoteRecord) error

	// GetByID retrieves a note and its amendments. Missing notes yield NOT_FOUND.
	GetByID(ctx context.Context, id string) (*CaseNoteRecord, error)

	// GetByLegacyID retrieves a note by its legacy id. Missing notes yield NOT_FOUND.
	GetByLegacyID(ctx context.Context, legacyID int64) (*CaseNoteRecord, error)

	// Find retrieves notes matching the predicate, oldest occurrence first.
	Find(ctx context.Context, pred Predicate) ([]*CaseNoteRecord, error)

	// Update overwrites the scalar fields of a note. The write succeeds only if
	// the stored version equals note.Version; on success note.Version is bumped.
	Update(ctx context.Context, note *CaseNoteRecord) error

	// Delete hard-deletes a note and its amendments.
	Delete(ctx context.Context, id string) error

	// AddAmendments appends amendments to a note.
	AddAmendments(ctx context.Context, noteID string, amendments []*AmendmentRecord) error

	// ReplaceAmendments replaces the full amendment set of a note.
	ReplaceAmendments(ctx context.Context, noteID string, amendments []*AmendmentRecord) error
}

// CaseNoteRecord represents a case note as stored in persistence.
type CaseNoteRecord struct {
	ID               string
	LegacyID         int64 // 0 means none
	PersonIdentifier string
	Type             string
	SubType          string
	OccurredAt       time.Time
	LocationCode     string
	AuthorUsername   string
	AuthorID         string
	AuthorName       string
	Text             string
	SystemGenerated  bool
	Origin           casenote.Origin
	CreatedAt        time.Time
	CreatedBy        string
	LastModifiedAt   time.Time // zero means never modified
	LastModifiedBy   string
	Version          int64
	Amendments       []*AmendmentRecord // ordered by CreatedAt, oldest first
}

// Category returns the category key of the note.
func (r *CaseNoteRecord) Category() casenote.CategoryKey {
	return casenote.CategoryKey{Type: r.Type, SubType: r.SubType}
}

// Clone returns a deep copy, used to snapshot a note before mutation.
func (r *CaseNoteRecord) Clone() *CaseNoteRecord {
	cp := *r
	cp.Amendments = make([]*AmendmentRecord, len(r.Amendments))
	for i, a := range r.Amendments {
		ac := *a
		cp.Amendments[i] = &ac
	}
	return &cp
}

// AmendmentRecord represents an amendment as stored in persistence.
type AmendmentRecord struct {
	ID             string
	CaseNoteID     string
	AuthorUsername string
	AuthorID       string
	AuthorName     string
	Text           string
	CreatedAt      time.Time
	CreatedBy      string
}

// CaseNoteArchive defines the secondary port for the append-only audit archive.
type CaseNoteArchive interface {
	// Archive appends a pre-mutation snapshot.
	Archive(ctx context.Context, deleted *DeletedCaseNoteRecord) error

	// ListByCaseNote retrieves snapshots of a note, newest first.
	ListByCaseNote(ctx context.Context, caseNoteID string) ([]*DeletedCaseNoteRecord, error)
}

// DeletedCaseNoteRecord is an immutable snapshot of a note taken immediately
// before a destructive mutation.
type DeletedCaseNoteRecord struct {
	ID               string
	CaseNoteID       string
	LegacyID         int64
	PersonIdentifier string
	Cause            casenote.Cause
	Origin           casenote.Origin
	DeletedBy        string
	DeletedAt        time.Time
	Reason           string
	Snapshot         *CaseNoteRecord
}

// CategoryRegistry defines the secondary port for category reference data.
type CategoryRegistry interface {
	// Find resolves the given keys. Keys with no matching active category are
	// absent from the result.
	Find(ctx context.Context, keys []casenote.CategoryKey) (map[casenote.CategoryKey]*CategoryRecord, error)
}

// CategoryRecord represents a case note sub-type with its parent type.
type CategoryRecord struct {
	Type               string
	TypeDescription    string
	SubType            string
	SubTypeDescription string
	SyncToLegacy       bool
	RestrictedUse      bool
	Sensitive          bool
}

// Info returns the guard view of the category.
func (c *CategoryRecord) Info() casenote.CategoryInfo {
	return casenote.CategoryInfo{
		Key:           casenote.CategoryKey{Type: c.Type, SubType: c.SubType},
		SyncToLegacy:  c.SyncToLegacy,
		RestrictedUse: c.RestrictedUse,
		Sensitive:     c.Sensitive,
	}
}
