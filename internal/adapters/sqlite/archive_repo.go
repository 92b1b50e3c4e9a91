package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/db"
	"github.com/example/casenotes/internal/ports/secondary"
)

// ArchiveRepository implements secondary.CaseNoteArchive with SQLite.
// Snapshots are stored as JSON so the archive outlives live-table schema changes.
type ArchiveRepository struct {
	db *sql.DB
}

// NewArchiveRepository creates a new SQLite archive repository.
func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Archive appends a pre-mutation snapshot.
func (r *ArchiveRepository) Archive(ctx context.Context, deleted *secondary.DeletedCaseNoteRecord) error {
	if deleted.Snapshot == nil {
		return fmt.Errorf("failed to archive case note %s: snapshot is required", deleted.CaseNoteID)
	}
	if deleted.ID == "" {
		deleted.ID = uuid.Must(uuid.NewV7()).String()
	}

	payload, err := json.Marshal(toSnapshot(deleted.Snapshot))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO deleted_case_notes
			(id, case_note_id, legacy_id, person_identifier, cause, origin, deleted_by, deleted_at, reason, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		deleted.ID, deleted.CaseNoteID, nullInt64(deleted.LegacyID), deleted.PersonIdentifier, string(deleted.Cause),
		string(deleted.Origin), deleted.DeletedBy, db.FormatTime(deleted.DeletedAt), deleted.Reason, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to archive case note: %w", err)
	}
	return nil
}

// ListByCaseNote retrieves snapshots of a note, newest first.
func (r *ArchiveRepository) ListByCaseNote(ctx context.Context, caseNoteID string) ([]*secondary.DeletedCaseNoteRecord, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, case_note_id, legacy_id, person_identifier, cause, origin, deleted_by, deleted_at, reason, snapshot
		FROM deleted_case_notes WHERE case_note_id = ? ORDER BY deleted_at DESC, id DESC`,
		caseNoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived case notes: %w", err)
	}
	defer rows.Close()

	var records []*secondary.DeletedCaseNoteRecord
	for rows.Next() {
		var (
			record    secondary.DeletedCaseNoteRecord
			legacyID  sql.NullInt64
			cause     string
			origin    string
			deletedAt string
			payload   string
		)
		if err := rows.Scan(&record.ID, &record.CaseNoteID, &legacyID, &record.PersonIdentifier, &cause, &origin,
			&record.DeletedBy, &deletedAt, &record.Reason, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan archived case note: %w", err)
		}

		record.LegacyID = legacyID.Int64
		record.Cause = casenote.Cause(cause)
		record.Origin = casenote.Origin(origin)
		if record.DeletedAt, err = db.ParseTime(deletedAt); err != nil {
			return nil, err
		}

		var snap snapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", record.ID, err)
		}
		record.Snapshot = snap.record()

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archived case notes: %w", err)
	}
	return records, nil
}

// snapshot is the archived JSON form of a note.
type snapshot struct {
	ID               string              `json:"id"`
	LegacyID         int64               `json:"legacyId,omitempty"`
	PersonIdentifier string              `json:"personIdentifier"`
	Type             string              `json:"type"`
	SubType          string              `json:"subType"`
	OccurredAt       time.Time           `json:"occurredAt"`
	LocationCode     string              `json:"locationCode"`
	AuthorUsername   string              `json:"authorUsername"`
	AuthorID         string              `json:"authorId"`
	AuthorName       string              `json:"authorName"`
	Text             string              `json:"text"`
	SystemGenerated  bool                `json:"systemGenerated"`
	Origin           string              `json:"origin"`
	CreatedAt        time.Time           `json:"createdAt"`
	CreatedBy        string              `json:"createdBy"`
	LastModifiedAt   *time.Time          `json:"lastModifiedAt,omitempty"`
	LastModifiedBy   string              `json:"lastModifiedBy,omitempty"`
	Version          int64               `json:"version"`
	Amendments       []snapshotAmendment `json:"amendments"`
}

type snapshotAmendment struct {
	ID             string    `json:"id"`
	AuthorUsername string    `json:"authorUsername"`
	AuthorID       string    `json:"authorId"`
	AuthorName     string    `json:"authorName"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
	CreatedBy      string    `json:"createdBy"`
}

func toSnapshot(n *secondary.CaseNoteRecord) snapshot {
	s := snapshot{
		ID:               n.ID,
		LegacyID:         n.LegacyID,
		PersonIdentifier: n.PersonIdentifier,
		Type:             n.Type,
		SubType:          n.SubType,
		OccurredAt:       n.OccurredAt.UTC(),
		LocationCode:     n.LocationCode,
		AuthorUsername:   n.AuthorUsername,
		AuthorID:         n.AuthorID,
		AuthorName:       n.AuthorName,
		Text:             n.Text,
		SystemGenerated:  n.SystemGenerated,
		Origin:           string(n.Origin),
		CreatedAt:        n.CreatedAt.UTC(),
		CreatedBy:        n.CreatedBy,
		LastModifiedBy:   n.LastModifiedBy,
		Version:          n.Version,
		Amendments:       make([]snapshotAmendment, 0, len(n.Amendments)),
	}
	if !n.LastModifiedAt.IsZero() {
		t := n.LastModifiedAt.UTC()
		s.LastModifiedAt = &t
	}
	for _, a := range n.Amendments {
		s.Amendments = append(s.Amendments, snapshotAmendment{
			ID:             a.ID,
			AuthorUsername: a.AuthorUsername,
			AuthorID:       a.AuthorID,
			AuthorName:     a.AuthorName,
			Text:           a.Text,
			CreatedAt:      a.CreatedAt.UTC(),
			CreatedBy:      a.CreatedBy,
		})
	}
	return s
}

func (s snapshot) record() *secondary.CaseNoteRecord {
	n := &secondary.CaseNoteRecord{
		ID:               s.ID,
		LegacyID:         s.LegacyID,
		PersonIdentifier: s.PersonIdentifier,
		Type:             s.Type,
		SubType:          s.SubType,
		OccurredAt:       s.OccurredAt.UTC(),
		LocationCode:     s.LocationCode,
		AuthorUsername:   s.AuthorUsername,
		AuthorID:         s.AuthorID,
		AuthorName:       s.AuthorName,
		Text:             s.Text,
		SystemGenerated:  s.SystemGenerated,
		Origin:           casenote.Origin(s.Origin),
		CreatedAt:        s.CreatedAt.UTC(),
		CreatedBy:        s.CreatedBy,
		LastModifiedBy:   s.LastModifiedBy,
		Version:          s.Version,
		Amendments:       make([]*secondary.AmendmentRecord, 0, len(s.Amendments)),
	}
	if s.LastModifiedAt != nil {
		n.LastModifiedAt = s.LastModifiedAt.UTC()
	}
	for _, a := range s.Amendments {
		n.Amendments = append(n.Amendments, &secondary.AmendmentRecord{
			ID:             a.ID,
			CaseNoteID:     s.ID,
			AuthorUsername: a.AuthorUsername,
			AuthorID:       a.AuthorID,
			AuthorName:     a.AuthorName,
			Text:           a.Text,
			CreatedAt:      a.CreatedAt.UTC(),
			CreatedBy:      a.CreatedBy,
		})
	}
	return n
}

// Ensure ArchiveRepository implements the interface
var _ secondary.CaseNoteArchive = (*ArchiveRepository)(nil)
