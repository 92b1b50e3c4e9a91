package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/db"
	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/secondary"
)

const noteColumns = `n.id, n.legacy_id, n.person_identifier, n.type_code, n.sub_type_code, n.occurred_at,
	n.location_code, n.author_username, n.author_id, n.author_name, n.text, n.system_generated, n.origin,
	n.created_at, n.created_by, n.last_modified_at, n.last_modified_by, n.version`

const amendmentColumns = `id, case_note_id, author_username, author_id, author_name, text, created_at, created_by`

// CaseNoteRepository implements secondary.CaseNoteRepository with SQLite.
type CaseNoteRepository struct {
	db *sql.DB
	tx *Transactor
}

// NewCaseNoteRepository creates a new SQLite case note repository.
func NewCaseNoteRepository(db *sql.DB) *CaseNoteRepository {
	return &CaseNoteRepository{db: db, tx: NewTransactor(db)}
}

// Create persists a new note with its amendments.
func (r *CaseNoteRepository) Create(ctx context.Context, note *secondary.CaseNoteRecord) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.db)

		if note.LegacyID == 0 && note.Origin == casenote.OriginDPS {
			next, err := nextLegacyID(ctx, q)
			if err != nil {
				return err
			}
			note.LegacyID = next
		}
		if note.Version == 0 {
			note.Version = 1
		}

		_, err := q.ExecContext(ctx,
			`INSERT INTO case_notes
				(id, legacy_id, person_identifier, type_code, sub_type_code, occurred_at, location_code,
				 author_username, author_id, author_name, text, system_generated, origin,
				 created_at, created_by, last_modified_at, last_modified_by, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			note.ID, nullInt64(note.LegacyID), note.PersonIdentifier, note.Type, note.SubType, db.FormatTime(note.OccurredAt),
			note.LocationCode, note.AuthorUsername, note.AuthorID, note.AuthorName, note.Text, note.SystemGenerated, string(note.Origin),
			db.FormatTime(note.CreatedAt), note.CreatedBy, db.NullTime(note.LastModifiedAt), nullString(note.LastModifiedBy), note.Version,
		)
		if isUniqueViolation(err) {
			return errs.Conflict("case note with legacy id %d already exists", note.LegacyID)
		}
		if err != nil {
			return fmt.Errorf("failed to create case note: %w", err)
		}

		return insertAmendments(ctx, q, note.ID, note.Amendments)
	})
}

// GetByID retrieves a note and its amendments.
func (r *CaseNoteRepository) GetByID(ctx context.Context, id string) (*secondary.CaseNoteRecord, error) {
	return r.getOne(ctx, "n.id = ?", id, fmt.Sprintf("case note %s not found", id))
}

// GetByLegacyID retrieves a note by its legacy id.
func (r *CaseNoteRepository) GetByLegacyID(ctx context.Context, legacyID int64) (*secondary.CaseNoteRecord, error) {
	return r.getOne(ctx, "n.legacy_id = ?", legacyID, fmt.Sprintf("case note with legacy id %d not found", legacyID))
}

func (r *CaseNoteRepository) getOne(ctx context.Context, where string, arg any, notFound string) (*secondary.CaseNoteRecord, error) {
	q := conn(ctx, r.db)

	row := q.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM case_notes n WHERE "+where, arg)
	record, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("%s", notFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case note: %w", err)
	}

	if err := loadAmendments(ctx, q, []*secondary.CaseNoteRecord{record}); err != nil {
		return nil, err
	}
	return record, nil
}

// Find retrieves notes matching the predicate, oldest occurrence first.
func (r *CaseNoteRepository) Find(ctx context.Context, pred secondary.Predicate) ([]*secondary.CaseNoteRecord, error) {
	where, args, err := compile(pred)
	if err != nil {
		return nil, err
	}

	q := conn(ctx, r.db)
	rows, err := q.QueryContext(ctx,
		"SELECT "+noteColumns+" FROM case_notes n WHERE "+where+" ORDER BY n.occurred_at, n.id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find case notes: %w", err)
	}
	defer rows.Close()

	var notes []*secondary.CaseNoteRecord
	for rows.Next() {
		record, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case note: %w", err)
		}
		notes = append(notes, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate case notes: %w", err)
	}

	if err := loadAmendments(ctx, q, notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// Update overwrites the scalar fields of a note. origin, createdAt and
// createdBy never change; an assigned legacy id is never replaced.
func (r *CaseNoteRepository) Update(ctx context.Context, note *secondary.CaseNoteRecord) error {
	q := conn(ctx, r.db)

	result, err := q.ExecContext(ctx,
		`UPDATE case_notes SET
			legacy_id = COALESCE(legacy_id, ?),
			person_identifier = ?, type_code = ?, sub_type_code = ?, occurred_at = ?, location_code = ?,
			author_username = ?, author_id = ?, author_name = ?, text = ?, system_generated = ?,
			last_modified_at = ?, last_modified_by = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		nullInt64(note.LegacyID),
		note.PersonIdentifier, note.Type, note.SubType, db.FormatTime(note.OccurredAt), note.LocationCode,
		note.AuthorUsername, note.AuthorID, note.AuthorName, note.Text, note.SystemGenerated,
		db.NullTime(note.LastModifiedAt), nullString(note.LastModifiedBy),
		note.ID, note.Version,
	)
	if isUniqueViolation(err) {
		return errs.Conflict("case note with legacy id %d already exists", note.LegacyID)
	}
	if err != nil {
		return fmt.Errorf("failed to update case note: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return r.missOrStale(ctx, q, note.ID)
	}

	note.Version++
	return nil
}

func (r *CaseNoteRepository) missOrStale(ctx context.Context, q querier, id string) error {
	var exists int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM case_notes WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check case note existence: %w", err)
	}
	if exists == 0 {
		return errs.NotFoundf("case note %s not found", id)
	}
	return errs.New(errs.ConcurrentModification, "case note %s was modified concurrently", id)
}

// Delete hard-deletes a note and its amendments.
func (r *CaseNoteRepository) Delete(ctx context.Context, id string) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.db)

		if _, err := q.ExecContext(ctx, "DELETE FROM case_note_amendments WHERE case_note_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete amendments: %w", err)
		}

		result, err := q.ExecContext(ctx, "DELETE FROM case_notes WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete case note: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return errs.NotFoundf("case note %s not found", id)
		}
		return nil
	})
}

// AddAmendments appends amendments to a note.
func (r *CaseNoteRepository) AddAmendments(ctx context.Context, noteID string, amendments []*secondary.AmendmentRecord) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		return insertAmendments(ctx, conn(ctx, r.db), noteID, amendments)
	})
}

// ReplaceAmendments replaces the full amendment set of a note.
func (r *CaseNoteRepository) ReplaceAmendments(ctx context.Context, noteID string, amendments []*secondary.AmendmentRecord) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		if _, err := q.ExecContext(ctx, "DELETE FROM case_note_amendments WHERE case_note_id = ?", noteID); err != nil {
			return fmt.Errorf("failed to clear amendments: %w", err)
		}
		return insertAmendments(ctx, q, noteID, amendments)
	})
}

func insertAmendments(ctx context.Context, q querier, noteID string, amendments []*secondary.AmendmentRecord) error {
	for _, a := range amendments {
		if a.ID == "" {
			a.ID = uuid.Must(uuid.NewV7()).String()
		}
		a.CaseNoteID = noteID

		_, err := q.ExecContext(ctx,
			"INSERT INTO case_note_amendments ("+amendmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			a.ID, noteID, a.AuthorUsername, a.AuthorID, a.AuthorName, a.Text, db.FormatTime(a.CreatedAt), a.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to create amendment: %w", err)
		}
	}
	return nil
}

// loadAmendments attaches amendments to notes, oldest first.
func loadAmendments(ctx context.Context, q querier, notes []*secondary.CaseNoteRecord) error {
	if len(notes) == 0 {
		return nil
	}

	byID := make(map[string]*secondary.CaseNoteRecord, len(notes))
	args := make([]any, 0, len(notes))
	for _, n := range notes {
		n.Amendments = []*secondary.AmendmentRecord{}
		byID[n.ID] = n
		args = append(args, n.ID)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT "+amendmentColumns+" FROM case_note_amendments WHERE case_note_id IN ("+placeholders(len(args))+") ORDER BY created_at, id",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to load amendments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a         secondary.AmendmentRecord
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.CaseNoteID, &a.AuthorUsername, &a.AuthorID, &a.AuthorName, &a.Text, &createdAt, &a.CreatedBy); err != nil {
			return fmt.Errorf("failed to scan amendment: %w", err)
		}
		if a.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return err
		}
		note := byID[a.CaseNoteID]
		note.Amendments = append(note.Amendments, &a)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*secondary.CaseNoteRecord, error) {
	var (
		record         secondary.CaseNoteRecord
		legacyID       sql.NullInt64
		origin         string
		occurredAt     string
		createdAt      string
		lastModifiedAt sql.NullString
		lastModifiedBy sql.NullString
	)

	err := s.Scan(&record.ID, &legacyID, &record.PersonIdentifier, &record.Type, &record.SubType, &occurredAt,
		&record.LocationCode, &record.AuthorUsername, &record.AuthorID, &record.AuthorName, &record.Text,
		&record.SystemGenerated, &origin, &createdAt, &record.CreatedBy, &lastModifiedAt, &lastModifiedBy, &record.Version)
	if err != nil {
		return nil, err
	}

	record.LegacyID = legacyID.Int64
	record.Origin = casenote.Origin(origin)
	record.LastModifiedBy = lastModifiedBy.String

	if record.OccurredAt, err = db.ParseTime(occurredAt); err != nil {
		return nil, err
	}
	if record.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if lastModifiedAt.Valid {
		if record.LastModifiedAt, err = db.ParseTime(lastModifiedAt.String); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

func nextLegacyID(ctx context.Context, q querier) (int64, error) {
	var next int64
	err := q.QueryRowContext(ctx,
		"UPDATE legacy_id_sequence SET next_value = next_value + 1 WHERE id = 1 RETURNING next_value - 1",
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate legacy id: %w", err)
	}
	return next, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Ensure CaseNoteRepository implements the interface
var _ secondary.CaseNoteRepository = (*CaseNoteRepository)(nil)
