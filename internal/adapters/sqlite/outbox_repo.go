package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/casenotes/internal/db"
	"github.com/example/casenotes/internal/ports/secondary"
)

// OutboxRepository implements secondary.EventPublisher and
// secondary.OutboxRepository with a transactional outbox table. Publishing
// with a transactional context writes the events in that transaction, so
// they become visible to the dispatcher only once it commits.
type OutboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new SQLite outbox repository.
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Publish records events for later delivery.
func (r *OutboxRepository) Publish(ctx context.Context, events ...*secondary.CaseNoteEvent) error {
	q := conn(ctx, r.db)
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.Must(uuid.NewV7()).String()
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO case_note_events
				(id, event_type, case_note_id, person_identifier, previous_person_identifier,
				 type_code, sub_type_code, source, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Type, e.CaseNoteID, e.PersonIdentifier, e.PreviousPersonIdentifier,
			e.NoteType, e.NoteSubType, e.Source, db.FormatTime(e.OccurredAt),
		)
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}
	}
	return nil
}

// Pending returns up to limit undelivered, live events, oldest first.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]*secondary.OutboxEntry, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, event_type, case_note_id, person_identifier, previous_person_identifier,
			type_code, sub_type_code, source, occurred_at, attempts
		FROM case_note_events
		WHERE published_at IS NULL AND dead_lettered_at IS NULL
		ORDER BY occurred_at, id
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.OutboxEntry
	for rows.Next() {
		var (
			e          secondary.CaseNoteEvent
			occurredAt string
			attempts   int
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.CaseNoteID, &e.PersonIdentifier, &e.PreviousPersonIdentifier,
			&e.NoteType, &e.NoteSubType, &e.Source, &occurredAt, &attempts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.OccurredAt, err = db.ParseTime(occurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, &secondary.OutboxEntry{Event: &e, Attempts: attempts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return entries, nil
}

// MarkPublished records successful delivery.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		"UPDATE case_note_events SET published_at = ?, attempts = attempts + 1, last_error = '' WHERE id = ?",
		db.FormatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		"UPDATE case_note_events SET attempts = attempts + 1, last_error = ? WHERE id = ?",
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

// MarkDeadLettered records the final failed attempt. The event stays in the
// table for inspection but is never returned by Pending again.
func (r *OutboxRepository) MarkDeadLettered(ctx context.Context, id string, reason string, at time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		"UPDATE case_note_events SET dead_lettered_at = ?, attempts = attempts + 1, last_error = ? WHERE id = ?",
		db.FormatTime(at), reason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to dead-letter event: %w", err)
	}
	return nil
}

// Ensure OutboxRepository implements the interfaces
var (
	_ secondary.EventPublisher   = (*OutboxRepository)(nil)
	_ secondary.OutboxRepository = (*OutboxRepository)(nil)
)
