// Package app contains the application services implementing the case note
// engines: sync, migration, move, admin mutation and reconciliation.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/casenotes/internal/core/actor"
	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/ports/primary"
	"github.com/example/casenotes/internal/ports/secondary"
)

var tracer = otel.Tracer("github.com/example/casenotes/internal/app")

// startSpan opens a span for one engine operation.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// storeTime normalises t to the precision and zone the store keeps.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// checkCategories resolves keys against the registry and applies the
// category guard.
func checkCategories(ctx context.Context, registry secondary.CategoryRegistry, keys []casenote.CategoryKey, requireSync bool) (map[casenote.CategoryKey]casenote.CategoryInfo, error) {
	found, err := registry.Find(ctx, keys)
	if err != nil {
		return nil, err
	}

	known := make(map[casenote.CategoryKey]casenote.CategoryInfo, len(found))
	for k, c := range found {
		known[k] = c.Info()
	}

	if result := casenote.CheckCategories(keys, known, requireSync); !result.Allowed {
		return nil, result.Error()
	}
	return known, nil
}

// archiveEntry builds the audit snapshot of note taken before a destructive
// mutation.
func archiveEntry(note *secondary.CaseNoteRecord, cause casenote.Cause, deletedBy string, at time.Time, reason string) *secondary.DeletedCaseNoteRecord {
	return &secondary.DeletedCaseNoteRecord{
		ID:               newID(),
		CaseNoteID:       note.ID,
		LegacyID:         note.LegacyID,
		PersonIdentifier: note.PersonIdentifier,
		Cause:            cause,
		Origin:           note.Origin,
		DeletedBy:        deletedBy,
		DeletedAt:        storeTime(at),
		Reason:           reason,
		Snapshot:         note.Clone(),
	}
}

// noteEvent builds a domain event for note.
func noteEvent(eventType string, note *secondary.CaseNoteRecord, by actor.Actor) *secondary.CaseNoteEvent {
	return &secondary.CaseNoteEvent{
		ID:               newID(),
		Type:             eventType,
		CaseNoteID:       note.ID,
		PersonIdentifier: note.PersonIdentifier,
		NoteType:         note.Type,
		NoteSubType:      note.SubType,
		Source:           string(by.Source),
		OccurredAt:       storeTime(by.At),
	}
}

func amendmentRecords(reqs []primary.AmendmentRequest) []*secondary.AmendmentRecord {
	records := make([]*secondary.AmendmentRecord, 0, len(reqs))
	for _, a := range reqs {
		records = append(records, &secondary.AmendmentRecord{
			ID:             newID(),
			AuthorUsername: a.Author.Username,
			AuthorID:       a.Author.UserID,
			AuthorName:     a.Author.DisplayName,
			Text:           a.Text,
			CreatedAt:      storeTime(a.CreatedAt),
			CreatedBy:      a.CreatedBy,
		})
	}
	return records
}

func recordToCaseNote(r *secondary.CaseNoteRecord) *primary.CaseNote {
	note := &primary.CaseNote{
		ID:               r.ID,
		LegacyID:         r.LegacyID,
		PersonIdentifier: r.PersonIdentifier,
		Type:             r.Type,
		SubType:          r.SubType,
		OccurredAt:       r.OccurredAt,
		LocationCode:     r.LocationCode,
		Author: primary.Author{
			Username:    r.AuthorUsername,
			UserID:      r.AuthorID,
			DisplayName: r.AuthorName,
		},
		Text:            r.Text,
		SystemGenerated: r.SystemGenerated,
		Origin:          string(r.Origin),
		CreatedAt:       r.CreatedAt,
		CreatedBy:       r.CreatedBy,
		LastModifiedBy:  r.LastModifiedBy,
		Amendments:      make([]primary.Amendment, 0, len(r.Amendments)),
	}
	if !r.LastModifiedAt.IsZero() {
		t := r.LastModifiedAt
		note.LastModifiedAt = &t
	}
	for _, a := range r.Amendments {
		note.Amendments = append(note.Amendments, primary.Amendment{
			ID: a.ID,
			Author: primary.Author{
				Username:    a.AuthorUsername,
				UserID:      a.AuthorID,
				DisplayName: a.AuthorName,
			},
			Text:      a.Text,
			CreatedAt: a.CreatedAt,
			CreatedBy: a.CreatedBy,
		})
	}
	return note
}
