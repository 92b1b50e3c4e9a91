package app

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/casenotes/internal/core/actor"
	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/primary"
	"github.com/example/casenotes/internal/ports/secondary"
	"github.com/example/casenotes/internal/validation"
)

// AdminServiceImpl implements the AdminService and CaseNoteQueryService interfaces.
type AdminServiceImpl struct {
	tx         secondary.Transactor
	notes      secondary.CaseNoteRepository
	archive    secondary.CaseNoteArchive
	categories secondary.CategoryRegistry
	events     secondary.EventPublisher
	telemetry  secondary.Telemetry
	logger     *slog.Logger
}

// NewAdminService creates a new AdminService with injected dependencies.
func NewAdminService(
	tx secondary.Transactor,
	notes secondary.CaseNoteRepository,
	archive secondary.CaseNoteArchive,
	categories secondary.CategoryRegistry,
	events secondary.EventPublisher,
	telemetry secondary.Telemetry,
	logger *slog.Logger,
) *AdminServiceImpl {
	return &AdminServiceImpl{
		tx:         tx,
		notes:      notes,
		archive:    archive,
		categories: categories,
		events:     events,
		telemetry:  telemetry,
		logger:     logger,
	}
}

// Replace overwrites a note after archiving its prior state with cause UPDATE.
// id, legacyId, origin, createdAt and createdBy survive; amendments not
// referenced by the request are dropped.
func (s *AdminServiceImpl) Replace(ctx context.Context, by actor.Actor, noteID string, req primary.ReplaceRequest) (note *primary.CaseNote, err error) {
	ctx, span := startSpan(ctx, "casenotes.admin_replace", attribute.String("note_id", noteID))
	defer func() { endSpan(span, err) }()

	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	key := casenote.CategoryKey{Type: req.Type, SubType: req.SubType}
	known, err := checkCategories(ctx, s.categories, []casenote.CategoryKey{key}, false)
	if err != nil {
		return nil, err
	}
	if guard := casenote.CanUseCategory(casenote.CategoryUseContext{Category: known[key], Privileged: by.Privileged}); !guard.Allowed {
		return nil, guard.Error()
	}

	edits := make([]casenote.AmendmentEdit, 0, len(req.Amendments))
	for _, a := range req.Amendments {
		edits = append(edits, casenote.AmendmentEdit{ID: a.ID, Text: a.Text})
	}

	var replaced *secondary.CaseNoteRecord
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.notes.GetByID(ctx, noteID)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(existing.Amendments))
		for _, a := range existing.Amendments {
			ids = append(ids, a.ID)
		}
		texts, guard := casenote.PlanAmendmentReplace(ids, edits)
		if !guard.Allowed {
			return guard.Error()
		}

		if err := s.archive.Archive(ctx, archiveEntry(existing, casenote.CauseUpdate, by.Username, by.At, req.Reason)); err != nil {
			return err
		}

		stamp := casenote.Mutated(by)
		existing.Type = req.Type
		existing.SubType = req.SubType
		existing.Text = req.Text
		existing.OccurredAt = storeTime(req.OccurredAt)
		existing.LastModifiedAt = stamp.At
		existing.LastModifiedBy = stamp.By
		if err := s.notes.Update(ctx, existing); err != nil {
			return err
		}

		kept := make([]*secondary.AmendmentRecord, 0, len(texts))
		for _, a := range existing.Amendments {
			if text, ok := texts[a.ID]; ok {
				a.Text = text
				kept = append(kept, a)
			}
		}
		if err := s.notes.ReplaceAmendments(ctx, existing.ID, kept); err != nil {
			return err
		}
		existing.Amendments = kept

		if err := s.events.Publish(ctx, noteEvent(secondary.EventCaseNoteUpdated, existing, by)); err != nil {
			return err
		}
		replaced = existing
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "case note replace failed", noteID, err)
		return nil, err
	}

	s.telemetry.AdminMutation(string(casenote.CauseUpdate))
	s.logger.InfoContext(ctx, "case note replaced",
		"person", replaced.PersonIdentifier,
		"note_id", replaced.ID,
		"action", casenote.CauseUpdate,
		"source", by.Source,
		"by", by.Username,
	)
	return recordToCaseNote(replaced), nil
}

// Delete archives a note with cause DELETE and then removes it.
func (s *AdminServiceImpl) Delete(ctx context.Context, by actor.Actor, noteID string, req primary.DeleteRequest) (err error) {
	ctx, span := startSpan(ctx, "casenotes.admin_delete", attribute.String("note_id", noteID))
	defer func() { endSpan(span, err) }()

	if err := validation.Struct(&req); err != nil {
		return err
	}

	var person string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.notes.GetByID(ctx, noteID)
		if err != nil {
			return err
		}
		person = existing.PersonIdentifier

		if err := s.archive.Archive(ctx, archiveEntry(existing, casenote.CauseDelete, by.Username, by.At, req.Reason)); err != nil {
			return err
		}
		if err := s.notes.Delete(ctx, existing.ID); err != nil {
			return err
		}
		return s.events.Publish(ctx, noteEvent(secondary.EventCaseNoteDeleted, existing, by))
	})
	if err != nil {
		s.logFailure(ctx, "case note delete failed", noteID, err)
		return err
	}

	s.telemetry.AdminMutation(string(casenote.CauseDelete))
	s.logger.InfoContext(ctx, "case note deleted",
		"person", person,
		"note_id", noteID,
		"action", casenote.CauseDelete,
		"source", by.Source,
		"by", by.Username,
	)
	return nil
}

// GetCaseNote retrieves a note by id.
func (s *AdminServiceImpl) GetCaseNote(ctx context.Context, noteID string) (*primary.CaseNote, error) {
	record, err := s.notes.GetByID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	return recordToCaseNote(record), nil
}

// ListDeleted retrieves the archived snapshots of a note, newest first.
func (s *AdminServiceImpl) ListDeleted(ctx context.Context, noteID string) ([]*primary.DeletedCaseNote, error) {
	records, err := s.archive.ListByCaseNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	result := make([]*primary.DeletedCaseNote, 0, len(records))
	for _, r := range records {
		result = append(result, &primary.DeletedCaseNote{
			ID:        r.ID,
			Cause:     string(r.Cause),
			DeletedBy: r.DeletedBy,
			DeletedAt: r.DeletedAt,
			Reason:    r.Reason,
			Snapshot:  *recordToCaseNote(r.Snapshot),
		})
	}
	return result, nil
}

func (s *AdminServiceImpl) logFailure(ctx context.Context, msg, noteID string, err error) {
	level := slog.LevelWarn
	if errs.CodeOf(err) == errs.Internal {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, msg, "note_id", noteID, "code", errs.CodeOf(err), "error", err)
}

// Ensure AdminServiceImpl implements the interfaces
var (
	_ primary.AdminService         = (*AdminServiceImpl)(nil)
	_ primary.CaseNoteQueryService = (*AdminServiceImpl)(nil)
)
