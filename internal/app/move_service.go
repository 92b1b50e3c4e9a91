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

// MoveServiceImpl implements the MoveService interface.
type MoveServiceImpl struct {
	tx        secondary.Transactor
	notes     secondary.CaseNoteRepository
	archive   secondary.CaseNoteArchive
	events    secondary.EventPublisher
	telemetry secondary.Telemetry
	logger    *slog.Logger
}

// NewMoveService creates a new MoveService with injected dependencies.
func NewMoveService(
	tx secondary.Transactor,
	notes secondary.CaseNoteRepository,
	archive secondary.CaseNoteArchive,
	events secondary.EventPublisher,
	telemetry secondary.Telemetry,
	logger *slog.Logger,
) *MoveServiceImpl {
	return &MoveServiceImpl{
		tx:        tx,
		notes:     notes,
		archive:   archive,
		events:    events,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Move re-parents the named notes from req.From to req.To. Each moved note
// is archived with cause MOVE first. Unknown ids and notes already under
// req.To are skipped; a note under any third person aborts the whole move.
func (s *MoveServiceImpl) Move(ctx context.Context, by actor.Actor, req primary.MoveRequest) (result *primary.MoveResult, err error) {
	ctx, span := startSpan(ctx, "casenotes.move",
		attribute.String("from", req.From),
		attribute.String("to", req.To),
		attribute.Int("notes", len(req.NoteIDs)),
	)
	defer func() { endSpan(span, err) }()

	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	system := actor.System(by.At)
	result = &primary.MoveResult{Moved: []string{}, Skipped: []string{}}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.notes.Find(ctx, secondary.IDIn{IDs: req.NoteIDs})
		if err != nil {
			return err
		}
		byID := make(map[string]*secondary.CaseNoteRecord, len(found))
		for _, n := range found {
			byID[n.ID] = n
		}

		seen := make(map[string]bool, len(req.NoteIDs))
		for _, id := range req.NoteIDs {
			if seen[id] {
				continue
			}
			seen[id] = true

			note, ok := byID[id]
			if !ok {
				result.Skipped = append(result.Skipped, id)
				continue
			}

			decision, guard := casenote.EvaluateMove(casenote.MoveContext{
				NoteID:        id,
				CurrentPerson: note.PersonIdentifier,
				From:          req.From,
				To:            req.To,
			})
			switch decision {
			case casenote.MoveConflict:
				return guard.Error()
			case casenote.MoveSkip:
				result.Skipped = append(result.Skipped, id)
				continue
			}

			if err := s.archive.Archive(ctx, archiveEntry(note, casenote.CauseMove, system.Username, by.At, "")); err != nil {
				return err
			}

			note.PersonIdentifier = req.To
			if err := s.notes.Update(ctx, note); err != nil {
				return err
			}

			ev := noteEvent(secondary.EventCaseNoteUpdated, note, by)
			ev.PreviousPersonIdentifier = req.From
			if err := s.events.Publish(ctx, ev); err != nil {
				return err
			}
			result.Moved = append(result.Moved, id)
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "case note move failed",
			"from", req.From,
			"to", req.To,
			"code", errs.CodeOf(err),
			"error", err,
		)
		return nil, err
	}

	s.telemetry.NotesMoved(len(result.Moved))
	s.logger.InfoContext(ctx, "case notes moved",
		"from", req.From,
		"to", req.To,
		"moved", len(result.Moved),
		"skipped", len(result.Skipped),
		"source", by.Source,
	)
	return result, nil
}

// Ensure MoveServiceImpl implements the interface
var _ primary.MoveService = (*MoveServiceImpl)(nil)
