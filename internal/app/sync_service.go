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

// SyncServiceImpl implements the SyncService interface.
type SyncServiceImpl struct {
	tx         secondary.Transactor
	notes      secondary.CaseNoteRepository
	categories secondary.CategoryRegistry
	events     secondary.EventPublisher
	telemetry  secondary.Telemetry
	logger     *slog.Logger
}

// NewSyncService creates a new SyncService with injected dependencies.
func NewSyncService(
	tx secondary.Transactor,
	notes secondary.CaseNoteRepository,
	categories secondary.CategoryRegistry,
	events secondary.EventPublisher,
	telemetry secondary.Telemetry,
	logger *slog.Logger,
) *SyncServiceImpl {
	return &SyncServiceImpl{
		tx:         tx,
		notes:      notes,
		categories: categories,
		events:     events,
		telemetry:  telemetry,
		logger:     logger,
	}
}

// Sync upserts one note mirrored from the legacy system.
func (s *SyncServiceImpl) Sync(ctx context.Context, by actor.Actor, req primary.SyncRequest) (result *primary.SyncResult, err error) {
	ctx, span := startSpan(ctx, "casenotes.sync",
		attribute.String("person", req.PersonIdentifier),
		attribute.Int64("legacy_id", req.LegacyID),
	)
	defer func() { endSpan(span, err) }()

	if err := validation.Struct(&req); err != nil {
		return nil, err
	}
	if _, err := checkCategories(ctx, s.categories, syncKeys([]primary.SyncRequest{req}), true); err != nil {
		return nil, err
	}

	r, err := s.apply(ctx, by, req)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SyncAll upserts a batch. An invalid field or category anywhere in the
// batch rejects the whole batch before any write. After that, each record
// commits or fails on its own and is reported in input order.
func (s *SyncServiceImpl) SyncAll(ctx context.Context, by actor.Actor, reqs []primary.SyncRequest) (results []primary.SyncResult, err error) {
	ctx, span := startSpan(ctx, "casenotes.sync_all", attribute.Int("records", len(reqs)))
	defer func() { endSpan(span, err) }()

	if err := validation.Slice(reqs); err != nil {
		return nil, err
	}
	if _, err := checkCategories(ctx, s.categories, syncKeys(reqs), true); err != nil {
		return nil, err
	}

	results = make([]primary.SyncResult, 0, len(reqs))
	for _, req := range reqs {
		r, err := s.apply(ctx, by, req)
		if err != nil {
			r = primary.SyncResult{ID: req.ID, LegacyID: req.LegacyID, Err: err}
		}
		results = append(results, r)
	}
	return results, nil
}

// apply resolves and upserts one validated record in its own transaction.
func (s *SyncServiceImpl) apply(ctx context.Context, by actor.Actor, req primary.SyncRequest) (primary.SyncResult, error) {
	result := primary.SyncResult{LegacyID: req.LegacyID}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.resolve(ctx, req)
		if err != nil {
			return err
		}

		var note *secondary.CaseNoteRecord
		var eventType string
		if existing == nil {
			note, err = s.create(ctx, req)
			result.Action = primary.SyncCreated
			eventType = secondary.EventCaseNoteCreated
		} else {
			note, err = s.update(ctx, by, existing, req)
			result.Action = primary.SyncUpdated
			eventType = secondary.EventCaseNoteUpdated
		}
		if err != nil {
			return err
		}

		result.ID = note.ID
		result.LegacyID = note.LegacyID
		return s.events.Publish(ctx, noteEvent(eventType, note, by))
	})
	if err != nil {
		s.logger.WarnContext(ctx, "case note sync failed",
			"person", req.PersonIdentifier,
			"legacy_id", req.LegacyID,
			"code", errs.CodeOf(err),
			"error", err,
		)
		return primary.SyncResult{}, err
	}

	s.telemetry.SyncRecorded(string(result.Action))
	s.logger.InfoContext(ctx, "case note synced",
		"person", req.PersonIdentifier,
		"note_id", result.ID,
		"legacy_id", result.LegacyID,
		"action", result.Action,
		"source", by.Source,
	)
	return result, nil
}

// resolve finds the note a record refers to: by id first, then by legacy id
// when one is supplied.
// A nil note with a nil error means the record is new.
func (s *SyncServiceImpl) resolve(ctx context.Context, req primary.SyncRequest) (*secondary.CaseNoteRecord, error) {
	if req.ID != "" {
		note, err := s.notes.GetByID(ctx, req.ID)
		if err == nil {
			return note, nil
		}
		if !errs.Is(err, errs.NotFound) {
			return nil, err
		}
	}

	if req.LegacyID == 0 {
		return nil, nil
	}
	note, err := s.notes.GetByLegacyID(ctx, req.LegacyID)
	if errs.Is(err, errs.NotFound) {
		return nil, nil
	}
	return note, err
}

// create stores a new note. Synced notes are always legacy-origin, whoever
// sends them, so a later migration for the person can replace them.
func (s *SyncServiceImpl) create(ctx context.Context, req primary.SyncRequest) (*secondary.CaseNoteRecord, error) {
	id := req.ID
	if id == "" {
		id = newID()
	}

	note := &secondary.CaseNoteRecord{
		ID:               id,
		LegacyID:         req.LegacyID,
		PersonIdentifier: req.PersonIdentifier,
		Type:             req.Type,
		SubType:          req.SubType,
		OccurredAt:       storeTime(req.OccurredAt),
		LocationCode:     req.LocationCode,
		AuthorUsername:   req.Author.Username,
		AuthorID:         req.Author.UserID,
		AuthorName:       req.Author.DisplayName,
		Text:             req.Text,
		SystemGenerated:  req.SystemGenerated,
		Origin:           casenote.OriginLegacy,
		CreatedAt:        storeTime(req.CreatedAt),
		CreatedBy:        req.CreatedBy,
		Amendments:       amendmentRecords(req.Amendments),
	}

	if err := s.notes.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

func (s *SyncServiceImpl) update(ctx context.Context, by actor.Actor, note *secondary.CaseNoteRecord, req primary.SyncRequest) (*secondary.CaseNoteRecord, error) {
	guard := casenote.CanSyncUpdate(casenote.SyncUpdateContext{
		NoteID:          note.ID,
		ExistingPerson:  note.PersonIdentifier,
		RequestedPerson: req.PersonIdentifier,
	})
	if !guard.Allowed {
		return nil, guard.Error()
	}

	stamp := casenote.Mutated(by)
	if note.LegacyID == 0 {
		note.LegacyID = req.LegacyID
	}
	note.Type = req.Type
	note.SubType = req.SubType
	note.OccurredAt = storeTime(req.OccurredAt)
	note.LocationCode = req.LocationCode
	note.AuthorUsername = req.Author.Username
	note.AuthorID = req.Author.UserID
	note.AuthorName = req.Author.DisplayName
	note.Text = req.Text
	note.SystemGenerated = req.SystemGenerated
	note.LastModifiedAt = stamp.At
	note.LastModifiedBy = stamp.By

	if err := s.notes.Update(ctx, note); err != nil {
		return nil, err
	}

	existing := make([]casenote.AmendmentKey, 0, len(note.Amendments))
	for _, a := range note.Amendments {
		existing = append(existing, casenote.AmendmentKey{AuthorUsername: a.AuthorUsername, CreatedAt: a.CreatedAt})
	}
	incoming := make([]casenote.AmendmentKey, 0, len(req.Amendments))
	for _, a := range req.Amendments {
		incoming = append(incoming, casenote.AmendmentKey{AuthorUsername: a.Author.Username, CreatedAt: storeTime(a.CreatedAt)})
	}

	unmatched := casenote.UnmatchedAmendments(existing, incoming)
	if len(unmatched) == 0 {
		return note, nil
	}

	added := make([]primary.AmendmentRequest, 0, len(unmatched))
	for _, i := range unmatched {
		added = append(added, req.Amendments[i])
	}
	records := amendmentRecords(added)
	if err := s.notes.AddAmendments(ctx, note.ID, records); err != nil {
		return nil, err
	}
	note.Amendments = append(note.Amendments, records...)
	return note, nil
}

func syncKeys(reqs []primary.SyncRequest) []casenote.CategoryKey {
	keys := make([]casenote.CategoryKey, 0, len(reqs))
	for _, r := range reqs {
		keys = append(keys, casenote.CategoryKey{Type: r.Type, SubType: r.SubType})
	}
	return keys
}

// Ensure SyncServiceImpl implements the interface
var _ primary.SyncService = (*SyncServiceImpl)(nil)
