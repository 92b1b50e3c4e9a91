package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/casenotes/internal/core/actor"
	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/primary"
	"github.com/example/casenotes/internal/ports/secondary"
	"github.com/example/casenotes/internal/validation"
)

// MigrationServiceImpl implements the MigrationService interface.
type MigrationServiceImpl struct {
	tx         secondary.Transactor
	notes      secondary.CaseNoteRepository
	categories secondary.CategoryRegistry
	telemetry  secondary.Telemetry
	logger     *slog.Logger
}

// NewMigrationService creates a new MigrationService with injected dependencies.
func NewMigrationService(
	tx secondary.Transactor,
	notes secondary.CaseNoteRepository,
	categories secondary.CategoryRegistry,
	telemetry secondary.Telemetry,
	logger *slog.Logger,
) *MigrationServiceImpl {
	return &MigrationServiceImpl{
		tx:         tx,
		notes:      notes,
		categories: categories,
		telemetry:  telemetry,
		logger:     logger,
	}
}

// Migrate replaces every legacy-origin note of the person with the batch.
// Unchanged resent notes keep their id; DPS-origin notes are never touched.
// The batch is validated in full before anything is deleted, and the whole
// replace commits or rolls back as one transaction.
func (s *MigrationServiceImpl) Migrate(ctx context.Context, by actor.Actor, personIdentifier string, reqs []primary.MigrationRequest) (results []primary.MigrationResult, err error) {
	ctx, span := startSpan(ctx, "casenotes.migrate",
		attribute.String("person", personIdentifier),
		attribute.Int("records", len(reqs)),
	)
	defer func() { endSpan(span, err) }()

	if personIdentifier == "" {
		return nil, errs.Validation("invalid request").WithDetails("personIdentifier: required")
	}
	if err := validation.Slice(reqs); err != nil {
		return nil, err
	}
	if err := checkDuplicateLegacyIDs(reqs); err != nil {
		return nil, err
	}
	if _, err := checkCategories(ctx, s.categories, migrationKeys(reqs), true); err != nil {
		return nil, err
	}

	var plan casenote.MigrationPlan
	created := make(map[int]string)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.notes.Find(ctx, secondary.PersonIs{PersonIdentifier: personIdentifier})
		if err != nil {
			return err
		}
		if err := s.checkForeignLegacyIDs(ctx, personIdentifier, reqs); err != nil {
			return err
		}

		plan = casenote.PlanMigration(existingFingerprints(existing), incomingFingerprints(personIdentifier, reqs))

		// Deletes go first so a changed record can reuse its legacy id.
		for _, id := range plan.Delete {
			if err := s.notes.Delete(ctx, id); err != nil {
				return err
			}
		}
		for _, i := range plan.Create {
			note := migratedNote(personIdentifier, reqs[i])
			if err := s.notes.Create(ctx, note); err != nil {
				return err
			}
			created[i] = note.ID
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "case note migration failed",
			"person", personIdentifier,
			"code", errs.CodeOf(err),
			"error", err,
		)
		return nil, err
	}

	results = make([]primary.MigrationResult, len(reqs))
	for i, req := range reqs {
		id, ok := plan.Keep[i]
		if !ok {
			id = created[i]
		}
		results[i] = primary.MigrationResult{LegacyID: req.LegacyID, ID: id}
	}

	s.telemetry.MigrationRecorded(len(plan.Keep), len(plan.Create), len(plan.Delete))
	s.logger.InfoContext(ctx, "case notes migrated",
		"person", personIdentifier,
		"kept", len(plan.Keep),
		"created", len(plan.Create),
		"deleted", len(plan.Delete),
		"source", by.Source,
	)
	return results, nil
}

// checkForeignLegacyIDs rejects a batch that names a legacy id already held
// by another person's note.
func (s *MigrationServiceImpl) checkForeignLegacyIDs(ctx context.Context, personIdentifier string, reqs []primary.MigrationRequest) error {
	ids := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.LegacyID)
	}

	holders, err := s.notes.Find(ctx, secondary.LegacyIDIn{LegacyIDs: ids})
	if err != nil {
		return err
	}

	var foreign []string
	for _, n := range holders {
		if n.PersonIdentifier != personIdentifier {
			foreign = append(foreign, strconv.FormatInt(n.LegacyID, 10))
		}
	}
	if len(foreign) > 0 {
		sort.Strings(foreign)
		return errs.Conflict("legacy ids belong to another person").WithDetails(foreign...)
	}
	return nil
}

func checkDuplicateLegacyIDs(reqs []primary.MigrationRequest) error {
	seen := make(map[int64]bool, len(reqs))
	var dups []string
	for _, r := range reqs {
		if seen[r.LegacyID] {
			dups = append(dups, fmt.Sprintf("legacyId: duplicate %d", r.LegacyID))
			continue
		}
		seen[r.LegacyID] = true
	}
	if len(dups) > 0 {
		return errs.Validation("invalid request").WithDetails(dups...)
	}
	return nil
}

func migrationKeys(reqs []primary.MigrationRequest) []casenote.CategoryKey {
	keys := make([]casenote.CategoryKey, 0, len(reqs))
	for _, r := range reqs {
		keys = append(keys, casenote.CategoryKey{Type: r.Type, SubType: r.SubType})
	}
	return keys
}

func migratedNote(personIdentifier string, req primary.MigrationRequest) *secondary.CaseNoteRecord {
	return &secondary.CaseNoteRecord{
		ID:               newID(),
		LegacyID:         req.LegacyID,
		PersonIdentifier: personIdentifier,
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
}

func existingFingerprints(notes []*secondary.CaseNoteRecord) []casenote.ExistingNote {
	result := make([]casenote.ExistingNote, 0, len(notes))
	for _, n := range notes {
		in := casenote.FingerprintInput{
			PersonIdentifier: n.PersonIdentifier,
			Type:             n.Type,
			SubType:          n.SubType,
			OccurredAt:       n.OccurredAt,
			LocationCode:     n.LocationCode,
			AuthorUsername:   n.AuthorUsername,
			AuthorID:         n.AuthorID,
			AuthorName:       n.AuthorName,
			Text:             n.Text,
			SystemGenerated:  n.SystemGenerated,
			CreatedAt:        n.CreatedAt,
			CreatedBy:        n.CreatedBy,
		}
		for _, a := range n.Amendments {
			in.Amendments = append(in.Amendments, casenote.FingerprintAmendment{
				AuthorUsername: a.AuthorUsername,
				AuthorID:       a.AuthorID,
				AuthorName:     a.AuthorName,
				Text:           a.Text,
				CreatedAt:      a.CreatedAt,
				CreatedBy:      a.CreatedBy,
			})
		}
		result = append(result, casenote.ExistingNote{
			ID:          n.ID,
			LegacyID:    n.LegacyID,
			Origin:      n.Origin,
			Fingerprint: casenote.Fingerprint(in),
		})
	}
	return result
}

func incomingFingerprints(personIdentifier string, reqs []primary.MigrationRequest) []casenote.IncomingNote {
	result := make([]casenote.IncomingNote, 0, len(reqs))
	for _, r := range reqs {
		in := casenote.FingerprintInput{
			PersonIdentifier: personIdentifier,
			Type:             r.Type,
			SubType:          r.SubType,
			OccurredAt:       storeTime(r.OccurredAt),
			LocationCode:     r.LocationCode,
			AuthorUsername:   r.Author.Username,
			AuthorID:         r.Author.UserID,
			AuthorName:       r.Author.DisplayName,
			Text:             r.Text,
			SystemGenerated:  r.SystemGenerated,
			CreatedAt:        storeTime(r.CreatedAt),
			CreatedBy:        r.CreatedBy,
		}

		amendments := append([]primary.AmendmentRequest(nil), r.Amendments...)
		sort.SliceStable(amendments, func(i, j int) bool {
			return amendments[i].CreatedAt.Before(amendments[j].CreatedAt)
		})
		for _, a := range amendments {
			in.Amendments = append(in.Amendments, casenote.FingerprintAmendment{
				AuthorUsername: a.Author.Username,
				AuthorID:       a.Author.UserID,
				AuthorName:     a.Author.DisplayName,
				Text:           a.Text,
				CreatedAt:      storeTime(a.CreatedAt),
				CreatedBy:      a.CreatedBy,
			})
		}
		result = append(result, casenote.IncomingNote{LegacyID: r.LegacyID, Fingerprint: casenote.Fingerprint(in)})
	}
	return result
}

// Ensure MigrationServiceImpl implements the interface
var _ primary.MigrationService = (*MigrationServiceImpl)(nil)
