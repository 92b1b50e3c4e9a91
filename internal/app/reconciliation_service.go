package app

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/example/casenotes/internal/core/actor"
	"github.com/example/casenotes/internal/core/alert"
	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/primary"
	"github.com/example/casenotes/internal/ports/secondary"
)

// ReconciliationServiceImpl implements the ReconciliationService interface.
type ReconciliationServiceImpl struct {
	tx         secondary.Transactor
	notes      secondary.CaseNoteRepository
	categories secondary.CategoryRegistry
	events     secondary.EventPublisher
	alerts     secondary.AlertsClient
	authors    secondary.AuthorDirectory
	telemetry  secondary.Telemetry
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewReconciliationService creates a new ReconciliationService with injected
// dependencies. timeout bounds the collaborator calls of one invocation.
func NewReconciliationService(
	tx secondary.Transactor,
	notes secondary.CaseNoteRepository,
	categories secondary.CategoryRegistry,
	events secondary.EventPublisher,
	alerts secondary.AlertsClient,
	authors secondary.AuthorDirectory,
	telemetry secondary.Telemetry,
	logger *slog.Logger,
	timeout time.Duration,
) *ReconciliationServiceImpl {
	return &ReconciliationServiceImpl{
		tx:         tx,
		notes:      notes,
		categories: categories,
		events:     events,
		alerts:     alerts,
		authors:    authors,
		telemetry:  telemetry,
		logger:     logger,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Reconcile creates the synthetic alert notes missing for the person in
// [from, to). It is strictly additive: re-running over the same window
// creates nothing new. A collaborator failure fails the whole invocation
// before anything is written. The missing set is computed again inside the
// write transaction, so concurrent runs for one person never both insert a
// note.
func (s *ReconciliationServiceImpl) Reconcile(ctx context.Context, personIdentifier string, from, to time.Time) (summary *primary.ReconciliationSummary, err error) {
	ctx, span := startSpan(ctx, "casenotes.reconcile",
		attribute.String("person", personIdentifier),
		attribute.String("from", from.Format(time.DateOnly)),
		attribute.String("to", to.Format(time.DateOnly)),
	)
	defer func() { endSpan(span, err) }()

	if personIdentifier == "" {
		return nil, errs.Validation("invalid request").WithDetails("personIdentifier: required")
	}
	if !from.Before(to) {
		return nil, errs.Validation("invalid request").WithDetails("from: must be before to")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	now := s.now()
	system := actor.System(now)

	alerts, existing, err := s.fetch(ctx, personIdentifier, from, to)
	if err != nil {
		return nil, err
	}

	expected := alert.Expected(alerts, alert.Window{From: from, To: to}, now)
	missing := alert.Missing(expected, existing)

	summary = &primary.ReconciliationSummary{
		PersonIdentifier: personIdentifier,
		From:             from,
		To:               to,
	}

	if len(missing) > 0 {
		keys := []casenote.CategoryKey{
			{Type: alert.NoteType, SubType: alert.NoteSubTypeActive},
			{Type: alert.NoteType, SubType: alert.NoteSubTypeInactive},
		}
		if _, err := checkCategories(ctx, s.categories, keys, false); err != nil {
			return nil, err
		}

		authors, err := s.resolveAuthors(ctx, missing, system)
		if err != nil {
			return nil, err
		}

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			current, err := s.existingNotes(ctx, personIdentifier)
			if err != nil {
				return err
			}
			missing = alert.Missing(missing, current)

			for _, m := range missing {
				author := authors[m.AuthorUsername]
				author.At = now
				note := syntheticNote(personIdentifier, m, author)
				if err := s.notes.Create(ctx, note); err != nil {
					return err
				}
				if err := s.events.Publish(ctx, noteEvent(secondary.EventCaseNoteCreated, note, system)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "alert reconciliation failed",
				"person", personIdentifier,
				"code", errs.CodeOf(err),
				"error", err,
			)
			return nil, err
		}

		created := alert.Count(missing)
		summary.ActiveMissing = created.Active
		summary.InactiveMissing = created.Inactive
		summary.ActiveCreated = created.Active
		summary.InactiveCreated = created.Inactive
	}

	s.telemetry.ReconciliationRecorded(ctx, secondary.ReconciliationReport{
		PersonIdentifier: summary.PersonIdentifier,
		From:             summary.From,
		To:               summary.To,
		ActiveMissing:    summary.ActiveMissing,
		InactiveMissing:  summary.InactiveMissing,
		ActiveCreated:    summary.ActiveCreated,
		InactiveCreated:  summary.InactiveCreated,
	})
	return summary, nil
}

// fetch loads the alert timeline and the existing synthetic notes concurrently.
func (s *ReconciliationServiceImpl) fetch(ctx context.Context, personIdentifier string, from, to time.Time) ([]alert.Alert, []alert.ExistingNote, error) {
	var (
		records  []*secondary.AlertRecord
		existing []alert.ExistingNote
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.alerts.Alerts(gctx, personIdentifier, from, to)
		if err != nil && errs.CodeOf(err) == errs.Internal {
			return errs.Wrap(errs.Unavailable, err, "alerts service unavailable")
		}
		return err
	})
	g.Go(func() error {
		var err error
		existing, err = s.existingNotes(gctx, personIdentifier)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	alerts := make([]alert.Alert, 0, len(records))
	for _, r := range records {
		alerts = append(alerts, alert.Alert{
			TypeDescription:    r.TypeDescription,
			SubTypeDescription: r.SubTypeDescription,
			ActiveFrom:         r.ActiveFrom,
			ActiveTo:           r.ActiveTo,
			CreatedAt:          r.CreatedAt,
			CreatedBy:          r.CreatedBy,
			MadeInactiveAt:     r.MadeInactiveAt,
			MadeInactiveBy:     r.MadeInactiveBy,
		})
	}
	return alerts, existing, nil
}

// existingNotes loads the person's stored synthetic alert notes.
func (s *ReconciliationServiceImpl) existingNotes(ctx context.Context, personIdentifier string) ([]alert.ExistingNote, error) {
	notes, err := s.notes.Find(ctx, secondary.And(
		secondary.PersonIs{PersonIdentifier: personIdentifier},
		secondary.Or(
			secondary.CategoryIs{Key: casenote.CategoryKey{Type: alert.NoteType, SubType: alert.NoteSubTypeActive}},
			secondary.CategoryIs{Key: casenote.CategoryKey{Type: alert.NoteType, SubType: alert.NoteSubTypeInactive}},
		),
	))
	if err != nil {
		return nil, err
	}

	existing := make([]alert.ExistingNote, 0, len(notes))
	for _, n := range notes {
		existing = append(existing, alert.ExistingNote{Text: n.Text, OccurredAt: n.OccurredAt})
	}
	return existing, nil
}

// resolveAuthors maps every distinct author username of the missing notes to
// an actor. Unknown usernames fall back to the system actor; any other
// directory failure fails the invocation.
func (s *ReconciliationServiceImpl) resolveAuthors(ctx context.Context, missing []alert.ExpectedNote, system actor.Actor) (map[string]actor.Actor, error) {
	usernames := make([]string, 0, len(missing))
	seen := make(map[string]bool, len(missing))
	for _, m := range missing {
		if !seen[m.AuthorUsername] {
			seen[m.AuthorUsername] = true
			usernames = append(usernames, m.AuthorUsername)
		}
	}
	sort.Strings(usernames)

	result := make(map[string]actor.Actor, len(usernames))
	for _, username := range usernames {
		if username == "" {
			result[username] = system
			continue
		}

		author, err := s.authors.Resolve(ctx, username)
		if errs.Is(err, errs.NotFound) {
			s.logger.InfoContext(ctx, "author not found, using system actor", "username", username)
			result[username] = system
			continue
		}
		if err != nil {
			if errs.CodeOf(err) == errs.Internal {
				return nil, errs.Wrap(errs.Unavailable, err, "author resolution unavailable")
			}
			return nil, err
		}

		result[username] = actor.Actor{
			Username:    author.Username,
			UserID:      author.UserID,
			DisplayName: author.DisplayName,
			Source:      actor.SourceDPS,
		}
	}
	return result, nil
}

func syntheticNote(personIdentifier string, m alert.ExpectedNote, author actor.Actor) *secondary.CaseNoteRecord {
	created := casenote.Created(author)
	return &secondary.CaseNoteRecord{
		ID:               newID(),
		PersonIdentifier: personIdentifier,
		Type:             alert.NoteType,
		SubType:          m.Kind.SubType(),
		OccurredAt:       storeTime(m.OccurredAt),
		AuthorUsername:   author.Username,
		AuthorID:         author.UserID,
		AuthorName:       author.DisplayName,
		Text:             m.Text,
		SystemGenerated:  true,
		Origin:           casenote.OriginDPS,
		CreatedAt:        created.At,
		CreatedBy:        created.By,
	}
}

// Ensure ReconciliationServiceImpl implements the interface
var _ primary.ReconciliationService = (*ReconciliationServiceImpl)(nil)
