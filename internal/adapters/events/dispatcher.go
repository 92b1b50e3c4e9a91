// Package events drains the transactional outbox to a downstream sink.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/casenotes/internal/ports/secondary"
)

// DeliveryRecorder observes the result of each delivery attempt.
type DeliveryRecorder interface {
	OutboxDelivered(ok bool)
	OutboxDeadLettered()
}

// Dispatcher polls the outbox and hands pending events to a sink.
// An event is marked published only after the sink accepts it, so delivery
// is at-least-once. Events of one note are delivered in order; events of
// different notes are independent.
type Dispatcher struct {
	outbox      secondary.OutboxRepository
	sink        secondary.EventSink
	recorder    DeliveryRecorder
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher polling every interval for up to
// batchSize events. An event still failing after maxAttempts deliveries is
// dead-lettered; zero means retry forever.
func NewDispatcher(
	outbox secondary.OutboxRepository,
	sink secondary.EventSink,
	recorder DeliveryRecorder,
	logger *slog.Logger,
	interval time.Duration,
	batchSize int,
	maxAttempts int,
) *Dispatcher {
	return &Dispatcher{
		outbox:      outbox,
		sink:        sink,
		recorder:    recorder,
		logger:      logger,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Run dispatches until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.InfoContext(ctx, "event dispatcher started", "interval", d.interval, "batch_size", d.batchSize)
	for {
		if _, err := d.DispatchOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.ErrorContext(ctx, "event dispatch failed", "error", err)
		}

		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "event dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers one batch and returns how many events were published.
// A failed delivery holds back the rest of that note's events in the batch,
// so they are never delivered ahead of it. Other notes carry on.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	pending, err := d.outbox.Pending(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	blocked := make(map[string]bool)
	for _, entry := range pending {
		ev := entry.Event
		if blocked[ev.CaseNoteID] {
			continue
		}

		if err := d.sink.Send(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return published, ctx.Err()
			}
			d.recorder.OutboxDelivered(false)
			if markErr := d.fail(ctx, entry, err); markErr != nil {
				return published, markErr
			}
			blocked[ev.CaseNoteID] = true
			continue
		}

		if err := d.outbox.MarkPublished(ctx, ev.ID, d.now()); err != nil {
			return published, err
		}
		d.recorder.OutboxDelivered(true)
		published++
	}
	return published, nil
}

// fail records a failed attempt, dead-lettering the event once it has used
// its attempts.
func (d *Dispatcher) fail(ctx context.Context, entry *secondary.OutboxEntry, cause error) error {
	ev := entry.Event
	attempts := entry.Attempts + 1

	if d.maxAttempts > 0 && attempts >= d.maxAttempts {
		d.logger.ErrorContext(ctx, "event dead-lettered",
			"event_id", ev.ID,
			"event_type", ev.Type,
			"note_id", ev.CaseNoteID,
			"attempts", attempts,
			"error", cause,
		)
		if err := d.outbox.MarkDeadLettered(ctx, ev.ID, cause.Error(), d.now()); err != nil {
			return err
		}
		d.recorder.OutboxDeadLettered()
		return nil
	}

	d.logger.WarnContext(ctx, "event delivery failed",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"note_id", ev.CaseNoteID,
		"attempts", attempts,
		"error", cause,
	)
	return d.outbox.MarkFailed(ctx, ev.ID, cause.Error())
}
