package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/example/casenotes/internal/ports/secondary"
)

// LogSink writes each event as a structured log record.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, ev *secondary.CaseNoteEvent) error {
	attrs := []any{
		"event_id", ev.ID,
		"event_type", ev.Type,
		"note_id", ev.CaseNoteID,
		"person", ev.PersonIdentifier,
		"type", ev.NoteType,
		"sub_type", ev.NoteSubType,
		"source", ev.Source,
	}
	if ev.PreviousPersonIdentifier != "" {
		attrs = append(attrs, "previous_person", ev.PreviousPersonIdentifier)
	}
	s.logger.InfoContext(ctx, "case note event", attrs...)
	return nil
}

// message is the webhook wire format of an event.
type message struct {
	EventType             string            `json:"eventType"`
	OccurredAt            time.Time         `json:"occurredAt"`
	PersonIdentifier      string            `json:"personIdentifier"`
	AdditionalInformation additionalDetails `json:"additionalInformation"`
}

type additionalDetails struct {
	ID                       string `json:"id"`
	Type                     string `json:"type"`
	SubType                  string `json:"subType"`
	Source                   string `json:"source"`
	PreviousPersonIdentifier string `json:"previousPersonIdentifier,omitempty"`
}

func toMessage(ev *secondary.CaseNoteEvent) message {
	return message{
		EventType:        ev.Type,
		OccurredAt:       ev.OccurredAt,
		PersonIdentifier: ev.PersonIdentifier,
		AdditionalInformation: additionalDetails{
			ID:                       ev.CaseNoteID,
			Type:                     ev.NoteType,
			SubType:                  ev.NoteSubType,
			Source:                   ev.Source,
			PreviousPersonIdentifier: ev.PreviousPersonIdentifier,
		},
	}
}

// WebhookSink POSTs each event as JSON, retrying transport errors and 5xx
// responses with exponential backoff.
type WebhookSink struct {
	url           string
	client        *http.Client
	maxRetries    uint
	retryInterval time.Duration
}

// NewWebhookSink creates a WebhookSink posting to url.
func NewWebhookSink(url string, timeout time.Duration, maxRetries int) *WebhookSink {
	return &WebhookSink{
		url:           url,
		client:        &http.Client{Timeout: timeout},
		maxRetries:    uint(max(maxRetries, 0)),
		retryInterval: 500 * time.Millisecond,
	}
}

func (s *WebhookSink) Send(ctx context.Context, ev *secondary.CaseNoteEvent) error {
	body, err := json.Marshal(toMessage(ev))
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.post(ctx, ev, body)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(s.maxRetries+1))
	return err
}

func (s *WebhookSink) post(ctx context.Context, ev *secondary.CaseNoteEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", ev.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event %s: %w", ev.ID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook answered %d for event %s", resp.StatusCode, ev.ID)
	default:
		return backoff.Permanent(fmt.Errorf("webhook rejected event %s with %d", ev.ID, resp.StatusCode))
	}
}

// Ensure sinks implement the interface
var (
	_ secondary.EventSink = (*LogSink)(nil)
	_ secondary.EventSink = (*WebhookSink)(nil)
)
