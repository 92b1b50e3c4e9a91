// Package alerts is an HTTP client for the alerts service.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/secondary"
)

// alertResponse is one alert as the alerts service returns it.
// activeFrom and activeTo are calendar dates (YYYY-MM-DD).
type alertResponse struct {
	AlertCode                 string     `json:"alertCode"`
	AlertCodeDescription      string     `json:"alertCodeDescription"`
	AlertType                 string     `json:"alertType"`
	AlertTypeDescription      string     `json:"alertTypeDescription"`
	ActiveFrom                string     `json:"activeFrom"`
	ActiveTo                  string     `json:"activeTo,omitempty"`
	CreatedAt                 time.Time  `json:"createdAt"`
	CreatedBy                 string     `json:"createdBy"`
	ActiveToLastSetAt         *time.Time `json:"activeToLastSetAt,omitempty"`
	ActiveToLastSetByUsername string     `json:"activeToLastSetBy,omitempty"`
}

func (a alertResponse) record() (*secondary.AlertRecord, error) {
	from, err := time.Parse(time.DateOnly, a.ActiveFrom)
	if err != nil {
		return nil, fmt.Errorf("invalid activeFrom %q: %w", a.ActiveFrom, err)
	}

	r := &secondary.AlertRecord{
		Type:               a.AlertType,
		TypeDescription:    a.AlertTypeDescription,
		SubType:            a.AlertCode,
		SubTypeDescription: a.AlertCodeDescription,
		ActiveFrom:         from,
		CreatedAt:          a.CreatedAt,
		CreatedBy:          a.CreatedBy,
		MadeInactiveAt:     a.ActiveToLastSetAt,
		MadeInactiveBy:     a.ActiveToLastSetByUsername,
	}
	if a.ActiveTo != "" {
		to, err := time.Parse(time.DateOnly, a.ActiveTo)
		if err != nil {
			return nil, fmt.Errorf("invalid activeTo %q: %w", a.ActiveTo, err)
		}
		r.ActiveTo = &to
	}
	return r, nil
}

// Client fetches alert timelines. Transport errors and 5xx answers are
// retried with exponential backoff up to maxRetries times.
type Client struct {
	baseURL       string
	http          *http.Client
	maxRetries    uint
	retryInterval time.Duration
}

// NewClient creates a Client. timeout bounds each HTTP attempt.
func NewClient(baseURL string, timeout time.Duration, maxRetries int) *Client {
	return &Client{
		baseURL:       baseURL,
		http:          &http.Client{Timeout: timeout},
		maxRetries:    uint(max(maxRetries, 0)),
		retryInterval: 200 * time.Millisecond,
	}
}

// Alerts returns the person's alerts overlapping [from, to).
func (c *Client) Alerts(ctx context.Context, personIdentifier string, from, to time.Time) ([]*secondary.AlertRecord, error) {
	q := url.Values{}
	q.Set("from", from.Format(time.DateOnly))
	q.Set("to", to.Format(time.DateOnly))
	endpoint := fmt.Sprintf("%s/prisoners/%s/alerts?%s", c.baseURL, url.PathEscape(personIdentifier), q.Encode())

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval

	body, err := backoff.Retry(ctx, func() ([]alertResponse, error) {
		return c.get(ctx, endpoint)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.maxRetries+1))
	if err != nil {
		if errs.CodeOf(err) != errs.Internal {
			return nil, err
		}
		return nil, errs.Wrap(errs.Unavailable, err, "alerts for %s unavailable", personIdentifier)
	}

	records := make([]*secondary.AlertRecord, 0, len(body))
	for _, a := range body {
		r, err := a.record()
		if err != nil {
			return nil, errs.Wrap(errs.Unavailable, err, "alerts service returned an invalid alert")
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]alertResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alerts: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(errs.NotFoundf("person not known to the alerts service"))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("alerts service answered %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, backoff.Permanent(fmt.Errorf("alerts service rejected request with %d", resp.StatusCode))
	}

	var body []alertResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode alerts: %w", err))
	}
	return body, nil
}

// Ensure Client implements the interface
var _ secondary.AlertsClient = (*Client)(nil)
