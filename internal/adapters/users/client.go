// Package users is an HTTP client for the user directory.
package users

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

type userResponse struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
}

// Client resolves usernames to author identities. An unknown username is a
// NOT_FOUND error; transport failures are UNAVAILABLE once retries run out.
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

func (c *Client) Resolve(ctx context.Context, username string) (*secondary.AuthorRecord, error) {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(username))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval

	user, err := backoff.Retry(ctx, func() (*userResponse, error) {
		return c.get(ctx, endpoint, username)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.maxRetries+1))
	if err != nil {
		if errs.CodeOf(err) != errs.Internal {
			return nil, err
		}
		return nil, errs.Wrap(errs.Unavailable, err, "user directory unavailable")
	}

	return &secondary.AuthorRecord{
		Username:    user.Username,
		UserID:      user.UserID,
		DisplayName: user.Name,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint, username string) (*userResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", username, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(errs.NotFoundf("user %s not found", username))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("user directory answered %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, backoff.Permanent(fmt.Errorf("user directory rejected request with %d", resp.StatusCode))
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode user %s: %w", username, err))
	}
	return &user, nil
}

// Ensure Client implements the interface
var _ secondary.AuthorDirectory = (*Client)(nil)
