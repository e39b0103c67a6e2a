package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carbonq/pkg/domain"
)

// ErrUnauthenticated marks a delivery rejected by the backend for an
// invalid or expired identity. The agent treats it like any transient
// failure: re-enqueue and wait for re-authentication.
var ErrUnauthenticated = errors.New("delivery unauthenticated")

// Recorder persists one event server-side on behalf of an identity.
type Recorder interface {
	Record(ctx context.Context, token string, event domain.QueryEvent) error
}

// Client delivers events to the dashboard service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a dashboard service client. The HTTP client timeout
// bounds every delivery attempt.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type recordRequest struct {
	Platform    string    `json:"platform"`
	CarbonGrams float64   `json:"carbon_grams"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Record posts one event to /dashboard/query with the bearer token.
func (c *Client) Record(ctx context.Context, token string, event domain.QueryEvent) error {
	payload, err := json.Marshal(recordRequest{
		Platform:    string(event.Platform),
		CarbonGrams: event.CarbonGrams,
		OccurredAt:  event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dashboard/query", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver event: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case resp.StatusCode >= 400:
		return fmt.Errorf("deliver event: status %d", resp.StatusCode)
	}
	return nil
}
