package executions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPTrigger starts executions on the remote test executor with
// GET {base}/run-tests-background/{sessionID}.
type HTTPTrigger struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPTrigger validates baseURL and returns a trigger using client. A nil
// client gets a 30 second timeout.
func NewHTTPTrigger(baseURL string, client *http.Client) (*HTTPTrigger, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("executor url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("executor url %q must be absolute http(s)", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTrigger{base: u, client: client}, nil
}

// Start fires the executor. Any 2xx response counts as accepted.
func (t *HTTPTrigger) Start(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	endpoint := t.base.JoinPath("run-tests-background", sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger execution %s: %w", sessionID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("trigger execution %s: executor returned %s", sessionID, resp.Status)
	}
	return nil
}

// NopTrigger never contacts anything. It stands in when no executor is
// configured and results arrive by other means.
type NopTrigger struct{}

func (NopTrigger) Start(context.Context, string) error { return nil }
