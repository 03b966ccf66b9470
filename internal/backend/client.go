// Package backend delivers canonical envelopes to the decision service and
// normalizes its two supported response shapes into one action list.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ProkopovichN/SkillTrainerBot/internal/envelope"
)

var (
	// ErrUnreachable wraps network and timeout failures.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrMalformedResponse wraps bodies matching neither accepted shape.
	ErrMalformedResponse = errors.New("backend returned malformed response")
)

// RejectedError reports a non-2xx ingest response.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("backend rejected request: http %d: %s", e.Status, e.Body)
}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	timeout time.Duration
}

func NewClient(httpClient *http.Client, baseURL, token string, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		timeout: timeout,
	}
}

// Send POSTs one envelope to {base}/ingest and returns the normalizable
// response. There is no retry: the platform's own redelivery is the retry
// mechanism, and the backend dedupes on telegram_update_id.
func (c *Client) Send(ctx context.Context, env envelope.Envelope) (*Response, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &RejectedError{Status: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw)), 500)}
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, readErr)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
