// Package publisher is the HTTP client for the external publishing
// capability. The remote side owns the actual social-network integration;
// this client only submits content bodies with an idempotency key and
// reports success or failure.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"drumbeat/pkg/clients"
)

// APIError reports a non-success status from the publisher endpoint.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("publisher returned status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("publisher returned status %d", e.StatusCode)
}

// Result is a successful publish outcome.
type Result struct {
	RemoteID string `json:"remote_id"`
}

type publishRequest struct {
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key"`
}

type publishResponse struct {
	Success  bool   `json:"success"`
	RemoteID string `json:"remote_id"`
	Error    string `json:"error"`
}

// Client talks to the publisher endpoint with bounded retries and backoff.
type Client struct {
	baseURL      string
	token        string
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool
}

// Option customises the client.
type Option func(*Client)

// NewClient creates a publisher client. The executor config controls the
// retry policy: attempts are bounded and backed off exponentially, so a
// failing publish is never retried past the configured limit.
func NewClient(baseURL, token string, opts ...Option) *Client {
	defaultConfig := clients.DefaultHTTPExecutorConfig()
	c := &Client{
		baseURL:      baseURL,
		token:        token,
		client:       &http.Client{Timeout: 10 * time.Second},
		httpExecutor: clients.NewHTTPExecutor(defaultConfig),
		shouldRetry:  defaultConfig.ShouldRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the underlying HTTP client (per-attempt timeout).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithHTTPExecutorConfig overrides the retry/backoff policy.
func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.httpExecutor = clients.NewHTTPExecutor(cfg)
		c.shouldRetry = cfg.ShouldRetry
	}
}

// Publish submits a content body. The idempotency key makes repeated
// submissions of the same item safe on the remote side.
func (c *Client) Publish(ctx context.Context, body, idempotencyKey string) (*Result, error) {
	payload, err := json.Marshal(publishRequest{Body: body, IdempotencyKey: idempotencyKey})
	if err != nil {
		return nil, fmt.Errorf("marshal publish request: %w", err)
	}

	resp, err := clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/publish", bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Idempotency-Key", idempotencyKey)

		res, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if c.shouldRetry != nil && c.shouldRetry(res, nil) {
			// Drain so the transport can reuse the connection before retrying.
			res.Body.Close()
		}
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode publish response: %w", err)
	}
	if !out.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Reason: out.Error}
	}

	return &Result{RemoteID: out.RemoteID}, nil
}
