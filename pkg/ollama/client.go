// Package ollama talks to an Ollama server's chat and embedding endpoints.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/pkg/resilience"
)

// Config for a Client. Guard may be nil.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Guard   *resilience.Guard
}

type client struct {
	baseURL string
	http    *http.Client
	guard   *resilience.Guard
}

func newClient(cfg Config) client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	guard := cfg.Guard
	if guard != nil && guard.Retry.Retryable == nil {
		g := *guard
		g.Retry.Retryable = retryable
		guard = &g
	}
	return client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		guard:   guard,
	}
}

// statusError is returned for non-2xx responses.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// retryable reports whether a failed call may succeed on another attempt.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, domain.ErrMalformedOutput)
}

// post sends body as JSON and decodes the response into out, under the guard.
func (c client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = resilience.Run(ctx, c.guard, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return struct{}{}, &statusError{Code: resp.StatusCode, Body: string(data)}
		}
		if err := json.Unmarshal(data, out); err != nil {
			return struct{}{}, domain.Malformed("ollama response", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("%w: ollama %s: %v", domain.ErrBackendUnavailable, path, err)
	}
	return nil
}
