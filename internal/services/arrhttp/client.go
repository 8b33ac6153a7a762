// Package arrhttp is the shared outbound HTTP layer for the per-service
// clients: JSON GET with auth headers, a request timeout, and retry with
// exponential backoff plus jitter on retryable failures. Auth failures are
// never retried so operators can tell "service down" from "bad credentials".
package arrhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrUnauthorized marks a 401/403 response; callers should surface it as a
// credentials problem rather than a transient failure
var ErrUnauthorized = errors.New("authentication failed")

const maxRetries = 3

// Client performs JSON GET requests against one service base URL
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a client for the given base URL. The headers map carries
// the service's auth header (e.g. X-Api-Key); timeout bounds each attempt.
func NewClient(baseURL string, headers map[string]string, timeout time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    headers,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetJSON fetches path with the given query parameters and decodes the JSON
// response into result. 429/5xx/network failures are retried with backoff;
// 401/403 and other 4xx return immediately.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, result interface{}) error {
	var body []byte

	operation := func() error {
		data, err := c.get(ctx, path, query)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)); err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// get performs one attempt. Errors it returns are retryable unless wrapped
// in backoff.Permanent.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "trackarr/1.0")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failure or timeout: retryable
		c.logger.WithError(err).WithField("url", fullURL).Debug("Request failed, will retry")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.WithFields(logrus.Fields{
			"url":    fullURL,
			"status": resp.StatusCode,
		}).Debug("Retryable upstream status")
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(body)))
	}
}
