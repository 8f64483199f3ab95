// Package fetch retrieves activity feed pages from the backend with bounded retry.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"activityfeed/metrics"
	"activityfeed/pkg/activity"
)

const (
	// DefaultMaxRetries is the total number of attempts per fetch.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is multiplied by 2^attempt between attempts.
	DefaultBaseDelay = time.Second
	// DefaultPageSize is the page_size query parameter.
	DefaultPageSize = 20

	maxBodyBytes = 4 << 20
)

// Client fetches feed pages, retrying transport, status and decode failures alike.
type Client struct {
	client       *http.Client
	logger       *slog.Logger
	observeDelay func(attempt int, delay time.Duration) // test hook
	endpoint     string
	baseDelay    time.Duration
	maxRetries   int
	pageSize     int
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets the total number of attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseDelay sets the backoff unit.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithPageSize sets the number of records requested per page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New creates a client for the given activity endpoint.
func New(client *http.Client, endpoint string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		client:     client,
		logger:     logger,
		endpoint:   endpoint,
		baseDelay:  DefaultBaseDelay,
		maxRetries: DefaultMaxRetries,
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BackoffDelay returns the wait after failed attempt k (k starting at 1): 2^k * base.
func BackoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<uint(attempt))
}

// FetchPage fetches the given 1-based page.
func (c *Client) FetchPage(ctx context.Context, page int) (*activity.Page, error) {
	pageURL, err := buildPageURL(c.endpoint, page, c.pageSize)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, pageURL)
}

// Fetch retrieves and decodes one page, making at most maxRetries attempts.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*activity.Page, error) {
	var (
		page    *activity.Page
		attempt int
	)

	err := retry.Do(
		func() error {
			attempt++
			p, err := c.fetchOnce(ctx, pageURL, attempt)
			if err != nil {
				return err
			}
			page = p
			return nil
		},
		retry.Attempts(uint(c.maxRetries)),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			delay := BackoffDelay(attempt, c.baseDelay)
			if c.observeDelay != nil {
				c.observeDelay(attempt, delay)
			}
			return delay
		}),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying feed fetch after error",
				"url", pageURL,
				"attempt", attempt,
				"next_delay", BackoffDelay(attempt, c.baseDelay).String(),
				"error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
	)
	if err != nil {
		c.logger.Warn("Feed fetch failed", "url", pageURL, "attempts", attempt, "error", err)
		return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
	}

	return page, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageURL string, attempt int) (*activity.Page, error) {
	c.logger.Debug("HTTP request starting",
		"method", "GET",
		"url", pageURL,
		"attempt", attempt)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "activityfeed/1.0")

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		metrics.RecordFetchAttempt("transport_error", duration.Seconds())
		c.logger.Warn("HTTP request failed",
			"url", pageURL,
			"attempt", attempt,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, &TransportError{URL: pageURL, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	c.logger.Debug("HTTP request completed",
		"url", pageURL,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.RecordFetchAttempt("http_error", duration.Seconds())
		c.logger.Warn("HTTP request returned non-2xx status", "url", pageURL, "status_code", resp.StatusCode, "attempt", attempt)
		return nil, &HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordFetchAttempt("transport_error", duration.Seconds())
		return nil, &TransportError{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}

	page, err := decodePage(pageURL, body)
	if err != nil {
		metrics.RecordFetchAttempt("invalid_response", duration.Seconds())
		c.logger.Warn("Malformed feed response", "url", pageURL, "attempt", attempt, "error", err)
		return nil, err
	}

	metrics.RecordFetchAttempt("success", duration.Seconds())
	c.logger.Info("Feed page fetched",
		"url", pageURL,
		"activities", len(page.Activities),
		"has_next", page.HasNext,
		"duration_ms", duration.Milliseconds())
	return page, nil
}

func buildPageURL(endpoint string, page, pageSize int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page must be >= 1, got %d", page)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
