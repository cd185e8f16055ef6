package wfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/UnknownOlympus/muniflow/internal/metrics"
	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrFetchFailed is returned once every attempt of a fetch has failed.
var ErrFetchFailed = errors.New("feature service fetch failed")

// maxErrorBody caps how much of an error response ends up in the error message.
const maxErrorBody = 512

// ClientConfig holds the settings of a feature service client.
type ClientConfig struct {
	BaseURL string           // BaseURL of the GeoServer; DefaultServer when empty.
	Timeout time.Duration    // Timeout of a single HTTP request.
	Retry   RetryPolicy      // Retry bounds the attempts of one Fetch.
	Limiter *rate.Limiter    // Limiter, when set, gates every attempt (shared between workers).
	Clock   clockwork.Clock  // Clock drives retry pauses; the real clock when nil.
	Metrics *metrics.Metrics // Metrics records request outcomes.
	Logger  *slog.Logger     // Logger for logging operations.
}

// Client fetches counter readings from the feature service.
type Client struct {
	client  HTTPClient
	baseURL string
	retry   RetryPolicy
	limiter *rate.Limiter
	clock   clockwork.Clock
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewClient creates a feature service client backed by a net/http client.
func NewClient(cfg ClientConfig) *Client {
	return NewClientWithHTTPClient(&http.Client{Timeout: cfg.Timeout}, cfg)
}

// NewClientWithHTTPClient creates a client with a custom HTTP client.
// Useful for testing with mocked HTTP clients.
func NewClientWithHTTPClient(client HTTPClient, cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultServer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Client{
		client:  client,
		baseURL: baseURL,
		retry:   cfg.Retry,
		limiter: cfg.Limiter,
		clock:   clock,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
}

// Fetch runs the query, retrying failed attempts according to the retry policy.
// A response without features is a valid, empty result. Once every attempt
// has failed the returned error wraps ErrFetchFailed; a cancelled context
// aborts immediately with the context error.
func (c *Client) Fetch(ctx context.Context, query QuerySpec) ([]models.TrafficPoint, error) {
	attempts := c.retry.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		points, err := c.fetchOnce(ctx, query)
		if err == nil {
			return points, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		c.log.WarnContext(ctx, "Feature service request failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)

		if attempt < attempts {
			if err = c.pause(ctx, c.retry.Delay(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFetchFailed, attempts, lastErr)
}

// fetchOnce performs a single GetFeature request without retry logic.
func (c *Client) fetchOnce(ctx context.Context, query QuerySpec) ([]models.TrafficPoint, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	reqURL.RawQuery = query.Values().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", OutputFormat)

	c.log.DebugContext(ctx, "Feature service request", "cql_filter", query.CQLFilter)

	startTime := c.clock.Now()
	points, err := c.do(req)
	c.metrics.FetchSeconds.Observe(c.clock.Since(startTime).Seconds())
	if err != nil {
		c.metrics.FetchAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.FetchAttempts.WithLabelValues("success").Inc()

	return points, nil
}

func (c *Client) do(req *http.Request) ([]models.TrafficPoint, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute feature request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("feature service returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return c.decodeFeatures(req.Context(), body)
}

func (c *Client) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}
