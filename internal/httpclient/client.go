// Package httpclient is the HTTP transport shared by the REST and JSON-RPC
// backends: timeouts, a per-instance request rate cap and bounded retries.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	"github.com/vadimtrunov/torrentdeck/internal/core"
)

// maxErrorBody bounds the response bytes attached to status errors.
const maxErrorBody = 4 * 1024

// Config holds retry, timeout and rate configuration.
type Config struct {
	MaxRetries        int // total attempts, at least 1
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Timeout           time.Duration
	RequestsPerSecond int // 0 disables the rate cap
}

// DefaultConfig returns sensible defaults. Polls are retried by the poll
// loop, so a request is attempted once unless configured otherwise.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 1,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Timeout:    10 * time.Second,
	}
}

// Client wraps http.Client with rate limiting and retry logic.
type Client struct {
	http    *http.Client
	config  Config
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

// New creates a new Client with a default http.Client.
func New(cfg Config, logger *slog.Logger) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// NewWithHTTPClient creates a Client with a custom http.Client (e.g. for cookie jars).
func NewWithHTTPClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}
	return &Client{
		http:    httpClient,
		config:  cfg,
		limiter: limiter,
		logger:  logger,
	}
}

// Do executes an HTTP request with retry logic.
// Retries on 429, and for idempotent methods on 500, 502, 503, 504 and
// transient network errors. Transport failures are returned as
// core.KindConnection errors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	op := req.Method + " " + req.URL.Path
	var lastErr error
	var lastResp *http.Response

	for attempt := range c.config.MaxRetries {
		if attempt > 0 {
			if err := c.waitBeforeRetry(req.Context(), attempt, lastResp, req.URL.String()); err != nil {
				return nil, core.NewConnectionError(op, err)
			}
			if err := replayBody(req); err != nil {
				return nil, err
			}
		}

		c.limiter.Take()
		resp, err := c.http.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, core.NewConnectionError(op, req.Context().Err())
			}
			if !isIdempotent(req.Method) {
				return nil, core.NewConnectionError(op, err)
			}
			lastErr = err
			lastResp = nil
			continue
		}

		if attempt == c.config.MaxRetries-1 || !shouldRetry(resp.StatusCode, req.Method) {
			return resp, nil
		}

		lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.String())
		lastResp = resp
		DrainAndClose(resp.Body)
	}

	return nil, core.NewConnectionError(op, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries, lastErr))
}

// StatusError converts an unexpected HTTP status into the error taxonomy:
// 5xx and 429 mean the daemon is unavailable, other codes are faults
// carrying the status code and a capped body excerpt.
func StatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return core.NewConnectionError(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg))
	}
	return core.NewFault(op, resp.StatusCode, msg)
}

// DrainAndClose reads the rest of body and closes it so the connection can be reused.
func DrainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}

func (c *Client) waitBeforeRetry(ctx context.Context, attempt int, lastResp *http.Response, url string) error {
	delay := c.backoff(attempt)
	if d := retryAfterDelay(lastResp); d > delay {
		delay = d
	}
	if delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}

	c.logger.Debug("retrying request",
		slog.Int("attempt", attempt+1),
		slog.String("delay", delay.String()),
		slog.String("url", url),
	)

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryAfterDelay(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	seconds, err := strconv.Atoi(ra)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func replayBody(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to replay request body: %w", err)
	}
	req.Body = body
	return nil
}

// isIdempotent returns true for HTTP methods that are safe to retry.
func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// shouldRetry returns true for status codes that warrant a retry.
// Non-idempotent methods (POST, PATCH) are only retried on 429 (rate limit)
// to avoid duplicate side effects.
func shouldRetry(statusCode int, method string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if !isIdempotent(method) {
		return false
	}
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoff calculates the delay for a given attempt with jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.config.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.config.MaxDelay) {
		delay = float64(c.config.MaxDelay)
	}
	jitter := delay * 0.2 * rand.Float64() // #nosec G404
	return time.Duration(delay + jitter)
}
