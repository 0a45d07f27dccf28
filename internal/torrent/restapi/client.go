package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/httpclient"
)

// Client is a bearer-token JSON client for the daemon's /api/v1 surface.
type Client struct {
	baseURL string
	token   string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewClient creates a client for baseURL, e.g. http://host:8080.
func NewClient(baseURL, token string, cfg httpclient.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpclient.New(cfg, logger),
		logger:  logger,
	}
}

// get fetches path and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post sends payload as JSON. result may be nil when the body is ignored.
func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	return c.do(ctx, http.MethodPost, path, payload, result)
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return core.NewValidationError("encode %s: %v", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer httpclient.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.StatusError(path, resp)
	}
	if result == nil {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.NewConnectionError(path, fmt.Errorf("read response: %w", err))
	}
	if err := json.Unmarshal(raw, result); err != nil {
		c.logger.Debug("malformed response", slog.String("path", path), slog.Int("bytes", len(raw)))
		return core.NewProtocolError(path, raw, err)
	}
	return nil
}
