package transmission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/httpclient"
)

// sessionHeader carries Transmission's CSRF token.
const sessionHeader = "X-Transmission-Session-Id"

// Client speaks JSON-RPC 2.0 to one Transmission daemon.
type Client struct {
	endpoint string
	username string
	password string
	http     *httpclient.Client

	mu        sync.Mutex
	sessionID string

	logger *slog.Logger
}

// NewClient creates a client for the RPC endpoint, e.g. http://host:9091/transmission/rpc.
func NewClient(endpoint, username, password string, cfg httpclient.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		username: username,
		password: password,
		http:     httpclient.New(cfg, logger),
		logger:   logger,
	}
}

// Call invokes method with args and decodes the result into reply. A 409
// answer refreshes the session id and the call is sent once more.
func (c *Client) Call(ctx context.Context, method string, args, reply any) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return core.NewValidationError("encode %s: %v", method, err)
	}

	resp, err := c.post(ctx, method, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusConflict {
		id := resp.Header.Get(sessionHeader)
		httpclient.DrainAndClose(resp.Body)
		if id == "" {
			return core.NewProtocolError(method, nil, errors.New("409 without session id"))
		}
		c.setSessionID(id)
		c.logger.Debug("transmission session id refreshed")
		if resp, err = c.post(ctx, method, body); err != nil {
			return err
		}
	}
	defer httpclient.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return httpclient.StatusError(method, resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.NewConnectionError(method, fmt.Errorf("read response: %w", err))
	}
	if err := json2.DecodeClientResponse(bytes.NewReader(raw), reply); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return core.NewFault(method, int(rpcErr.Code), rpcErr.Message)
		}
		return core.NewProtocolError(method, raw, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := c.getSessionID(); id != "" {
		req.Header.Set(sessionHeader, id)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.http.Do(req)
}

func (c *Client) getSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}
