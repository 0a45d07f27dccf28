package qbittorrent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/httpclient"
)

// Client is an authenticated session with the qBittorrent Web API.
type Client struct {
	baseURL  string
	username string
	password string
	http     *httpclient.Client
	mu       sync.Mutex
	loggedIn bool
	logger   *slog.Logger
}

// NewClient creates a new qBittorrent Web API client.
func NewClient(baseURL, username, password string, cfg httpclient.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Jar:     jar,
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     httpclient.NewWithHTTPClient(cfg, httpClient, logger),
		logger:   logger,
	}, nil
}

// login authenticates with the qBittorrent Web API.
func (c *Client) login(ctx context.Context) error {
	data := url.Values{
		"username": {c.username},
		"password": {c.password},
	}

	u := c.baseURL + "/api/v2/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// qBittorrent rejects logins without a matching Referer when CSRF protection is on
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer httpclient.DrainAndClose(resp.Body)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return core.NewFault("login", resp.StatusCode, "login failed: "+strings.TrimSpace(string(body)))
	}

	c.loggedIn = true
	return nil
}

// ensureLoggedIn logs in to qBittorrent if not already authenticated.
func (c *Client) ensureLoggedIn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loggedIn {
		return c.login(ctx)
	}
	return nil
}

// doWithAuth executes a request with authentication, re-logging in on 403.
func (c *Client) doWithAuth(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	// Session expired, re-login and retry once
	httpclient.DrainAndClose(resp.Body)

	c.mu.Lock()
	c.loggedIn = false
	loginErr := c.login(ctx)
	c.mu.Unlock()
	if loginErr != nil {
		return nil, fmt.Errorf("re-login failed: %w", loginErr)
	}
	c.logger.Debug("qbittorrent session renewed")

	// Replay the body for POST requests
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay body: %w", err)
		}
		req.Body = body
	}

	return c.http.Do(req)
}

// getJSON performs an authenticated GET request and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, result any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return core.NewValidationError("invalid URL: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.doWithAuth(ctx, req)
	if err != nil {
		return err
	}
	defer httpclient.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return httpclient.StatusError(path, resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.NewConnectionError(path, fmt.Errorf("read response: %w", err))
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return core.NewProtocolError(path, raw, err)
	}
	return nil
}

// errNotFound marks a 404, used to detect endpoints missing on older versions.
var errNotFound = errors.New("endpoint not found")

// postForm performs an authenticated POST request with form-encoded data.
func (c *Client) postForm(ctx context.Context, path string, data url.Values) error {
	body := data.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
	return c.send(ctx, path, req)
}

// filePart is one file of a multipart upload.
type filePart struct {
	name string
	data []byte
}

// postMultipart performs an authenticated multipart POST, as torrents/add requires.
func (c *Client) postMultipart(ctx context.Context, path string, fields url.Values, files []filePart) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			if err := w.WriteField(key, v); err != nil {
				return fmt.Errorf("write field %s: %w", key, err)
			}
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile("torrents", f.name)
		if err != nil {
			return fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(f.data); err != nil {
			return fmt.Errorf("write file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	payload := buf.Bytes()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	return c.send(ctx, path, req)
}

func (c *Client) send(ctx context.Context, path string, req *http.Request) error {
	resp, err := c.doWithAuth(ctx, req)
	if err != nil {
		return err
	}
	defer httpclient.DrainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, errors.Join(errNotFound, httpclient.StatusError(path, resp)))
	default:
		return httpclient.StatusError(path, resp)
	}
}
