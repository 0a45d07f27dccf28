package rtorrent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/scgi"
	"github.com/vadimtrunov/torrentdeck/internal/xmlrpc"
)

// maxRawCapture bounds the response bytes kept for protocol error diagnosis.
const maxRawCapture = 64 * 1024

// caller performs one XML-RPC exchange.
type caller interface {
	Call(ctx context.Context, method string, params ...any) (any, error)
}

// Client speaks XML-RPC over SCGI to one rTorrent daemon. rTorrent answers
// one request per connection and carries no call identifiers, so exchanges
// are serialized.
type Client struct {
	network string // "tcp" or "unix"
	address string
	timeout time.Duration
	dialer  net.Dialer
	sem     chan struct{} // held for the duration of one exchange
	logger  *slog.Logger
}

var _ caller = (*Client)(nil)

// NewClient creates a client for the SCGI endpoint at address.
func NewClient(network, address string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if network == "" {
		network = "tcp"
	}
	return &Client{
		network: network,
		address: address,
		timeout: timeout,
		sem:     make(chan struct{}, 1),
		logger:  logger,
	}
}

// Call sends method with params and returns the decoded response value.
// Failures are *core.Error values: KindConnection for network problems,
// KindProtocol for malformed responses (raw bytes attached) and KindFault
// for faults reported by rTorrent.
func (c *Client) Call(ctx context.Context, method string, params ...any) (any, error) {
	body, err := xmlrpc.EncodeMethodCall(method, params...)
	if err != nil {
		return nil, core.NewValidationError("encode %s: %v", method, err)
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, core.NewConnectionError(method, ctx.Err())
	}
	defer func() { <-c.sem }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, core.NewConnectionError(method, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, core.NewConnectionError(method, err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if _, err := conn.Write(scgi.Frame(body)); err != nil {
		return nil, core.NewConnectionError(method, fmt.Errorf("write request: %w", err))
	}

	v, err := c.readResponse(method, bufio.NewReader(conn))
	c.logger.Debug("rtorrent call",
		slog.String("method", method),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", err == nil),
	)
	return v, err
}

func (c *Client) readResponse(method string, r *bufio.Reader) (any, error) {
	hdr, err := scgi.ReadResponseHeader(r)
	if err != nil {
		if errors.Is(err, scgi.ErrMalformed) {
			return nil, core.NewProtocolError(method, nil, err)
		}
		return nil, core.NewConnectionError(method, fmt.Errorf("read response: %w", err))
	}
	if hdr.Status != 200 {
		raw, _ := io.ReadAll(io.LimitReader(r, maxRawCapture))
		return nil, core.NewProtocolError(method, raw, fmt.Errorf("scgi status %d", hdr.Status))
	}

	var body io.Reader = r
	if hdr.ContentLength >= 0 {
		body = io.LimitReader(r, int64(hdr.ContentLength))
	}
	raw := &captureBuffer{limit: maxRawCapture}
	v, err := xmlrpc.NewDecoder(io.TeeReader(body, raw)).Decode()
	if err == nil {
		return v, nil
	}

	var fault *xmlrpc.Fault
	var parseErr *xmlrpc.ParseError
	switch {
	case errors.As(err, &fault):
		return nil, core.NewFault(method, fault.Code, fault.Message)
	case errors.As(err, &parseErr):
		// drain what is left so the raw payload is complete for diagnosis
		_, _ = io.Copy(raw, body)
		c.logger.Debug("malformed rtorrent response",
			slog.String("method", method),
			slog.String("raw", truncate(raw.Bytes(), 512)),
		)
		return nil, core.NewProtocolError(method, raw.Bytes(), parseErr)
	default:
		return nil, core.NewConnectionError(method, fmt.Errorf("read response: %w", err))
	}
}

// captureBuffer keeps the first limit bytes written to it and drops the rest.
type captureBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}

func (b *captureBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
