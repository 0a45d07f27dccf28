// Package scgi implements the SCGI request framing spoken by rTorrent.
//
// A request is a netstring of NUL-separated header pairs followed by the body:
//
//	<len>:CONTENT_LENGTH\0<bodylen>\0SCGI\01\0,<body>
//
// CONTENT_LENGTH must be the first header and SCGI=1 must be present.
package scgi

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
)

// maxHeaderBlock bounds the netstring length accepted by ReadRequest.
const maxHeaderBlock = 64 * 1024

// ErrMalformed is returned for requests or responses that violate the framing.
var ErrMalformed = errors.New("scgi: malformed message")

// Frame wraps body in an SCGI request.
func Frame(body []byte) []byte {
	var headers bytes.Buffer
	headers.WriteString("CONTENT_LENGTH")
	headers.WriteByte(0)
	headers.WriteString(strconv.Itoa(len(body)))
	headers.WriteByte(0)
	headers.WriteString("SCGI")
	headers.WriteByte(0)
	headers.WriteString("1")
	headers.WriteByte(0)

	var out bytes.Buffer
	out.Grow(headers.Len() + len(body) + 16)
	out.WriteString(strconv.Itoa(headers.Len()))
	out.WriteByte(':')
	out.Write(headers.Bytes())
	out.WriteByte(',')
	out.Write(body)
	return out.Bytes()
}

// Request is a parsed SCGI request.
type Request struct {
	Headers       []Header
	ContentLength int
	Body          []byte
}

// Header is one name/value pair in header order.
type Header struct {
	Name  string
	Value string
}

// Get returns the first header value for name.
func (r *Request) Get(name string) string {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// ReadRequest parses one SCGI request from r.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	lenStr, err := r.ReadString(':')
	if err != nil {
		return nil, fmt.Errorf("read netstring length: %w", err)
	}
	blockLen, err := strconv.Atoi(strings.TrimSuffix(lenStr, ":"))
	if err != nil || blockLen <= 0 || blockLen > maxHeaderBlock {
		return nil, fmt.Errorf("%w: bad netstring length %q", ErrMalformed, lenStr)
	}

	block := make([]byte, blockLen)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, fmt.Errorf("read header block: %w", err)
	}
	comma, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read netstring terminator: %w", err)
	}
	if comma != ',' {
		return nil, fmt.Errorf("%w: missing ',' after header block", ErrMalformed)
	}

	headers, err := parseHeaders(block)
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 || headers[0].Name != "CONTENT_LENGTH" {
		return nil, fmt.Errorf("%w: CONTENT_LENGTH must be the first header", ErrMalformed)
	}
	req := &Request{Headers: headers}
	if req.Get("SCGI") != "1" {
		return nil, fmt.Errorf("%w: missing SCGI=1 header", ErrMalformed)
	}
	req.ContentLength, err = strconv.Atoi(headers[0].Value)
	if err != nil || req.ContentLength < 0 {
		return nil, fmt.Errorf("%w: bad CONTENT_LENGTH %q", ErrMalformed, headers[0].Value)
	}

	req.Body = make([]byte, req.ContentLength)
	if _, err := io.ReadFull(r, req.Body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return req, nil
}

func parseHeaders(block []byte) ([]Header, error) {
	if block[len(block)-1] != 0 {
		return nil, fmt.Errorf("%w: header block not NUL-terminated", ErrMalformed)
	}
	parts := bytes.Split(block[:len(block)-1], []byte{0})
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of header fields", ErrMalformed)
	}
	headers := make([]Header, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		headers = append(headers, Header{Name: string(parts[i]), Value: string(parts[i+1])})
	}
	return headers, nil
}

// ResponseHeader is the CGI-style header rTorrent writes before the XML body.
type ResponseHeader struct {
	Status        int
	ContentType   string
	ContentLength int // -1 when absent
}

// ReadResponseHeader consumes the response header block from r, leaving r at
// the first body byte.
func ReadResponseHeader(r *bufio.Reader) (*ResponseHeader, error) {
	tp := textproto.NewReader(r)
	mime, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("read response header: %w", err)
	}

	hdr := &ResponseHeader{Status: 200, ContentLength: -1, ContentType: mime.Get("Content-Type")}
	if s := mime.Get("Status"); s != "" {
		code, _, _ := strings.Cut(s, " ")
		hdr.Status, err = strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("%w: bad Status %q", ErrMalformed, s)
		}
	}
	if s := mime.Get("Content-Length"); s != "" {
		hdr.ContentLength, err = strconv.Atoi(s)
		if err != nil || hdr.ContentLength < 0 {
			return nil, fmt.Errorf("%w: bad Content-Length %q", ErrMalformed, s)
		}
	}
	return hdr, nil
}

// WriteResponse writes a CGI-style response as rTorrent does.
func WriteResponse(w io.Writer, body []byte) error {
	_, err := fmt.Fprintf(w, "Status: 200 OK\r\nContent-Type: text/xml\r\nContent-Length: %d\r\n\r\n", len(body))
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
