package xmlrpc

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fault is an XML-RPC fault response.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.Message)
}

// ParseError reports a response that is not well-formed XML-RPC.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "xmlrpc: malformed response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Decoder reads one XML-RPC document from a stream. The document may arrive
// in arbitrarily small chunks; the decoder pulls tokens as bytes become available.
type Decoder struct {
	xd *xml.Decoder
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	xd := xml.NewDecoder(r)
	xd.Strict = true
	return &Decoder{xd: xd}
}

// Decode reads a methodResponse. It returns the single response value, a
// *Fault for fault responses, or a *ParseError for malformed input.
//
// Values decode to: int64 (i4, i8, int), bool, float64, string (string,
// untyped, dateTime.iso8601), []byte (base64), []any (array),
// map[string]any (struct) and nil.
func (d *Decoder) Decode() (any, error) {
	v, err := d.decodeResponse()
	if err != nil {
		var te *transportError
		if errors.As(err, &te) {
			return nil, te.err
		}
		var fault *Fault
		if errors.As(err, &fault) {
			return nil, fault
		}
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, &ParseError{Err: err}
	}
	return v, nil
}

// DecodeMethodCall reads a methodCall and returns the method name and params.
func (d *Decoder) DecodeMethodCall() (string, []any, error) {
	method, params, err := d.decodeCall()
	if err != nil {
		var te *transportError
		if errors.As(err, &te) {
			return "", nil, te.err
		}
		var pe *ParseError
		if errors.As(err, &pe) {
			return "", nil, pe
		}
		return "", nil, &ParseError{Err: err}
	}
	return method, params, nil
}

func (d *Decoder) decodeResponse() (any, error) {
	if err := d.expectStart("methodResponse"); err != nil {
		return nil, err
	}
	se, err := d.nextStart()
	if err != nil {
		return nil, err
	}

	switch se.Name.Local {
	case "params":
		if err := d.expectStart("param"); err != nil {
			return nil, err
		}
		if err := d.expectStart("value"); err != nil {
			return nil, err
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		if err := d.expectEnds("param", "params", "methodResponse"); err != nil {
			return nil, err
		}
		return v, nil

	case "fault":
		if err := d.expectStart("value"); err != nil {
			return nil, err
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		if err := d.expectEnds("fault", "methodResponse"); err != nil {
			return nil, err
		}
		return nil, toFault(v)

	default:
		return nil, fmt.Errorf("unexpected element <%s> in methodResponse", se.Name.Local)
	}
}

func (d *Decoder) decodeCall() (string, []any, error) {
	if err := d.expectStart("methodCall"); err != nil {
		return "", nil, err
	}
	if err := d.expectStart("methodName"); err != nil {
		return "", nil, err
	}
	method, err := d.readText("methodName")
	if err != nil {
		return "", nil, err
	}

	var params []any
	tok, err := d.nextStartOrEnd()
	if err != nil {
		return "", nil, err
	}
	if se, ok := tok.(xml.StartElement); ok {
		if se.Name.Local != "params" {
			return "", nil, fmt.Errorf("unexpected element <%s> in methodCall", se.Name.Local)
		}
		for {
			tok, err := d.nextStartOrEnd()
			if err != nil {
				return "", nil, err
			}
			if _, ok := tok.(xml.EndElement); ok {
				break
			}
			if err := d.expectStart("value"); err != nil {
				return "", nil, err
			}
			v, err := d.decodeValue()
			if err != nil {
				return "", nil, err
			}
			params = append(params, v)
			if err := d.expectEnds("param"); err != nil {
				return "", nil, err
			}
		}
		if err := d.expectEnds("methodCall"); err != nil {
			return "", nil, err
		}
	}
	return method, params, nil
}

func toFault(v any) *Fault {
	f := &Fault{}
	m, ok := v.(map[string]any)
	if !ok {
		f.Message = fmt.Sprint(v)
		return f
	}
	switch c := m["faultCode"].(type) {
	case int64:
		f.Code = int(c)
	case string:
		f.Code, _ = strconv.Atoi(c)
	}
	if s, ok := m["faultString"].(string); ok {
		f.Message = s
	}
	return f
}

// decodeValue is called after <value> has been consumed and consumes </value>.
func (d *Decoder) decodeValue() (any, error) {
	var text strings.Builder
	for {
		tok, err := d.token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			// untyped value: string
			return text.String(), nil
		case xml.StartElement:
			if strings.TrimSpace(text.String()) != "" {
				return nil, fmt.Errorf("mixed content in <value>")
			}
			v, err := d.decodeTyped(t.Name.Local)
			if err != nil {
				return nil, err
			}
			if err := d.expectEnds("value"); err != nil {
				return nil, err
			}
			return v, nil
		}
	}
}

func (d *Decoder) decodeTyped(kind string) (any, error) {
	switch kind {
	case "i4", "i8", "int":
		s, err := d.readText(kind)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad <%s> %q: %w", kind, s, err)
		}
		return n, nil
	case "boolean":
		s, err := d.readText(kind)
		if err != nil {
			return nil, err
		}
		switch strings.TrimSpace(s) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		default:
			return nil, fmt.Errorf("bad <boolean> %q", s)
		}
	case "double":
		s, err := d.readText(kind)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("bad <double> %q: %w", s, err)
		}
		return f, nil
	case "string", "dateTime.iso8601":
		return d.readText(kind)
	case "base64":
		s, err := d.readText(kind)
		if err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
		if err != nil {
			return nil, fmt.Errorf("bad <base64>: %w", err)
		}
		return data, nil
	case "nil":
		if _, err := d.readText(kind); err != nil {
			return nil, err
		}
		return nil, nil
	case "array":
		return d.decodeArray()
	case "struct":
		return d.decodeStruct()
	default:
		return nil, fmt.Errorf("unknown value type <%s>", kind)
	}
}

func (d *Decoder) decodeArray() ([]any, error) {
	if err := d.expectStart("data"); err != nil {
		return nil, err
	}
	items := []any{}
	for {
		tok, err := d.nextStartOrEnd()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local != "data" {
				return nil, fmt.Errorf("unexpected </%s> in array", t.Name.Local)
			}
			if err := d.expectEnds("array"); err != nil {
				return nil, err
			}
			return items, nil
		case xml.StartElement:
			if t.Name.Local != "value" {
				return nil, fmt.Errorf("unexpected <%s> in array", t.Name.Local)
			}
			v, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
	}
}

func (d *Decoder) decodeStruct() (map[string]any, error) {
	members := map[string]any{}
	for {
		tok, err := d.nextStartOrEnd()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local != "struct" {
				return nil, fmt.Errorf("unexpected </%s> in struct", t.Name.Local)
			}
			return members, nil
		case xml.StartElement:
			if t.Name.Local != "member" {
				return nil, fmt.Errorf("unexpected <%s> in struct", t.Name.Local)
			}
			if err := d.expectStart("name"); err != nil {
				return nil, err
			}
			name, err := d.readText("name")
			if err != nil {
				return nil, err
			}
			if err := d.expectStart("value"); err != nil {
				return nil, err
			}
			v, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			members[name] = v
			if err := d.expectEnds("member"); err != nil {
				return nil, err
			}
		}
	}
}

// token returns the next token, translating io.EOF into an unexpected-EOF parse error.
func (d *Decoder) token() (xml.Token, error) {
	tok, err := d.xd.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Err: io.ErrUnexpectedEOF}
		}
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, &ParseError{Err: err}
		}
		return nil, &transportError{err: err}
	}
	return tok, nil
}

// transportError carries a read failure of the underlying stream, which
// Decode returns as is rather than as a ParseError.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

// nextStartOrEnd skips whitespace, comments and processing instructions.
func (d *Decoder) nextStartOrEnd() (xml.Token, error) {
	for {
		tok, err := d.token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement, xml.EndElement:
			return t, nil
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return nil, fmt.Errorf("unexpected text %q", strings.TrimSpace(string(t)))
			}
		}
	}
}

func (d *Decoder) nextStart() (xml.StartElement, error) {
	tok, err := d.nextStartOrEnd()
	if err != nil {
		return xml.StartElement{}, err
	}
	se, ok := tok.(xml.StartElement)
	if !ok {
		return xml.StartElement{}, fmt.Errorf("unexpected </%s>", tok.(xml.EndElement).Name.Local)
	}
	return se, nil
}

func (d *Decoder) expectStart(name string) error {
	se, err := d.nextStart()
	if err != nil {
		return err
	}
	if se.Name.Local != name {
		return fmt.Errorf("expected <%s>, got <%s>", name, se.Name.Local)
	}
	return nil
}

func (d *Decoder) expectEnds(names ...string) error {
	for _, name := range names {
		tok, err := d.nextStartOrEnd()
		if err != nil {
			return err
		}
		ee, ok := tok.(xml.EndElement)
		if !ok || ee.Name.Local != name {
			return fmt.Errorf("expected </%s>", name)
		}
	}
	return nil
}

// readText collects character data up to the closing tag of name.
func (d *Decoder) readText(name string) (string, error) {
	var text strings.Builder
	for {
		tok, err := d.token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name.Local != name {
				return "", fmt.Errorf("expected </%s>, got </%s>", name, t.Name.Local)
			}
			return text.String(), nil
		case xml.StartElement:
			return "", fmt.Errorf("unexpected <%s> inside <%s>", t.Name.Local, name)
		}
	}
}
