// Package xmlrpc encodes XML-RPC method calls and decodes responses from a stream.
package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"
)

const xmlHeader = `<?xml version="1.0"?>`

// EncodeMethodCall serializes a method call.
//
// Supported parameter types: integers, bool, float, string, []byte (base64),
// slices and arrays of supported types, maps with string keys (struct) and nil.
func EncodeMethodCall(method string, params ...any) ([]byte, error) {
	if !utf8.ValidString(method) {
		return nil, fmt.Errorf("xmlrpc: method name is not valid UTF-8")
	}
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&b, []byte(method)); err != nil {
		return nil, err
	}
	b.WriteString("</methodName><params>")
	for i, p := range params {
		b.WriteString("<param>")
		if err := encodeValue(&b, p); err != nil {
			return nil, fmt.Errorf("xmlrpc: param %d: %w", i, err)
		}
		b.WriteString("</param>")
	}
	b.WriteString("</params></methodCall>")
	return b.Bytes(), nil
}

// EncodeResponse serializes a successful method response carrying v.
func EncodeResponse(v any) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString("<methodResponse><params><param>")
	if err := encodeValue(&b, v); err != nil {
		return nil, fmt.Errorf("xmlrpc: response: %w", err)
	}
	b.WriteString("</param></params></methodResponse>")
	return b.Bytes(), nil
}

// EncodeFault serializes a fault response.
func EncodeFault(f *Fault) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString("<methodResponse><fault>")
	err := encodeValue(&b, map[string]any{
		"faultCode":   f.Code,
		"faultString": f.Message,
	})
	if err != nil {
		return nil, err
	}
	b.WriteString("</fault></methodResponse>")
	return b.Bytes(), nil
}

func encodeValue(b *bytes.Buffer, v any) error {
	b.WriteString("<value>")
	if err := encodeInner(b, v); err != nil {
		return err
	}
	b.WriteString("</value>")
	return nil
}

func encodeInner(b *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("<nil/>")
	case string:
		return encodeString(b, x)
	case bool:
		if x {
			b.WriteString("<boolean>1</boolean>")
		} else {
			b.WriteString("<boolean>0</boolean>")
		}
	case int:
		encodeInt(b, int64(x))
	case int8:
		encodeInt(b, int64(x))
	case int16:
		encodeInt(b, int64(x))
	case int32:
		encodeInt(b, int64(x))
	case int64:
		encodeInt(b, x)
	case uint8:
		encodeInt(b, int64(x))
	case uint16:
		encodeInt(b, int64(x))
	case uint32:
		encodeInt(b, int64(x))
	case float32:
		return encodeFloat(b, float64(x))
	case float64:
		return encodeFloat(b, x)
	case []byte:
		b.WriteString("<base64>")
		b.WriteString(base64.StdEncoding.EncodeToString(x))
		b.WriteString("</base64>")
	case []any:
		b.WriteString("<array><data>")
		for _, item := range x {
			if err := encodeValue(b, item); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
	case map[string]any:
		return encodeStruct(b, x)
	default:
		return encodeReflect(b, reflect.ValueOf(v))
	}
	return nil
}

func encodeString(b *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("string is not valid UTF-8")
	}
	b.WriteString("<string>")
	if err := xml.EscapeText(b, []byte(s)); err != nil {
		return err
	}
	b.WriteString("</string>")
	return nil
}

func encodeInt(b *bytes.Buffer, n int64) {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		b.WriteString("<i4>")
		b.WriteString(strconv.FormatInt(n, 10))
		b.WriteString("</i4>")
		return
	}
	b.WriteString("<i8>")
	b.WriteString(strconv.FormatInt(n, 10))
	b.WriteString("</i8>")
}

func encodeFloat(b *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("double %v is not representable", f)
	}
	b.WriteString("<double>")
	b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	b.WriteString("</double>")
	return nil
}

func encodeStruct(b *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("<struct>")
	for _, k := range keys {
		if !utf8.ValidString(k) {
			return fmt.Errorf("member name is not valid UTF-8")
		}
		b.WriteString("<member><name>")
		if err := xml.EscapeText(b, []byte(k)); err != nil {
			return err
		}
		b.WriteString("</name>")
		if err := encodeValue(b, m[k]); err != nil {
			return fmt.Errorf("member %q: %w", k, err)
		}
		b.WriteString("</member>")
	}
	b.WriteString("</struct>")
	return nil
}

// encodeReflect handles typed slices ([]string, []int64, [][]any...) and
// string-keyed maps that the type switch does not cover.
func encodeReflect(b *bytes.Buffer, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		b.WriteString("<array><data>")
		for i := range rv.Len() {
			if err := encodeValue(b, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
		return nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return encodeStruct(b, m)
	case reflect.String:
		return encodeString(b, rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		encodeInt(b, rv.Int())
		return nil
	default:
		return fmt.Errorf("unsupported type %T", rv.Interface())
	}
}
