package rtorrent

import (
	"fmt"

	"github.com/vadimtrunov/torrentdeck/internal/xmlrpc"
)

// listParams builds the d.multicall parameters for a collection query: the
// view selector followed by the zero-argument accessors, in field order.
func listParams(view string, fields []field) []any {
	params := make([]any, 0, len(fields)+1)
	params = append(params, view)
	for _, f := range fields {
		params = append(params, f.accessor())
	}
	return params
}

// batch is an ordered system.multicall request. Results come back in the
// order calls were added.
type batch struct {
	calls []any
}

func newBatch() *batch {
	return &batch{}
}

func (b *batch) add(method string, params ...any) {
	if params == nil {
		params = []any{}
	}
	b.calls = append(b.calls, map[string]any{
		"methodName": method,
		"params":     params,
	})
}

func (b *batch) len() int {
	return len(b.calls)
}

// params returns the single system.multicall argument.
func (b *batch) params() []any {
	return []any{b.calls}
}

// unwrapMulticall splits a system.multicall response into one value per call
// and one fault per call. Successful results arrive wrapped in a one-element
// array, failed ones as a fault struct.
func unwrapMulticall(raw any, n int) ([]any, []*xmlrpc.Fault, error) {
	results, ok := raw.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("system.multicall: expected array, got %T", raw)
	}
	if len(results) != n {
		return nil, nil, fmt.Errorf("system.multicall: %d results for %d calls", len(results), n)
	}

	values := make([]any, n)
	faults := make([]*xmlrpc.Fault, n)
	for i, res := range results {
		switch r := res.(type) {
		case []any:
			if len(r) != 1 {
				return nil, nil, fmt.Errorf("system.multicall: result %d has %d values", i, len(r))
			}
			values[i] = r[0]
		case map[string]any:
			faults[i] = faultFromStruct(r)
		default:
			return nil, nil, fmt.Errorf("system.multicall: result %d: unexpected %T", i, res)
		}
	}
	return values, faults, nil
}

func faultFromStruct(m map[string]any) *xmlrpc.Fault {
	f := &xmlrpc.Fault{}
	if code, ok := m["faultCode"].(int64); ok {
		f.Code = int(code)
	}
	if msg, ok := m["faultString"].(string); ok {
		f.Message = msg
	}
	return f
}
