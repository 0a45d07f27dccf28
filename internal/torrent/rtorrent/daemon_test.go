package rtorrent

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/scgi"
	"github.com/vadimtrunov/torrentdeck/internal/xmlrpc"
)

// fakeTorrent is one download held by fakeDaemon.
type fakeTorrent struct {
	hash, name                   string
	hashing, open, active, done  int64
	complete                     int64
	upRate, downRate             int64
	upTotal, downTotal           int64
	size, ratio, priority, peers int64
	custom1, directory, message  string
	basePath, addTime            string
	trackers                     [][]any
}

// fakeDaemon is an in-process rTorrent speaking SCGI + XML-RPC on a loopback
// listener.
type fakeDaemon struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	torrents map[string]*fakeTorrent
	order    []string
	methods  []string
	loaded   [][]any
	executed [][]any

	rawResponse []byte        // when set, returned verbatim for every request
	delay       time.Duration // per exchange
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeDaemon(t *testing.T, torrents ...*fakeTorrent) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDaemon{t: t, ln: ln, torrents: map[string]*fakeTorrent{}}
	for _, tr := range torrents {
		d.torrents[tr.hash] = tr
		d.order = append(d.order, tr.hash)
	}
	go d.serve()
	t.Cleanup(func() { ln.Close() })
	return d
}

func (d *fakeDaemon) addr() string {
	return d.ln.Addr().String()
}

func (d *fakeDaemon) adapter() *Adapter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(Options{Name: "seedbox", Address: d.addr(), Timeout: 2 * time.Second}, logger)
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
	return a
}

func (d *fakeDaemon) calledMethods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.methods...)
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDaemon) handle(conn net.Conn) {
	defer conn.Close()

	n := d.inFlight.Add(1)
	// released before the response is written, so the client cannot start
	// its next exchange while this one still counts as in flight
	finish := sync.OnceFunc(func() { d.inFlight.Add(-1) })
	defer finish()
	for {
		cur := d.maxInFlight.Load()
		if n <= cur || d.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	req, err := scgi.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		d.t.Errorf("fake daemon: read request: %v", err)
		return
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.rawResponse != nil {
		finish()
		_ = scgi.WriteResponse(conn, d.rawResponse)
		return
	}

	method, params, err := xmlrpc.NewDecoder(strings.NewReader(string(req.Body))).DecodeMethodCall()
	if err != nil {
		d.t.Errorf("fake daemon: decode call: %v", err)
		return
	}

	d.mu.Lock()
	v, fault := d.dispatch(method, params)
	d.mu.Unlock()

	var body []byte
	if fault != nil {
		body, err = xmlrpc.EncodeFault(fault)
	} else {
		body, err = xmlrpc.EncodeResponse(v)
	}
	if err != nil {
		d.t.Errorf("fake daemon: encode: %v", err)
		return
	}
	finish()
	_ = scgi.WriteResponse(conn, body)
}

func noHash() *xmlrpc.Fault {
	return &xmlrpc.Fault{Code: -501, Message: "Could not find info-hash."}
}

// dispatch runs with d.mu held.
func (d *fakeDaemon) dispatch(method string, params []any) (any, *xmlrpc.Fault) {
	d.methods = append(d.methods, method)

	switch method {
	case "system.multicall":
		calls, _ := params[0].([]any)
		results := make([]any, 0, len(calls))
		for _, c := range calls {
			m := c.(map[string]any)
			v, fault := d.dispatch(m["methodName"].(string), m["params"].([]any))
			if fault != nil {
				results = append(results, map[string]any{"faultCode": fault.Code, "faultString": fault.Message})
				continue
			}
			results = append(results, []any{v})
		}
		return results, nil

	case "d.multicall":
		rows := make([]any, 0, len(d.order))
		for _, hash := range d.order {
			row := make([]any, 0, len(params)-1)
			for _, acc := range params[1:] {
				name, arg, _ := strings.Cut(acc.(string), "=")
				v, fault := d.get(d.torrents[hash], name, arg)
				if fault != nil {
					return nil, fault
				}
				row = append(row, v)
			}
			rows = append(rows, row)
		}
		return rows, nil

	case "t.multicall":
		tr, ok := d.torrents[params[0].(string)]
		if !ok {
			return nil, noHash()
		}
		rows := make([]any, 0, len(tr.trackers))
		for _, row := range tr.trackers {
			rows = append(rows, row)
		}
		return rows, nil

	case "get_up_rate":
		return int64(100), nil
	case "get_down_rate":
		return int64(2000), nil
	case "get_up_total":
		return int64(5 << 30), nil
	case "get_down_total":
		return int64(7 << 30), nil
	case "get_upload_rate":
		return int64(0), nil
	case "get_download_rate":
		return int64(1 << 20), nil

	case "load.start", "load.normal", "load.raw", "load.raw_start":
		d.loaded = append(d.loaded, append([]any{method}, params...))
		return int64(0), nil
	case "execute":
		d.executed = append(d.executed, params)
		return int64(0), nil
	case "f.set_priority":
		hash, _, _ := strings.Cut(params[0].(string), ":")
		if _, ok := d.torrents[hash]; !ok {
			return nil, noHash()
		}
		return int64(0), nil
	}

	if len(params) == 0 {
		return nil, &xmlrpc.Fault{Code: -506, Message: "Method '" + method + "' not defined"}
	}
	hash, _ := params[0].(string)
	tr, ok := d.torrents[hash]
	if !ok {
		return nil, noHash()
	}

	switch method {
	case "d.open":
		tr.open = 1
	case "d.close":
		tr.open = 0
	case "d.start":
		tr.active = 1
	case "d.stop":
		tr.active = 0
	case "d.check_hash":
		tr.hashing = 1
	case "d.erase":
		delete(d.torrents, hash)
		for i, h := range d.order {
			if h == hash {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	case "d.set_custom1":
		tr.custom1 = params[1].(string)
	case "d.set_priority":
		tr.priority = params[1].(int64)
	case "d.set_directory", "d.set_directory_base":
		tr.directory = params[1].(string)
	case "d.update_priorities":
	default:
		arg := ""
		if len(params) > 1 {
			arg, _ = params[1].(string)
		}
		return d.get(tr, method, arg)
	}
	return int64(0), nil
}

func (d *fakeDaemon) get(tr *fakeTorrent, name, arg string) (any, *xmlrpc.Fault) {
	switch name {
	case "d.get_hash":
		return tr.hash, nil
	case "d.get_name":
		return tr.name, nil
	case "d.is_hash_checking":
		return tr.hashing, nil
	case "d.is_open":
		return tr.open, nil
	case "d.is_active":
		return tr.active, nil
	case "d.get_complete":
		return tr.complete, nil
	case "d.get_up_rate":
		return tr.upRate, nil
	case "d.get_down_rate":
		return tr.downRate, nil
	case "d.get_up_total":
		return tr.upTotal, nil
	case "d.get_down_total":
		return tr.downTotal, nil
	case "d.get_bytes_done":
		return tr.done, nil
	case "d.get_size_bytes":
		return tr.size, nil
	case "d.get_ratio":
		return tr.ratio, nil
	case "d.get_custom1":
		return tr.custom1, nil
	case "d.get_priority":
		return tr.priority, nil
	case "d.get_directory":
		return tr.directory, nil
	case "d.get_message":
		return tr.message, nil
	case "d.get_peers_connected":
		return tr.peers, nil
	case "d.get_base_path":
		return tr.basePath, nil
	case "d.get_custom":
		if arg == "addtime" {
			return tr.addTime, nil
		}
		return "", nil
	default:
		return nil, &xmlrpc.Fault{Code: -506, Message: "Method '" + name + "' not defined"}
	}
}
