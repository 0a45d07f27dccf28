// Package props zips raw daemon rows into named records and computes the
// derived torrent fields shared by every backend.
package props

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/rate"
)

// Mode states whether a raw response describes one entity or many.
type Mode int

const (
	// Single means the response is one row of values for one entity.
	Single Mode = iota
	// Collection means the response is one row per entity.
	Collection
)

// Record is a named view of one raw row.
type Record map[string]any

// Zip aligns row with names positionally.
func Zip(names []string, row []any) (Record, error) {
	if len(row) != len(names) {
		return nil, fmt.Errorf("row has %d values, expected %d", len(row), len(names))
	}
	rec := make(Record, len(names))
	for i, name := range names {
		rec[name] = row[i]
	}
	return rec, nil
}

// ZipRows zips every row and keys the records by hashField. The returned
// order lists the hashes as the daemon sent them. Duplicate or empty hashes
// are rejected.
func ZipRows(names []string, rows [][]any, hashField string) (map[string]Record, []string, error) {
	byHash := make(map[string]Record, len(rows))
	order := make([]string, 0, len(rows))
	for i, row := range rows {
		rec, err := Zip(names, row)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		hash := rec.String(hashField)
		if hash == "" {
			return nil, nil, fmt.Errorf("row %d: empty %s", i, hashField)
		}
		if _, dup := byHash[hash]; dup {
			return nil, nil, fmt.Errorf("row %d: duplicate hash %s", i, hash)
		}
		byHash[hash] = rec
		order = append(order, hash)
	}
	return byHash, order, nil
}

// Result is the outcome of Unmap: exactly one of Record or Records is set,
// depending on the mode.
type Result struct {
	Record  Record
	Records map[string]Record
	Order   []string
}

// Unmap converts a decoded response into named records. In Single mode raw
// must be one row; in Collection mode a list of rows keyed by hashField.
func Unmap(mode Mode, names []string, raw any, hashField string) (Result, error) {
	switch mode {
	case Single:
		row, ok := raw.([]any)
		if !ok {
			return Result{}, fmt.Errorf("expected a row, got %T", raw)
		}
		rec, err := Zip(names, row)
		if err != nil {
			return Result{}, err
		}
		return Result{Record: rec}, nil
	case Collection:
		list, ok := raw.([]any)
		if !ok {
			return Result{}, fmt.Errorf("expected a list of rows, got %T", raw)
		}
		rows := make([][]any, len(list))
		for i, item := range list {
			row, ok := item.([]any)
			if !ok {
				return Result{}, fmt.Errorf("row %d: expected a row, got %T", i, item)
			}
			rows[i] = row
		}
		byHash, order, err := ZipRows(names, rows, hashField)
		if err != nil {
			return Result{}, err
		}
		return Result{Records: byHash, Order: order}, nil
	default:
		return Result{}, fmt.Errorf("unknown mode %d", mode)
	}
}

// Int64 reads an integer field. Daemons return numbers as int64, float64 or
// decimal strings; anything else reads as 0.
func (r Record) Int64(name string) int64 {
	switch v := r[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Float64 reads a floating point field.
func (r Record) Float64(name string) float64 {
	switch v := r[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// String reads a string field; numbers are formatted in base 10.
func (r Record) String(name string) string {
	switch v := r[name].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool reads a flag; rTorrent reports flags as 0/1 integers.
func (r Record) Bool(name string) bool {
	switch v := r[name].(type) {
	case bool:
		return v
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	default:
		return r.Int64(name) != 0
	}
}

// ClampDone keeps done within [0, size].
func ClampDone(done, size int64) int64 {
	if done < 0 {
		return 0
	}
	if size >= 0 && done > size {
		return size
	}
	return done
}

// PercentComplete returns done/size*100 rounded to two decimals, "0.00" when
// size is zero.
func PercentComplete(done, size int64) string {
	if size <= 0 {
		return "0.00"
	}
	pct := float64(ClampDone(done, size)) / float64(size) * 100
	return strconv.FormatFloat(math.Round(pct*100)/100, 'f', 2, 64)
}

// ETA returns the seconds until completion at downRate, or core.InfiniteETA
// when nothing is downloading.
func ETA(downRate, done, size int64) core.ETA {
	secs := rate.ETA(downRate, ClampDone(done, size), size)
	if secs < 0 {
		return core.InfiniteETA
	}
	return core.ETA{Seconds: secs}
}

// FormatRatio renders a ratio reported ×1000: two decimals below 10, one
// below 100, none above.
func FormatRatio(raw int64) string {
	r := float64(raw) / 1000
	switch {
	case r < 10:
		return strconv.FormatFloat(r, 'f', 2, 64)
	case r < 100:
		return strconv.FormatFloat(r, 'f', 1, 64)
	default:
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
}

// SplitTags splits a comma separated label list, trimming blanks.
func SplitTags(s string) []string {
	tags := []string{}
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Derive fills the computed fields of p from its raw counters.
func Derive(p *core.TorrentProperties, ratioRaw int64) {
	p.BytesDone = ClampDone(p.BytesDone, p.SizeBytes)
	p.PercentComplete = PercentComplete(p.BytesDone, p.SizeBytes)
	p.ETA = ETA(p.DownloadRate, p.BytesDone, p.SizeBytes)
	p.Ratio = float64(ratioRaw) / 1000
	p.RatioDisplay = FormatRatio(ratioRaw)
	if p.UploadRate < 0 {
		p.UploadRate = 0
	}
	if p.DownloadRate < 0 {
		p.DownloadRate = 0
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
}
