// Package frame provides the small tabular model that flows between
// retrieval pipeline stages: query frames in, scored and ranked result
// frames out.
package frame

import (
	"fmt"
	"slices"
	"sort"
)

// Well-known column names.
const (
	ColQID      = "qid"
	ColQuery    = "query"
	ColDocNo    = "docno"
	ColScore    = "score"
	ColRank     = "rank"
	ColText     = "text"
	ColToks     = "toks"
	ColQueryTok = "query_toks"
	ColDocVec   = "doc_vec"
	ColQueryVec = "query_vec"
)

// CanonicalOrder is the leading column order of result frames.
var CanonicalOrder = []string{ColQID, ColQuery, ColDocNo, ColScore, ColRank}

// Row is a single record keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Frame is an ordered set of rows with an ordered column list.
// Rows may omit columns; a missing value reads as nil.
type Frame struct {
	Columns []string
	Rows    []Row
}

// New creates an empty frame with the given columns.
func New(columns ...string) *Frame {
	f := &Frame{}
	for _, c := range columns {
		f.addColumn(c)
	}
	return f
}

// FromRows creates a frame from rows. Columns listed first keep their order;
// any other keys found in rows are appended in sorted order per row.
func FromRows(columns []string, rows []Row) *Frame {
	f := New(columns...)
	for _, r := range rows {
		f.Append(r)
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// HasColumn reports whether the column exists.
func (f *Frame) HasColumn(name string) bool {
	return slices.Contains(f.Columns, name)
}

// HasColumns reports whether all columns exist.
func (f *Frame) HasColumns(names ...string) bool {
	for _, n := range names {
		if !f.HasColumn(n) {
			return false
		}
	}
	return true
}

func (f *Frame) addColumn(name string) {
	if !f.HasColumn(name) {
		f.Columns = append(f.Columns, name)
	}
}

// Append adds a row. Keys not yet known become new columns.
func (f *Frame) Append(r Row) {
	if len(r) > 0 {
		keys := make([]string, 0, len(r))
		for k := range r {
			if !f.HasColumn(k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			f.addColumn(k)
		}
	}
	f.Rows = append(f.Rows, r)
}

// Column returns the values of a column in row order.
func (f *Frame) Column(name string) []any {
	out := make([]any, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r[name]
	}
	return out
}

// Strings returns a column as strings. Non-string values are formatted.
func (f *Frame) Strings(name string) []string {
	out := make([]string, len(f.Rows))
	for i := range f.Rows {
		out[i] = f.String(i, name)
	}
	return out
}

// String returns a cell as a string.
func (f *Frame) String(row int, name string) string {
	switch v := f.Rows[row][name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Float returns a cell as a float64. Missing or non-numeric values read as 0.
func (f *Frame) Float(row int, name string) float64 {
	return toFloat(f.Rows[row][name])
}

// Assign sets a column to the given values, adding it if needed.
func (f *Frame) Assign(name string, values []any) error {
	if len(values) != len(f.Rows) {
		return fmt.Errorf("assign %q: %d values for %d rows", name, len(values), len(f.Rows))
	}
	f.addColumn(name)
	for i, r := range f.Rows {
		r[name] = values[i]
	}
	return nil
}

// Broadcast sets a column to the same value on every row.
func (f *Frame) Broadcast(name string, value any) {
	f.addColumn(name)
	for _, r := range f.Rows {
		r[name] = value
	}
}

// Copy returns a frame with cloned rows.
func (f *Frame) Copy() *Frame {
	out := New(f.Columns...)
	out.Rows = make([]Row, len(f.Rows))
	for i, r := range f.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Concat joins frames row-wise. Columns appear in first-seen order.
func Concat(frames ...*Frame) *Frame {
	out := New()
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, c := range f.Columns {
			out.addColumn(c)
		}
		out.Rows = append(out.Rows, f.Rows...)
	}
	return out
}

// Reorder moves the leading columns that exist to the front, keeping the
// remaining columns in their current order.
func (f *Frame) Reorder(leading ...string) {
	cols := make([]string, 0, len(f.Columns))
	for _, c := range leading {
		if f.HasColumn(c) && !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	for _, c := range f.Columns {
		if !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	f.Columns = cols
}

// SortByScore sorts rows by descending score. Ties keep their order.
func (f *Frame) SortByScore() {
	sort.SliceStable(f.Rows, func(i, j int) bool {
		return toFloat(f.Rows[i][ColScore]) > toFloat(f.Rows[j][ColScore])
	})
}

// AssignRanks sets rank to 0..n-1 in the current row order.
func (f *Frame) AssignRanks() {
	f.addColumn(ColRank)
	for i, r := range f.Rows {
		r[ColRank] = i
	}
}

// GroupBy splits the frame by a column, groups in first-appearance order.
// Group frames share rows with f.
func (f *Frame) GroupBy(name string) []*Frame {
	var (
		order  []string
		groups = make(map[string]*Frame)
	)
	for i, r := range f.Rows {
		key := f.String(i, name)
		g, ok := groups[key]
		if !ok {
			g = New(f.Columns...)
			groups[key] = g
			order = append(order, key)
		}
		g.Rows = append(g.Rows, r)
	}
	out := make([]*Frame, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return 0
	}
}
