package table

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Batch errors.
var (
	ErrColumnExists   = errors.New("column already exists")
	ErrColumnNotFound = errors.New("column not found")
	ErrNonNumeric     = errors.New("column holds non-numeric values")
	ErrMalformedBatch = errors.New("malformed batch")
)

// Row maps column names to cells. A missing key reads as null.
type Row map[string]Value

// Batch is an ordered set of named columns and rows of typed cells.
// Components that change a batch they did not create must Clone it first.
type Batch struct {
	Source  string
	index   map[string]int
	columns []string
	rows    []Row
}

// New creates an empty batch with the given columns.
func New(columns ...string) *Batch {
	b := &Batch{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		b.AddColumn(c)
	}

	return b
}

// FromRecords builds a batch from plain Go records. Values are converted with Of.
func FromRecords(columns []string, records []map[string]any) *Batch {
	b := New(columns...)

	for _, rec := range records {
		row := make(Row, len(columns))
		for _, c := range columns {
			row[c] = Of(rec[c])
		}

		b.rows = append(b.rows, row)
	}

	return b
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}

	return len(b.rows)
}

// Empty reports whether the batch is nil or has no rows.
func (b *Batch) Empty() bool {
	return b.Len() == 0
}

// Columns returns a copy of the column names in order.
func (b *Batch) Columns() []string {
	if b == nil {
		return nil
	}

	return slices.Clone(b.columns)
}

// Has reports whether the column exists.
func (b *Batch) Has(col string) bool {
	if b == nil {
		return false
	}

	_, ok := b.index[col]

	return ok
}

// HasAll reports whether every listed column exists.
func (b *Batch) HasAll(cols ...string) bool {
	for _, c := range cols {
		if !b.Has(c) {
			return false
		}
	}

	return true
}

// First returns the first of cols present in the batch, or "".
func (b *Batch) First(cols ...string) string {
	for _, c := range cols {
		if b.Has(c) {
			return c
		}
	}

	return ""
}

// Get returns the cell at row i, column col.
func (b *Batch) Get(i int, col string) Value {
	return b.rows[i][col]
}

// Set writes a cell, adding the column when needed.
func (b *Batch) Set(i int, col string, v Value) {
	b.AddColumn(col)
	b.rows[i][col] = v
}

// Row returns row i. The returned map must not be modified.
func (b *Batch) Row(i int) Row {
	return b.rows[i]
}

// Append adds a row. Unknown keys become new columns in sorted order.
func (b *Batch) Append(r Row) {
	extra := make([]string, 0)

	for k := range r {
		if !b.Has(k) {
			extra = append(extra, k)
		}
	}

	sort.Strings(extra)

	for _, k := range extra {
		b.AddColumn(k)
	}

	row := make(Row, len(r))
	for k, v := range r {
		row[k] = v
	}

	b.rows = append(b.rows, row)
}

// AddColumn appends a null-filled column. It is a no-op when the column exists.
func (b *Batch) AddColumn(col string) {
	if b.index == nil {
		b.index = make(map[string]int)
	}

	if _, ok := b.index[col]; ok {
		return
	}

	b.index[col] = len(b.columns)
	b.columns = append(b.columns, col)
}

// Rename changes a column name in place.
func (b *Batch) Rename(from, to string) error {
	if from == to {
		return nil
	}

	pos, ok := b.index[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrColumnNotFound, from)
	}

	if b.Has(to) {
		return fmt.Errorf("%w: %s", ErrColumnExists, to)
	}

	b.columns[pos] = to
	delete(b.index, from)
	b.index[to] = pos

	for _, r := range b.rows {
		if v, ok := r[from]; ok {
			r[to] = v
			delete(r, from)
		}
	}

	return nil
}

// Drop removes columns. Unknown names are ignored.
func (b *Batch) Drop(cols ...string) {
	for _, col := range cols {
		pos, ok := b.index[col]
		if !ok {
			continue
		}

		b.columns = slices.Delete(b.columns, pos, pos+1)
		delete(b.index, col)

		for i := pos; i < len(b.columns); i++ {
			b.index[b.columns[i]] = i
		}

		for _, r := range b.rows {
			delete(r, col)
		}
	}
}

// Clone returns a deep copy.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return New()
	}

	out := &Batch{
		Source:  b.Source,
		columns: slices.Clone(b.columns),
		index:   make(map[string]int, len(b.index)),
		rows:    make([]Row, len(b.rows)),
	}

	for k, v := range b.index {
		out.index[k] = v
	}

	for i, r := range b.rows {
		row := make(Row, len(r))
		for k, v := range r {
			row[k] = v
		}

		out.rows[i] = row
	}

	return out
}

// Column returns the cells of one column.
func (b *Batch) Column(col string) []Value {
	out := make([]Value, b.Len())
	for i := range out {
		out[i] = b.rows[i][col]
	}

	return out
}

// Floats returns the column as float64 with NaN for nulls.
// Any non-null, non-numeric cell is an error.
func (b *Batch) Floats(col string) ([]float64, error) {
	out := make([]float64, b.Len())

	for i := range out {
		v := b.rows[i][col]
		switch v.kind {
		case KindNull:
			out[i] = math.NaN()
		case KindNumber:
			out[i] = v.num
		default:
			return nil, fmt.Errorf("%w: %s row %d holds %s", ErrNonNumeric, col, i, v.kind)
		}
	}

	return out, nil
}

// Kind infers the column kind from its non-null cells.
// Mixed columns report KindString, all-null columns KindNull.
func (b *Batch) Kind(col string) Kind {
	kind := KindNull

	for _, r := range b.rows {
		v := r[col]
		if v.IsNull() {
			continue
		}

		if kind == KindNull {
			kind = v.kind

			continue
		}

		if kind != v.kind {
			return KindString
		}
	}

	return kind
}

// SortStable reorders rows by less, keeping the order of equal rows.
func (b *Batch) SortStable(less func(a, b Row) bool) {
	sort.SliceStable(b.rows, func(i, j int) bool {
		return less(b.rows[i], b.rows[j])
	})
}

// Select returns a new batch holding copies of the rows matching keep.
func (b *Batch) Select(keep func(Row) bool) *Batch {
	out := New(b.columns...)
	out.Source = b.Source

	for _, r := range b.rows {
		if keep(r) {
			out.Append(r)
		}
	}

	return out
}

// DistinctBy returns a copy keeping the first row for each key of col.
// Null is a key of its own.
func (b *Batch) DistinctBy(col string) *Batch {
	seen := make(map[string]bool, b.Len())

	return b.Select(func(r Row) bool {
		k := r[col].Key()
		if seen[k] {
			return false
		}

		seen[k] = true

		return true
	})
}

// Group is one set of rows sharing the same key values.
type Group struct {
	Key  []Value
	Rows []int
}

// GroupBy partitions row indexes by the given columns.
// Groups are returned in first-appearance order.
func (b *Batch) GroupBy(cols ...string) []Group {
	pos := make(map[string]int)

	var groups []Group

	for i, r := range b.rows {
		key := make([]Value, len(cols))
		id := ""

		for j, c := range cols {
			key[j] = r[c]
			id += r[c].Key() + "\x1f"
		}

		g, ok := pos[id]
		if !ok {
			g = len(groups)
			pos[id] = g
			groups = append(groups, Group{Key: key})
		}

		groups[g].Rows = append(groups[g].Rows, i)
	}

	return groups
}

// Check verifies the column index and that rows only use declared columns.
func (b *Batch) Check() error {
	if b == nil {
		return nil
	}

	if len(b.index) != len(b.columns) {
		return fmt.Errorf("%w: duplicate column names", ErrMalformedBatch)
	}

	for i, c := range b.columns {
		if b.index[c] != i {
			return fmt.Errorf("%w: column index out of sync for %s", ErrMalformedBatch, c)
		}
	}

	for i, r := range b.rows {
		for k := range r {
			if _, ok := b.index[k]; !ok {
				return fmt.Errorf("%w: row %d has undeclared column %s", ErrMalformedBatch, i, k)
			}
		}
	}

	return nil
}

// Records returns the rows as plain Go maps, nil for null cells.
func (b *Batch) Records() []map[string]any {
	out := make([]map[string]any, b.Len())

	for i, r := range b.rows {
		rec := make(map[string]any, len(b.columns))
		for _, c := range b.columns {
			rec[c] = r[c].Interface()
		}

		out[i] = rec
	}

	return out
}
