// Package normalizer converts raw tabular batches into the canonical sales,
// product and customer shapes.
package normalizer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"salesetl/internal/table"
	"salesetl/pkg/utils"
)

// Normalization errors.
var (
	ErrColumnCollision = errors.New("columns collide after name standardization")
)

// Normalizer turns a raw batch into a canonical batch.
type Normalizer interface {
	Transform(raw *table.Batch) (*table.Batch, error)
}

var names = utils.NewStringHelper()

// standardize returns a copy of b with lower-cased, trimmed, underscored column names.
func standardize(b *table.Batch) (*table.Batch, error) {
	cols := b.Columns()
	mapped := make([]string, len(cols))
	seen := make(map[string]string, len(cols))

	for i, c := range cols {
		std := names.StandardizeColumn(c)
		if prev, ok := seen[std]; ok {
			return nil, fmt.Errorf("%w: %q and %q both become %q", ErrColumnCollision, prev, c, std)
		}

		seen[std] = c
		mapped[i] = std
	}

	out := table.New(mapped...)
	out.Source = b.Source

	for i := 0; i < b.Len(); i++ {
		src := b.Row(i)
		row := make(table.Row, len(cols))

		for j, c := range cols {
			if v, ok := src[c]; ok {
				row[mapped[j]] = v
			}
		}

		out.Append(row)
	}

	return out, nil
}

// coerce rewrites every cell of col with fn.
func coerce(b *table.Batch, col string, fn func(table.Value) table.Value) {
	if !b.Has(col) {
		return
	}

	for i := 0; i < b.Len(); i++ {
		b.Set(i, col, fn(b.Get(i, col)))
	}
}

// project copies the listed columns into a new batch.
func project(b *table.Batch, cols []string) *table.Batch {
	out := table.New(cols...)
	out.Source = b.Source

	for i := 0; i < b.Len(); i++ {
		src := b.Row(i)
		row := make(table.Row, len(cols))

		for _, c := range cols {
			row[c] = src[c]
		}

		out.Append(row)
	}

	return out
}

// present filters cols down to those in b.
func present(b *table.Batch, cols ...string) []string {
	var out []string

	for _, c := range cols {
		if b.Has(c) {
			out = append(out, c)
		}
	}

	return out
}

// dropNullKeys removes rows whose col is null.
func dropNullKeys(b *table.Batch, col string) *table.Batch {
	return b.Select(func(r table.Row) bool { return !r[col].IsNull() })
}

// number reads a numeric cell.
func number(r table.Row, col string) (float64, bool) {
	return r[col].Float()
}

// aggregate holds per-identity rollups computed from transaction rows.
type aggregate struct {
	first, last time.Time
	orders      map[string]bool
	revenue     float64
	quantity    float64
	rows        int
}

// rollup groups transaction rows by idCol. Null identities are skipped.
func rollup(sales *table.Batch, idCol, revenueCol string) map[string]*aggregate {
	out := make(map[string]*aggregate)

	for i := 0; i < sales.Len(); i++ {
		r := sales.Row(i)
		if r[idCol].IsNull() {
			continue
		}

		key := r[idCol].Key()

		agg, ok := out[key]
		if !ok {
			agg = &aggregate{orders: make(map[string]bool)}
			out[key] = agg
		}

		agg.rows++

		if oid := r["order_id"]; !oid.IsNull() {
			agg.orders[oid.Key()] = true
		}

		if q, ok := table.ToNumber(r["quantity"]).Float(); ok {
			agg.quantity += q
		}

		if revenueCol != "" {
			if v, ok := table.ToNumber(r[revenueCol]).Float(); ok {
				agg.revenue += v
			}
		}

		if t, ok := table.ToTime(r["order_date"]).When(); ok {
			if agg.first.IsZero() || t.Before(agg.first) {
				agg.first = t
			}

			if agg.last.IsZero() || t.After(agg.last) {
				agg.last = t
			}
		}
	}

	return out
}

// orderCount is distinct orders when order ids exist, else the row count.
func (a *aggregate) orderCount(hasOrderID bool) float64 {
	if hasOrderID {
		return float64(len(a.orders))
	}

	return float64(a.rows)
}

// fillZero replaces nulls in the listed columns with 0.
func fillZero(b *table.Batch, cols ...string) {
	for _, c := range present(b, cols...) {
		for i := 0; i < b.Len(); i++ {
			if b.Get(i, c).IsNull() {
				b.Set(i, c, table.Num(0))
			}
		}
	}
}

// wholeDays floors a duration to whole days.
func wholeDays(d time.Duration) float64 {
	return math.Floor(d.Hours() / 24)
}

// revenueColumn prefers final_price over total_price.
func revenueColumn(b *table.Batch) string {
	return b.First("final_price", "total_price")
}

// containsFold reports whether s contains substr ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
