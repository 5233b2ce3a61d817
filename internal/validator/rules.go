package validator

import (
	"math"
	"time"

	"salesetl/internal/table"
)

// coerce converts numeric-looking and date-named columns to their proper kinds.
func (p *pass) coerce() {
	for _, col := range p.b.Columns() {
		switch {
		case containsAny(col, "price", "cost", "amount", "value"):
			p.coerceColumn(col, table.KindNumber, table.ToNumber, RuleCoerceNumeric,
				"Converted column '%s' to numeric, %d non-numeric values were set to null")
		case containsAny(col, "date"):
			p.coerceColumn(col, table.KindTime, table.ToTime, RuleCoerceDate,
				"Converted column '%s' to dates, %d invalid dates were set to null")
		}
	}
}

func (p *pass) coerceColumn(col string, want table.Kind, fn func(table.Value) table.Value, rule, msg string) {
	if k := p.b.Kind(col); k == want || k == table.KindNull {
		return
	}

	var lost []int

	for i := 0; i < p.b.Len(); i++ {
		before := p.b.Get(i, col)
		after := fn(before)

		if !before.IsNull() && after.IsNull() {
			lost = append(lost, i)
		}

		p.b.Set(i, col, after)
	}

	if len(lost) > 0 {
		p.finding(msg, col, len(lost))
		p.record(rule, col, lost, nil)
	}
}

// fillMissing repairs columns whose missing fraction is below the threshold.
func (p *pass) fillMissing() {
	total := p.b.Len()

	for _, col := range p.b.Columns() {
		var missing []int

		for i := 0; i < total; i++ {
			if p.b.Get(i, col).IsNull() {
				missing = append(missing, i)
			}
		}

		if len(missing) == 0 {
			continue
		}

		frac := float64(len(missing)) / float64(total)
		if frac >= p.th.MaxMissingFraction {
			p.finding("Column '%s' has %.2f%% missing values (above threshold of %.2f%%)",
				col, frac*100, p.th.MaxMissingFraction*100)
			p.record(RuleMissingValues, col, missing, nil)

			continue
		}

		switch p.b.Kind(col) {
		case table.KindNumber:
			fill := table.Num(0)

			if !containsAny(col, "price", "cost", "value") {
				xs, err := p.b.Floats(col)
				if err == nil {
					fill = table.Num(table.Mean(xs))
				}
			}

			for _, i := range missing {
				p.b.Set(i, col, fill)
			}
		case table.KindTime:
			fillAdjacent(p.b, col)
		default:
			for _, i := range missing {
				p.b.Set(i, col, table.Str("Unknown"))
			}
		}

		p.record(RuleMissingValues, col, nil, missing)
	}
}

// fillAdjacent fills nulls with the previous value, then leading nulls with the next.
func fillAdjacent(b *table.Batch, col string) {
	var last table.Value

	for i := 0; i < b.Len(); i++ {
		if v := b.Get(i, col); !v.IsNull() {
			last = v
		} else if !last.IsNull() {
			b.Set(i, col, last)
		}
	}

	var next table.Value

	for i := b.Len() - 1; i >= 0; i-- {
		if v := b.Get(i, col); !v.IsNull() {
			next = v
		} else if !next.IsNull() {
			b.Set(i, col, next)
		}
	}
}

// absNegative flips negative numbers in col and returns the touched rows.
func (p *pass) absNegative(col string) []int {
	var rows []int

	for i := 0; i < p.b.Len(); i++ {
		if f, ok := p.b.Get(i, col).Float(); ok && f < 0 {
			p.b.Set(i, col, table.Num(math.Abs(f)))
			rows = append(rows, i)
		}
	}

	return rows
}

func (p *pass) negativeValues() {
	for _, col := range p.b.Columns() {
		if !containsAny(col, "price", "cost") || p.b.Kind(col) != table.KindNumber {
			continue
		}

		if rows := p.absNegative(col); len(rows) > 0 {
			p.finding("Found %d negative values in '%s'", len(rows), col)
			p.record(RuleNegativeValue, col, rows, rows)
		}
	}
}

func (p *pass) negativeQuantity() {
	if p.b.Kind("quantity") != table.KindNumber {
		return
	}

	if rows := p.absNegative("quantity"); len(rows) > 0 {
		p.finding("Found %d negative values in '%s'", len(rows), "quantity")
		p.record(RuleNegativeQuantity, "quantity", rows, rows)
	}
}

// orderValueRange flags revenue outside [min, max] without changing it.
func (p *pass) orderValueRange() {
	col := p.b.First("final_price", "total_price")
	if col == "" || p.b.Kind(col) != table.KindNumber {
		return
	}

	var low, high []int

	for i := 0; i < p.b.Len(); i++ {
		f, ok := p.b.Get(i, col).Float()
		if !ok {
			continue
		}

		switch {
		case f < p.th.MinOrderValue:
			low = append(low, i)
		case f > p.th.MaxOrderValue:
			high = append(high, i)
		}
	}

	if len(low) > 0 {
		p.finding("Found %d orders with suspiciously low value (< %g)", len(low), p.th.MinOrderValue)
	}

	if len(high) > 0 {
		p.finding("Found %d orders with suspiciously high value (> %g)", len(high), p.th.MaxOrderValue)
	}

	if len(low)+len(high) > 0 {
		p.record(RuleOrderValueRange, col, append(low, high...), nil)
	}
}

// futureDates flags dates after today, compared by calendar day.
func (p *pass) futureDates() {
	y, m, d := p.today.Date()
	tomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, p.today.Location())

	for _, col := range p.b.Columns() {
		if !containsAny(col, "date") || p.b.Kind(col) != table.KindTime {
			continue
		}

		var rows []int

		for i := 0; i < p.b.Len(); i++ {
			if t, ok := p.b.Get(i, col).When(); ok && !t.Before(tomorrow) {
				rows = append(rows, i)
			}
		}

		if len(rows) > 0 {
			p.finding("Found %d future dates in '%s'", len(rows), col)
			p.record(RuleFutureDate, col, rows, nil)
		}
	}
}

// shipBeforeOrder swaps ship_date and order_date where shipping precedes the order.
func (p *pass) shipBeforeOrder() {
	if p.b.Kind("order_date") != table.KindTime || p.b.Kind("ship_date") != table.KindTime {
		return
	}

	var rows []int

	for i := 0; i < p.b.Len(); i++ {
		order, ok1 := p.b.Get(i, "order_date").When()
		ship, ok2 := p.b.Get(i, "ship_date").When()

		if ok1 && ok2 && ship.Before(order) {
			p.b.Set(i, "order_date", table.Time(ship))
			p.b.Set(i, "ship_date", table.Time(order))
			rows = append(rows, i)
		}
	}

	if len(rows) > 0 {
		p.finding("Found %d records where ship_date is before order_date", len(rows))
		p.record(RuleShipBeforeOrder, "ship_date", rows, rows)
	}
}
