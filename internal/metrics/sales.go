package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"salesetl/internal/table"
)

// orderTotals sums a per-row column by order_id, skipping null orders.
func orderTotals(b *table.Batch, xs []float64) []float64 {
	sums := make(map[string]float64)

	var order []string

	for i := 0; i < b.Len(); i++ {
		oid := b.Get(i, "order_id")
		if oid.IsNull() {
			continue
		}

		k := oid.Key()
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}

		if !math.IsNaN(xs[i]) {
			sums[k] += xs[i]
		}
	}

	out := make([]float64, len(order))
	for i, k := range order {
		out[i] = sums[k]
	}

	return out
}

// distinct counts the distinct non-null values among the given rows of col.
func distinct(b *table.Batch, col string, rows []int) int {
	seen := make(map[string]bool)

	for _, i := range rows {
		v := b.Get(i, col)
		if !v.IsNull() {
			seen[v.Key()] = true
		}
	}

	return len(seen)
}

func allRows(b *table.Batch) []int {
	out := make([]int, b.Len())
	for i := range out {
		out[i] = i
	}

	return out
}

func (e *Engine) salesMetrics(sales *table.Batch) (*table.Batch, error) {
	s := newSummary()

	var (
		revenue    []float64
		totalRev   float64
		hasRevenue bool
		err        error
	)

	if col := revenueColumn(sales); col != "" {
		if revenue, err = numbers(sales, col); err != nil {
			return nil, err
		}

		totalRev = table.Sum(revenue)
		hasRevenue = true
		s.num("total_revenue", totalRev)
	}

	hasOrders := sales.Has("order_id")
	if hasOrders {
		s.count("total_orders", distinct(sales, "order_id", allRows(sales)))

		if hasRevenue {
			s.num("average_order_value", table.Mean(orderTotals(sales, revenue)))
		}
	}

	if sales.Has("quantity") {
		qty, err := numbers(sales, "quantity")
		if err != nil {
			return nil, err
		}

		s.num("total_units_sold", table.Sum(qty))

		if hasOrders {
			s.num("average_units_per_order", table.Mean(orderTotals(sales, qty)))
		}
	}

	means := []struct{ col, name string }{
		{"is_returned", "return_rate"},
		{"shipping_cost", "average_shipping_cost"},
		{"processing_time_days", "average_processing_time"},
	}

	for _, m := range means {
		if !sales.Has(m.col) {
			continue
		}

		xs, err := numbers(sales, m.col)
		if err != nil {
			return nil, err
		}

		s.num(m.name, table.Mean(xs))
	}

	pairs := []struct{ col, total, mean, extra, extraName string }{
		{"discount", "total_discounts", "average_discount", "discount_percentage", "average_discount_percentage"},
		{"tax", "total_tax", "average_tax", "", ""},
		{"profit", "total_profit", "average_profit", "profit_margin", "average_profit_margin"},
	}

	for _, p := range pairs {
		if !sales.Has(p.col) {
			continue
		}

		xs, err := numbers(sales, p.col)
		if err != nil {
			return nil, err
		}

		s.num(p.total, table.Sum(xs))
		s.num(p.mean, table.Mean(xs))

		if p.extra != "" && sales.Has(p.extra) {
			ys, err := numbers(sales, p.extra)
			if err != nil {
				return nil, err
			}

			s.num(p.extraName, table.Mean(ys))
		}

		if p.col == "profit" && hasRevenue {
			s.num("profit_margin", table.Ratio(table.Sum(xs), totalRev))
		}
	}

	for _, col := range []string{"payment_method", "shipping_method"} {
		if !sales.Has(col) {
			continue
		}

		prefix := col[:len(col)-len("_method")]
		counts, total := valueCounts(sales.Column(col))

		for _, lc := range counts {
			s.num(prefix+"_"+names.Slug(lc.label), percent(float64(lc.count), float64(total)))
		}
	}

	return s.batch(SalesMetrics), nil
}

// day accumulates one calendar day of sales.
type day struct {
	date    time.Time
	revenue float64
	orders  map[string]bool
	rows    int
	units   float64
}

func (e *Engine) timeMetrics(sales *table.Batch) (*table.Batch, error) {
	revCol := revenueColumn(sales)
	if revCol == "" {
		e.log.Warn("no revenue column, skipping time metrics", "source", sales.Source)
		return nil, nil
	}

	revenue, err := numbers(sales, revCol)
	if err != nil {
		return nil, err
	}

	var qty []float64
	if sales.Has("quantity") {
		if qty, err = numbers(sales, "quantity"); err != nil {
			return nil, err
		}
	}

	hasOrders := sales.Has("order_id")
	days := make(map[string]*day)

	for i := 0; i < sales.Len(); i++ {
		t, ok := table.ToTime(sales.Get(i, "order_date")).When()
		if !ok {
			continue
		}

		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		k := date.Format(time.DateOnly)

		d, ok := days[k]
		if !ok {
			d = &day{date: date, orders: make(map[string]bool)}
			days[k] = d
		}

		d.rows++

		if !math.IsNaN(revenue[i]) {
			d.revenue += revenue[i]
		}

		if hasOrders {
			if oid := sales.Get(i, "order_id"); !oid.IsNull() {
				d.orders[oid.Key()] = true
			}
		}

		if qty == nil {
			d.units++
		} else if !math.IsNaN(qty[i]) {
			d.units += qty[i]
		}
	}

	if len(days) == 0 {
		e.log.Warn("no parseable order dates, skipping time metrics", "source", sales.Source)
		return nil, nil
	}

	series := make([]*day, 0, len(days))
	for _, d := range days {
		series = append(series, d)
	}

	sort.Slice(series, func(i, j int) bool { return series[i].date.Before(series[j].date) })

	n := len(series)
	rev := make([]float64, n)
	ord := make([]float64, n)
	units := make([]float64, n)

	for i, d := range series {
		rev[i] = d.revenue
		units[i] = d.units

		if hasOrders {
			ord[i] = float64(len(d.orders))
		} else {
			ord[i] = float64(d.rows)
		}
	}

	w := e.th.RollingWindow
	dates := make([]time.Time, n)

	for i, d := range series {
		dates[i] = d.date
	}

	cols := []string{
		"order_date", "daily_revenue", "daily_orders", "daily_units",
		fmt.Sprintf("revenue_%dd_avg", w), fmt.Sprintf("orders_%dd_avg", w), fmt.Sprintf("units_%dd_avg", w),
		"mtd_revenue", "mtd_orders", "mtd_units",
		"revenue_daily_change", "orders_daily_change", "units_daily_change",
		"revenue_wow_change", "orders_wow_change", "units_wow_change",
	}

	values := [][]float64{
		rev, ord, units,
		rolling(rev, w), rolling(ord, w), rolling(units, w),
		monthToDate(dates, rev), monthToDate(dates, ord), monthToDate(dates, units),
		change(rev, 1), change(ord, 1), change(units, 1),
		change(rev, 7), change(ord, 7), change(units, 7),
	}

	out := table.New(cols...)
	out.Source = TimeMetrics

	for i := 0; i < n; i++ {
		row := table.Row{"order_date": table.Time(dates[i])}
		for j, xs := range values {
			row[cols[j+1]] = table.Num(table.Round(xs[i], 2))
		}

		out.Append(row)
	}

	return out, nil
}

// rolling is the trailing mean over up to w rows.
func rolling(xs []float64, w int) []float64 {
	out := make([]float64, len(xs))
	sum := 0.0

	for i, x := range xs {
		sum += x
		if i >= w {
			sum -= xs[i-w]
		}

		out[i] = sum / float64(min(i+1, w))
	}

	return out
}

// monthToDate is the running sum reset at each calendar month.
func monthToDate(dates []time.Time, xs []float64) []float64 {
	out := make([]float64, len(xs))
	sum := 0.0

	for i, x := range xs {
		if i > 0 && (dates[i].Year() != dates[i-1].Year() || dates[i].Month() != dates[i-1].Month()) {
			sum = 0
		}

		sum += x
		out[i] = sum
	}

	return out
}

// change is the percent change against the row lag positions earlier.
// Rows without history or with a zero base are 0.
func change(xs []float64, lag int) []float64 {
	out := make([]float64, len(xs))

	for i := lag; i < len(xs); i++ {
		if xs[i-lag] == 0 {
			continue
		}

		out[i] = (xs[i]/xs[i-lag] - 1) * 100
	}

	return out
}
