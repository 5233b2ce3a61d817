package normalizer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// FinancialColumns are coerced to numbers before any derivation.
var FinancialColumns = []string{
	"quantity", "unit_price", "unit_cost", "total_price", "discount",
	"tax", "shipping_cost", "final_price", "total_cost",
}

// aovBins are the right-closed order total buckets.
var aovBins = []bucket{
	{20, "0-20"},
	{50, "21-50"},
	{100, "51-100"},
	{200, "101-200"},
	{500, "201-500"},
	{1000, "501-1000"},
	{math.Inf(1), "1000+"},
}

type bucket struct {
	upper float64
	label string
}

// bucketFor returns the label of the right-closed bin holding x, "" when x <= 0.
func bucketFor(bins []bucket, x float64) string {
	if x <= 0 {
		return ""
	}

	for _, b := range bins {
		if x <= b.upper {
			return b.label
		}
	}

	return ""
}

// numericHints are derived columns filled with 0 even when entirely null.
var numericHints = map[string]bool{
	"order_year": true, "order_month": true, "order_day": true, "order_dayofweek": true,
	"order_quarter": true, "order_week": true, "processing_time_days": true,
	"profit": true, "profit_margin": true, "discount_percentage": true,
	"order_total": true, "customer_order_number": true,
}

// SalesNormalizer converts raw transaction rows into the canonical sales shape.
type SalesNormalizer struct {
	log *logger.Logger
	now func() time.Time
}

// NewSalesNormalizer creates a new sales normalizer.
func NewSalesNormalizer(log *logger.Logger) *SalesNormalizer {
	return &SalesNormalizer{log: log, now: time.Now}
}

// Transform returns the canonical sales batch. Empty input yields an empty batch.
func (n *SalesNormalizer) Transform(raw *table.Batch) (*table.Batch, error) {
	if raw.Empty() {
		n.log.Warn("no sales data to transform")
		return table.New(), nil
	}

	b, err := n.transform(raw)
	if err != nil {
		n.log.Error("sales transform failed", "source", raw.Source, "error", err)
		return nil, fmt.Errorf("sales transform: %w", err)
	}

	n.log.Info("sales transform complete",
		"source", raw.Source, "rows_in", raw.Len(), "rows_out", b.Len(), "columns", len(b.Columns()))

	return b, nil
}

func (n *SalesNormalizer) transform(raw *table.Batch) (*table.Batch, error) {
	if err := raw.Check(); err != nil {
		return nil, err
	}

	b, err := standardize(raw)
	if err != nil {
		return nil, err
	}

	var dateCols []string

	for _, c := range b.Columns() {
		if strings.Contains(c, "date") {
			dateCols = append(dateCols, c)
			coerce(b, c, table.ToTime)
		}
	}

	if b.Has("order_date") {
		addCalendarParts(b)
	}

	if b.HasAll("order_date", "ship_date") {
		addProcessingTime(b)
	}

	for _, c := range FinancialColumns {
		coerce(b, c, table.ToNumber)
	}

	deriveFinancials(b)

	if b.HasAll("order_id", "final_price") {
		addOrderTotals(b)
	}

	if b.Has("status") {
		for i := 0; i < b.Len(); i++ {
			s, ok := b.Get(i, "status").Text()
			b.Set(i, "is_returned", table.Bool(ok && containsFold(s, "return")))
		}
	}

	if b.Has("country") {
		for i := 0; i < b.Len(); i++ {
			s, ok := b.Get(i, "country").Text()
			b.Set(i, "is_international", table.Bool(!ok || s != "USA"))
		}
	}

	if b.HasAll("customer_id", "order_date") {
		addCustomerSequence(b)
	}

	n.fillMissing(b, dateCols)

	return b, nil
}

func addCalendarParts(b *table.Batch) {
	for i := 0; i < b.Len(); i++ {
		t, ok := b.Get(i, "order_date").When()
		if !ok {
			for _, c := range []string{"order_year", "order_month", "order_day", "order_dayofweek", "order_quarter", "order_week"} {
				b.Set(i, c, table.Null())
			}

			continue
		}

		_, week := t.ISOWeek()
		b.Set(i, "order_year", table.Num(float64(t.Year())))
		b.Set(i, "order_month", table.Num(float64(t.Month())))
		b.Set(i, "order_day", table.Num(float64(t.Day())))
		b.Set(i, "order_dayofweek", table.Num(float64((int(t.Weekday())+6)%7)))
		b.Set(i, "order_quarter", table.Num(float64((int(t.Month())-1)/3+1)))
		b.Set(i, "order_week", table.Num(float64(week)))
	}
}

func addProcessingTime(b *table.Batch) {
	for i := 0; i < b.Len(); i++ {
		order, ok1 := b.Get(i, "order_date").When()
		ship, ok2 := b.Get(i, "ship_date").When()

		if !ok1 || !ok2 {
			b.Set(i, "processing_time_days", table.Null())
			continue
		}

		days := table.Round(ship.Sub(order).Hours()/24, 1)

		switch {
		case days < 0:
			b.Set(i, "processing_time_days", table.Null())
		case days > 30:
			b.Set(i, "processing_time_days", table.Num(30))
		default:
			b.Set(i, "processing_time_days", table.Num(days))
		}
	}
}

// deriveFinancials fills in total_price, final_price, cost, profit and discount fields.
func deriveFinancials(b *table.Batch) {
	if !b.Has("total_price") && b.HasAll("quantity", "unit_price") {
		b.AddColumn("total_price")

		for i := 0; i < b.Len(); i++ {
			r := b.Row(i)
			q, ok1 := number(r, "quantity")
			p, ok2 := number(r, "unit_price")

			if ok1 && ok2 {
				b.Set(i, "total_price", table.Num(q*p))
			}
		}
	}

	if !b.Has("final_price") && b.HasAll("total_price", "discount", "tax", "shipping_cost") {
		b.AddColumn("final_price")

		for i := 0; i < b.Len(); i++ {
			r := b.Row(i)
			tp, ok1 := number(r, "total_price")
			d, ok2 := number(r, "discount")
			tx, ok3 := number(r, "tax")
			sc, ok4 := number(r, "shipping_cost")

			if ok1 && ok2 && ok3 && ok4 {
				b.Set(i, "final_price", table.Num(tp-d+tx+sc))
			}
		}
	}

	if b.HasAll("unit_cost", "quantity", "total_price") {
		for i := 0; i < b.Len(); i++ {
			r := b.Row(i)
			uc, ok1 := number(r, "unit_cost")
			q, ok2 := number(r, "quantity")
			tp, ok3 := number(r, "total_price")

			if !ok1 || !ok2 {
				b.Set(i, "total_cost", table.Null())
				b.Set(i, "profit", table.Null())
				b.Set(i, "profit_margin", table.Null())

				continue
			}

			cost := uc * q
			b.Set(i, "total_cost", table.Num(cost))

			if !ok3 {
				b.Set(i, "profit", table.Null())
				b.Set(i, "profit_margin", table.Null())

				continue
			}

			profit := tp - cost
			b.Set(i, "profit", table.Num(profit))

			if tp == 0 {
				b.Set(i, "profit_margin", table.Null())
			} else {
				b.Set(i, "profit_margin", table.Num(table.Round(profit/tp, 4)))
			}
		}
	}

	if b.HasAll("discount", "total_price") {
		for i := 0; i < b.Len(); i++ {
			r := b.Row(i)
			d, ok1 := number(r, "discount")
			tp, ok2 := number(r, "total_price")

			pct := 0.0
			if ok1 && ok2 {
				pct = table.Round(table.Ratio(d, tp+d), 4)
			}

			b.Set(i, "discount_percentage", table.Num(pct))
		}
	}
}

// addOrderTotals broadcasts the per-order sum of final_price and its bucket.
func addOrderTotals(b *table.Batch) {
	totals := make(map[string]float64)

	for i := 0; i < b.Len(); i++ {
		r := b.Row(i)
		if r["order_id"].IsNull() {
			continue
		}

		// Null prices count as 0 but still register the order.
		v, _ := number(r, "final_price")
		totals[r["order_id"].Key()] += v
	}

	for i := 0; i < b.Len(); i++ {
		oid := b.Get(i, "order_id")
		if oid.IsNull() {
			b.Set(i, "order_total", table.Null())
			b.Set(i, "aov_category", table.Null())

			continue
		}

		total := totals[oid.Key()]
		b.Set(i, "order_total", table.Num(total))

		if label := bucketFor(aovBins, total); label != "" {
			b.Set(i, "aov_category", table.Str(label))
		} else {
			b.Set(i, "aov_category", table.Null())
		}
	}
}

// addCustomerSequence sorts by customer and order date, then numbers each customer's orders.
func addCustomerSequence(b *table.Batch) {
	b.SortStable(func(x, y table.Row) bool {
		if c := table.Compare(x["customer_id"], y["customer_id"]); c != 0 {
			return c < 0
		}

		return table.Compare(x["order_date"], y["order_date"]) < 0
	})

	seen := make(map[string]int)

	for i := 0; i < b.Len(); i++ {
		cid := b.Get(i, "customer_id")
		if cid.IsNull() {
			b.Set(i, "customer_order_number", table.Null())
			b.Set(i, "is_returning_customer", table.Bool(false))

			continue
		}

		seen[cid.Key()]++
		rank := seen[cid.Key()]
		b.Set(i, "customer_order_number", table.Num(float64(rank)))
		b.Set(i, "is_returning_customer", table.Bool(rank > 1))
	}
}

// fillMissing replaces remaining nulls: numbers with 0, flags with false,
// text with "Unknown" and dates with the column minimum (or now).
func (n *SalesNormalizer) fillMissing(b *table.Batch, dateCols []string) {
	isDate := make(map[string]bool, len(dateCols))
	for _, c := range dateCols {
		isDate[c] = true
	}

	for _, c := range b.Columns() {
		var fill table.Value

		switch {
		case isDate[c]:
			var earliest time.Time

			for _, v := range b.Column(c) {
				if t, ok := v.When(); ok && (earliest.IsZero() || t.Before(earliest)) {
					earliest = t
				}
			}

			if earliest.IsZero() {
				earliest = n.now()
			}

			fill = table.Time(earliest)
		default:
			switch b.Kind(c) {
			case table.KindNumber:
				fill = table.Num(0)
			case table.KindBool:
				fill = table.Bool(false)
			case table.KindTime:
				continue
			case table.KindNull:
				if numericHints[c] || isFinancial(c) {
					fill = table.Num(0)
				} else {
					fill = table.Str("Unknown")
				}
			default:
				fill = table.Str("Unknown")
			}
		}

		for i := 0; i < b.Len(); i++ {
			if b.Get(i, c).IsNull() {
				b.Set(i, c, fill)
			}
		}
	}
}

func isFinancial(col string) bool {
	for _, c := range FinancialColumns {
		if c == col {
			return true
		}
	}

	return false
}
