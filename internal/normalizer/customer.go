package normalizer

import (
	"fmt"
	"math"
	"time"

	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// Customer segments.
const (
	SegmentUnknown  = "Unknown"
	SegmentNew      = "New"
	SegmentRepeat   = "Repeat"
	SegmentInactive = "Inactive"
	SegmentVIP      = "VIP"
)

const (
	inactiveAfterDays = 90
	vipQuantile       = 0.9
)

// customerCarryColumns are copied from transactions onto extracted customers.
var customerCarryColumns = []string{
	"customer_name", "customer_email", "customer_phone",
	"customer_segment", "segment", "city", "state", "country",
}

// customerRenames map prefixed transaction columns onto canonical customer fields.
var customerRenames = []Alias{
	{"customer_name", "full_name"},
	{"customer_email", "email"},
	{"customer_phone", "phone"},
	{"customer_segment", "segment"},
}

// CustomerNormalizer produces the canonical customer batch from either a
// customer list or transaction rows.
type CustomerNormalizer struct {
	log *logger.Logger
	now func() time.Time
}

// NewCustomerNormalizer creates a new customer normalizer.
func NewCustomerNormalizer(log *logger.Logger) *CustomerNormalizer {
	return &CustomerNormalizer{log: log, now: time.Now}
}

// Transform returns one row per customer. A batch without customer_id yields
// an empty batch and a warning.
func (n *CustomerNormalizer) Transform(raw *table.Batch) (*table.Batch, error) {
	if raw.Empty() {
		n.log.Warn("no customer data to transform")
		return table.New(), nil
	}

	if err := raw.Check(); err != nil {
		n.log.Error("customer transform failed", "source", raw.Source, "error", err)
		return nil, fmt.Errorf("customer transform: %w", err)
	}

	b, err := standardize(raw)
	if err != nil {
		n.log.Error("customer transform failed", "source", raw.Source, "error", err)
		return nil, fmt.Errorf("customer transform: %w", err)
	}

	shape := ClassifyCustomer(b.Columns())

	var out *table.Batch
	if shape == EntityShaped {
		out = n.normalize(b)
	} else {
		out = n.extract(b)
	}

	if !out.Has("customer_id") {
		n.log.Warn("customer data has no customer_id", "source", raw.Source, "shape", shape.String())
		return table.New(), nil
	}

	n.log.Info("customer transform complete",
		"source", raw.Source, "shape", shape.String(), "rows_in", raw.Len(), "rows_out", out.Len())

	return out, nil
}

// normalize handles customer-list input.
func (n *CustomerNormalizer) normalize(b *table.Batch) *table.Batch {
	ApplyAliases(b, CustomerAliases)

	if !b.Has("full_name") && b.HasAll("first_name", "last_name") {
		for i := 0; i < b.Len(); i++ {
			first, ok1 := b.Get(i, "first_name").Text()
			last, ok2 := b.Get(i, "last_name").Text()

			if ok1 && ok2 {
				b.Set(i, "full_name", table.Str(first+" "+last))
			} else {
				b.Set(i, "full_name", table.Null())
			}
		}
	}

	for _, c := range []string{"registration_date", "last_purchase_date"} {
		coerce(b, c, table.ToTime)
	}

	for _, c := range []string{"total_orders", "total_spent", "avg_order_value"} {
		coerce(b, c, table.ToNumber)
	}

	if !b.Has("avg_order_value") && b.HasAll("total_spent", "total_orders") {
		addAverageOrderValue(b)
	}

	if b.Has("last_purchase_date") && !b.Has("days_since_purchase") {
		now := n.now()

		for i := 0; i < b.Len(); i++ {
			if t, ok := b.Get(i, "last_purchase_date").When(); ok {
				b.Set(i, "days_since_purchase", table.Num(wholeDays(now.Sub(t))))
			} else {
				b.Set(i, "days_since_purchase", table.Null())
			}
		}
	}

	if !b.Has("customer_id") {
		return b
	}

	return b.DistinctBy("customer_id")
}

// addAverageOrderValue sets avg_order_value where total_orders > 0.
func addAverageOrderValue(b *table.Batch) {
	b.AddColumn("avg_order_value")

	for i := 0; i < b.Len(); i++ {
		r := b.Row(i)
		orders, ok1 := number(r, "total_orders")
		spent, ok2 := number(r, "total_spent")

		if ok1 && ok2 && orders > 0 {
			b.Set(i, "avg_order_value", table.Num(spent/orders))
		}
	}
}

// extract builds customers from transaction rows.
func (n *CustomerNormalizer) extract(sales *table.Batch) *table.Batch {
	if !sales.Has("customer_id") {
		n.log.Warn("transactions have no customer_id", "source", sales.Source)
		return table.New()
	}

	cols := append([]string{"customer_id"}, present(sales, customerCarryColumns...)...)
	customers := dropNullKeys(project(sales, cols), "customer_id").DistinctBy("customer_id")

	revenueCol := revenueColumn(sales)
	aggs := rollup(sales, "customer_id", revenueCol)
	hasOrderID := sales.Has("order_id")
	hasDates := sales.Has("order_date")
	now := n.now()

	for i := 0; i < customers.Len(); i++ {
		agg, ok := aggs[customers.Get(i, "customer_id").Key()]
		if !ok {
			continue
		}

		customers.Set(i, "total_orders", table.Num(agg.orderCount(hasOrderID)))

		if revenueCol != "" {
			customers.Set(i, "total_spent", table.Num(agg.revenue))
		}

		if hasDates {
			customers.Set(i, "first_order_date", table.Time(agg.first))
			customers.Set(i, "last_purchase_date", table.Time(agg.last))

			if !agg.last.IsZero() {
				customers.Set(i, "days_since_purchase", table.Num(wholeDays(now.Sub(agg.last))))
				customers.Set(i, "customer_tenure_days", table.Num(wholeDays(agg.last.Sub(agg.first))))
			} else {
				customers.Set(i, "days_since_purchase", table.Null())
				customers.Set(i, "customer_tenure_days", table.Null())
			}
		}
	}

	if customers.Has("total_spent") {
		addAverageOrderValue(customers)
	}

	if !customers.Has("customer_segment") && !customers.Has("segment") && customers.Has("total_orders") {
		assignSegments(customers)
	}

	fillZero(customers, "total_orders", "total_spent", "avg_order_value")

	ApplyAliases(customers, customerRenames)

	return customers
}

// assignSegments labels each customer. Later rules override earlier ones:
// New, Repeat, Inactive, VIP.
func assignSegments(b *table.Batch) {
	threshold := math.NaN()

	if b.Has("total_spent") {
		spent, err := b.Floats("total_spent")
		if err == nil {
			threshold = table.Quantile(spent, vipQuantile)
		}
	}

	for i := 0; i < b.Len(); i++ {
		r := b.Row(i)
		segment := SegmentUnknown

		orders, hasOrders := number(r, "total_orders")

		switch {
		case hasOrders && orders == 1:
			segment = SegmentNew
		case hasOrders && orders > 1:
			segment = SegmentRepeat
		}

		if days, ok := number(r, "days_since_purchase"); ok && days > inactiveAfterDays && hasOrders && orders > 0 {
			segment = SegmentInactive
		}

		if spent, ok := number(r, "total_spent"); ok && !math.IsNaN(threshold) && spent >= threshold {
			segment = SegmentVIP
		}

		b.Set(i, "segment", table.Str(segment))
	}
}
