package metrics

import (
	"math"
	"sort"

	"salesetl/internal/table"
)

var ltvBins = makeBins(
	[]float64{0, 50, 100, 250, 500, 1000, 5000, math.Inf(1)},
	[]string{"0-50", "50-100", "100-250", "250-500", "500-1000", "1000-5000", "5000+"},
)

const (
	topCountries   = 5
	homeCountry    = "USA"
	activeDays     = 90
	atRiskDays     = 180
	unknownSegment = "Unknown"
)

func (e *Engine) customerMetrics(customers *table.Batch) (*table.Batch, error) {
	s := newSummary()
	total := float64(customers.Len())

	s.count("total_customers", customers.Len())

	if customers.Has("segment") {
		counts, sum := valueCounts(customers.Column("segment"))

		for _, lc := range counts {
			s.count("customers_in_"+names.Slug(lc.label), lc.count)
		}

		for _, lc := range counts {
			s.num("segment_"+names.Slug(lc.label)+"_percentage", percent(float64(lc.count), float64(sum)))
		}
	}

	if customers.Has("country") {
		counts, _ := valueCounts(customers.Column("country"))

		home := -1

		for i, lc := range counts {
			if i < topCountries {
				s.count("customers_from_"+names.Slug(lc.label), lc.count)
			}

			if lc.label == homeCountry {
				home = lc.count
			}
		}

		if home >= 0 {
			s.num("international_customers_percentage", percent(total-float64(home), total))
		}
	}

	if customers.Has("total_spent") {
		spent, err := numbers(customers, "total_spent")
		if err != nil {
			return nil, err
		}

		s.num("average_customer_ltv", table.Mean(spent))
		s.num("median_customer_ltv", table.Median(spent))
		s.num("max_customer_ltv", table.Max(spent))

		for i, n := range histogram(ltvBins, spent) {
			s.count("customers_ltv_"+ltvBins[i].label, n)
		}
	}

	if customers.Has("total_orders") {
		orders, err := numbers(customers, "total_orders")
		if err != nil {
			return nil, err
		}

		oneTime, repeat := 0, 0

		for _, x := range orders {
			switch {
			case x == 1:
				oneTime++
			case x > 1:
				repeat++
			}
		}

		s.num("average_orders_per_customer", table.Mean(orders))
		s.count("one_time_customers", oneTime)
		s.count("repeat_customers", repeat)
		s.num("repeat_purchase_rate", percent(float64(repeat), total))
	}

	if customers.Has("last_purchase_date") {
		now := e.now()
		active, atRisk, lapsed := 0, 0, 0

		for _, v := range customers.Column("last_purchase_date") {
			t, ok := table.ToTime(v).When()
			if !ok {
				continue
			}

			switch days := wholeDays(now.Sub(t)); {
			case days <= activeDays:
				active++
			case days <= atRiskDays:
				atRisk++
			default:
				lapsed++
			}
		}

		s.count("active_customers", active)
		s.num("active_customers_percentage", percent(float64(active), total))
		s.count("at_risk_customers", atRisk)
		s.num("at_risk_customers_percentage", percent(float64(atRisk), total))
		s.count("lapsed_customers", lapsed)
		s.num("lapsed_customers_percentage", percent(float64(lapsed), total))
	}

	return s.batch(CustomerMetrics), nil
}

// cohort accumulates the sales of one customer segment.
type cohort struct {
	segment   string
	revenue   float64
	orders    map[string]bool
	customers map[string]bool
	rows      int
	units     float64
}

func (e *Engine) segmentationMetrics(sales, customers *table.Batch) (*table.Batch, error) {
	if !sales.Has("customer_id") || !customers.Has("customer_id") {
		e.log.Warn("missing customer_id, skipping segmentation metrics")
		return nil, nil
	}

	if !customers.Has("segment") {
		e.log.Warn("customers have no segment, skipping segmentation metrics", "source", customers.Source)
		return nil, nil
	}

	revCol := revenueColumn(sales)
	if revCol == "" {
		e.log.Warn("no revenue column, skipping segmentation metrics", "source", sales.Source)
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

	segments := make(map[string]string)

	for i := 0; i < customers.Len(); i++ {
		id := customers.Get(i, "customer_id")
		if id.IsNull() {
			continue
		}

		if _, ok := segments[id.Key()]; ok {
			continue
		}

		if seg := customers.Get(i, "segment"); !seg.IsNull() {
			segments[id.Key()] = seg.String()
		}
	}

	hasOrders := sales.Has("order_id")
	groups := make(map[string]*cohort)

	for i := 0; i < sales.Len(); i++ {
		cid := sales.Get(i, "customer_id")

		seg := unknownSegment
		if !cid.IsNull() {
			if s, ok := segments[cid.Key()]; ok {
				seg = s
			}
		}

		c, ok := groups[seg]
		if !ok {
			c = &cohort{segment: seg, orders: make(map[string]bool), customers: make(map[string]bool)}
			groups[seg] = c
		}

		c.rows++

		if !math.IsNaN(revenue[i]) {
			c.revenue += revenue[i]
		}

		if !cid.IsNull() {
			c.customers[cid.Key()] = true
		}

		if hasOrders {
			if oid := sales.Get(i, "order_id"); !oid.IsNull() {
				c.orders[oid.Key()] = true
			}
		}

		if qty == nil {
			c.units++
		} else if !math.IsNaN(qty[i]) {
			c.units += qty[i]
		}
	}

	cohorts := make([]*cohort, 0, len(groups))
	grand := 0.0

	for _, c := range groups {
		cohorts = append(cohorts, c)
		grand += c.revenue
	}

	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i].segment < cohorts[j].segment })

	out := table.New(
		"segment", "total_revenue", "total_orders", "customer_count", "total_units",
		"average_order_value", "revenue_per_customer", "orders_per_customer",
		"units_per_order", "revenue_percentage",
	)
	out.Source = SegmentationMetrics

	for _, c := range cohorts {
		orders := float64(c.rows)
		if hasOrders {
			orders = float64(len(c.orders))
		}

		count := float64(len(c.customers))

		out.Append(table.Row{
			"segment":              table.Str(c.segment),
			"total_revenue":        table.Num(c.revenue),
			"total_orders":         table.Num(orders),
			"customer_count":       table.Num(count),
			"total_units":          table.Num(c.units),
			"average_order_value":  table.Num(table.Ratio(c.revenue, orders)),
			"revenue_per_customer": table.Num(table.Ratio(c.revenue, count)),
			"orders_per_customer":  table.Num(table.Ratio(orders, count)),
			"units_per_order":      table.Num(table.Ratio(c.units, orders)),
			"revenue_percentage":   table.Num(table.Ratio(c.revenue, grand) * 100),
		})
	}

	roundAll(out)

	return out, nil
}
