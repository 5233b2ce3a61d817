package metrics

import (
	"math"
	"sort"

	"salesetl/internal/table"
)

var priceBins = makeBins(
	[]float64{0, 10, 25, 50, 100, 250, 500, math.Inf(1)},
	[]string{"0-10", "10-25", "25-50", "50-100", "100-250", "250-500", "500+"},
)

// daysPerSalesWindow is the period units_sold is assumed to cover.
const daysPerSalesWindow = 30

// maxDaysOfInventory caps days_of_inventory when nothing sold.
const maxDaysOfInventory = 365

func (e *Engine) productMetrics(products *table.Batch) (*table.Batch, error) {
	s := newSummary()
	total := float64(products.Len())

	s.count("total_products", products.Len())

	if col := products.First("category", "product_category"); col != "" {
		counts, sum := valueCounts(products.Column(col))

		for _, lc := range counts {
			s.count("products_in_"+names.Slug(lc.label), lc.count)
		}

		for _, lc := range counts {
			s.num("category_"+names.Slug(lc.label)+"_percentage", percent(float64(lc.count), float64(sum)))
		}
	}

	if products.Has("stock") {
		stock, err := numbers(products, "stock")
		if err != nil {
			return nil, err
		}

		out, low := 0, 0

		for _, x := range stock {
			switch {
			case x == 0:
				out++
			case x > 0 && x < e.th.LowStockThreshold:
				low++
			}
		}

		s.num("total_inventory", table.Sum(stock))
		s.num("average_stock_per_product", table.Mean(stock))
		s.count("out_of_stock_count", out)
		s.num("out_of_stock_percentage", percent(float64(out), total))
		s.count("low_stock_count", low)
		s.num("low_stock_percentage", percent(float64(low), total))
	}

	var price []float64

	if products.Has("price") {
		var err error
		if price, err = numbers(products, "price"); err != nil {
			return nil, err
		}

		s.num("average_price", table.Mean(price))
		s.num("median_price", table.Median(price))
		s.num("min_price", table.Min(price))
		s.num("max_price", table.Max(price))

		for i, n := range histogram(priceBins, price) {
			s.count("products_price_"+priceBins[i].label, n)
		}
	}

	if products.Has("sale_price") {
		sale, err := numbers(products, "sale_price")
		if err != nil {
			return nil, err
		}

		onSale := 0

		var discounts []float64

		for i, x := range sale {
			if math.IsNaN(x) {
				continue
			}

			onSale++

			if price != nil && price[i] > 0 {
				discounts = append(discounts, (1-x/price[i])*100)
			}
		}

		s.count("products_on_sale_count", onSale)
		s.num("products_on_sale_percentage", percent(float64(onSale), total))

		if price != nil {
			s.num("average_discount_percentage", table.Round(table.Mean(discounts), 2))
		}
	}

	return s.batch(ProductMetrics), nil
}

// performance accumulates one product's sales.
type performance struct {
	id      table.Value
	revenue float64
	orders  map[string]bool
	rows    int
	units   float64
	profit  float64
}

func (e *Engine) productPerformance(sales, products *table.Batch) (*table.Batch, error) {
	idCol := ""

	for _, c := range []string{"product_id", "id", "sku"} {
		if sales.Has(c) && products.Has(c) {
			idCol = c
			break
		}
	}

	if idCol == "" {
		e.log.Warn("no shared product identity, skipping product performance")
		return nil, nil
	}

	revCol := revenueColumn(sales)
	if revCol == "" {
		e.log.Warn("no revenue column, skipping product performance", "source", sales.Source)
		return nil, nil
	}

	revenue, err := numbers(sales, revCol)
	if err != nil {
		return nil, err
	}

	var qty, profit []float64

	if sales.Has("quantity") {
		if qty, err = numbers(sales, "quantity"); err != nil {
			return nil, err
		}
	}

	if sales.Has("profit") {
		if profit, err = numbers(sales, "profit"); err != nil {
			return nil, err
		}
	}

	hasOrders := sales.Has("order_id")
	byID := make(map[string]*performance)

	var perf []*performance

	for i := 0; i < sales.Len(); i++ {
		id := sales.Get(i, idCol)
		if id.IsNull() {
			continue
		}

		p, ok := byID[id.Key()]
		if !ok {
			p = &performance{id: id, orders: make(map[string]bool)}
			byID[id.Key()] = p
			perf = append(perf, p)
		}

		p.rows++

		if !math.IsNaN(revenue[i]) {
			p.revenue += revenue[i]
		}

		if hasOrders {
			if oid := sales.Get(i, "order_id"); !oid.IsNull() {
				p.orders[oid.Key()] = true
			}
		}

		if qty == nil {
			p.units++
		} else if !math.IsNaN(qty[i]) {
			p.units += qty[i]
		}

		if profit != nil && !math.IsNaN(profit[i]) {
			p.profit += profit[i]
		}
	}

	sort.SliceStable(perf, func(i, j int) bool {
		if perf[i].revenue != perf[j].revenue {
			return perf[i].revenue > perf[j].revenue
		}

		return table.Compare(perf[i].id, perf[j].id) < 0
	})

	info := make(map[string]table.Row)

	for i := 0; i < products.Len(); i++ {
		k := products.Get(i, idCol).Key()
		if _, ok := info[k]; !ok {
			info[k] = products.Row(i)
		}
	}

	withInfo := products.HasAll("product_name", "product_category")
	withStock := products.Has("stock")

	cols := []string{idCol, "total_revenue", "order_count", "units_sold"}
	if withInfo {
		cols = append(cols, "product_name", "product_category")
	}

	cols = append(cols, "revenue_per_order", "average_unit_price")
	if profit != nil {
		cols = append(cols, "profit", "profit_margin")
	}

	cols = append(cols, "revenue_percentage")
	if withStock {
		cols = append(cols, "stock", "inventory_turnover", "days_of_inventory")
	}

	grand := 0.0
	for _, p := range perf {
		grand += p.revenue
	}

	out := table.New(cols...)
	out.Source = ProductPerformance

	for _, p := range perf {
		orders := float64(p.rows)
		if hasOrders {
			orders = float64(len(p.orders))
		}

		row := table.Row{
			idCol:                p.id,
			"total_revenue":      table.Num(p.revenue),
			"order_count":        table.Num(orders),
			"units_sold":         table.Num(p.units),
			"revenue_per_order":  table.Num(table.Ratio(p.revenue, orders)),
			"average_unit_price": table.Num(table.Ratio(p.revenue, p.units)),
			"revenue_percentage": table.Num(table.Ratio(p.revenue, grand) * 100),
		}

		src := info[p.id.Key()]

		if withInfo {
			row["product_name"] = src["product_name"]
			row["product_category"] = src["product_category"]
		}

		if profit != nil {
			row["profit"] = table.Num(p.profit)
			row["profit_margin"] = table.Num(table.Ratio(p.profit, p.revenue) * 100)
		}

		if withStock {
			stock, ok := table.ToNumber(src["stock"]).Float()
			if ok {
				row["stock"] = table.Num(stock)
			}

			row["inventory_turnover"] = table.Num(turnover(p.units, stock, ok))
			row["days_of_inventory"] = table.Num(daysOfInventory(p.units, stock, ok))
		}

		out.Append(row)
	}

	roundAll(out)

	return out, nil
}

// turnover is units/stock with unknown or infinite results as 0.
func turnover(units, stock float64, known bool) float64 {
	if !known {
		return 0
	}

	return table.Ratio(units, stock)
}

// daysOfInventory is stock/(units/30). Selling nothing from positive stock
// caps at a year; unknown stock or 0/0 is 0.
func daysOfInventory(units, stock float64, known bool) float64 {
	if !known {
		return 0
	}

	if units == 0 {
		if stock == 0 {
			return 0
		}

		return maxDaysOfInventory
	}

	return stock / (units / daysPerSalesWindow)
}
