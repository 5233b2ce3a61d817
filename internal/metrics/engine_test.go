package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesetl/internal/config"
	"salesetl/internal/logger"
	"salesetl/internal/normalizer"
	"salesetl/internal/table"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(th config.Thresholds) *Engine {
	e := NewEngine(logger.Discard(), th)
	e.now = func() time.Time { return fixedNow }

	return e
}

func metric(t *testing.T, c *table.Collection, name string) *table.Batch {
	t.Helper()

	b, ok := c.Get(name)
	require.True(t, ok, "missing metric batch %s, have %v", name, c.Names())

	return b
}

func floatAt(t *testing.T, b *table.Batch, i int, col string) float64 {
	t.Helper()

	f, ok := b.Get(i, col).Float()
	require.True(t, ok, "row %d column %s is %v", i, col, b.Get(i, col))

	return f
}

func TestCalculate_ThreeRowScenario(t *testing.T) {
	raw := table.FromRecords(
		[]string{"order_id", "customer_id", "order_date", "quantity", "unit_price"},
		[]map[string]any{
			{"order_id": 1, "customer_id": "A", "order_date": "2024-01-01", "quantity": 2, "unit_price": 10},
			{"order_id": 1, "customer_id": "A", "order_date": "2024-01-01", "quantity": 1, "unit_price": 5},
			{"order_id": 2, "customer_id": "B", "order_date": "2024-01-02", "quantity": 3, "unit_price": 20},
		},
	)

	sales, err := normalizer.NewSalesNormalizer(logger.Discard()).Transform(raw)
	require.NoError(t, err)

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(sales, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{SalesMetrics, TimeMetrics}, out.Names())

	m := metric(t, out, SalesMetrics)
	require.Equal(t, 1, m.Len())
	assert.Equal(t, 2.0, floatAt(t, m, 0, "total_orders"))
	assert.Equal(t, 85.0, floatAt(t, m, 0, "total_revenue"))
	assert.Equal(t, 42.5, floatAt(t, m, 0, "average_order_value"))
	assert.Equal(t, 6.0, floatAt(t, m, 0, "total_units_sold"))
	assert.Equal(t, 3.0, floatAt(t, m, 0, "average_units_per_order"))

	daily := metric(t, out, TimeMetrics)
	require.Equal(t, 2, daily.Len())
	assert.Equal(t, 25.0, floatAt(t, daily, 0, "daily_revenue"))
	assert.Equal(t, 140.0, floatAt(t, daily, 1, "revenue_daily_change"))
}

func TestCalculate_MissingInputs(t *testing.T) {
	e := newTestEngine(config.DefaultThresholds())

	out, err := e.Calculate(nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())

	products := table.FromRecords([]string{"product_id", "stock"}, []map[string]any{{"product_id": "P1", "stock": 1}})

	out, err = e.Calculate(table.New("order_id"), products, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ProductMetrics}, out.Names())
}

func TestSalesMetrics_Breakdowns(t *testing.T) {
	sales := table.FromRecords(
		[]string{"order_id", "final_price", "payment_method", "shipping_method", "is_returned", "profit", "discount", "discount_percentage"},
		[]map[string]any{
			{"order_id": "O1", "final_price": 100, "payment_method": "Credit Card", "shipping_method": "Express", "is_returned": true, "profit": 20, "discount": 5, "discount_percentage": 0.05},
			{"order_id": "O2", "final_price": 50, "payment_method": "Credit Card", "shipping_method": "Standard", "is_returned": false, "profit": 10, "discount": 0, "discount_percentage": 0},
			{"order_id": "O3", "final_price": 50, "payment_method": "PayPal", "shipping_method": "Standard", "is_returned": false, "profit": 10, "discount": 1, "discount_percentage": 0.01},
			{"order_id": "O4", "final_price": 0, "payment_method": nil, "shipping_method": "Standard", "is_returned": false, "profit": 0, "discount": 0, "discount_percentage": 0},
		},
	)

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(sales, nil, nil)
	require.NoError(t, err)

	m := metric(t, out, SalesMetrics)
	assert.Equal(t, 66.67, floatAt(t, m, 0, "payment_credit_card"))
	assert.Equal(t, 33.33, floatAt(t, m, 0, "payment_paypal"))
	assert.Equal(t, 75.0, floatAt(t, m, 0, "shipping_standard"))
	assert.Equal(t, 25.0, floatAt(t, m, 0, "shipping_express"))
	assert.Equal(t, 0.25, floatAt(t, m, 0, "return_rate"))
	assert.Equal(t, 40.0, floatAt(t, m, 0, "total_profit"))
	assert.Equal(t, 0.2, floatAt(t, m, 0, "profit_margin"))
	assert.Equal(t, 6.0, floatAt(t, m, 0, "total_discounts"))
	assert.False(t, out.Len() > 1, "no order_date means no time metrics")

	cols := m.Columns()
	assert.Less(t, indexOf(cols, "payment_credit_card"), indexOf(cols, "payment_paypal"))
}

func indexOf(xs []string, x string) int {
	for i, s := range xs {
		if s == x {
			return i
		}
	}

	return -1
}

func dailySales(days []string, revenue []float64) *table.Batch {
	records := make([]map[string]any, len(days))
	for i, d := range days {
		records[i] = map[string]any{
			"order_id":    fmt.Sprintf("O%d", i),
			"order_date":  d,
			"final_price": revenue[i],
			"quantity":    1,
		}
	}

	return table.FromRecords([]string{"order_id", "order_date", "final_price", "quantity"}, records)
}

func TestTimeMetrics_ConstantRevenue(t *testing.T) {
	days := make([]string, 10)
	revenue := make([]float64, 10)

	for i := range days {
		days[i] = time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
		revenue[i] = 120
	}

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(dailySales(days, revenue), nil, nil)
	require.NoError(t, err)

	daily := metric(t, out, TimeMetrics)
	require.Equal(t, 10, daily.Len())

	for i := 0; i < daily.Len(); i++ {
		assert.Equal(t, 120.0, floatAt(t, daily, i, "revenue_7d_avg"), "day %d", i+1)
		assert.Equal(t, 1.0, floatAt(t, daily, i, "orders_7d_avg"), "day %d", i+1)
		assert.Equal(t, 0.0, floatAt(t, daily, i, "revenue_daily_change"), "day %d", i+1)
		assert.Equal(t, 0.0, floatAt(t, daily, i, "revenue_wow_change"), "day %d", i+1)
		assert.Equal(t, 120.0*float64(i+1), floatAt(t, daily, i, "mtd_revenue"), "day %d", i+1)
	}
}

// Week-over-week compares to the row seven positions back, so a gap in the
// calendar makes it compare days that are further apart.
func TestTimeMetrics_WeekOverWeekUsesRowOffset(t *testing.T) {
	days := []string{
		"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04",
		"2024-01-05", "2024-01-06", "2024-01-07", "2024-01-20",
	}
	revenue := []float64{100, 10, 10, 10, 10, 10, 10, 150}

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(dailySales(days, revenue), nil, nil)
	require.NoError(t, err)

	daily := metric(t, out, TimeMetrics)
	require.Equal(t, 8, daily.Len())

	when, ok := daily.Get(7, "order_date").When()
	require.True(t, ok)
	assert.Equal(t, 20, when.Day())
	assert.Equal(t, 50.0, floatAt(t, daily, 7, "revenue_wow_change"))
	assert.Equal(t, -90.0, floatAt(t, daily, 1, "revenue_daily_change"))
}

func TestTimeMetrics_WindowAndMonthBoundary(t *testing.T) {
	th := config.DefaultThresholds()
	th.RollingWindow = 3

	days := []string{"2024-01-30", "2024-01-31", "2024-02-01", "2024-02-02"}
	revenue := []float64{10, 20, 30, 40}

	out, err := newTestEngine(th).Calculate(dailySales(days, revenue), nil, nil)
	require.NoError(t, err)

	daily := metric(t, out, TimeMetrics)
	assert.True(t, daily.Has("revenue_3d_avg"))
	assert.False(t, daily.Has("revenue_7d_avg"))

	assert.Equal(t, 15.0, floatAt(t, daily, 1, "revenue_3d_avg"))
	assert.Equal(t, 30.0, floatAt(t, daily, 3, "revenue_3d_avg"))

	assert.Equal(t, 30.0, floatAt(t, daily, 1, "mtd_revenue"))
	assert.Equal(t, 30.0, floatAt(t, daily, 2, "mtd_revenue"))
	assert.Equal(t, 70.0, floatAt(t, daily, 3, "mtd_revenue"))
	assert.Equal(t, 2.0, floatAt(t, daily, 3, "mtd_orders"))
}

func TestProductMetrics(t *testing.T) {
	products := table.FromRecords(
		[]string{"product_id", "product_category", "stock", "price", "sale_price"},
		[]map[string]any{
			{"product_id": "P1", "product_category": "Home Goods", "stock": 0, "price": 5, "sale_price": nil},
			{"product_id": "P2", "product_category": "Home Goods", "stock": 3, "price": 40, "sale_price": 30},
			{"product_id": "P3", "product_category": "Toys", "stock": 50, "price": 600, "sale_price": 450},
			{"product_id": "P4", "product_category": "Toys", "stock": 8, "price": 10, "sale_price": nil},
		},
	)

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(nil, products, nil)
	require.NoError(t, err)

	m := metric(t, out, ProductMetrics)
	want := map[string]float64{
		"total_products":                 4,
		"products_in_home_goods":         2,
		"products_in_toys":               2,
		"category_home_goods_percentage": 50,
		"total_inventory":                61,
		"out_of_stock_count":             1,
		"out_of_stock_percentage":        25,
		"low_stock_count":                2,
		"low_stock_percentage":           50,
		"median_price":                   25,
		"min_price":                      5,
		"max_price":                      600,
		"products_price_0-10":            2,
		"products_price_10-25":           0,
		"products_price_25-50":           1,
		"products_price_500+":            1,
		"products_on_sale_count":         2,
		"products_on_sale_percentage":    50,
		"average_discount_percentage":    25,
	}

	for col, v := range want {
		assert.Equal(t, v, floatAt(t, m, 0, col), col)
	}
}

func TestCustomerMetrics(t *testing.T) {
	customers := table.FromRecords(
		[]string{"customer_id", "segment", "country", "total_spent", "total_orders", "last_purchase_date"},
		[]map[string]any{
			{"customer_id": "C1", "segment": "VIP", "country": "USA", "total_spent": 1200, "total_orders": 5, "last_purchase_date": "2024-05-20"},
			{"customer_id": "C2", "segment": "New", "country": "Canada", "total_spent": 40, "total_orders": 1, "last_purchase_date": "2024-01-15"},
			{"customer_id": "C3", "segment": "New", "country": "USA", "total_spent": 75, "total_orders": 1, "last_purchase_date": "2023-06-01"},
			{"customer_id": "C4", "segment": "Repeat", "country": "UK", "total_spent": 0, "total_orders": 2, "last_purchase_date": nil},
		},
	)
	before := customers.Clone()

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(nil, nil, customers)
	require.NoError(t, err)

	m := metric(t, out, CustomerMetrics)
	want := map[string]float64{
		"total_customers":                    4,
		"customers_in_new":                   2,
		"segment_new_percentage":             50,
		"customers_from_usa":                 2,
		"customers_from_canada":              1,
		"international_customers_percentage": 50,
		"median_customer_ltv":                57.5,
		"max_customer_ltv":                   1200,
		"customers_ltv_0-50":                 1,
		"customers_ltv_50-100":               1,
		"customers_ltv_1000-5000":            1,
		"one_time_customers":                 2,
		"repeat_customers":                   2,
		"repeat_purchase_rate":               50,
		"active_customers":                   1,
		"active_customers_percentage":        25,
		"at_risk_customers":                  1,
		"lapsed_customers":                   1,
	}

	for col, v := range want {
		assert.Equal(t, v, floatAt(t, m, 0, col), col)
	}

	assert.Equal(t, before.Columns(), customers.Columns())
	assert.Equal(t, table.Str("2024-05-20"), customers.Get(0, "last_purchase_date"))
}

func TestSegmentationMetrics(t *testing.T) {
	sales := table.FromRecords(
		[]string{"order_id", "customer_id", "final_price", "quantity"},
		[]map[string]any{
			{"order_id": "O1", "customer_id": "A", "final_price": 100, "quantity": 1},
			{"order_id": "O2", "customer_id": "A", "final_price": 50, "quantity": 2},
			{"order_id": "O3", "customer_id": "B", "final_price": 30, "quantity": 1},
			{"order_id": "O4", "customer_id": "C", "final_price": 20, "quantity": 1},
		},
	)
	customers := table.FromRecords([]string{"customer_id", "segment"}, []map[string]any{
		{"customer_id": "A", "segment": "VIP"},
		{"customer_id": "B", "segment": "New"},
	})

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(sales, nil, customers)
	require.NoError(t, err)

	seg := metric(t, out, SegmentationMetrics)
	require.Equal(t, 3, seg.Len())

	assert.Equal(t, table.Str("New"), seg.Get(0, "segment"))
	assert.Equal(t, table.Str("Unknown"), seg.Get(1, "segment"))
	assert.Equal(t, table.Str("VIP"), seg.Get(2, "segment"))

	assert.Equal(t, 15.0, floatAt(t, seg, 0, "revenue_percentage"))
	assert.Equal(t, 10.0, floatAt(t, seg, 1, "revenue_percentage"))

	assert.Equal(t, 150.0, floatAt(t, seg, 2, "total_revenue"))
	assert.Equal(t, 2.0, floatAt(t, seg, 2, "total_orders"))
	assert.Equal(t, 1.0, floatAt(t, seg, 2, "customer_count"))
	assert.Equal(t, 75.0, floatAt(t, seg, 2, "average_order_value"))
	assert.Equal(t, 2.0, floatAt(t, seg, 2, "orders_per_customer"))
	assert.Equal(t, 1.5, floatAt(t, seg, 2, "units_per_order"))
	assert.Equal(t, 75.0, floatAt(t, seg, 2, "revenue_percentage"))
}

func TestSegmentationMetrics_NoSegmentColumn(t *testing.T) {
	sales := table.FromRecords([]string{"order_id", "customer_id", "final_price"}, []map[string]any{
		{"order_id": "O1", "customer_id": "A", "final_price": 1},
	})
	customers := table.FromRecords([]string{"customer_id"}, []map[string]any{{"customer_id": "A"}})

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(sales, nil, customers)
	require.NoError(t, err)

	_, ok := out.Get(SegmentationMetrics)
	assert.False(t, ok)
}

func TestProductPerformance(t *testing.T) {
	sales := table.FromRecords(
		[]string{"order_id", "product_id", "final_price", "quantity"},
		[]map[string]any{
			{"order_id": "O1", "product_id": "P1", "final_price": 60, "quantity": 2},
			{"order_id": "O2", "product_id": "P1", "final_price": 40, "quantity": 3},
			{"order_id": "O2", "product_id": "P2", "final_price": 100, "quantity": 1},
			{"order_id": "O3", "product_id": "P3", "final_price": 250, "quantity": 4},
		},
	)
	products := table.FromRecords(
		[]string{"product_id", "product_name", "product_category", "stock"},
		[]map[string]any{
			{"product_id": "P1", "product_name": "Lamp", "product_category": "Home", "stock": 10},
			{"product_id": "P2", "product_name": "Mug", "product_category": "Kitchen", "stock": 5},
			{"product_id": "P3", "product_name": "Ghost", "product_category": "None", "stock": 0},
		},
	)

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(sales, products, nil)
	require.NoError(t, err)

	perf := metric(t, out, ProductPerformance)
	require.Equal(t, 3, perf.Len())

	// Sorted by revenue, ties by id.
	assert.Equal(t, table.Str("P3"), perf.Get(0, "product_id"))
	assert.Equal(t, table.Str("P1"), perf.Get(1, "product_id"))
	assert.Equal(t, table.Str("P2"), perf.Get(2, "product_id"))

	assert.Equal(t, 100.0, floatAt(t, perf, 1, "total_revenue"))
	assert.Equal(t, 5.0, floatAt(t, perf, 1, "units_sold"))
	assert.Equal(t, 2.0, floatAt(t, perf, 1, "order_count"))
	assert.Equal(t, 50.0, floatAt(t, perf, 1, "revenue_per_order"))
	assert.Equal(t, 20.0, floatAt(t, perf, 1, "average_unit_price"))
	assert.Equal(t, 0.5, floatAt(t, perf, 1, "inventory_turnover"))
	assert.Equal(t, 60.0, floatAt(t, perf, 1, "days_of_inventory"))
	assert.Equal(t, table.Str("Lamp"), perf.Get(1, "product_name"))
	assert.Equal(t, 22.22, floatAt(t, perf, 1, "revenue_percentage"))

	// Zero stock: turnover is undefined and falls back to 0.
	assert.Equal(t, 0.0, floatAt(t, perf, 0, "inventory_turnover"))
	assert.Equal(t, 0.0, floatAt(t, perf, 0, "days_of_inventory"))
}

func TestDaysOfInventory(t *testing.T) {
	assert.Equal(t, 60.0, daysOfInventory(5, 10, true))
	assert.Equal(t, 365.0, daysOfInventory(0, 10, true))
	assert.Equal(t, 0.0, daysOfInventory(0, 0, true))
	assert.Equal(t, 0.0, daysOfInventory(5, 0, false))
}

func TestCalculate_NonNumericRevenue(t *testing.T) {
	sales := table.FromRecords([]string{"order_id", "order_date", "final_price"}, []map[string]any{
		{"order_id": "O1", "order_date": "2024-01-01", "final_price": "lots"},
	})
	products := table.FromRecords([]string{"product_id", "stock"}, []map[string]any{{"product_id": "P1", "stock": 1}})

	out, err := newTestEngine(config.DefaultThresholds()).Calculate(sales, products, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonNumeric)
	assert.Contains(t, err.Error(), SalesMetrics)

	_, ok := out.Get(SalesMetrics)
	assert.False(t, ok)
	_, ok = out.Get(ProductMetrics)
	assert.True(t, ok)
}
