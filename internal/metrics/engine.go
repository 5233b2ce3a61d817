// Package metrics derives business metric batches from canonical sales,
// product and customer batches.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"salesetl/internal/config"
	"salesetl/internal/logger"
	"salesetl/internal/table"
	"salesetl/pkg/utils"
)

// Metric batch names.
const (
	SalesMetrics        = "sales_metrics"
	TimeMetrics         = "time_metrics"
	ProductMetrics      = "product_metrics"
	CustomerMetrics     = "customer_metrics"
	SegmentationMetrics = "segmentation_metrics"
	ProductPerformance  = "product_performance"
)

// ErrNonNumeric is returned when a column that must be aggregated holds text.
var ErrNonNumeric = errors.New("column holds non-numeric values")

var names = utils.NewStringHelper()

// Engine computes the metric batches. It never mutates its inputs.
type Engine struct {
	log *logger.Logger
	th  config.Thresholds
	now func() time.Time
}

// NewEngine creates a metrics engine bound to the given thresholds.
func NewEngine(log *logger.Logger, th config.Thresholds) *Engine {
	if th.RollingWindow < 1 {
		th.RollingWindow = 1
	}

	return &Engine{log: log, th: th, now: time.Now}
}

// Calculate returns every metric batch whose inputs are present. Missing or
// empty inputs only shrink the collection; aggregation failures are joined
// and returned alongside the batches that did succeed.
func (e *Engine) Calculate(sales, products, customers *table.Batch) (*table.Collection, error) {
	e.log.Info("calculating business metrics",
		"sales_rows", sales.Len(), "product_rows", products.Len(), "customer_rows", customers.Len())

	out := table.NewCollection()

	var errs []error

	run := func(name string, fn func() (*table.Batch, error)) {
		b, err := fn()
		if err != nil {
			e.log.Error("metric calculation failed", "metric", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))

			return
		}

		if b == nil {
			return
		}

		out.Put(name, b)
	}

	if !sales.Empty() {
		run(SalesMetrics, func() (*table.Batch, error) { return e.salesMetrics(sales) })

		if sales.Has("order_date") {
			run(TimeMetrics, func() (*table.Batch, error) { return e.timeMetrics(sales) })
		}
	}

	if !products.Empty() {
		run(ProductMetrics, func() (*table.Batch, error) { return e.productMetrics(products) })
	}

	if !customers.Empty() {
		run(CustomerMetrics, func() (*table.Batch, error) { return e.customerMetrics(customers) })
	}

	if !sales.Empty() && !customers.Empty() {
		run(SegmentationMetrics, func() (*table.Batch, error) { return e.segmentationMetrics(sales, customers) })
	}

	if !sales.Empty() && !products.Empty() {
		run(ProductPerformance, func() (*table.Batch, error) { return e.productPerformance(sales, products) })
	}

	e.log.Info("calculated metrics", "metrics", out.Names())

	return out, errors.Join(errs...)
}

// numbers reads a column as float64 with NaN for nulls. Flags count as 0/1.
func numbers(b *table.Batch, col string) ([]float64, error) {
	out := make([]float64, b.Len())

	for i := range out {
		v := b.Get(i, col)

		switch v.Kind() {
		case table.KindNull:
			out[i] = math.NaN()
		case table.KindNumber:
			out[i], _ = v.Float()
		case table.KindBool:
			if f, _ := v.Flag(); f {
				out[i] = 1
			}
		default:
			return nil, fmt.Errorf("%w: %s row %d is %s", ErrNonNumeric, col, i, v.Kind())
		}
	}

	return out, nil
}

// revenueColumn prefers final_price over total_price.
func revenueColumn(b *table.Batch) string {
	return b.First("final_price", "total_price")
}

// labelCount is one entry of a value distribution.
type labelCount struct {
	label string
	count int
}

// valueCounts counts the non-null values of a column, most frequent first,
// ties by label.
func valueCounts(vals []table.Value) ([]labelCount, int) {
	counts := make(map[string]int)
	total := 0

	for _, v := range vals {
		if v.IsNull() {
			continue
		}

		counts[v.String()]++
		total++
	}

	out := make([]labelCount, 0, len(counts))
	for l, c := range counts {
		out = append(out, labelCount{l, c})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}

		return out[i].label < out[j].label
	})

	return out, total
}

// percent returns part/whole*100 rounded to 2 places, 0 for an empty whole.
func percent(part, whole float64) float64 {
	return table.Round(table.Ratio(part, whole)*100, 2)
}

// bin is a right-closed histogram bucket (lower, upper].
type bin struct {
	lower, upper float64
	label        string
}

func makeBins(edges []float64, labels []string) []bin {
	out := make([]bin, len(labels))
	for i := range labels {
		out[i] = bin{edges[i], edges[i+1], labels[i]}
	}

	return out
}

// histogram counts values per bin. Values outside every bin are ignored.
func histogram(bins []bin, xs []float64) []int {
	out := make([]int, len(bins))

	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}

		for i, b := range bins {
			if x > b.lower && x <= b.upper {
				out[i]++
				break
			}
		}
	}

	return out
}

// summary builds a single-row metric batch in insertion order.
type summary struct {
	cols []string
	row  table.Row
}

func newSummary() *summary {
	return &summary{row: make(table.Row)}
}

func (s *summary) set(name string, v table.Value) {
	if _, ok := s.row[name]; !ok {
		s.cols = append(s.cols, name)
	}

	s.row[name] = v
}

func (s *summary) num(name string, f float64) {
	s.set(name, table.Num(f))
}

func (s *summary) count(name string, n int) {
	s.set(name, table.Num(float64(n)))
}

func (s *summary) batch(source string) *table.Batch {
	b := table.New(s.cols...)
	b.Source = source
	b.Append(s.row)

	return b
}

// roundAll rounds every numeric cell to 2 places.
func roundAll(b *table.Batch) {
	for _, c := range b.Columns() {
		for i := 0; i < b.Len(); i++ {
			if f, ok := b.Get(i, c).Float(); ok {
				b.Set(i, c, table.Num(table.Round(f, 2)))
			}
		}
	}
}

// wholeDays floors a duration to whole days.
func wholeDays(d time.Duration) float64 {
	return math.Floor(d.Hours() / 24)
}
