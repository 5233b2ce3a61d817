package validator

import (
	"errors"
	"fmt"

	"salesetl/internal/table"
)

// ErrNoOrderID is reported when order counts cannot be reconciled.
var ErrNoOrderID = errors.New("sales data has no order_id column")

// Consistency is the outcome of the cross-batch checks.
type Consistency struct {
	Warnings   []string
	Errors     []string
	Consistent bool
}

// ValidateConsistency checks that sales reference known products and
// customers and that declared order counts match the sales. Inputs are
// only read.
func (v *Validator) ValidateConsistency(sales, products, customers *table.Batch) Consistency {
	res := Consistency{Consistent: true}

	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		v.log.Warn(msg)
		res.Warnings = append(res.Warnings, msg)
		res.Consistent = false
	}

	if sales == nil || products == nil || customers == nil {
		warn("Cannot validate consistency: one or more data sources missing")
		return res
	}

	if sales.Has("product_id") && products.Has("product_id") {
		if n := len(unknownKeys(sales, products, "product_id")); n > 0 {
			warn("Found %d product IDs in sales data that don't exist in product data", n)
		}
	}

	if sales.Has("customer_id") && customers.Has("customer_id") {
		if n := len(unknownKeys(sales, customers, "customer_id")); n > 0 {
			warn("Found %d customer IDs in sales data that don't exist in customer data", n)
		}
	}

	if sales.Has("customer_id") && customers.HasAll("customer_id", "total_orders") {
		n, err := mismatchedOrderCounts(sales, customers)
		if err != nil {
			msg := fmt.Sprintf("Error validating data consistency: %v", err)
			v.log.Error(msg)
			res.Errors = append(res.Errors, msg)
			res.Consistent = false

			return res
		}

		if n > 0 {
			warn("Found %d customers with inconsistent order counts between sales and customer data", n)
		}
	}

	v.log.Info("consistency check complete", "consistent", res.Consistent, "warnings", len(res.Warnings))

	return res
}

// unknownKeys returns the distinct non-null values of col in from that are absent in ref.
func unknownKeys(from, ref *table.Batch, col string) []string {
	known := make(map[string]bool, ref.Len())
	for _, v := range ref.Column(col) {
		known[v.Key()] = true
	}

	seen := make(map[string]bool)

	var out []string

	for _, v := range from.Column(col) {
		if v.IsNull() || known[v.Key()] || seen[v.Key()] {
			continue
		}

		seen[v.Key()] = true
		out = append(out, v.Key())
	}

	return out
}

// mismatchedOrderCounts counts customers whose total_orders differs from the
// distinct orders observed in sales. Customers without sales observed 0.
func mismatchedOrderCounts(sales, customers *table.Batch) (int, error) {
	if !sales.Has("order_id") {
		return 0, ErrNoOrderID
	}

	observed := make(map[string]map[string]bool)

	for i := 0; i < sales.Len(); i++ {
		cid, oid := sales.Get(i, "customer_id"), sales.Get(i, "order_id")
		if cid.IsNull() || oid.IsNull() {
			continue
		}

		orders, ok := observed[cid.Key()]
		if !ok {
			orders = make(map[string]bool)
			observed[cid.Key()] = orders
		}

		orders[oid.Key()] = true
	}

	declared, err := customers.Floats("total_orders")
	if err != nil {
		return 0, err
	}

	n := 0

	for i, want := range declared {
		got := len(observed[customers.Get(i, "customer_id").Key()])
		if want != float64(got) {
			n++
		}
	}

	return n, nil
}
