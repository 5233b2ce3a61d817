package normalizer

import (
	"fmt"

	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// Canonical holds the three canonical batches derived from one source.
type Canonical struct {
	Sales     *table.Batch
	Products  *table.Batch
	Customers *table.Batch
}

// Processor runs the sales normalizer and then derives products and
// customers from its output.
type Processor struct {
	sales     *SalesNormalizer
	products  *ProductNormalizer
	customers *CustomerNormalizer
}

// NewProcessor creates a new processor instance.
func NewProcessor(log *logger.Logger) *Processor {
	return &Processor{
		sales:     NewSalesNormalizer(log),
		products:  NewProductNormalizer(log),
		customers: NewCustomerNormalizer(log),
	}
}

// Process transforms one raw batch into the canonical batches.
// A sales failure aborts; product and customer failures are returned after
// both have been attempted.
func (p *Processor) Process(raw *table.Batch) (Canonical, error) {
	sales, err := p.sales.Transform(raw)
	if err != nil {
		return Canonical{}, fmt.Errorf("transformation failed: %w", err)
	}

	out := Canonical{Sales: sales}

	products, perr := p.products.Transform(sales)
	if perr == nil {
		out.Products = products
	}

	customers, cerr := p.customers.Transform(sales)
	if cerr == nil {
		out.Customers = customers
	}

	switch {
	case perr != nil:
		return out, fmt.Errorf("transformation failed: %w", perr)
	case cerr != nil:
		return out, fmt.Errorf("transformation failed: %w", cerr)
	}

	return out, nil
}
