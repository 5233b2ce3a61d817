package normalizer

import (
	"fmt"
	"strings"

	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// productCarryColumns are copied from transactions onto extracted products.
var productCarryColumns = []string{
	"product_name", "product_category", "unit_price", "product_description",
	"brand", "sku", "asin", "category",
}

// ProductNormalizer produces the canonical product batch from either a
// product catalog or transaction rows.
type ProductNormalizer struct {
	log *logger.Logger
}

// NewProductNormalizer creates a new product normalizer.
func NewProductNormalizer(log *logger.Logger) *ProductNormalizer {
	return &ProductNormalizer{log: log}
}

// Transform returns one row per product. A batch without a usable product
// identity yields an empty batch and a warning.
func (n *ProductNormalizer) Transform(raw *table.Batch) (*table.Batch, error) {
	if raw.Empty() {
		n.log.Warn("no product data to transform")
		return table.New(), nil
	}

	if err := raw.Check(); err != nil {
		n.log.Error("product transform failed", "source", raw.Source, "error", err)
		return nil, fmt.Errorf("product transform: %w", err)
	}

	b, err := standardize(raw)
	if err != nil {
		n.log.Error("product transform failed", "source", raw.Source, "error", err)
		return nil, fmt.Errorf("product transform: %w", err)
	}

	shape := ClassifyProduct(b.Columns())

	var out *table.Batch
	if shape == EntityShaped {
		out = n.normalize(b)
	} else {
		out = n.extract(b)
	}

	if !out.Has("product_id") {
		n.log.Warn("product data has no product identity", "source", raw.Source, "shape", shape.String())
		return table.New(), nil
	}

	n.log.Info("product transform complete",
		"source", raw.Source, "shape", shape.String(), "rows_in", raw.Len(), "rows_out", out.Len())

	return out, nil
}

// normalize handles catalog-shaped input.
func (n *ProductNormalizer) normalize(b *table.Batch) *table.Batch {
	ApplyAliases(b, ProductAliases)

	for _, c := range present(b, "sku", "asin") {
		coerce(b, c, func(v table.Value) table.Value {
			if v.IsNull() {
				return v
			}

			return table.Str(strings.TrimSpace(v.String()))
		})
	}

	if !b.Has("product_id") && b.Has("sku") {
		for i := 0; i < b.Len(); i++ {
			b.Set(i, "product_id", b.Get(i, "sku"))
		}
	}

	if !b.Has("product_name") && b.Has("product_description") {
		for i := 0; i < b.Len(); i++ {
			if s, ok := b.Get(i, "product_description").Text(); ok {
				b.Set(i, "product_name", table.Str(names.Truncate(s, 50)))
			} else {
				b.Set(i, "product_name", table.Null())
			}
		}
	}

	for _, c := range []string{"product_name", "product_category", "price"} {
		b.AddColumn(c)
	}

	for _, c := range []string{"created_date", "updated_date"} {
		coerce(b, c, table.ToTime)
	}

	for _, c := range []string{"price", "sale_price", "cost", "stock", "weight"} {
		coerce(b, c, table.ToNumber)
	}

	if b.Has("stock") && !b.Has("stock_status") {
		for i := 0; i < b.Len(); i++ {
			status := "Out of Stock"
			if s, ok := b.Get(i, "stock").Float(); ok && s > 0 {
				status = "In Stock"
			}

			b.Set(i, "stock_status", table.Str(status))
		}
	}

	if b.HasAll("price", "sale_price") {
		addSaleDiscount(b)
	}

	if !b.Has("product_id") {
		return b
	}

	return b.DistinctBy("product_id")
}

// addSaleDiscount sets discount_percentage where 0 < sale_price < price.
func addSaleDiscount(b *table.Batch) {
	for i := 0; i < b.Len(); i++ {
		r := b.Row(i)
		price, ok1 := number(r, "price")
		sale, ok2 := number(r, "sale_price")

		if ok1 && ok2 && price > 0 && sale > 0 && sale < price {
			b.Set(i, "discount_percentage", table.Num(table.Round((price-sale)/price*100, 2)))
		}
	}
}

// extract builds products from transaction rows.
func (n *ProductNormalizer) extract(sales *table.Batch) *table.Batch {
	idCol := sales.First("product_id", "product_name")
	if idCol == "" {
		n.log.Warn("transactions have neither product_id nor product_name", "source", sales.Source)
		return table.New()
	}

	cols := []string{idCol}

	for _, c := range productCarryColumns {
		if c != idCol && sales.Has(c) {
			cols = append(cols, c)
		}
	}

	products := dropNullKeys(project(sales, cols), idCol).DistinctBy(idCol)

	if products.Has("unit_price") && !products.Has("price") {
		_ = products.Rename("unit_price", "price")
	}

	if products.Has("category") && !products.Has("product_category") {
		_ = products.Rename("category", "product_category")
	}

	revenueCol := revenueColumn(sales)
	aggs := rollup(sales, idCol, revenueCol)
	hasOrderID := sales.Has("order_id")

	for i := 0; i < products.Len(); i++ {
		agg, ok := aggs[products.Get(i, idCol).Key()]
		if !ok {
			continue
		}

		products.Set(i, "order_count", table.Num(agg.orderCount(hasOrderID)))

		if sales.Has("quantity") {
			products.Set(i, "total_quantity_sold", table.Num(agg.quantity))
		}

		if revenueCol != "" {
			products.Set(i, "total_revenue", table.Num(agg.revenue))
		}

		if sales.Has("order_date") {
			products.Set(i, "first_ordered_date", table.Time(agg.first))
			products.Set(i, "last_ordered_date", table.Time(agg.last))
		}
	}

	fillZero(products, "order_count", "total_quantity_sold", "total_revenue")

	if idCol != "product_id" {
		_ = products.Rename(idCol, "product_id")

		for i := 0; i < products.Len(); i++ {
			products.Set(i, "product_name", products.Get(i, "product_id"))
		}
	}

	return products
}
