package normalizer

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesetl/internal/logger"
	"salesetl/internal/table"
)

func TestClassifyProduct(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    Shape
	}{
		{"catalog", []string{"sku", "stock", "name"}, EntityShaped},
		{"price and cost count once", []string{"price", "cost"}, TransactionShaped},
		{"price and cost plus brand", []string{"price", "cost", "brand"}, EntityShaped},
		{"price without cost", []string{"price", "brand"}, TransactionShaped},
		{"transactions", []string{"order_id", "product_id", "quantity", "unit_price"}, TransactionShaped},
		{"empty", nil, TransactionShaped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyProduct(tt.columns))
		})
	}
}

func TestApplyAliases_ProductTable(t *testing.T) {
	for _, a := range ProductAliases {
		t.Run(a.From, func(t *testing.T) {
			b := table.FromRecords([]string{a.From}, []map[string]any{{a.From: "x"}})
			ApplyAliases(b, ProductAliases)

			assert.True(t, b.Has(a.To), "%s should become %s", a.From, a.To)
			assert.False(t, b.Has(a.From))
		})
	}
}

func TestApplyAliases_QtyBecomesStock(t *testing.T) {
	b := table.FromRecords([]string{"sku", "qty"}, []map[string]any{{"sku": "A-1", "qty": 4}})

	ApplyAliases(b, ProductAliases)

	assert.True(t, b.Has("stock"))
	assert.False(t, b.Has("qty"))
	assert.Equal(t, table.Num(4), b.Get(0, "stock"))
}

func TestApplyAliases_NeverOverwrites(t *testing.T) {
	b := table.FromRecords([]string{"name", "title", "product_name"}, []map[string]any{
		{"name": "alias", "title": "other", "product_name": "canonical"},
	})

	ApplyAliases(b, ProductAliases)

	assert.Equal(t, table.Str("canonical"), b.Get(0, "product_name"))
	assert.Equal(t, table.Str("alias"), b.Get(0, "name"))
	assert.Equal(t, table.Str("other"), b.Get(0, "title"))
}

func TestApplyAliases_FirstAliasWins(t *testing.T) {
	b := table.FromRecords([]string{"title", "name"}, []map[string]any{
		{"title": "from title", "name": "from name"},
	})

	ApplyAliases(b, ProductAliases)

	assert.Equal(t, table.Str("from name"), b.Get(0, "product_name"))
	assert.True(t, b.Has("title"))
}

func TestProductNormalizer_Catalog(t *testing.T) {
	raw := table.FromRecords(
		[]string{"SKU", "Title", "Category", "Quantity", "List Price", "Sale Price", "Brand"},
		[]map[string]any{
			{"SKU": " A-1 ", "Title": "Lamp", "Category": "Home", "Quantity": "5", "List Price": "40", "Sale Price": "30", "Brand": "Lux"},
			{"SKU": "B-2", "Title": "Mug", "Category": "Kitchen", "Quantity": "0", "List Price": "10", "Sale Price": "12", "Brand": "Cup"},
			{"SKU": " A-1 ", "Title": "Lamp copy", "Category": "Home", "Quantity": "9", "List Price": "40", "Sale Price": nil, "Brand": "Lux"},
		},
	)

	out, err := NewProductNormalizer(logger.Discard()).Transform(raw)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	assert.Equal(t, table.Str("A-1"), out.Get(0, "product_id"))
	assert.Equal(t, table.Str("A-1"), out.Get(0, "sku"))
	assert.Equal(t, table.Str("Lamp"), out.Get(0, "product_name"))
	assert.Equal(t, table.Str("Home"), out.Get(0, "product_category"))
	assert.Equal(t, table.Num(5), out.Get(0, "stock"))
	assert.Equal(t, table.Num(40), out.Get(0, "price"))
	assert.Equal(t, table.Str("In Stock"), out.Get(0, "stock_status"))
	assert.Equal(t, table.Num(25), out.Get(0, "discount_percentage"))

	assert.Equal(t, table.Str("Out of Stock"), out.Get(1, "stock_status"))
	assert.True(t, out.Get(1, "discount_percentage").IsNull())
}

func TestProductNormalizer_DescriptionFallback(t *testing.T) {
	long := "A very long product description that keeps going well past fifty characters"
	raw := table.FromRecords([]string{"product_id", "description", "stock", "weight"}, []map[string]any{
		{"product_id": "P1", "description": long, "stock": 3, "weight": 1.5},
	})

	out, err := NewProductNormalizer(logger.Discard()).Transform(raw)
	require.NoError(t, err)

	name, ok := out.Get(0, "product_name").Text()
	require.True(t, ok)
	assert.Equal(t, long[:50], name)
	assert.True(t, out.HasAll("product_category", "price"))
}

func TestProductNormalizer_CatalogWithoutIdentity(t *testing.T) {
	raw := table.FromRecords([]string{"stock", "brand"}, []map[string]any{
		{"stock": 3, "brand": "X"},
	})

	out, err := NewProductNormalizer(logger.Discard()).Transform(raw)
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestProductNormalizer_FromTransactions(t *testing.T) {
	sales := table.FromRecords(
		[]string{"order_id", "product_id", "product_name", "unit_price", "category", "quantity", "final_price", "total_price", "order_date"},
		[]map[string]any{
			{"order_id": "O1", "product_id": "P1", "product_name": "Lamp", "unit_price": 10, "category": "Home", "quantity": 2, "final_price": 22, "total_price": 20, "order_date": "2024-01-02"},
			{"order_id": "O2", "product_id": "P1", "product_name": "Lamp", "unit_price": 10, "category": "Home", "quantity": 1, "final_price": 11, "total_price": 10, "order_date": "2024-01-05"},
			{"order_id": "O2", "product_id": "P2", "product_name": "Mug", "unit_price": 5, "category": "Kitchen", "quantity": 4, "final_price": 20, "total_price": 20, "order_date": "2024-01-05"},
			{"order_id": "O3", "product_id": nil, "product_name": "Ghost", "unit_price": 1, "category": "None", "quantity": 1, "final_price": 1, "total_price": 1, "order_date": "2024-01-06"},
		},
	)

	out, err := NewProductNormalizer(logger.Discard()).Transform(sales)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	assert.Equal(t, table.Str("P1"), out.Get(0, "product_id"))
	assert.Equal(t, table.Num(10), out.Get(0, "price"))
	assert.Equal(t, table.Str("Home"), out.Get(0, "product_category"))
	assert.Equal(t, table.Num(2), out.Get(0, "order_count"))
	assert.Equal(t, table.Num(3), out.Get(0, "total_quantity_sold"))
	assert.Equal(t, table.Num(33), out.Get(0, "total_revenue"))

	last, ok := out.Get(0, "last_ordered_date").When()
	require.True(t, ok)
	assert.Equal(t, 5, last.Day())

	first, ok := out.Get(0, "first_ordered_date").When()
	require.True(t, ok)
	assert.Equal(t, 2, first.Day())
}

func TestProductNormalizer_NameAsIdentity(t *testing.T) {
	sales := table.FromRecords([]string{"product_name", "total_price"}, []map[string]any{
		{"product_name": "Lamp", "total_price": 10},
		{"product_name": "Lamp", "total_price": 5},
	})

	out, err := NewProductNormalizer(logger.Discard()).Transform(sales)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	assert.Equal(t, table.Str("Lamp"), out.Get(0, "product_id"))
	assert.Equal(t, table.Str("Lamp"), out.Get(0, "product_name"))
	assert.Equal(t, table.Num(2), out.Get(0, "order_count"))
	assert.Equal(t, table.Num(15), out.Get(0, "total_revenue"))
}

func TestProductNormalizer_NoIdentity(t *testing.T) {
	sales := table.FromRecords([]string{"order_id", "quantity"}, []map[string]any{
		{"order_id": "O1", "quantity": 1},
	})

	out, err := NewProductNormalizer(logger.Discard()).Transform(sales)
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestProductNormalizer_UniqueIdentityProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	n := NewProductNormalizer(logger.Discard())

	properties.Property("product ids are unique", prop.ForAll(
		func(ids []int) bool {
			records := make([]map[string]any, len(ids))
			for i, id := range ids {
				records[i] = map[string]any{"product_id": fmt.Sprintf("P%d", id), "quantity": 1, "total_price": 2}
			}

			out, err := n.Transform(table.FromRecords([]string{"product_id", "quantity", "total_price"}, records))
			if err != nil {
				return false
			}

			seen := make(map[string]bool)
			for _, v := range out.Column("product_id") {
				if seen[v.Key()] {
					return false
				}

				seen[v.Key()] = true
			}

			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}
