package normalizer

import "salesetl/internal/table"

// Alias maps a source column name to its canonical name.
type Alias struct {
	From string
	To   string
}

// ProductAliases is applied in order to entity-shaped product batches.
var ProductAliases = []Alias{
	{"id", "product_id"},
	{"sellersku", "sku"},
	{"item_id", "product_id"},
	{"name", "product_name"},
	{"title", "product_name"},
	{"product_title", "product_name"},
	{"item_name", "product_name"},
	{"description", "product_description"},
	{"category", "product_category"},
	{"inventory_quantity", "stock"},
	{"quantity_available", "stock"},
	{"quantity", "stock"},
	{"qty", "stock"},
	{"inventory_status", "stock_status"},
	{"list_price", "price"},
	{"retail_price", "price"},
	{"unit_price", "price"},
	{"listingprice.amount", "price"},
	{"discount_price", "sale_price"},
	{"special_price", "sale_price"},
	{"unit_cost", "cost"},
	{"supplier_price", "cost"},
	{"product_weight", "weight"},
	{"item_weight", "weight"},
	{"itemweight", "weight"},
	{"created_at", "created_date"},
	{"date_added", "created_date"},
	{"updated_at", "updated_date"},
	{"last_updated", "updated_date"},
	{"last_updated_date", "updated_date"},
}

// CustomerAliases is applied in order to entity-shaped customer batches.
var CustomerAliases = []Alias{
	{"id", "customer_id"},
	{"user_id", "customer_id"},
	{"customerid", "customer_id"},
	{"customer_name", "full_name"},
	{"name", "full_name"},
	{"firstname", "first_name"},
	{"fname", "first_name"},
	{"lastname", "last_name"},
	{"lname", "last_name"},
	{"email_address", "email"},
	{"phone_number", "phone"},
	{"telephone", "phone"},
	{"street_address", "address"},
	{"address_line_1", "address"},
	{"province", "state"},
	{"region", "state"},
	{"postal_code", "zip_code"},
	{"zip", "zip_code"},
	{"postcode", "zip_code"},
	{"customer_segment", "segment"},
	{"customer_type", "segment"},
	{"signup_date", "registration_date"},
	{"date_joined", "registration_date"},
	{"created_at", "registration_date"},
	{"last_order_date", "last_purchase_date"},
	{"most_recent_order", "last_purchase_date"},
	{"order_count", "total_orders"},
	{"orders_count", "total_orders"},
	{"num_orders", "total_orders"},
	{"lifetime_value", "total_spent"},
	{"customer_value", "total_spent"},
	{"ltv", "total_spent"},
	{"average_order_value", "avg_order_value"},
	{"aov", "avg_order_value"},
}

// ApplyAliases renames columns in place. A canonical column that already
// exists is never overwritten; the alias is left as is.
func ApplyAliases(b *table.Batch, aliases []Alias) {
	for _, a := range aliases {
		if b.Has(a.From) && !b.Has(a.To) {
			_ = b.Rename(a.From, a.To)
		}
	}
}
