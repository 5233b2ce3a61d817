package normalizer

// Shape tells whether a batch already describes entities or still holds transactions.
type Shape int

// Batch shapes.
const (
	TransactionShaped Shape = iota
	EntityShaped
)

// String returns the shape name.
func (s Shape) String() string {
	if s == EntityShaped {
		return "entity"
	}

	return "transaction"
}

const (
	productIndicatorThreshold  = 2
	customerIndicatorThreshold = 3
)

// ClassifyProduct decides whether columns describe a product catalog.
func ClassifyProduct(columns []string) Shape {
	if ProductIndicators(columns) >= productIndicatorThreshold {
		return EntityShaped
	}

	return TransactionShaped
}

// ClassifyCustomer decides whether columns describe a customer list.
func ClassifyCustomer(columns []string) Shape {
	if CustomerIndicators(columns) >= customerIndicatorThreshold {
		return EntityShaped
	}

	return TransactionShaped
}

// ProductIndicators counts product-catalog signals among columns.
func ProductIndicators(columns []string) int {
	has := columnSet(columns)

	return count(
		has["stock"],
		has["inventory"],
		has["quantity_available"],
		has["product_description"],
		has["sku"],
		has["price"] && has["cost"],
		has["brand"],
		has["manufacturer"],
		has["weight"],
		has["dimensions"],
	)
}

// CustomerIndicators counts customer-list signals among columns.
func CustomerIndicators(columns []string) int {
	has := columnSet(columns)

	return count(
		has["customer_id"],
		has["name"],
		has["first_name"] && has["last_name"],
		has["email"],
		has["phone"],
		has["address"],
		has["city"],
		has["state"],
		has["zip_code"],
		has["country"],
		has["segment"],
		has["customer_segment"],
		has["total_orders"],
		has["total_spent"],
		has["last_purchase_date"],
		has["registration_date"],
	)
}

func columnSet(columns []string) map[string]bool {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}

	return set
}

func count(flags ...bool) int {
	n := 0

	for _, f := range flags {
		if f {
			n++
		}
	}

	return n
}
