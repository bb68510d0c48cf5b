package orderitem

import (
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
)

// OrderItem represents a line item within an order. Line items are frozen
// once the order is placed.
type OrderItem struct {
	ID             int64             `json:"id"`
	OrderID        string            `json:"orderId"`
	ProductID      int64             `json:"productId"`
	ProductTitle   string            `json:"productTitle"`
	Quantity       int               `json:"quantity"`
	UnitPriceCents int64             `json:"unitPriceCents"`
	LineTotalCents int64             `json:"lineTotalCents"`
	PriceCurrency  currency.Currency `json:"priceCurrency"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// QueryOrderItemsModel represents filter parameters for querying order items.
type QueryOrderItemsModel struct {
	OrderIds []string `json:"orderIds,omitempty"`
}
