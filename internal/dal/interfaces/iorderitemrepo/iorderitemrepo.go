package iorderitemrepo

import (
	"context"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
)

// IOrderItemRepository is an interface for the order item repository.
// Line items are immutable once the order is placed, so there is no update.
type IOrderItemRepository interface {
	BulkInsert(ctx context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error)
	Query(ctx context.Context, filter *orderitem.QueryOrderItemsModel) ([]orderitem.OrderItem, error)
}
