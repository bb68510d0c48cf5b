package iorderrepo

import (
	"context"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
)

// IOrderRepository is an interface for the order store adapter. UpdateCAS is
// the sole mutation primitive: a conditional write keyed on id and version.
type IOrderRepository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	GetByPaymentReference(ctx context.Context, ref string) (*order.Order, error)
	GetByRefundID(ctx context.Context, refundID string) (*order.Order, error)
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
	UpdateCAS(ctx context.Context, id string, expectedVersion int64, tr order.Transition) (*order.Order, error)
}
