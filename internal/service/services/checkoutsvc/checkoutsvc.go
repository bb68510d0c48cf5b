package checkoutsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iauditrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/igateway"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderitemrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

// CheckoutService admits finalized orders into the system. It is the only
// writer that creates order rows; everything after admission goes through the
// state machine. Totals and line items arrive already priced, so validation
// here is arithmetic consistency, not pricing.
type CheckoutService struct {
	orderRepo     iorderrepo.IOrderRepository
	orderItemRepo iorderitemrepo.IOrderItemRepository
	auditRepo     iauditrepo.IAuditRepository
	gw            igateway.IPaymentGateway
}

// option is a function that configures the CheckoutService.
type option func(*CheckoutService)

// MustNewCheckoutService creates a new CheckoutService.
func MustNewCheckoutService(opts ...option) *CheckoutService {
	s := &CheckoutService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.orderRepo == nil || s.orderItemRepo == nil || s.auditRepo == nil || s.gw == nil {
		panic("checkout service requires repositories and a gateway")
	}

	return s
}

// WithOrderRepository sets the order repository for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *CheckoutService) {
		s.orderRepo = repo
	}
}

// WithOrderItemRepository sets the order item repository for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderItemRepository(repo iorderitemrepo.IOrderItemRepository) option {
	return func(s *CheckoutService) {
		s.orderItemRepo = repo
	}
}

// WithAuditRepository sets the audit repository for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithAuditRepository(repo iauditrepo.IAuditRepository) option {
	return func(s *CheckoutService) {
		s.auditRepo = repo
	}
}

// WithGateway sets the payment gateway adapter for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(gw igateway.IPaymentGateway) option {
	return func(s *CheckoutService) {
		s.gw = gw
	}
}

// CreateOrder registers the payment with the gateway and persists the order
// with its line items. The payment reference is written at creation so the
// reconciler and the verification poller can correlate the gateway's answer
// from the first version onward.
func (s *CheckoutService) CreateOrder(ctx context.Context, o order.Order) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "CheckoutService.CreateOrder")
	defer span.End()

	if err := validate(&o); err != nil {
		return nil, err
	}

	o.ID = uuid.NewString()
	o.Status = order.StatusPending
	o.PaymentStatus = order.PaymentPending

	paymentReference, err := s.gw.CreatePayment(ctx, o.ID, o.TotalCents, o.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to register payment: %w", err)
	}
	o.PaymentReference = paymentReference

	items := o.Items
	o.Items = nil

	created, err := s.orderRepo.Insert(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = created.ID
	}
	created.Items, err = s.orderItemRepo.BulkInsert(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order items: %w", err)
	}

	if err := s.audit(ctx, &created); err != nil {
		slog.Error("Audit write failed after order creation",
			"order_id", created.ID,
			"error", err,
		)

		return &created, err
	}

	slog.Info("Order admitted",
		"order_id", created.ID,
		"customer_id", created.CustomerID,
		"total_cents", created.TotalCents,
		"currency", created.Currency,
		"payment_reference", created.PaymentReference,
	)

	return &created, nil
}

func validate(o *order.Order) error {
	if o.CustomerID == 0 {
		return fmt.Errorf("%w: customer id is required", order.ErrInvalidOrder)
	}
	if o.TotalCents <= 0 {
		return fmt.Errorf("%w: total must be positive", order.ErrInvalidOrder)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: at least one line item is required", order.ErrInvalidOrder)
	}

	var sum int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", order.ErrInvalidOrder, item.ProductID)
		}
		if item.LineTotalCents != item.UnitPriceCents*int64(item.Quantity) {
			return fmt.Errorf("%w: item %d line total does not match unit price", order.ErrInvalidOrder, item.ProductID)
		}
		if item.PriceCurrency != o.Currency {
			return fmt.Errorf("%w: item %d currency %s differs from order currency %s",
				order.ErrInvalidOrder, item.ProductID, item.PriceCurrency, o.Currency)
		}
		sum += item.LineTotalCents
	}
	if sum != o.TotalCents {
		return fmt.Errorf("%w: total %d does not equal sum of line totals %d", order.ErrInvalidOrder, o.TotalCents, sum)
	}

	return nil
}

func (s *CheckoutService) audit(ctx context.Context, created *order.Order) error {
	snapshot, err := json.Marshal(created)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal order snapshot: %v", auditlog.ErrWriteFailed, err)
	}

	return s.auditRepo.Append(ctx, auditlog.Entry{
		ActorID:      "system:checkout",
		Action:       auditlog.ActionOrderCreated,
		ResourceType: "order",
		ResourceID:   created.ID,
		After:        snapshot,
		OrderVersion: created.Version,
	})
}
