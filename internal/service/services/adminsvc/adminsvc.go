package adminsvc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iauditrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderitemrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/actor"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"go.opentelemetry.io/otel"
)

// stateMachine is the slice of the state machine admin edits drive.
type stateMachine interface {
	Apply(ctx context.Context, orderID string, expectedVersion int64, tr order.Transition, act actor.Actor, action string) (*order.Order, error)
}

// refundCoordinator is the slice of the refund coordinator exposed to admins.
type refundCoordinator interface {
	Initiate(ctx context.Context, orderID string, amountCents int64, reason string, act actor.Actor) (*order.Order, error)
}

// AdminService is the single entry point for administrative reads and
// mutations. Every mutation requires an authenticated actor resolved from
// the request context and ends up in the audit ledger.
type AdminService struct {
	orderRepo     iorderrepo.IOrderRepository
	orderItemRepo iorderitemrepo.IOrderItemRepository
	auditRepo     iauditrepo.IAuditRepository
	machine       stateMachine
	refunds       refundCoordinator
}

// option is a function that configures the AdminService.
type option func(*AdminService)

// MustNewAdminService creates a new AdminService.
func MustNewAdminService(opts ...option) *AdminService {
	s := &AdminService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.orderRepo == nil || s.auditRepo == nil || s.machine == nil || s.refunds == nil {
		panic("admin service requires repositories, a state machine and a refund coordinator")
	}

	return s
}

// WithOrderRepository sets the order repository for the AdminService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *AdminService) {
		s.orderRepo = repo
	}
}

// WithOrderItemRepository sets the order item repository for the AdminService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderItemRepository(repo iorderitemrepo.IOrderItemRepository) option {
	return func(s *AdminService) {
		s.orderItemRepo = repo
	}
}

// WithAuditRepository sets the audit repository for the AdminService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithAuditRepository(repo iauditrepo.IAuditRepository) option {
	return func(s *AdminService) {
		s.auditRepo = repo
	}
}

// WithStateMachine sets the state machine for the AdminService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStateMachine(machine stateMachine) option {
	return func(s *AdminService) {
		s.machine = machine
	}
}

// WithRefundCoordinator sets the refund coordinator for the AdminService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRefundCoordinator(refunds refundCoordinator) option {
	return func(s *AdminService) {
		s.refunds = refunds
	}
}

// ListOrders retrieves orders with their line items based on filter.
func (s *AdminService) ListOrders(
	ctx context.Context,
	filter *order.QueryOrdersModel,
) ([]order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "AdminService.ListOrders")
	defer span.End()

	orders, err := s.orderRepo.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	itemQuery := &orderitem.QueryOrderItemsModel{}
	for _, o := range orders {
		itemQuery.OrderIds = append(itemQuery.OrderIds, o.ID)
	}
	items, err := s.orderItemRepo.Query(ctx, itemQuery)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		for _, item := range items {
			if item.OrderID == orders[i].ID {
				orders[i].Items = append(orders[i].Items, item)
			}
		}
	}

	return orders, nil
}

// GetOrder retrieves a single order with its line items.
func (s *AdminService) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "AdminService.GetOrder")
	defer span.End()

	o, err := s.orderRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := s.orderItemRepo.Query(ctx, &orderitem.QueryOrderItemsModel{OrderIds: []string{id}})
	if err != nil {
		return nil, err
	}
	o.Items = items

	return o, nil
}

// TransitionOrder applies an administrative fulfillment transition. The
// refunded state is rejected here: it is reachable only through the refund
// coordinator. Conflicts are surfaced to the caller to re-fetch and retry.
func (s *AdminService) TransitionOrder(
	ctx context.Context,
	id string,
	expectedVersion int64,
	target order.Status,
) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "AdminService.TransitionOrder")
	defer span.End()

	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	tr := order.Transition{Status: &target}

	updated, err := s.machine.Apply(ctx, id, expectedVersion, tr, act, auditlog.ActionOrderTransition)
	if err != nil {
		return updated, err
	}

	slog.Info("Admin transitioned order",
		"order_id", id,
		"target", target,
		"version", updated.Version,
		"actor", act.ID,
	)

	return updated, nil
}

// InitiateRefund starts a refund on behalf of an administrator.
func (s *AdminService) InitiateRefund(
	ctx context.Context,
	id string,
	amountCents int64,
	reason string,
) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "AdminService.InitiateRefund")
	defer span.End()

	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		return nil, fmt.Errorf("refund reason is required")
	}

	return s.refunds.Initiate(ctx, id, amountCents, reason, act)
}

// ListAuditEntries retrieves audit entries, newest first.
func (s *AdminService) ListAuditEntries(
	ctx context.Context,
	filter *auditlog.QueryEntriesModel,
) ([]auditlog.Entry, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "AdminService.ListAuditEntries")
	defer span.End()

	return s.auditRepo.Query(ctx, filter)
}
