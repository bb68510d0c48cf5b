package statemachine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iauditrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/actor"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"go.opentelemetry.io/otel"
)

// StateMachine owns every order state transition. All mutations flow through
// Apply: it validates reachability, performs the conditional write, and pairs
// each accepted mutation with an audit ledger entry before the caller is
// acknowledged.
type StateMachine struct {
	orderRepo iorderrepo.IOrderRepository
	auditRepo iauditrepo.IAuditRepository
}

// option is a function that configures the StateMachine.
type option func(*StateMachine)

// MustNewStateMachine creates a new StateMachine.
func MustNewStateMachine(opts ...option) *StateMachine {
	m := &StateMachine{}
	for _, opt := range opts {
		opt(m)
	}

	if m.orderRepo == nil || m.auditRepo == nil {
		panic("state machine requires an order repository and an audit repository")
	}

	return m
}

// WithOrderRepository sets the order repository for the StateMachine.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(m *StateMachine) {
		m.orderRepo = repo
	}
}

// WithAuditRepository sets the audit repository for the StateMachine.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithAuditRepository(repo iauditrepo.IAuditRepository) option {
	return func(m *StateMachine) {
		m.auditRepo = repo
	}
}

// Apply validates and applies a transition on a single order.
//
// It fails with order.ErrInvalidTransition if the requested target is not
// reachable from the current state, and with order.ErrVersionConflict if
// expectedVersion no longer matches the stored version. On success the new
// state is written atomically with a version increment and an audit entry is
// appended carrying the new version. If the audit append fails the mutation
// itself stands; the returned error wraps auditlog.ErrWriteFailed and the
// updated order is still returned so callers can log the condition for
// operator follow-up.
func (m *StateMachine) Apply(
	ctx context.Context,
	orderID string,
	expectedVersion int64,
	tr order.Transition,
	act actor.Actor,
	action string,
) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "StateMachine.Apply")
	defer span.End()

	before, err := m.orderRepo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if before.Version != expectedVersion {
		return nil, order.ErrVersionConflict
	}

	if err := validate(before, tr); err != nil {
		return nil, err
	}

	updated, err := m.orderRepo.UpdateCAS(ctx, orderID, expectedVersion, tr)
	if err != nil {
		return nil, err
	}

	if err := m.audit(ctx, before, updated, act, action); err != nil {
		slog.Error("Audit write failed after committed mutation",
			"order_id", orderID,
			"version", updated.Version,
			"action", action,
			"error", err,
		)

		return updated, err
	}

	return updated, nil
}

func validate(current *order.Order, tr order.Transition) error {
	if tr.Status == nil && tr.PaymentStatus == nil && tr.Refund == nil {
		return fmt.Errorf("%w: empty transition", order.ErrInvalidTransition)
	}

	if tr.Status != nil {
		target := *tr.Status
		if !current.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", order.ErrInvalidTransition, current.Status, target)
		}
		// The refunded terminal state is reachable only through the refund
		// coordinator, never by a direct admin edit.
		if target == order.StatusRefunded && !tr.ViaRefundCoordinator {
			return fmt.Errorf("%w: refunded is only reachable via the refund coordinator", order.ErrInvalidTransition)
		}
		// A captured payment must be refunded, not cancelled away.
		if target == order.StatusCancelled && current.PaymentStatus == order.PaymentPaid {
			return fmt.Errorf("%w: paid orders require a refund before cancellation", order.ErrInvalidTransition)
		}
	}

	if tr.PaymentStatus != nil {
		target := *tr.PaymentStatus
		if !current.PaymentStatus.CanTransitionTo(target) {
			return fmt.Errorf("%w: payment %s -> %s", order.ErrInvalidTransition, current.PaymentStatus, target)
		}
		if target == order.PaymentRefunded && !tr.ViaRefundCoordinator {
			return fmt.Errorf("%w: payment refunded is only reachable via the refund coordinator", order.ErrInvalidTransition)
		}
	}

	return nil
}

func (m *StateMachine) audit(
	ctx context.Context,
	before, after *order.Order,
	act actor.Actor,
	action string,
) error {
	beforeSnapshot, err := json.Marshal(before)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal before snapshot: %v", auditlog.ErrWriteFailed, err)
	}
	afterSnapshot, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal after snapshot: %v", auditlog.ErrWriteFailed, err)
	}

	entry := auditlog.Entry{
		ActorID:      act.ID,
		Action:       action,
		ResourceType: "order",
		ResourceID:   after.ID,
		Before:       beforeSnapshot,
		After:        afterSnapshot,
		OrderVersion: after.Version,
		RequestIP:    act.RequestIP,
		RequestAgent: act.RequestAgent,
	}

	if err := m.auditRepo.Append(ctx, entry); err != nil {
		if errors.Is(err, auditlog.ErrWriteFailed) {
			return err
		}

		return fmt.Errorf("%w: %v", auditlog.ErrWriteFailed, err)
	}

	return nil
}
