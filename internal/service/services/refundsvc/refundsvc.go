package refundsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/gateway"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/igateway"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/actor"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/gatewayevent"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/refund"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

// stateMachine is the slice of the state machine the coordinator drives.
type stateMachine interface {
	Apply(ctx context.Context, orderID string, expectedVersion int64, tr order.Transition, act actor.Actor, action string) (*order.Order, error)
}

// RefundService owns the refund lifecycle: dispatching refund requests to
// the gateway, tracking the pending sub-record, and driving the state machine
// when the gateway reports a terminal outcome.
type RefundService struct {
	orderRepo   iorderrepo.IOrderRepository
	machine     stateMachine
	gw          igateway.IPaymentGateway
	maxAttempts uint64
	baseBackoff time.Duration
}

// option is a function that configures the RefundService.
type option func(*RefundService)

// MustNewRefundService creates a new RefundService.
func MustNewRefundService(opts ...option) *RefundService {
	maxAttempts := viper.GetUint64("gateway.refund.max_attempts")
	if maxAttempts == 0 {
		maxAttempts = 4
	}
	backoffMillis := viper.GetInt("gateway.refund.base_backoff_ms")
	if backoffMillis == 0 {
		backoffMillis = 500
	}

	s := &RefundService{
		maxAttempts: maxAttempts,
		baseBackoff: time.Duration(backoffMillis) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.orderRepo == nil || s.machine == nil || s.gw == nil {
		panic("refund service requires an order repository, a state machine and a gateway")
	}

	return s
}

// WithOrderRepository sets the order repository for the RefundService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *RefundService) {
		s.orderRepo = repo
	}
}

// WithStateMachine sets the state machine for the RefundService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStateMachine(machine stateMachine) option {
	return func(s *RefundService) {
		s.machine = machine
	}
}

// WithGateway sets the payment gateway adapter for the RefundService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(gw igateway.IPaymentGateway) option {
	return func(s *RefundService) {
		s.gw = gw
	}
}

// WithRetryPolicy overrides the dispatch retry budget.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRetryPolicy(maxAttempts uint64, baseBackoff time.Duration) option {
	return func(s *RefundService) {
		s.maxAttempts = maxAttempts
		s.baseBackoff = baseBackoff
	}
}

// Initiate requests a refund from the gateway and stores the pending
// sub-record. It fails with refund.ErrInvalidState unless the payment is
// captured and no non-failed refund exists, and with refund.ErrInvalidAmount
// if amount exceeds the order total in the order's own currency; the amount
// is never re-interpreted by magnitude. Transient gateway errors are retried
// with bounded exponential backoff; exhaustion surfaces
// refund.ErrDispatchFailed and requires an explicit new Initiate call.
func (s *RefundService) Initiate(
	ctx context.Context,
	orderID string,
	amountCents int64,
	reason string,
	act actor.Actor,
) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "RefundService.Initiate")
	defer span.End()

	o, err := s.orderRepo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := validateInitiate(o, amountCents); err != nil {
		return nil, err
	}

	refundID, err := s.dispatch(ctx, o.PaymentReference, amountCents, o.Currency, reason)
	if err != nil {
		return nil, err
	}

	sub := &refund.Refund{
		RefundID:    refundID,
		AmountCents: amountCents,
		Reason:      reason,
		Status:      refund.StatusPending,
		RequestedAt: time.Now(),
	}
	tr := order.Transition{
		Refund:               sub,
		ViaRefundCoordinator: true,
	}

	updated, err := s.machine.Apply(ctx, o.ID, o.Version, tr, act, auditlog.ActionRefundInitiated)
	if err != nil {
		if !errors.Is(err, order.ErrVersionConflict) {
			return updated, err
		}

		// A concurrent edit raced the dispatch. The gateway already holds
		// the refund request, so the sub-record must not be lost: re-read,
		// re-validate and store once more.
		o, err = s.orderRepo.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := validateInitiate(o, amountCents); err != nil {
			return nil, err
		}

		updated, err = s.machine.Apply(ctx, o.ID, o.Version, tr, act, auditlog.ActionRefundInitiated)
		if err != nil {
			return updated, err
		}
	}

	slog.Info("Refund initiated",
		"order_id", updated.ID,
		"refund_id", refundID,
		"amount_cents", amountCents,
		"actor", act.ID,
	)

	return updated, nil
}

// Resolve applies the gateway-reported terminal outcome of a refund. On
// processed it drives the order to payment_status=refunded and
// status=refunded; on failed it marks the sub-record failed and leaves the
// order status untouched, permitting a fresh Initiate.
func (s *RefundService) Resolve(ctx context.Context, refundID, outcome string) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "RefundService.Resolve")
	defer span.End()

	o, err := s.orderRepo.GetByRefundID(ctx, refundID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if o.Refund == nil || o.Refund.RefundID != refundID {
			return nil, fmt.Errorf("%w: refund %s is not current on order %s", refund.ErrInvalidState, refundID, o.ID)
		}

		if resolved(o.Refund, outcome) {
			slog.Info("Refund outcome already applied, skipping",
				"refund_id", refundID,
				"order_id", o.ID,
				"outcome", outcome,
			)

			return o, nil
		}

		tr, action, err := resolveTransition(o, outcome)
		if err != nil {
			return nil, err
		}

		updated, err := s.machine.Apply(ctx, o.ID, o.Version, tr, actor.System, action)
		if err == nil {
			slog.Info("Refund resolved",
				"refund_id", refundID,
				"order_id", o.ID,
				"outcome", outcome,
			)

			return updated, nil
		}

		if !errors.Is(err, order.ErrVersionConflict) || attempt >= 1 {
			return updated, err
		}

		o, err = s.orderRepo.GetByRefundID(ctx, refundID)
		if err != nil {
			return nil, err
		}
	}
}

func validateInitiate(o *order.Order, amountCents int64) error {
	if o.PaymentStatus != order.PaymentPaid {
		return fmt.Errorf("%w: payment status is %s", refund.ErrInvalidState, o.PaymentStatus)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("%w: order status is %s", refund.ErrInvalidState, o.Status)
	}
	if active := o.ActiveRefund(); active != nil {
		return fmt.Errorf("%w: refund %s is still %s", refund.ErrInvalidState, active.RefundID, active.Status)
	}
	if amountCents <= 0 || amountCents > o.TotalCents {
		return fmt.Errorf("%w: %d of %d %s", refund.ErrInvalidAmount, amountCents, o.TotalCents, o.Currency)
	}

	return nil
}

// dispatch calls the gateway with bounded exponential backoff. Only
// transient upstream failures are retried; a definitive rejection is not.
// The idempotency key is held constant across attempts so a timed-out
// request redelivered by the retry loop cannot create a second refund.
func (s *RefundService) dispatch(
	ctx context.Context,
	paymentReference string,
	amountCents int64,
	cur currency.Currency,
	reason string,
) (string, error) {
	idempotencyKey := uuid.NewString()
	backoff := retry.WithMaxRetries(s.maxAttempts, retry.NewExponential(s.baseBackoff))

	var refundID string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := s.gw.CreateRefund(ctx, paymentReference, amountCents, cur, reason, idempotencyKey)
		if err != nil {
			if errors.Is(err, gateway.ErrUnavailable) {
				slog.Warn("Refund dispatch failed, will retry",
					"payment_reference", paymentReference,
					"error", err,
				)

				return retry.RetryableError(err)
			}

			return err
		}
		refundID = id

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", refund.ErrDispatchFailed, err)
	}

	return refundID, nil
}

func resolved(sub *refund.Refund, outcome string) bool {
	switch outcome {
	case gatewayevent.OutcomeProcessed:
		return sub.Status == refund.StatusProcessed
	case gatewayevent.OutcomeFailed:
		return sub.Status == refund.StatusFailed
	default:
		return false
	}
}

func resolveTransition(o *order.Order, outcome string) (order.Transition, string, error) {
	now := time.Now()
	sub := *o.Refund
	sub.ResolvedAt = &now

	switch outcome {
	case gatewayevent.OutcomeProcessed:
		sub.Status = refund.StatusProcessed
		statusRefunded := order.StatusRefunded
		paymentRefunded := order.PaymentRefunded

		return order.Transition{
			Status:               &statusRefunded,
			PaymentStatus:        &paymentRefunded,
			Refund:               &sub,
			ViaRefundCoordinator: true,
		}, auditlog.ActionRefundResolved, nil
	case gatewayevent.OutcomeFailed:
		sub.Status = refund.StatusFailed

		return order.Transition{
			Refund:               &sub,
			ViaRefundCoordinator: true,
		}, auditlog.ActionRefundResolved, nil
	default:
		return order.Transition{}, "", fmt.Errorf("unknown refund outcome %q", outcome)
	}
}
