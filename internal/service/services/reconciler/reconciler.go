package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/actor"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/gatewayevent"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"go.opentelemetry.io/otel"
)

var (
	// ErrConflict is returned when a gateway event still conflicts with a
	// concurrent edit after one internal retry. It is surfaced rather than
	// dropped: an admin edit racing a genuine payment confirmation is an
	// operational anomaly requiring human review.
	ErrConflict = errors.New("reconciliation conflict")
	// ErrUnresolved is returned when payment verification exhausted its
	// retry budget without a definitive outcome.
	ErrUnresolved = errors.New("reconciliation unresolved")
)

// stateMachine is the slice of the state machine the reconciler drives.
type stateMachine interface {
	Apply(ctx context.Context, orderID string, expectedVersion int64, tr order.Transition, act actor.Actor, action string) (*order.Order, error)
}

// Reconciler translates gateway confirmation events into state machine
// transitions, at most once per gateway event. Gateway delivery is
// at-least-once and unordered, so every path here must be idempotent.
type Reconciler struct {
	orderRepo iorderrepo.IOrderRepository
	machine   stateMachine
}

// option is a function that configures the Reconciler.
type option func(*Reconciler)

// MustNewReconciler creates a new Reconciler.
func MustNewReconciler(opts ...option) *Reconciler {
	r := &Reconciler{}
	for _, opt := range opts {
		opt(r)
	}

	if r.orderRepo == nil || r.machine == nil {
		panic("reconciler requires an order repository and a state machine")
	}

	return r
}

// WithOrderRepository sets the order repository for the Reconciler.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(r *Reconciler) {
		r.orderRepo = repo
	}
}

// WithStateMachine sets the state machine for the Reconciler.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStateMachine(machine stateMachine) option {
	return func(r *Reconciler) {
		r.machine = machine
	}
}

// Reconcile applies a payment confirmation event. Redelivered events are a
// no-op once payment_reference and payment_status already reflect the
// outcome. A version conflict with a concurrent edit is retried once, then
// surfaced as ErrConflict. Unknown correlation ids fail with
// order.ErrNotFound without any state mutation, as does an event whose
// payment id contradicts the payment already recorded on the order.
func (r *Reconciler) Reconcile(ctx context.Context, event gatewayevent.Event) error {
	ctx, span := otel.Tracer("service").Start(ctx, "Reconciler.Reconcile")
	defer span.End()

	target, err := paymentOutcome(event.Outcome)
	if err != nil {
		return err
	}

	o, err := r.lookup(ctx, event)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		if o.PaymentReference != "" && event.PaymentReference != "" &&
			o.PaymentReference != event.PaymentReference {
			slog.Warn("Gateway event payment does not match the order's recorded payment",
				"event_id", event.EventID,
				"order_id", o.ID,
				"payment_reference", o.PaymentReference,
				"event_payment_reference", event.PaymentReference,
			)

			return fmt.Errorf("%w: payment %s is not recorded on order %s",
				order.ErrNotFound, event.PaymentReference, o.ID)
		}

		if alreadyApplied(o, event, target) {
			slog.Info("Gateway event already applied, skipping",
				"event_id", event.EventID,
				"order_id", o.ID,
				"payment_status", o.PaymentStatus,
			)

			return nil
		}

		tr := order.Transition{
			PaymentStatus:    &target,
			PaymentReference: event.PaymentReference,
		}

		_, err = r.machine.Apply(ctx, o.ID, o.Version, tr, actor.System, auditlog.ActionPaymentApplied)
		if err == nil {
			slog.Info("Gateway event reconciled",
				"event_id", event.EventID,
				"order_id", o.ID,
				"outcome", event.Outcome,
			)

			return nil
		}

		if errors.Is(err, auditlog.ErrWriteFailed) {
			// The transition committed; the compliance condition is the
			// caller's to handle.
			return err
		}

		if !errors.Is(err, order.ErrVersionConflict) {
			return err
		}

		if attempt >= 1 {
			return fmt.Errorf("%w: event %s on order %s", ErrConflict, event.EventID, o.ID)
		}

		// A concurrent edit raced this event: re-read and retry once.
		o, err = r.orderRepo.Get(ctx, o.ID)
		if err != nil {
			return err
		}
	}
}

func (r *Reconciler) lookup(ctx context.Context, event gatewayevent.Event) (*order.Order, error) {
	if event.OrderID != "" {
		o, err := r.orderRepo.Get(ctx, event.OrderID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				slog.Warn("Gateway event references unknown order",
					"event_id", event.EventID,
					"order_id", event.OrderID,
				)
			}

			return nil, err
		}

		return o, nil
	}

	o, err := r.orderRepo.GetByPaymentReference(ctx, event.PaymentReference)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			slog.Warn("Gateway event references unknown payment",
				"event_id", event.EventID,
				"payment_reference", event.PaymentReference,
			)
		}

		return nil, err
	}

	return o, nil
}

func alreadyApplied(o *order.Order, event gatewayevent.Event, target order.PaymentStatus) bool {
	return o.PaymentReference == event.PaymentReference && o.PaymentStatus == target
}

func paymentOutcome(outcome string) (order.PaymentStatus, error) {
	switch outcome {
	case gatewayevent.OutcomePaid:
		return order.PaymentPaid, nil
	case gatewayevent.OutcomeFailed:
		return order.PaymentFailed, nil
	default:
		return "", fmt.Errorf("unknown payment outcome %q", outcome)
	}
}
