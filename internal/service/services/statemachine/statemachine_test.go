package statemachine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/actor"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/refund"
)

func newTestMachine(orders ...order.Order) (*StateMachine, *fakeOrderRepo, *fakeAuditRepo) {
	orderRepo := newFakeOrderRepo(orders...)
	auditRepo := &fakeAuditRepo{}
	machine := MustNewStateMachine(
		WithOrderRepository(orderRepo),
		WithAuditRepository(auditRepo),
	)

	return machine, orderRepo, auditRepo
}

func testOrder(status order.Status, ps order.PaymentStatus) order.Order {
	return order.Order{
		ID:            uuid.NewString(),
		CustomerID:    42,
		TotalCents:    50000,
		Currency:      currency.CurrencyINR,
		Status:        status,
		PaymentStatus: ps,
		Version:       1,
	}
}

func statusPtr(s order.Status) *order.Status { return &s }

func paymentPtr(s order.PaymentStatus) *order.PaymentStatus { return &s }

func testActor() actor.Actor {
	return actor.Actor{ID: "admin:7", Role: "admin", RequestIP: "10.0.0.1", RequestAgent: "console"}
}

func TestApply_StatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    order.Status
		to      order.Status
		wantErr bool
	}{
		{name: "pending to processing", from: order.StatusPending, to: order.StatusProcessing},
		{name: "processing to shipped", from: order.StatusProcessing, to: order.StatusShipped},
		{name: "shipped to delivered", from: order.StatusShipped, to: order.StatusDelivered},
		{name: "pending to cancelled", from: order.StatusPending, to: order.StatusCancelled},
		{name: "processing to cancelled", from: order.StatusProcessing, to: order.StatusCancelled},
		{name: "pending to shipped skips processing", from: order.StatusPending, to: order.StatusShipped, wantErr: true},
		{name: "shipped to cancelled", from: order.StatusShipped, to: order.StatusCancelled, wantErr: true},
		{name: "delivered is terminal", from: order.StatusDelivered, to: order.StatusPending, wantErr: true},
		{name: "cancelled is terminal", from: order.StatusCancelled, to: order.StatusProcessing, wantErr: true},
		{name: "refunded is terminal", from: order.StatusRefunded, to: order.StatusPending, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := testOrder(tt.from, order.PaymentPending)
			machine, _, auditRepo := newTestMachine(o)

			updated, err := machine.Apply(
				context.Background(),
				o.ID,
				o.Version,
				order.Transition{Status: statusPtr(tt.to)},
				testActor(),
				auditlog.ActionOrderTransition,
			)

			if tt.wantErr {
				require.ErrorIs(t, err, order.ErrInvalidTransition)
				assert.Empty(t, auditRepo.entries)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, updated.Status)
			assert.Equal(t, o.Version+1, updated.Version)
			require.Len(t, auditRepo.entries, 1)
			assert.Equal(t, updated.Version, auditRepo.entries[0].OrderVersion)
		})
	}
}

func TestApply_RefundedRequiresCoordinator(t *testing.T) {
	t.Parallel()

	o := testOrder(order.StatusProcessing, order.PaymentPaid)
	machine, _, _ := newTestMachine(o)

	_, err := machine.Apply(
		context.Background(),
		o.ID,
		o.Version,
		order.Transition{Status: statusPtr(order.StatusRefunded)},
		testActor(),
		auditlog.ActionOrderTransition,
	)
	require.ErrorIs(t, err, order.ErrInvalidTransition)

	updated, err := machine.Apply(
		context.Background(),
		o.ID,
		o.Version,
		order.Transition{
			Status:               statusPtr(order.StatusRefunded),
			PaymentStatus:        paymentPtr(order.PaymentRefunded),
			ViaRefundCoordinator: true,
		},
		actor.System,
		auditlog.ActionRefundResolved,
	)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, updated.Status)
	assert.Equal(t, order.PaymentRefunded, updated.PaymentStatus)
}

func TestApply_CancelPaidOrderRejected(t *testing.T) {
	t.Parallel()

	o := testOrder(order.StatusProcessing, order.PaymentPaid)
	machine, _, _ := newTestMachine(o)

	_, err := machine.Apply(
		context.Background(),
		o.ID,
		o.Version,
		order.Transition{Status: statusPtr(order.StatusCancelled)},
		testActor(),
		auditlog.ActionOrderTransition,
	)

	require.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestApply_EmptyTransitionRejected(t *testing.T) {
	t.Parallel()

	o := testOrder(order.StatusPending, order.PaymentPending)
	machine, _, _ := newTestMachine(o)

	_, err := machine.Apply(
		context.Background(), o.ID, o.Version, order.Transition{}, testActor(), auditlog.ActionOrderTransition,
	)

	require.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestApply_VersionConflict(t *testing.T) {
	t.Parallel()

	o := testOrder(order.StatusPending, order.PaymentPending)
	machine, _, auditRepo := newTestMachine(o)

	_, err := machine.Apply(
		context.Background(),
		o.ID,
		o.Version+5,
		order.Transition{Status: statusPtr(order.StatusProcessing)},
		testActor(),
		auditlog.ActionOrderTransition,
	)

	require.ErrorIs(t, err, order.ErrVersionConflict)
	assert.Empty(t, auditRepo.entries)
}

func TestApply_UnknownOrder(t *testing.T) {
	t.Parallel()

	machine, _, _ := newTestMachine()

	_, err := machine.Apply(
		context.Background(),
		uuid.NewString(),
		1,
		order.Transition{Status: statusPtr(order.StatusProcessing)},
		testActor(),
		auditlog.ActionOrderTransition,
	)

	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestApply_AuditFailureKeepsMutation(t *testing.T) {
	t.Parallel()

	o := testOrder(order.StatusPending, order.PaymentPending)
	orderRepo := newFakeOrderRepo(o)
	auditRepo := &fakeAuditRepo{failErr: errors.New("disk full")}
	machine := MustNewStateMachine(
		WithOrderRepository(orderRepo),
		WithAuditRepository(auditRepo),
	)

	updated, err := machine.Apply(
		context.Background(),
		o.ID,
		o.Version,
		order.Transition{Status: statusPtr(order.StatusProcessing)},
		testActor(),
		auditlog.ActionOrderTransition,
	)

	require.ErrorIs(t, err, auditlog.ErrWriteFailed)
	require.NotNil(t, updated)
	assert.Equal(t, order.StatusProcessing, updated.Status)

	stored, err := orderRepo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, stored.Status)
	assert.Equal(t, o.Version+1, stored.Version)
}

func TestApply_ConcurrentWritersOnSameVersion(t *testing.T) {
	t.Parallel()

	o := testOrder(order.StatusPending, order.PaymentPending)
	machine, orderRepo, _ := newTestMachine(o)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	transitions := []order.Transition{
		{Status: statusPtr(order.StatusProcessing)},
		{Status: statusPtr(order.StatusCancelled)},
	}
	for i := range transitions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = machine.Apply(
				context.Background(), o.ID, o.Version, transitions[i], testActor(), auditlog.ActionOrderTransition,
			)
		}(i)
	}
	wg.Wait()

	var conflicts int
	for _, err := range errs {
		if errors.Is(err, order.ErrVersionConflict) {
			conflicts++
		} else {
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 1, conflicts)

	stored, err := orderRepo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Version+1, stored.Version)
}

func TestApply_RefundSubRecordAndPaymentReference(t *testing.T) {
	t.Parallel()

	o := testOrder(order.StatusProcessing, order.PaymentPending)
	o.PaymentReference = "pay_123"
	machine, _, auditRepo := newTestMachine(o)

	updated, err := machine.Apply(
		context.Background(),
		o.ID,
		o.Version,
		order.Transition{
			PaymentStatus:    paymentPtr(order.PaymentPaid),
			PaymentReference: "pay_456",
		},
		actor.System,
		auditlog.ActionPaymentApplied,
	)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, "pay_123", updated.PaymentReference, "an existing payment reference is never overwritten")

	sub := &refund.Refund{
		RefundID:    uuid.NewString(),
		AmountCents: 50000,
		Reason:      "damaged",
		Status:      refund.StatusPending,
	}
	updated, err = machine.Apply(
		context.Background(),
		updated.ID,
		updated.Version,
		order.Transition{Refund: sub, ViaRefundCoordinator: true},
		testActor(),
		auditlog.ActionRefundInitiated,
	)

	require.NoError(t, err)
	require.NotNil(t, updated.Refund)
	assert.Equal(t, sub.RefundID, updated.Refund.RefundID)
	assert.Equal(t, refund.StatusPending, updated.Refund.Status)
	require.Len(t, auditRepo.entries, 2)
	assert.Equal(t, actor.System.ID, auditRepo.entries[0].ActorID)
	assert.Equal(t, auditlog.ActionRefundInitiated, auditRepo.entries[1].Action)
}
