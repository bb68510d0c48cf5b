package checkoutsvc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/gateway"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]order.Order)}
}

func (r *fakeOrderRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o.Version = 1
	r.orders[o.ID] = o

	return o, nil
}

func (r *fakeOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}

	return &o, nil
}

func (r *fakeOrderRepo) GetByPaymentReference(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (r *fakeOrderRepo) GetByRefundID(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (r *fakeOrderRepo) Query(_ context.Context, _ *order.QueryOrdersModel) ([]order.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) UpdateCAS(_ context.Context, _ string, _ int64, _ order.Transition) (*order.Order, error) {
	return nil, order.ErrVersionConflict
}

type fakeOrderItemRepo struct {
	items []orderitem.OrderItem
}

func (r *fakeOrderItemRepo) BulkInsert(_ context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error) {
	for i := range items {
		items[i].ID = int64(len(r.items) + 1)
		r.items = append(r.items, items[i])
	}

	return items, nil
}

func (r *fakeOrderItemRepo) Query(_ context.Context, _ *orderitem.QueryOrderItemsModel) ([]orderitem.OrderItem, error) {
	return r.items, nil
}

type fakeAuditRepo struct {
	entries []auditlog.Entry
}

func (r *fakeAuditRepo) Append(_ context.Context, entry auditlog.Entry) error {
	r.entries = append(r.entries, entry)

	return nil
}

func (r *fakeAuditRepo) Query(_ context.Context, _ *auditlog.QueryEntriesModel) ([]auditlog.Entry, error) {
	return r.entries, nil
}

type fakeGateway struct {
	payments int
	err      error
}

func (g *fakeGateway) CreatePayment(_ context.Context, _ string, _ int64, _ currency.Currency) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.payments++

	return "pay_" + uuid.NewString(), nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, _ string) (gateway.PaymentOutcome, error) {
	return gateway.OutcomePending, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, _ string, _ int64, _ currency.Currency, _, _ string) (string, error) {
	return "", errors.New("not used")
}

func newTestCheckoutService(gw *fakeGateway) (*CheckoutService, *fakeOrderRepo, *fakeAuditRepo) {
	orderRepo := newFakeOrderRepo()
	auditRepo := &fakeAuditRepo{}
	svc := MustNewCheckoutService(
		WithOrderRepository(orderRepo),
		WithOrderItemRepository(&fakeOrderItemRepo{}),
		WithAuditRepository(auditRepo),
		WithGateway(gw),
	)

	return svc, orderRepo, auditRepo
}

func validOrder() order.Order {
	return order.Order{
		CustomerID: 42,
		TotalCents: 50000,
		Currency:   currency.CurrencyINR,
		Items: []orderitem.OrderItem{
			{ProductID: 1, ProductTitle: "chair", Quantity: 2, UnitPriceCents: 20000, LineTotalCents: 40000, PriceCurrency: currency.CurrencyINR},
			{ProductID: 2, ProductTitle: "lamp", Quantity: 1, UnitPriceCents: 10000, LineTotalCents: 10000, PriceCurrency: currency.CurrencyINR},
		},
	}
}

func TestCreateOrder(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	svc, orderRepo, auditRepo := newTestCheckoutService(gw)

	created, err := svc.CreateOrder(context.Background(), validOrder())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, order.StatusPending, created.Status)
	assert.Equal(t, order.PaymentPending, created.PaymentStatus)
	assert.NotEmpty(t, created.PaymentReference)
	assert.Equal(t, int64(1), created.Version)
	require.Len(t, created.Items, 2)
	assert.Equal(t, 1, gw.payments)

	stored, err := orderRepo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.PaymentReference, stored.PaymentReference)

	require.Len(t, auditRepo.entries, 1)
	assert.Equal(t, auditlog.ActionOrderCreated, auditRepo.entries[0].Action)
	assert.Equal(t, "system:checkout", auditRepo.entries[0].ActorID)
	assert.Equal(t, int64(1), auditRepo.entries[0].OrderVersion)
}

func TestCreateOrder_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(o *order.Order)
	}{
		{name: "missing customer", mutate: func(o *order.Order) { o.CustomerID = 0 }},
		{name: "zero total", mutate: func(o *order.Order) { o.TotalCents = 0 }},
		{name: "no items", mutate: func(o *order.Order) { o.Items = nil }},
		{name: "zero quantity", mutate: func(o *order.Order) { o.Items[0].Quantity = 0 }},
		{
			name:   "line total mismatch",
			mutate: func(o *order.Order) { o.Items[0].LineTotalCents = 39999 },
		},
		{
			name:   "currency mismatch",
			mutate: func(o *order.Order) { o.Items[1].PriceCurrency = currency.CurrencyUSD },
		},
		{
			name:   "header total does not match lines",
			mutate: func(o *order.Order) { o.TotalCents = 49999 },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := &fakeGateway{}
			svc, _, _ := newTestCheckoutService(gw)
			o := validOrder()
			tt.mutate(&o)

			_, err := svc.CreateOrder(context.Background(), o)
			require.ErrorIs(t, err, order.ErrInvalidOrder)
			assert.Zero(t, gw.payments, "no payment may be registered for a rejected order")
		})
	}
}

func TestCreateOrder_GatewayDown(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: gateway.ErrUnavailable}
	svc, orderRepo, _ := newTestCheckoutService(gw)

	_, err := svc.CreateOrder(context.Background(), validOrder())
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Empty(t, orderRepo.orders, "nothing is persisted when payment registration fails")
}
