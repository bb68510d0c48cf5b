package refundsvc

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/gateway"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newFakeOrderRepo(orders ...order.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[string]*order.Order)}
	for _, o := range orders {
		r.orders[o.ID] = cloneOrder(&o)
	}

	return r
}

func cloneOrder(o *order.Order) *order.Order {
	cloned := *o
	if o.Refund != nil {
		sub := *o.Refund
		cloned.Refund = &sub
	}

	return &cloned
}

func (r *fakeOrderRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o.Version = 1
	r.orders[o.ID] = cloneOrder(&o)

	return o, nil
}

func (r *fakeOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}

	return cloneOrder(o), nil
}

func (r *fakeOrderRepo) GetByPaymentReference(_ context.Context, ref string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.orders {
		if o.PaymentReference == ref {
			return cloneOrder(o), nil
		}
	}

	return nil, order.ErrNotFound
}

func (r *fakeOrderRepo) GetByRefundID(_ context.Context, refundID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.orders {
		if o.Refund != nil && o.Refund.RefundID == refundID {
			return cloneOrder(o), nil
		}
	}

	return nil, order.ErrNotFound
}

func (r *fakeOrderRepo) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []order.Order
	for _, o := range r.orders {
		if filter.Status != "" && o.Status.String() != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus.String() != filter.PaymentStatus {
			continue
		}
		result = append(result, *cloneOrder(o))
	}

	return result, nil
}

func (r *fakeOrderRepo) UpdateCAS(
	_ context.Context,
	id string,
	expectedVersion int64,
	tr order.Transition,
) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Version != expectedVersion {
		return nil, order.ErrVersionConflict
	}

	if tr.Status != nil {
		o.Status = *tr.Status
	}
	if tr.PaymentStatus != nil {
		o.PaymentStatus = *tr.PaymentStatus
	}
	if tr.PaymentReference != "" && o.PaymentReference == "" {
		o.PaymentReference = tr.PaymentReference
	}
	if tr.Refund != nil {
		sub := *tr.Refund
		o.Refund = &sub
	}
	o.Version++

	return cloneOrder(o), nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []auditlog.Entry
}

func (r *fakeAuditRepo) Append(_ context.Context, entry auditlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)

	return nil
}

func (r *fakeAuditRepo) Query(_ context.Context, _ *auditlog.QueryEntriesModel) ([]auditlog.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]auditlog.Entry, len(r.entries))
	copy(result, r.entries)

	return result, nil
}

// refundCall records one CreateRefund invocation.
type refundCall struct {
	PaymentReference string
	AmountCents      int64
	Currency         currency.Currency
	Reason           string
	IdempotencyKey   string
}

// fakeGateway fails CreateRefund with failWith for the first failures
// attempts, then succeeds.
type fakeGateway struct {
	mu       sync.Mutex
	calls    []refundCall
	failures int
	failWith error
	outcome  gateway.PaymentOutcome
}

func (g *fakeGateway) CreatePayment(_ context.Context, _ string, _ int64, _ currency.Currency) (string, error) {
	return "pay_" + uuid.NewString(), nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, _ string) (gateway.PaymentOutcome, error) {
	if g.outcome == "" {
		return gateway.OutcomePending, nil
	}

	return g.outcome, nil
}

func (g *fakeGateway) CreateRefund(
	_ context.Context,
	paymentReference string,
	amountCents int64,
	cur currency.Currency,
	reason string,
	idempotencyKey string,
) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, refundCall{
		PaymentReference: paymentReference,
		AmountCents:      amountCents,
		Currency:         cur,
		Reason:           reason,
		IdempotencyKey:   idempotencyKey,
	})

	if g.failures > 0 {
		g.failures--

		return "", g.failWith
	}

	return "re_" + uuid.NewString(), nil
}
