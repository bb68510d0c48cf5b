package reconciler

import (
	"context"
	"sync"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order

	// casHook runs inside UpdateCAS before the version check, letting tests
	// interleave a concurrent edit.
	casHook func()
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

	if r.casHook != nil {
		hook := r.casHook
		r.casHook = nil
		hook()
	}

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

// bump applies a concurrent edit outside the state machine. Callers must not
// hold the repo lock; it is meant for use inside casHook where the lock is
// already held, so it mutates directly.
func (r *fakeOrderRepo) bump(id string) {
	if o, ok := r.orders[id]; ok {
		o.Version++
	}
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []auditlog.Entry
	failErr error
}

func (r *fakeAuditRepo) Append(_ context.Context, entry auditlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return r.failErr
	}
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
