package order

import (
	"errors"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/refund"
)

var (
	// ErrNotFound is returned when no order matches the given id.
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict is returned when a conditional update lost the race:
	// the stored version no longer matches the expected one.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition is returned when the requested target state is not
	// reachable from the order's current state.
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrInvalidOrder is returned when an incoming order fails arithmetic
	// consistency checks at admission.
	ErrInvalidOrder = errors.New("invalid order")
)

// Order represents a customer purchase record. It is created once by the
// checkout flow and afterwards mutated only through the state machine;
// Version increases by exactly one on every accepted mutation.
type Order struct {
	ID               string                `json:"id"`
	CustomerID       int64                 `json:"customerId"`
	TotalCents       int64                 `json:"totalCents"`
	Currency         currency.Currency     `json:"currency"`
	Status           Status                `json:"status"`
	PaymentStatus    PaymentStatus         `json:"paymentStatus"`
	PaymentReference string                `json:"paymentReference,omitempty"`
	Refund           *refund.Refund        `json:"refund,omitempty"`
	Version          int64                 `json:"version"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	Items            []orderitem.OrderItem `json:"items"`
}

// ActiveRefund returns the refund sub-record unless it already failed.
// At most one non-failed refund may exist per order.
func (o *Order) ActiveRefund() *refund.Refund {
	if o.Refund == nil || o.Refund.Status == refund.StatusFailed {
		return nil
	}

	return o.Refund
}
