package order

import "github.com/corray333/backend-labs/fulfillment/internal/service/models/refund"

// Transition describes a requested state change. Nil fields are left
// untouched; at least one status field must be set.
type Transition struct {
	Status        *Status
	PaymentStatus *PaymentStatus
	// PaymentReference is written at most once; the store adapter never
	// overwrites an existing reference.
	PaymentReference string
	// Refund replaces the refund sub-record when non-nil. Only the refund
	// coordinator sets it.
	Refund *refund.Refund
	// ViaRefundCoordinator marks transitions originating from the refund
	// coordinator, the only path allowed to reach the refunded states.
	ViaRefundCoordinator bool
}
