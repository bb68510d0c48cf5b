package refund

import (
	"errors"
	"time"
)

// RefundStatus is the lifecycle state of a refund attempt.
type RefundStatus string

const (
	StatusPending   RefundStatus = "pending"
	StatusProcessed RefundStatus = "processed"
	StatusFailed    RefundStatus = "failed"
)

var (
	// ErrInvalidState is returned when the order is not in a refundable
	// state, or a non-failed refund already exists.
	ErrInvalidState = errors.New("order not in a refundable state")
	// ErrInvalidAmount is returned when the requested amount exceeds the
	// order total in the order's own currency.
	ErrInvalidAmount = errors.New("refund amount exceeds order total")
	// ErrDispatchFailed is returned when the gateway refund call exhausted
	// its retry budget. A fresh Initiate call is required; the coordinator
	// never keeps retrying in the background.
	ErrDispatchFailed = errors.New("refund dispatch failed")
)

// Refund is the refund sub-record attached to an order. Amount is in the
// order's currency, integer minor units; it is never re-interpreted by
// magnitude.
type Refund struct {
	RefundID    string       `json:"refundId"`
	AmountCents int64        `json:"amountCents"`
	Reason      string       `json:"reason"`
	Status      RefundStatus `json:"status"`
	RequestedAt time.Time    `json:"requestedAt"`
	ResolvedAt  *time.Time   `json:"resolvedAt,omitempty"`
}

func ParseStatus(s string) (RefundStatus, error) {
	switch RefundStatus(s) {
	case StatusPending, StatusProcessed, StatusFailed:
		return RefundStatus(s), nil
	default:
		return "", errors.New("invalid refund status")
	}
}
