package igateway

import (
	"context"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/gateway"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
)

// IPaymentGateway is an interface for the external payment gateway adapter.
// Amounts are integer minor units tagged with an explicit currency; the
// adapter never derives currency from numeric magnitude.
type IPaymentGateway interface {
	CreatePayment(ctx context.Context, orderID string, amountCents int64, cur currency.Currency) (string, error)
	VerifyPayment(ctx context.Context, paymentReference string) (gateway.PaymentOutcome, error)
	CreateRefund(ctx context.Context, paymentReference string, amountCents int64, cur currency.Currency, reason string, idempotencyKey string) (string, error)
}
