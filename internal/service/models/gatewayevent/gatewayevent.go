package gatewayevent

// Kind distinguishes payment confirmations from refund outcomes.
type Kind string

const (
	KindPayment Kind = "payment"
	KindRefund  Kind = "refund"
)

// Outcome values delivered by the gateway.
const (
	OutcomePaid      = "paid"
	OutcomeFailed    = "failed"
	OutcomeProcessed = "processed"
)

// Event is a notification from the payment gateway, delivered at least once
// and unordered over the webhook queue or discovered by the verification
// poller.
type Event struct {
	EventID          string `json:"eventId"`
	Kind             Kind   `json:"kind"`
	OrderID          string `json:"orderId"`
	PaymentReference string `json:"paymentReference"`
	RefundID         string `json:"refundId,omitempty"`
	Outcome          string `json:"outcome"`
}
