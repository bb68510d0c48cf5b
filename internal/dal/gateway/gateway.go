package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/spf13/viper"
)

// PaymentOutcome is the gateway's view of a payment.
type PaymentOutcome string

const (
	OutcomePaid    PaymentOutcome = "paid"
	OutcomeFailed  PaymentOutcome = "failed"
	OutcomePending PaymentOutcome = "pending"
)

var (
	// ErrUnavailable marks transient upstream failures: timeouts and 5xx
	// responses. Callers may retry with backoff; the call must stay
	// idempotent because a timed-out request may still have been applied.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrRejected marks a definitive gateway rejection; retrying cannot help.
	ErrRejected = errors.New("payment gateway rejected request")
)

// Client wraps the external payment gateway's HTTP API behind a narrow
// interface. Every amount crossing this boundary is integer minor units with
// an explicit currency code.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// option is a function that configures the Client.
type option func(*Client)

// MustNewClient creates a new gateway client from config.
func MustNewClient(opts ...option) *Client {
	timeoutSeconds := viper.GetInt("gateway.timeout_seconds")
	if timeoutSeconds == 0 {
		timeoutSeconds = 10
	}

	c := &Client{
		baseURL: viper.GetString("gateway.base_url"),
		apiKey:  os.Getenv("GATEWAY_API_KEY"),
		http: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		panic("gateway.base_url is not set in config")
	}

	return c
}

// WithBaseURL overrides the configured gateway endpoint.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithBaseURL(baseURL string) option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithHTTPClient(httpClient *http.Client) option {
	return func(c *Client) {
		c.http = httpClient
	}
}

type createPaymentRequest struct {
	OrderID     string `json:"orderId"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

type createPaymentResponse struct {
	PaymentReference string `json:"paymentReference"`
}

// CreatePayment registers a payment with the gateway and returns the
// gateway-issued payment reference.
func (c *Client) CreatePayment(
	ctx context.Context,
	orderID string,
	amountCents int64,
	cur currency.Currency,
) (string, error) {
	req := createPaymentRequest{
		OrderID:     orderID,
		AmountCents: amountCents,
		Currency:    cur.String(),
	}

	var resp createPaymentResponse
	if err := c.post(ctx, "/v1/payments", "", req, &resp); err != nil {
		return "", fmt.Errorf("failed to create payment: %w", err)
	}

	return resp.PaymentReference, nil
}

type verifyPaymentResponse struct {
	Status string `json:"status"`
}

// VerifyPayment asks the gateway for the current outcome of a payment.
func (c *Client) VerifyPayment(
	ctx context.Context,
	paymentReference string,
) (PaymentOutcome, error) {
	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/v1/payments/"+paymentReference,
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to build verify request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("verify payment: %w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("verify payment: %w: status %d", ErrUnavailable, httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("verify payment: %w: status %d", ErrRejected, httpResp.StatusCode)
	}

	var resp verifyPaymentResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("failed to decode verify response: %w", err)
	}

	switch PaymentOutcome(resp.Status) {
	case OutcomePaid, OutcomeFailed, OutcomePending:
		return PaymentOutcome(resp.Status), nil
	default:
		return "", fmt.Errorf("unknown payment outcome %q", resp.Status)
	}
}

type createRefundRequest struct {
	PaymentReference string `json:"paymentReference"`
	AmountCents      int64  `json:"amountCents"`
	Currency         string `json:"currency"`
	Reason           string `json:"reason"`
}

type createRefundResponse struct {
	RefundID string `json:"refundId"`
}

// CreateRefund asks the gateway to refund a captured payment. The
// idempotency key makes a redelivered request safe after a timeout.
func (c *Client) CreateRefund(
	ctx context.Context,
	paymentReference string,
	amountCents int64,
	cur currency.Currency,
	reason string,
	idempotencyKey string,
) (string, error) {
	req := createRefundRequest{
		PaymentReference: paymentReference,
		AmountCents:      amountCents,
		Currency:         cur.String(),
		Reason:           reason,
	}

	var resp createRefundResponse
	if err := c.post(ctx, "/v1/refunds", idempotencyKey, req, &resp); err != nil {
		return "", fmt.Errorf("failed to create refund: %w", err)
	}

	return resp.RefundID, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status %d", ErrRejected, httpResp.StatusCode)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
