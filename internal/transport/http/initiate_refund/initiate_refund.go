package initiaterefund

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/http/httperr"
	"github.com/go-chi/chi/v5"
)

// service is an interface for the service layer.
type service interface {
	InitiateRefund(ctx context.Context, id string, amountCents int64, reason string) (*order.Order, error)
}

type initiateRefundRequest struct {
	AmountCents int64  `json:"amountCents"`
	Reason      string `json:"reason"`
}

// InitiateRefund handles an administrative refund request.
func InitiateRefund(w http.ResponseWriter, r *http.Request, service service) {
	id := chi.URLParam(r, "orderID")

	var req initiateRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)
		slog.Error("Error decoding refund request", "error", err)

		return
	}

	updated, err := service.InitiateRefund(r.Context(), id, req.AmountCents, req.Reason)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error initiating refund", "order_id", id, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(updated); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
