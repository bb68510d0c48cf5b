package transitionorder

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
	TransitionOrder(ctx context.Context, id string, expectedVersion int64, target order.Status) (*order.Order, error)
}

type transitionRequest struct {
	Version int64  `json:"version"`
	Target  string `json:"target"`
}

// TransitionOrder handles an administrative fulfillment state change.
func TransitionOrder(w http.ResponseWriter, r *http.Request, service service) {
	id := chi.URLParam(r, "orderID")

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)
		slog.Error("Error decoding transition request", "error", err)

		return
	}

	target, err := order.ParseStatus(req.Target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error parsing target status", "target", req.Target, "error", err)

		return
	}

	updated, err := service.TransitionOrder(r.Context(), id, req.Version, target)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error transitioning order", "order_id", id, "target", target, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(updated); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
