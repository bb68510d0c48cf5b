package listorders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/http/httperr"
	"github.com/gorilla/schema"
)

// service is an interface for the service layer.
type service interface {
	ListOrders(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
}

type queryOrdersRequest struct {
	Ids           []string `schema:"ids,omitempty"`
	CustomerIds   []int64  `schema:"customerIds,omitempty"`
	Status        string   `schema:"status,omitempty"`
	PaymentStatus string   `schema:"paymentStatus,omitempty"`
	Limit         int      `schema:"limit,omitempty"`
	Offset        int      `schema:"offset,omitempty"`
}

func (q *queryOrdersRequest) ToModel() *order.QueryOrdersModel {
	return &order.QueryOrdersModel{
		Ids:           q.Ids,
		CustomerIds:   q.CustomerIds,
		Status:        q.Status,
		PaymentStatus: q.PaymentStatus,
		Limit:         q.Limit,
		Offset:        q.Offset,
	}
}

// ListOrders handles the admin list orders request.
func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	decoder := schema.NewDecoder()
	query := &queryOrdersRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request", "error", err)

		return
	}

	orders, err := service.ListOrders(r.Context(), query.ToModel())
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error listing orders", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
