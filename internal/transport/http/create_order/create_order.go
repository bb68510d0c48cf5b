package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, o order.Order) (*order.Order, error)
}

type createOrderItem struct {
	ProductID      int64  `json:"productId"`
	ProductTitle   string `json:"productTitle"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

type createOrderRequest struct {
	CustomerID int64             `json:"customerId"`
	TotalCents int64             `json:"totalCents"`
	Currency   string            `json:"currency"`
	Items      []createOrderItem `json:"items"`
}

func (req *createOrderRequest) ToModel() (order.Order, error) {
	cur, err := currency.ParseCurrency(req.Currency)
	if err != nil {
		return order.Order{}, err
	}

	items := make([]orderitem.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orderitem.OrderItem{
			ProductID:      item.ProductID,
			ProductTitle:   item.ProductTitle,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
			PriceCurrency:  cur,
		})
	}

	return order.Order{
		CustomerID: req.CustomerID,
		TotalCents: req.TotalCents,
		Currency:   cur,
		Items:      items,
	}, nil
}

// CreateOrder handles order admission from the checkout flow.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)
		slog.Error("Error decoding create order request", "error", err)

		return
	}

	o, err := req.ToModel()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error parsing create order request", "error", err)

		return
	}

	created, err := service.CreateOrder(r.Context(), o)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error creating order", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
