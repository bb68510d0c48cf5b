package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	createorder "github.com/corray333/backend-labs/fulfillment/internal/transport/http/create_order"
	getorder "github.com/corray333/backend-labs/fulfillment/internal/transport/http/get_order"
	initiaterefund "github.com/corray333/backend-labs/fulfillment/internal/transport/http/initiate_refund"
	listaudit "github.com/corray333/backend-labs/fulfillment/internal/transport/http/list_audit"
	listorders "github.com/corray333/backend-labs/fulfillment/internal/transport/http/list_orders"
	transitionorder "github.com/corray333/backend-labs/fulfillment/internal/transport/http/transition_order"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/middleware/actorctx"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/fulfillment/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
)

// checkout is the order admission surface used by the checkout flow.
type checkout interface {
	CreateOrder(ctx context.Context, o order.Order) (*order.Order, error)
}

// service is the admin console surface.
type service interface {
	ListOrders(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	TransitionOrder(ctx context.Context, id string, expectedVersion int64, target order.Status) (*order.Order, error)
	InitiateRefund(ctx context.Context, id string, amountCents int64, reason string) (*order.Order, error)
	ListAuditEntries(ctx context.Context, filter *auditlog.QueryEntriesModel) ([]auditlog.Entry, error)
}

type HTTPTransport struct {
	server   *http.Server
	router   *chi.Mux
	service  service
	checkout checkout
}

func NewHTTPTransport(service service, checkout checkout) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:   server,
		router:   router,
		service:  service,
		checkout: checkout,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the checkout and admin console routes.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Post("/api/orders", h.createOrder)
	h.router.Route("/api/admin", func(r chi.Router) {
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Post("/orders/{orderID}/transition", h.transitionOrder)
		r.Post("/orders/{orderID}/refund", h.initiateRefund)
		r.Get("/audit", h.listAuditEntries)
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.checkout)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.service)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.service)
}

func (h *HTTPTransport) transitionOrder(w http.ResponseWriter, r *http.Request) {
	transitionorder.TransitionOrder(w, r, h.service)
}

func (h *HTTPTransport) initiateRefund(w http.ResponseWriter, r *http.Request) {
	initiaterefund.InitiateRefund(w, r, h.service)
}

func (h *HTTPTransport) listAuditEntries(w http.ResponseWriter, r *http.Request) {
	listaudit.ListAuditEntries(w, r, h.service)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(trace.NewTraceMiddleware)
	router.Use(actorctx.NewActorMiddleware)

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
