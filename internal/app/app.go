package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/gateway"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	auditrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/audit/postgres"
	inboxrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/inbox/postgres"
	orderrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/order/postgres"
	orderitemrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/orderitem/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/otel"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/adminsvc"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/checkoutsvc"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/reconciler"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/refundsvc"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/statemachine"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/consumer"
	httptransport "github.com/corray333/backend-labs/fulfillment/internal/transport/http"
	inboxworker "github.com/corray333/backend-labs/fulfillment/internal/worker/inbox"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/reconcilepoll"
)

// App represents the application.
type App struct {
	transport      *httptransport.HTTPTransport
	consumer       *consumer.Consumer
	inboxWorker    *inboxworker.Worker
	pollWorker     *reconcilepoll.Worker
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()
	gatewayClient := gateway.MustNewClient()

	orderRepo := orderrepo.NewPostgresOrderRepository(postgresClient)
	orderItemRepo := orderitemrepo.NewPostgresOrderItemRepository(postgresClient)
	auditRepo := auditrepo.NewAuditRepository(postgresClient)
	inboxRepo := inboxrepo.NewInboxRepository(postgresClient)

	machine := statemachine.MustNewStateMachine(
		statemachine.WithOrderRepository(orderRepo),
		statemachine.WithAuditRepository(auditRepo),
	)

	recon := reconciler.MustNewReconciler(
		reconciler.WithOrderRepository(orderRepo),
		reconciler.WithStateMachine(machine),
	)

	refunds := refundsvc.MustNewRefundService(
		refundsvc.WithOrderRepository(orderRepo),
		refundsvc.WithStateMachine(machine),
		refundsvc.WithGateway(gatewayClient),
	)

	checkout := checkoutsvc.MustNewCheckoutService(
		checkoutsvc.WithOrderRepository(orderRepo),
		checkoutsvc.WithOrderItemRepository(orderItemRepo),
		checkoutsvc.WithAuditRepository(auditRepo),
		checkoutsvc.WithGateway(gatewayClient),
	)

	admin := adminsvc.MustNewAdminService(
		adminsvc.WithOrderRepository(orderRepo),
		adminsvc.WithOrderItemRepository(orderItemRepo),
		adminsvc.WithAuditRepository(auditRepo),
		adminsvc.WithStateMachine(machine),
		adminsvc.WithRefundCoordinator(refunds),
	)

	transport := httptransport.NewHTTPTransport(admin, checkout)
	transport.RegisterRoutes()

	eventConsumer := consumer.MustNewConsumer(rabbitClient, recon, refunds, inboxRepo)
	inboxWorker := inboxworker.NewWorker(inboxRepo, recon, refunds)
	pollWorker := reconcilepoll.NewWorker(orderRepo, gatewayClient, recon)

	return &App{
		transport:      transport,
		consumer:       eventConsumer,
		inboxWorker:    inboxWorker,
		pollWorker:     pollWorker,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		slog.Info("Starting gateway event consumer")
		if err := a.consumer.Run(workerCtx); err != nil {
			slog.Error("Consumer error", "error", err)
		}
	}()

	go a.inboxWorker.Start(workerCtx)
	go a.pollWorker.Start(workerCtx)

	<-stop
	slog.Info("Shutdown signal received")

	cancelWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if err := a.consumer.Shutdown(); err != nil {
		slog.Error("Consumer shutdown error", "error", err)
	}

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Trace provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
