package reconcilepoll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/gateway"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/igateway"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/gatewayevent"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/reconciler"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// reconcilerSvc applies payment confirmation events.
type reconcilerSvc interface {
	Reconcile(ctx context.Context, event gatewayevent.Event) error
}

// Worker is the scheduled reconciliation poll: webhooks can be lost, so
// orders holding a payment reference that never received a confirmation are
// verified against the gateway directly.
type Worker struct {
	orderRepo    iorderrepo.IOrderRepository
	gw           igateway.IPaymentGateway
	recon        reconcilerSvc
	pollInterval time.Duration
	batchSize    int
	maxAttempts  uint64
	baseBackoff  time.Duration
	stopCh       chan struct{}
}

// NewWorker creates a new reconciliation poll worker.
func NewWorker(
	orderRepo iorderrepo.IOrderRepository,
	gw igateway.IPaymentGateway,
	recon reconcilerSvc,
) *Worker {
	pollIntervalSeconds := viper.GetInt("reconcile.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 60
	}

	batchSize := viper.GetInt("reconcile.batch_size")
	if batchSize == 0 {
		batchSize = 50
	}

	maxAttempts := viper.GetUint64("reconcile.verify_max_attempts")
	if maxAttempts == 0 {
		maxAttempts = 3
	}

	backoffMillis := viper.GetInt("reconcile.verify_base_backoff_ms")
	if backoffMillis == 0 {
		backoffMillis = 500
	}

	return &Worker{
		orderRepo:    orderRepo,
		gw:           gw,
		recon:        recon,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		baseBackoff:  time.Duration(backoffMillis) * time.Millisecond,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the reconciliation poll loop.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Reconcile poll worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Reconcile poll worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Reconcile poll worker stopped")

			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// poll verifies stuck orders against the gateway, a few at a time.
func (w *Worker) poll(ctx context.Context) {
	orders, err := w.orderRepo.Query(ctx, &order.QueryOrdersModel{
		PaymentStatus: order.PaymentPending.String(),
		Limit:         w.batchSize,
	})
	if err != nil {
		slog.Error("Failed to query orders for reconciliation poll", "error", err)

		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, o := range orders {
		if o.PaymentReference == "" {
			// Payment was never registered with the gateway; nothing to verify.
			continue
		}

		g.Go(func() error {
			if err := w.verify(gctx, o); err != nil {
				slog.Error("Failed to verify payment",
					"order_id", o.ID,
					"payment_reference", o.PaymentReference,
					"error", err,
				)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("Reconciliation poll error", "error", err)
	}
}

// verify asks the gateway for the payment outcome with bounded backoff. A
// timeout leaves the payment unresolved, not failed: the order is left
// untouched and picked up again on the next poll.
func (w *Worker) verify(ctx context.Context, o order.Order) error {
	backoff := retry.WithMaxRetries(w.maxAttempts, retry.NewExponential(w.baseBackoff))

	var outcome gateway.PaymentOutcome
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var verifyErr error
		outcome, verifyErr = w.gw.VerifyPayment(ctx, o.PaymentReference)
		if verifyErr != nil && errors.Is(verifyErr, gateway.ErrUnavailable) {
			return retry.RetryableError(verifyErr)
		}

		return verifyErr
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return fmt.Errorf("%w: %v", reconciler.ErrUnresolved, err)
		}

		return err
	}

	if outcome == gateway.OutcomePending {
		return nil
	}

	event := gatewayevent.Event{
		EventID:          fmt.Sprintf("poll:%s:%s", o.PaymentReference, outcome),
		Kind:             gatewayevent.KindPayment,
		OrderID:          o.ID,
		PaymentReference: o.PaymentReference,
		Outcome:          string(outcome),
	}

	return w.recon.Reconcile(ctx, event)
}
