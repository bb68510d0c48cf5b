package inbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iinboxrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/gatewayevent"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/consumer"
	"github.com/spf13/viper"
)

// reconciler applies payment confirmation events.
type reconciler interface {
	Reconcile(ctx context.Context, event gatewayevent.Event) error
}

// refundResolver applies refund outcome events.
type refundResolver interface {
	Resolve(ctx context.Context, refundID, outcome string) (*order.Order, error)
}

// Worker retries parked gateway notifications from the inbox table.
type Worker struct {
	inboxRepo    iinboxrepo.IInboxRepository
	recon        reconciler
	refunds      refundResolver
	pollInterval time.Duration
	batchSize    int
	stopCh       chan struct{}
}

// NewWorker creates a new inbox worker.
func NewWorker(
	inboxRepo iinboxrepo.IInboxRepository,
	recon reconciler,
	refunds refundResolver,
) *Worker {
	pollIntervalSeconds := viper.GetInt("rabbitmq.inbox.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 15
	}

	batchSize := viper.GetInt("rabbitmq.inbox.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	return &Worker{
		inboxRepo:    inboxRepo,
		recon:        recon,
		refunds:      refunds,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:    batchSize,
		stopCh:       make(chan struct{}),
	}
}

// Start begins processing messages from the inbox.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Inbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Inbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Inbox worker stopped")

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// processMessages retrieves and replays pending messages from the inbox.
func (w *Worker) processMessages(ctx context.Context) {
	messages, err := w.inboxRepo.GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from inbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Processing inbox messages", "count", len(messages))

	for _, msg := range messages {
		var event gatewayevent.Event
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			slog.Error("Failed to unmarshal gateway event from inbox", "error", err, "inbox_id", msg.ID)
			w.retryLater(ctx, msg.ID, msg.RetryCount, err)

			continue
		}

		if err := consumer.Dispatch(ctx, w.recon, w.refunds, event); err != nil {
			slog.Warn("Failed to replay gateway event from inbox, will retry",
				"inbox_id", msg.ID,
				"event_id", event.EventID,
				"retry_count", msg.RetryCount+1,
				"error", err,
			)
			w.retryLater(ctx, msg.ID, msg.RetryCount, err)

			continue
		}

		if err := w.inboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from inbox after successful replay",
				"inbox_id", msg.ID,
				"error", err,
			)
		} else {
			slog.Info("Gateway event replayed and removed from inbox",
				"inbox_id", msg.ID,
				"event_id", event.EventID,
			)
		}
	}
}

func (w *Worker) retryLater(ctx context.Context, id int64, retryCount int, cause error) {
	newRetryCount := retryCount + 1
	backoffSeconds := math.Pow(2, float64(newRetryCount)) * 30 // 60s, 120s, 240s, etc.
	nextRetryAt := time.Now().Add(time.Duration(backoffSeconds) * time.Second)

	if err := w.inboxRepo.UpdateRetry(ctx, id, newRetryCount, cause.Error(), nextRetryAt); err != nil {
		slog.Error("Failed to update retry information", "inbox_id", id, "error", err)
	}
}
