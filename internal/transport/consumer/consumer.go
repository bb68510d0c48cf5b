package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/gateway"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iinboxrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/gatewayevent"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inbox"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// reconciler applies payment confirmation events.
type reconciler interface {
	Reconcile(ctx context.Context, event gatewayevent.Event) error
}

// refundResolver applies refund outcome events.
type refundResolver interface {
	Resolve(ctx context.Context, refundID, outcome string) (*order.Order, error)
}

// Consumer receives the payment gateway's asynchronous notifications.
// Delivery is at-least-once and unordered; the reconciler and refund
// coordinator are idempotent, so redelivery is safe. Events that fail on a
// transient error are parked in the inbox for the retry worker instead of
// being requeued forever.
type Consumer struct {
	client    *rabbitmq.Client
	recon     reconciler
	refunds   refundResolver
	inboxRepo iinboxrepo.IInboxRepository
	queue     amqp.Queue
	stop      chan struct{}
	done      chan struct{}
}

// MustNewConsumer creates a new Consumer.
func MustNewConsumer(
	client *rabbitmq.Client,
	recon reconciler,
	refunds refundResolver,
	inboxRepo iinboxrepo.IInboxRepository,
) *Consumer {
	queueName := viper.GetString("rabbitmq.queue")
	if queueName == "" {
		panic("rabbitmq.queue is not set in config")
	}

	queue, err := client.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:       queueName,
		Durable:    true,
		AutoDelete: false,
		Exclusive:  false,
		NoWait:     false,
	})
	if err != nil {
		panic(err)
	}

	return &Consumer{
		client:    client,
		recon:     recon,
		refunds:   refunds,
		inboxRepo: inboxRepo,
		queue:     queue,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run starts consuming gateway notifications.
func (c *Consumer) Run(ctx context.Context) error {
	consumerTag := viper.GetString("rabbitmq.consumer_tag")
	if consumerTag == "" {
		consumerTag = "fulfillment-svc"
	}

	msgs, err := c.client.Consume(rabbitmq.ConsumeConfig{
		Queue:    c.queue.Name,
		Consumer: consumerTag,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(50)

	go func() {
		for {
			select {
			case <-c.stop:
				slog.Info("Stopping consumer")
				close(c.done)

				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Info("Message channel closed")
					close(c.done)

					return
				}

				g.Go(func() error {
					return c.processMessage(gctx, msg)
				})
			}
		}
	}()

	<-c.done
	if err := g.Wait(); err != nil {
		slog.Error("Error processing messages", "error", err)
	}

	return nil
}

// processMessage handles a single gateway notification.
func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery) error {
	ctx, span := otel.Tracer("consumer").Start(ctx, "Consumer.processMessage")
	defer span.End()

	var event gatewayevent.Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		slog.Error("Failed to unmarshal gateway event", "error", err)
		// Malformed payloads can never succeed; reject without requeuing.
		if err := msg.Nack(false, false); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return err
	}

	err := Dispatch(ctx, c.recon, c.refunds, event)
	if err != nil && retryable(err) {
		if parkErr := c.park(ctx, msg, event, err); parkErr != nil {
			slog.Error("Failed to park gateway event in inbox", "event_id", event.EventID, "error", parkErr)
			// Keep the delivery on the broker so the event is not lost.
			if err := msg.Nack(false, true); err != nil {
				slog.Error("Failed to nack message", "error", err)
			}

			return parkErr
		}
	} else if err != nil {
		// Permanent failures are logged and acknowledged; redelivery
		// cannot change the outcome.
		slog.Error("Gateway event rejected", "event_id", event.EventID, "error", err)
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("Failed to ack message", "error", err)

		return err
	}

	return nil
}

// Dispatch routes a gateway event to the reconciler or refund coordinator.
func Dispatch(ctx context.Context, recon reconciler, refunds refundResolver, event gatewayevent.Event) error {
	switch event.Kind {
	case gatewayevent.KindPayment:
		return recon.Reconcile(ctx, event)
	case gatewayevent.KindRefund:
		_, err := refunds.Resolve(ctx, event.RefundID, event.Outcome)

		return err
	default:
		return errors.New("unknown gateway event kind " + string(event.Kind))
	}
}

// retryable reports whether a later attempt could succeed. Validation-style
// failures are permanent; everything infrastructural may clear up.
func retryable(err error) bool {
	switch {
	case errors.Is(err, order.ErrNotFound):
		// The checkout flow may not have committed the order yet; retry.
		return true
	case errors.Is(err, order.ErrInvalidTransition):
		return false
	case errors.Is(err, auditlog.ErrWriteFailed):
		// The mutation committed, so replaying the event is a no-op and
		// cannot recreate the missing entry. Operators follow up from the log.
		return false
	case errors.Is(err, gateway.ErrRejected):
		return false
	default:
		return true
	}
}

func (c *Consumer) park(ctx context.Context, msg amqp.Delivery, event gatewayevent.Event, cause error) error {
	maxRetries := viper.GetInt("rabbitmq.inbox.max_retries")
	if maxRetries == 0 {
		maxRetries = 8
	}

	now := time.Now()

	return c.inboxRepo.Insert(ctx, inbox.Message{
		MessageID:   event.EventID,
		QueueName:   c.queue.Name,
		RoutingKey:  msg.RoutingKey,
		Payload:     msg.Body,
		ContentType: msg.ContentType,
		RetryCount:  0,
		MaxRetries:  maxRetries,
		LastError:   cause.Error(),
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now.Add(30 * time.Second),
	})
}

// Shutdown gracefully shuts down the consumer.
func (c *Consumer) Shutdown() error {
	slog.Info("Shutting down consumer")
	close(c.stop)

	select {
	case <-c.done:
		slog.Info("Consumer stopped successfully")
	case <-time.After(10 * time.Second):
		slog.Warn("Consumer shutdown timeout")
	}

	return nil
}
