package iinboxrepo

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inbox"
)

// IInboxRepository is an interface for the inbox repository.
type IInboxRepository interface {
	Insert(ctx context.Context, msg inbox.Message) error
	GetPendingMessages(ctx context.Context, limit int) ([]inbox.Message, error)
	UpdateRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error
	Delete(ctx context.Context, id int64) error
}
