package inbox

import (
	"time"
)

// Message is a gateway notification that failed to be processed on first
// delivery and is parked for retry.
type Message struct {
	ID          int64
	MessageID   string
	QueueName   string
	RoutingKey  string
	Payload     []byte
	ContentType string
	RetryCount  int
	MaxRetries  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	NextRetryAt time.Time
}
