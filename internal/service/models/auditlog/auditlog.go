package auditlog

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrWriteFailed is returned when the ledger could not persist an entry.
// The mutation it documents has usually already committed, so callers must
// surface this instead of swallowing it; the ledger never fails silently.
var ErrWriteFailed = errors.New("audit ledger write failed")

// Entry is an immutable record of a state-changing action. Entries are only
// ever appended and queried, never updated or deleted.
type Entry struct {
	ID           string          `json:"id"`
	ActorID      string          `json:"actorId"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	// OrderVersion correlates the entry with the mutation that produced it.
	OrderVersion int64     `json:"orderVersion,omitempty"`
	RequestIP    string    `json:"requestIp,omitempty"`
	RequestAgent string    `json:"requestAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Action types recorded by the engine.
const (
	ActionOrderCreated    = "order.created"
	ActionOrderTransition = "order.transition"
	ActionPaymentApplied  = "payment.applied"
	ActionRefundInitiated = "refund.initiated"
	ActionRefundResolved  = "refund.resolved"
)

// QueryEntriesModel represents filter parameters for querying audit entries.
// Results are always returned in reverse-chronological order.
type QueryEntriesModel struct {
	ResourceType string `json:"resourceType,omitempty"`
	ResourceID   string `json:"resourceId,omitempty"`
	ActorID      string `json:"actorId,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}
