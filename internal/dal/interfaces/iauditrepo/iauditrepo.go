package iauditrepo

import (
	"context"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
)

// IAuditRepository is an interface for the append-only audit ledger.
// Entries are never updated or deleted; Query returns them newest first.
type IAuditRepository interface {
	Append(ctx context.Context, entry auditlog.Entry) error
	Query(ctx context.Context, filter *auditlog.QueryEntriesModel) ([]auditlog.Entry, error)
}
