package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/google/uuid"
)

// AuditRepository implements the append-only audit ledger for PostgreSQL.
// There is no update or delete path; entries are immutable once written.
type AuditRepository struct {
	client *postgres.Client
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(client *postgres.Client) *AuditRepository {
	return &AuditRepository{
		client: client,
	}
}

// Append writes a single audit entry. A failure is wrapped in
// auditlog.ErrWriteFailed so callers can surface the compliance condition
// instead of swallowing it.
func (r *AuditRepository) Append(ctx context.Context, entry auditlog.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query, args, err := sq.Insert("audit_entries").
		Columns(
			"id",
			"actor_id",
			"action",
			"resource_type",
			"resource_id",
			"before_snapshot",
			"after_snapshot",
			"order_version",
			"request_ip",
			"request_agent",
			"created_at",
		).
		Values(
			entry.ID,
			entry.ActorID,
			entry.Action,
			entry.ResourceType,
			entry.ResourceID,
			entry.Before,
			entry.After,
			entry.OrderVersion,
			entry.RequestIP,
			entry.RequestAgent,
			entry.CreatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: failed to build insert query: %v", auditlog.ErrWriteFailed, err)
	}

	if _, err := r.client.Pool().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", auditlog.ErrWriteFailed, err)
	}

	return nil
}

// Query retrieves audit entries in reverse-chronological order.
func (r *AuditRepository) Query(
	ctx context.Context,
	filter *auditlog.QueryEntriesModel,
) ([]auditlog.Entry, error) {
	builder := sq.Select(
		"id",
		"actor_id",
		"action",
		"resource_type",
		"resource_id",
		"before_snapshot",
		"after_snapshot",
		"order_version",
		"request_ip",
		"request_agent",
		"created_at",
	).
		From("audit_entries").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.ResourceType != "" {
		builder = builder.Where(sq.Eq{"resource_type": filter.ResourceType})
	}
	if filter.ResourceID != "" {
		builder = builder.Where(sq.Eq{"resource_id": filter.ResourceID})
	}
	if filter.ActorID != "" {
		builder = builder.Where(sq.Eq{"actor_id": filter.ActorID})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var result []auditlog.Entry
	for rows.Next() {
		var entry auditlog.Entry
		err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.Action,
			&entry.ResourceType,
			&entry.ResourceID,
			&entry.Before,
			&entry.After,
			&entry.OrderVersion,
			&entry.RequestIP,
			&entry.RequestAgent,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
