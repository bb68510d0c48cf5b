package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/refund"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderDal represents the order data access layer model.
type OrderDal struct {
	Id               string         `db:"id"`
	CustomerId       int64          `db:"customer_id"`
	TotalCents       int64          `db:"total_cents"`
	Currency         string         `db:"currency"`
	Status           string         `db:"status"`
	PaymentStatus    string         `db:"payment_status"`
	PaymentReference sql.NullString `db:"payment_reference"`
	RefundId         sql.NullString `db:"refund_id"`
	RefundAmount     sql.NullInt64  `db:"refund_amount_cents"`
	RefundReason     sql.NullString `db:"refund_reason"`
	RefundStatus     sql.NullString `db:"refund_status"`
	RefundRequested  sql.NullTime   `db:"refund_requested_at"`
	RefundResolved   sql.NullTime   `db:"refund_resolved_at"`
	Version          int64          `db:"version"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	cur, err := currency.ParseCurrency(o.Currency)
	if err != nil {
		return nil, err
	}
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}
	paymentStatus, err := order.ParsePaymentStatus(o.PaymentStatus)
	if err != nil {
		return nil, err
	}

	model := &order.Order{
		ID:               o.Id,
		CustomerID:       o.CustomerId,
		TotalCents:       o.TotalCents,
		Currency:         cur,
		Status:           status,
		PaymentStatus:    paymentStatus,
		PaymentReference: o.PaymentReference.String,
		Version:          o.Version,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		Items:            []orderitem.OrderItem{}, // Populated separately
	}

	if o.RefundId.Valid {
		refundStatus, err := refund.ParseStatus(o.RefundStatus.String)
		if err != nil {
			return nil, err
		}
		model.Refund = &refund.Refund{
			RefundID:    o.RefundId.String,
			AmountCents: o.RefundAmount.Int64,
			Reason:      o.RefundReason.String,
			Status:      refundStatus,
			RequestedAt: o.RefundRequested.Time,
		}
		if o.RefundResolved.Valid {
			resolved := o.RefundResolved.Time
			model.Refund.ResolvedAt = &resolved
		}
	}

	return model, nil
}

var orderColumns = []string{
	"id",
	"customer_id",
	"total_cents",
	"currency",
	"status",
	"payment_status",
	"payment_reference",
	"refund_id",
	"refund_amount_cents",
	"refund_reason",
	"refund_status",
	"refund_requested_at",
	"refund_resolved_at",
	"version",
	"created_at",
	"updated_at",
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var dal OrderDal
	err := row.Scan(
		&dal.Id,
		&dal.CustomerId,
		&dal.TotalCents,
		&dal.Currency,
		&dal.Status,
		&dal.PaymentStatus,
		&dal.PaymentReference,
		&dal.RefundId,
		&dal.RefundAmount,
		&dal.RefundReason,
		&dal.RefundStatus,
		&dal.RefundRequested,
		&dal.RefundResolved,
		&dal.Version,
		&dal.CreatedAt,
		&dal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return dal.ToModel()
}

// PostgresOrderRepository is the order store adapter. Its UpdateCAS is the
// only path that mutates order rows: a conditional write on id and version,
// never a blind overwrite.
type PostgresOrderRepository struct {
	client *postgres.Client
}

func NewPostgresOrderRepository(client *postgres.Client) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		client: client,
	}
}

// Insert creates an order row. Orders enter the system once, from the
// checkout flow, with version 1.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now()
	o.Version = 1
	o.CreatedAt = now
	o.UpdatedAt = now

	paymentRef := sql.NullString{String: o.PaymentReference, Valid: o.PaymentReference != ""}

	query, args, err := sq.Insert("orders").
		Columns(
			"id",
			"customer_id",
			"total_cents",
			"currency",
			"status",
			"payment_status",
			"payment_reference",
			"version",
			"created_at",
			"updated_at",
		).
		Values(
			o.ID,
			o.CustomerID,
			o.TotalCents,
			o.Currency,
			o.Status,
			o.PaymentStatus,
			paymentRef,
			o.Version,
			o.CreatedAt,
			o.UpdatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.client.Pool().Exec(ctx, query, args...); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	return o, nil
}

// Get retrieves a single order by id.
func (r *PostgresOrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	model, err := scanOrder(r.client.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return model, nil
}

// GetByPaymentReference retrieves the order holding a gateway payment id.
func (r *PostgresOrderRepository) GetByPaymentReference(ctx context.Context, ref string) (*order.Order, error) {
	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"payment_reference": ref}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	model, err := scanOrder(r.client.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get order by payment reference: %w", err)
	}

	return model, nil
}

// GetByRefundID retrieves the order holding a gateway refund id.
func (r *PostgresOrderRepository) GetByRefundID(ctx context.Context, refundID string) (*order.Order, error) {
	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"refund_id": refundID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	model, err := scanOrder(r.client.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get order by refund id: %w", err)
	}

	return model, nil
}

// Query retrieves orders based on filter criteria, newest first.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if len(filter.Ids) > 0 {
		builder = builder.Where(sq.Eq{"id": filter.Ids})
	}
	if len(filter.CustomerIds) > 0 {
		builder = builder.Where(sq.Eq{"customer_id": filter.CustomerIds})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.PaymentStatus != "" {
		builder = builder.Where(sq.Eq{"payment_status": filter.PaymentStatus})
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
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		model, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// UpdateCAS applies a transition with compare-and-swap semantics: the write
// succeeds only if the stored version still equals expectedVersion, and the
// version is incremented in the same statement. Two conflicting mutations can
// never both succeed at the same version.
func (r *PostgresOrderRepository) UpdateCAS(
	ctx context.Context,
	id string,
	expectedVersion int64,
	tr order.Transition,
) (*order.Order, error) {
	query, args, err := buildUpdateCAS(id, expectedVersion, tr)
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	model, err := scanOrder(r.client.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row is gone or another writer advanced the version.
			if _, getErr := r.Get(ctx, id); errors.Is(getErr, order.ErrNotFound) {
				return nil, order.ErrNotFound
			}

			return nil, order.ErrVersionConflict
		}

		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	return model, nil
}

func buildUpdateCAS(id string, expectedVersion int64, tr order.Transition) (string, []any, error) {
	builder := sq.Update("orders").
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "version": expectedVersion}).
		Suffix("RETURNING " + returningColumns()).
		PlaceholderFormat(sq.Dollar)

	if tr.Status != nil {
		builder = builder.Set("status", *tr.Status)
	}
	if tr.PaymentStatus != nil {
		builder = builder.Set("payment_status", *tr.PaymentStatus)
	}
	if tr.PaymentReference != "" {
		// Set at most once, never cleared or overwritten.
		builder = builder.Set("payment_reference", sq.Expr("COALESCE(payment_reference, ?)", tr.PaymentReference))
	}
	if tr.Refund != nil {
		// The sub-record is replaced whole: resolved_at is written on every
		// refund update so a fresh pending refund cannot inherit the
		// timestamp of a failed predecessor.
		builder = builder.
			Set("refund_id", tr.Refund.RefundID).
			Set("refund_amount_cents", tr.Refund.AmountCents).
			Set("refund_reason", tr.Refund.Reason).
			Set("refund_status", tr.Refund.Status).
			Set("refund_requested_at", tr.Refund.RequestedAt).
			Set("refund_resolved_at", tr.Refund.ResolvedAt)
	}

	return builder.ToSql()
}

func returningColumns() string {
	return strings.Join(orderColumns, ", ")
}
