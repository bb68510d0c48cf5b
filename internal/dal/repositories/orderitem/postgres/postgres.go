package postgresrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/currency"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
)

// PostgresOrderItemRepository stores immutable order line items.
type PostgresOrderItemRepository struct {
	client *postgres.Client
}

func NewPostgresOrderItemRepository(client *postgres.Client) *PostgresOrderItemRepository {
	return &PostgresOrderItemRepository{
		client: client,
	}
}

// BulkInsert inserts line items and returns them with assigned ids.
func (r *PostgresOrderItemRepository) BulkInsert(
	ctx context.Context,
	items []orderitem.OrderItem,
) ([]orderitem.OrderItem, error) {
	if len(items) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	builder := sq.Insert("order_items").
		Columns(
			"order_id",
			"product_id",
			"product_title",
			"quantity",
			"unit_price_cents",
			"line_total_cents",
			"price_currency",
			"created_at",
		).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar)

	for _, item := range items {
		builder = builder.Values(
			item.OrderID,
			item.ProductID,
			item.ProductTitle,
			item.Quantity,
			item.UnitPriceCents,
			item.LineTotalCents,
			item.PriceCurrency,
			item.CreatedAt,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk insert order items: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if err := rows.Scan(&items[i].ID); err != nil {
			return nil, fmt.Errorf("failed to scan order item id: %w", err)
		}
		i++
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return items, nil
}

// Query retrieves order items based on filter criteria.
func (r *PostgresOrderItemRepository) Query(
	ctx context.Context,
	filter *orderitem.QueryOrderItemsModel,
) ([]orderitem.OrderItem, error) {
	builder := sq.Select(
		"id",
		"order_id",
		"product_id",
		"product_title",
		"quantity",
		"unit_price_cents",
		"line_total_cents",
		"price_currency",
		"created_at",
	).
		From("order_items").
		PlaceholderFormat(sq.Dollar)

	if len(filter.OrderIds) > 0 {
		builder = builder.Where(sq.Eq{"order_id": filter.OrderIds})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var result []orderitem.OrderItem
	for rows.Next() {
		var item orderitem.OrderItem
		var cur string
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductTitle,
			&item.Quantity,
			&item.UnitPriceCents,
			&item.LineTotalCents,
			&cur,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		parsed, err := currency.ParseCurrency(cur)
		if err != nil {
			return nil, err
		}
		item.PriceCurrency = parsed
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
