package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/order-service/internal/domain"
	"github.com/joao-fontenele/order-service/internal/postgres"
)

const orderColumns = `id, owner_id, status, payment_id, created_at`

// OrderRepository is the Postgres-backed order store. Lines are always read
// together with their order and written as a whole set.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, r.db, fn)
}

// Create inserts the order and its lines and assigns order.ID.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		conn := postgres.Conn(ctx, r.db)

		err := conn.QueryRowContext(ctx, `
			INSERT INTO orders (owner_id, status, payment_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING id
		`, order.OwnerID, order.Status, order.PaymentID, order.CreatedAt).Scan(&order.ID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		return r.insertLines(ctx, order.ID, order.Lines)
	})
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getByID(ctx, id, false)
}

// GetByIDForUpdate reads the order and locks its row until the surrounding
// transaction ends. It must be called inside WithTx.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getByID(ctx, id, true)
}

func (r *OrderRepository) getByID(ctx context.Context, id int64, lock bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	order := &domain.Order{}
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, id).
		Scan(&order.ID, &order.OwnerID, &order.Status, &order.PaymentID, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w with id: %d", domain.ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	lines, err := r.loadLines(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[id]

	return order, nil
}

// ListByIDs returns the orders whose id is in ids. Unknown ids are skipped.
func (r *OrderRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.Order, error) {
	return r.list(ctx, `WHERE id = ANY($1)`, pq.Array(ids))
}

// ListByStatuses returns the orders currently in any of statuses.
func (r *OrderRepository) ListByStatuses(ctx context.Context, statuses []domain.OrderStatus) ([]domain.Order, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return r.list(ctx, `WHERE status = ANY($1)`, pq.Array(values))
}

func (r *OrderRepository) list(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		`+where+`
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []domain.Order
	var orderIDs []int64

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OwnerID, &order.Status, &order.PaymentID, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	lines, err := r.loadLines(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}

	return orders, nil
}

// Update replaces status, payment reference and the whole line set.
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		if err := r.updateHeader(ctx, order); err != nil {
			return err
		}

		if _, err := postgres.Conn(ctx, r.db).ExecContext(ctx, `
			DELETE FROM order_items WHERE order_id = $1
		`, order.ID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}

		return r.insertLines(ctx, order.ID, order.Lines)
	})
}

// SavePaymentOutcome persists status and payment reference only; lines are untouched.
func (r *OrderRepository) SavePaymentOutcome(ctx context.Context, order *domain.Order) error {
	return r.updateHeader(ctx, order)
}

func (r *OrderRepository) updateHeader(ctx context.Context, order *domain.Order) error {
	result, err := postgres.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders SET status = $1, payment_id = $2, updated_at = NOW()
		WHERE id = $3
	`, order.Status, order.PaymentID, order.ID)
	if err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w with id: %d", domain.ErrOrderNotFound, order.ID)
	}

	return nil
}

// Delete removes the order; its lines go with it through ON DELETE CASCADE.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	result, err := postgres.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w with id: %d", domain.ErrOrderNotFound, id)
	}

	return nil
}

func (r *OrderRepository) insertLines(ctx context.Context, orderID int64, lines []domain.OrderLine) error {
	conn := postgres.Conn(ctx, r.db)
	for i, line := range lines {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, item_id, item_name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, orderID, i, line.ItemID, line.ItemName, line.UnitPrice, line.Quantity)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", line.ItemID, err)
		}
	}
	return nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT order_id, item_id, item_name, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lines := make(map[int64][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var orderID int64
		var line domain.OrderLine
		if err := rows.Scan(&orderID, &line.ItemID, &line.ItemName, &line.UnitPrice, &line.Quantity); err != nil {
			return nil, err
		}
		lines[orderID] = append(lines[orderID], line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}
