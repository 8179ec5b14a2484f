package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storefront/internal/database"
	"storefront/internal/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

var orderSortColumns = map[string]string{
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"totalPrice":    "total_price",
	"totalQuantity": "total_quantity",
	"status":        "status",
	"paidAt":        "paid_at",
	"deliveredAt":   "delivered_at",
}

var defaultOrderSort = []SortField{{Field: "createdAt", Desc: true}}

// OrderFilter selects orders, optionally by owner
type OrderFilter struct {
	UserID uuid.UUID
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter, opts ListOptions) ([]*domain.Order, int, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, user_id, items, total_price, total_quantity, is_paid, paid_at, payment_method,
	status, is_delivered, delivered_at, delivery_address, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var items, address []byte
	err := row.Scan(
		&o.ID, &o.UserID, &items, &o.TotalPrice, &o.TotalQuantity, &o.IsPaid, &o.PaidAt,
		&o.PaymentMethod, &o.Status, &o.IsDelivered, &o.DeliveredAt, &address,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := scanJSON(items, &o.Items); err != nil {
		return nil, err
	}
	if err := scanJSON(address, &o.DeliveryAddress); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	items, err := jsonArg(order.Items)
	if err != nil {
		return err
	}
	address, err := jsonArg(order.DeliveryAddress)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt, order.UpdatedAt = now, now

	query := `
		INSERT INTO orders (id, user_id, items, total_price, total_quantity, is_paid, paid_at, payment_method,
			status, is_delivered, delivered_at, delivery_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = database.Conn(ctx, r.db).ExecContext(ctx, query,
		order.ID, order.UserID, items, order.TotalPrice, order.TotalQuantity, order.IsPaid, order.PaidAt,
		string(order.PaymentMethod), string(order.Status), order.IsDelivered, order.DeliveredAt, address,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", translate(err))
	}
	return nil
}

// Update persists lifecycle fields and the delivery address. Items and totals
// are immutable after creation.
func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	address, err := jsonArg(order.DeliveryAddress)
	if err != nil {
		return err
	}
	order.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE orders
		SET is_paid = $2, paid_at = $3, status = $4, is_delivered = $5, delivered_at = $6,
		    delivery_address = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		order.ID, order.IsPaid, order.PaidAt, string(order.Status), order.IsDelivered, order.DeliveredAt,
		address, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", translate(err))
	}
	return expectRow(result, ErrOrderNotFound)
}

func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", translate(err))
	}
	return expectRow(result, ErrOrderNotFound)
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, id, "")
}

// LockByID retrieves an order and locks its row until the transaction ends
func (r *orderRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, id, "FOR UPDATE")
}

func (r *orderRepository) findOne(ctx context.Context, id uuid.UUID, lock string) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1 %s`, orderColumns, lock)

	order, err := scanOrder(database.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", translate(err))
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter, opts ListOptions) ([]*domain.Order, int, error) {
	order, err := orderBy(opts.Sort, orderSortColumns, defaultOrderSort, "id")
	if err != nil {
		return nil, 0, err
	}

	args := &argList{}
	var conds []string
	if filter.UserID != uuid.Nil {
		conds = append(conds, "user_id = "+args.add(filter.UserID))
	}
	whereClause := where(conds)

	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders "+whereClause, args.values...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders %s %s%s`, orderColumns, whereClause, order, limitOffset(args, opts))
	rows, err := conn.QueryContext(ctx, query, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, total, nil
}
