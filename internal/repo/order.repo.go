package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"quickcart/internal/domain"
)

const uniqueViolation = "23505"

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	address, err := marshalNullable(order.Address)
	if err != nil {
		return fmt.Errorf("orders.CreateOrder: %w", err)
	}
	invoice, err := marshalNullable(order.Invoice)
	if err != nil {
		return fmt.Errorf("orders.CreateOrder: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("orders.CreateOrder: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, customer_name, customer_email, clerk_user_id, address,
			payment_method, status, currency, total_price, amount_discount,
			checkout_session_id, payment_intent_id, invoice, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		order.ID, order.OrderNumber, order.CustomerName, order.CustomerEmail, order.ClerkUserID, address,
		order.PaymentMethod, order.Status, order.Currency, order.TotalPrice, order.AmountDiscount,
		order.CheckoutSessionID, order.PaymentIntentID, invoice, order.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("orders.CreateOrder: %w", err)
	}

	for i, item := range order.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, item_key, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, item.Key, i, item.ProductID, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("orders.CreateOrder item %s: %w", item.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("orders.CreateOrder: %w", err)
	}
	return nil
}

func (r *orderRepo) ExistsBySessionID(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE checkout_session_id = $1 AND payment_method = $2)`,
		sessionID, domain.PaymentCard,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("orders.ExistsBySessionID: %w", err)
	}
	return exists, nil
}

const orderColumns = `id, order_number, customer_name, customer_email, clerk_user_id, address,
	payment_method, status, currency, total_price, amount_discount,
	checkout_session_id, payment_intent_id, invoice, created_at`

func (r *orderRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1 ORDER BY created_at LIMIT 1`,
		orderNumber,
	)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("orders.FindByOrderNumber: %w", err)
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, fmt.Errorf("orders.FindByOrderNumber: %w", err)
	}
	return order, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, clerkUserID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE clerk_user_id = $1 ORDER BY created_at DESC`,
		clerkUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("orders.ListByUser: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("orders.ListByUser: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders.ListByUser: %w", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, fmt.Errorf("orders.ListByUser: %w", err)
	}

	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, *o)
	}
	return out, nil
}

func (r *orderRepo) loadItems(ctx context.Context, orders []*domain.Order) error {
	for _, order := range orders {
		rows, err := r.db.QueryContext(ctx,
			`SELECT item_key, product_id, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY position`,
			order.ID,
		)
		if err != nil {
			return err
		}

		for rows.Next() {
			var item domain.OrderItem
			if err := rows.Scan(&item.Key, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
				rows.Close()
				return err
			}
			order.Items = append(order.Items, item)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                domain.Order
		id               uuid.UUID
		address, invoice []byte
		total, discount  decimal.Decimal
	)
	err := row.Scan(
		&id, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &o.ClerkUserID, &address,
		&o.PaymentMethod, &o.Status, &o.Currency, &total, &discount,
		&o.CheckoutSessionID, &o.PaymentIntentID, &invoice, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ID = id
	o.TotalPrice = total
	o.AmountDiscount = discount

	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.Address); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	if len(invoice) > 0 {
		if err := json.Unmarshal(invoice, &o.Invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
	}
	return &o, nil
}

// marshalNullable yields nil for a nil pointer so the column stores SQL NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
