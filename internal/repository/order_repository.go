package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/storefront-api/internal/model"
)

// OrderRepo persists orders and their line items. An order row and its
// items are always written in one transaction; everything after creation
// (payment id backfill, status transitions) is a separate statement.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = "id, user_id, total_price, status, payment_id, created_at, updated_at"

// CreatePending inserts o in the pending state together with its items and
// fills in the generated ID and timestamps. o.PaymentID must already hold
// a unique placeholder.
func (r *OrderRepo) CreatePending(ctx context.Context, o *model.Order) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const q = `INSERT INTO orders (user_id, total_price, status, payment_id) VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, o.UserID, o.TotalPrice, model.OrderPending, o.PaymentID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)

	if len(o.Items) > 0 {
		query := `INSERT INTO order_items (order_id, product_id, quantity) VALUES `
		args := make([]any, 0, len(o.Items)*3)
		for i, it := range o.Items {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, o.ID, it.ProductID, it.Quantity)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	// Query back the row to populate timestamps and defaults
	row := tx.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", o.ID)
	if err = scanOrder(row, o); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPaymentID replaces the placeholder with the gateway's payment id.
func (r *OrderRepo) SetPaymentID(ctx context.Context, orderID uint64, paymentID string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE orders SET payment_id = ? WHERE id = ?", paymentID, orderID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByPaymentID looks an order up by its external payment id. Items are
// not loaded.
func (r *OrderRepo) GetByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	var o model.Order
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE payment_id = ? LIMIT 1", paymentID)
	if err := scanOrder(row, &o); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// Transition moves a pending order to the terminal status to. It reports
// false without error when the order is no longer pending, so a repeated
// delivery never applies a second transition. When clearCart is set the
// owner's cart is emptied in the same transaction as the status change.
func (r *OrderRepo) Transition(ctx context.Context, orderID uint64, to model.OrderStatus, clearCart bool) (changed bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !changed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = ? WHERE id = ? AND status = ?", to, orderID, model.OrderPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if clearCart {
		const q = `DELETE ci FROM cart_items ci JOIN orders o ON o.user_id = ci.user_id WHERE o.id = ?`
		if _, err = tx.ExecContext(ctx, q, orderID); err != nil {
			return false, err
		}
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListByUser returns the user's orders newest first, each with its items.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	orders := []model.Order{}
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]uint64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// GetByIDForUser returns one order with its items. Orders of other users
// are reported as ErrNotFound.
func (r *OrderRepo) GetByIDForUser(ctx context.Context, orderID, userID uint64) (*model.Order, error) {
	var o model.Order
	row := r.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = ? AND user_id = ?", orderID, userID)
	if err := scanOrder(row, &o); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := r.itemsFor(ctx, []uint64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

// ListStalePending returns up to limit pending orders created before the
// cutoff, oldest first.
func (r *OrderRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = ? AND created_at < ? ORDER BY created_at LIMIT ?",
		model.OrderPending, before.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// itemsFor loads the items of the given orders keyed by order id. Products
// deleted since the order was placed leave Product nil.
func (r *OrderRepo) itemsFor(ctx context.Context, orderIDs []uint64) (map[uint64][]model.OrderItem, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}
	q := `SELECT oi.order_id, oi.product_id, oi.quantity, p.title, p.price, p.image
          FROM order_items oi
          LEFT JOIN products p ON p.id = oi.product_id
          WHERE oi.order_id IN (` + placeholders + `)
          ORDER BY oi.order_id, oi.product_id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID uint64
			it      model.OrderItem
			title   sql.NullString
			price   sql.NullString
			image   sql.NullString
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &title, &price, &image); err != nil {
			return nil, err
		}
		if title.Valid {
			ref := model.ProductRef{ID: it.ProductID, Title: title.String}
			if err := ref.Price.Scan(price.String); err != nil {
				return nil, err
			}
			if image.Valid {
				ref.Image = &image.String
			}
			it.Product = &ref
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func scanOrder(row rowScanner, o *model.Order) error {
	var status string
	if err := row.Scan(&o.ID, &o.UserID, &o.TotalPrice, &status, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	o.Status = model.OrderStatus(status)
	return nil
}
