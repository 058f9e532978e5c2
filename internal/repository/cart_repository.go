package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/storefront-api/internal/model"
)

// mysqlNoReferencedRow is ER_NO_REFERENCED_ROW_2 (foreign key target missing).
const mysqlNoReferencedRow = 1452

// CartRepo manages the live cart of each user. A cart is the set of
// cart_items rows for that user, ordered by insertion time.
type CartRepo struct {
	db *sql.DB
}

func NewCartRepo(db *sql.DB) *CartRepo { return &CartRepo{db: db} }

// Add puts quantity units of productID into the cart, incrementing an
// existing line. An unknown product yields ErrNotFound.
func (r *CartRepo) Add(ctx context.Context, userID, productID uint64, quantity int) error {
	const q = `INSERT INTO cart_items (user_id, product_id, quantity) VALUES (?, ?, ?)
               ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`
	_, err := r.db.ExecContext(ctx, q, userID, productID, quantity)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlNoReferencedRow {
		return ErrNotFound
	}
	return err
}

// Remove drops the line for productID. Removing an absent line is a no-op.
func (r *CartRepo) Remove(ctx context.Context, userID, productID uint64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = ? AND product_id = ?", userID, productID)
	return err
}

// Lines returns the cart joined with the current product rows. The price in
// each line is the live catalog price at the time of the call.
func (r *CartRepo) Lines(ctx context.Context, userID uint64) ([]model.CartLine, error) {
	const q = `SELECT ci.product_id, ci.quantity, ci.added_at, p.title, p.price, p.image
               FROM cart_items ci
               JOIN products p ON p.id = ci.product_id
               WHERE ci.user_id = ?
               ORDER BY ci.added_at, ci.product_id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []model.CartLine{}
	for rows.Next() {
		var (
			l     model.CartLine
			image sql.NullString
		)
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.AddedAt, &l.Product.Title, &l.Product.Price, &image); err != nil {
			return nil, err
		}
		l.Product.ID = l.ProductID
		if image.Valid {
			l.Product.Image = &image.String
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
