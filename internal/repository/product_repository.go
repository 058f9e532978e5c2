package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iliyamo/storefront-api/internal/model"
)

// ProductRepo encapsulates catalog queries. Mutations are restricted to the
// product owner: a product that exists but belongs to someone else yields
// ErrForbidden, a missing one ErrNotFound.
type ProductRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

const productColumns = "id, owner_id, title, description, image, price, tags, characteristics, created_at, updated_at"

// Create inserts p and re-reads it so timestamps are populated.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	tags, chars, err := encodeProductJSON(p)
	if err != nil {
		return err
	}
	const q = "INSERT INTO products (owner_id, title, description, image, price, tags, characteristics) VALUES (?, ?, ?, ?, ?, ?, ?)"
	res, err := r.db.ExecContext(ctx, q, p.OwnerID, p.Title, p.Description, p.Image, p.Price, tags, chars)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

// GetByID returns a single product.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// List returns the whole catalog, newest first.
func (r *ProductRepo) List(ctx context.Context) ([]model.Product, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// ListByOwner returns products created by ownerID, newest first.
func (r *ProductRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE owner_id = ? ORDER BY id DESC", ownerID)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// ImagesByOwner returns the image URLs of every product ownerID has, so
// they can be removed from storage before the products go away.
func (r *ProductRepo) ImagesByOwner(ctx context.Context, ownerID uint64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT image FROM products WHERE owner_id = ? AND image IS NOT NULL AND image <> ''", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// Update overwrites the editable fields of p. p.OwnerID must be the caller.
func (r *ProductRepo) Update(ctx context.Context, p *model.Product) error {
	if err := r.checkOwner(ctx, p.ID, p.OwnerID); err != nil {
		return err
	}
	tags, chars, err := encodeProductJSON(p)
	if err != nil {
		return err
	}
	const q = "UPDATE products SET title = ?, description = ?, price = ?, tags = ?, characteristics = ? WHERE id = ? AND owner_id = ?"
	if _, err := r.db.ExecContext(ctx, q, p.Title, p.Description, p.Price, tags, chars, p.ID, p.OwnerID); err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *fresh
	return nil
}

// SetImage stores a new image URL and returns the previous one, if any.
func (r *ProductRepo) SetImage(ctx context.Context, id, ownerID uint64, url string) (prev *string, err error) {
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE products SET image = ? WHERE id = ? AND owner_id = ?", url, id, ownerID); err != nil {
		return nil, err
	}
	return cur.Image, nil
}

// Delete removes the product and returns it so the caller can clean up the
// stored image. Cart lines referencing it are removed by cascade; order
// items keep the dangling id.
func (r *ProductRepo) Delete(ctx context.Context, id, ownerID uint64) (*model.Product, error) {
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = ? AND owner_id = ?", id, ownerID); err != nil {
		return nil, err
	}
	return cur, nil
}

// checkOwner distinguishes a missing product from one owned by another user.
func (r *ProductRepo) checkOwner(ctx context.Context, id, ownerID uint64) error {
	var owner uint64
	err := r.db.QueryRowContext(ctx, "SELECT owner_id FROM products WHERE id = ?", id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != ownerID {
		return ErrForbidden
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p           model.Product
		image       sql.NullString
		tags, chars []byte
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &image, &p.Price,
		&tags, &chars, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if image.Valid {
		p.Image = &image.String
	}
	p.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return nil, err
		}
	}
	p.Characteristics = map[string]string{}
	if len(chars) > 0 {
		if err := json.Unmarshal(chars, &p.Characteristics); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func collectProducts(rows *sql.Rows) ([]model.Product, error) {
	defer rows.Close()
	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func encodeProductJSON(p *model.Product) (tags, chars string, err error) {
	t := p.Tags
	if t == nil {
		t = []string{}
	}
	c := p.Characteristics
	if c == nil {
		c = map[string]string{}
	}
	tb, err := json.Marshal(t)
	if err != nil {
		return "", "", err
	}
	cb, err := json.Marshal(c)
	if err != nil {
		return "", "", err
	}
	return string(tb), string(cb), nil
}
