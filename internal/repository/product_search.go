package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/storefront-api/internal/model"
)

// ProductSearchQuery filters the catalog. Empty fields are ignored.
type ProductSearchQuery struct {
	Text string // matched case-insensitively against title and description
	Tag  string // exact tag
}

// Empty reports whether q has no filter at all.
func (q ProductSearchQuery) Empty() bool {
	return strings.TrimSpace(q.Text) == "" && strings.TrimSpace(q.Tag) == ""
}

// Search returns products matching every non-empty filter, newest first.
func (r *ProductRepo) Search(ctx context.Context, q ProductSearchQuery) ([]model.Product, error) {
	where := []string{}
	args := []any{}

	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		like := "%" + escapeLike(text) + "%"
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, like, like)
	}
	if tag := strings.TrimSpace(q.Tag); tag != "" {
		where = append(where, "JSON_CONTAINS(tags, JSON_QUOTE(?))")
		args = append(args, tag)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE "+cond+" ORDER BY id DESC", args...)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
