// This file defines the product repository.  Products are addressed by
// slug from the outside; the numeric id only orders listings.
package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/model"
)

const productColumns = "id, slug, name, price, grams, category, image, short_desc, created_at"

// ProductRepo encapsulates all queries on the products table.
type ProductRepo struct {
	db *database.DB
}

// NewProductRepo constructs a ProductRepo with the provided DB handle.
func NewProductRepo(db *database.DB) *ProductRepo {
	return &ProductRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (*model.Product, error) {
	p := new(model.Product)
	if err := s.Scan(&p.ID, &p.Slug, &p.Name, &p.Price, &p.Grams, &p.Category, &p.Image, &p.ShortDesc, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts p and fills in its ID.  A duplicate slug yields
// ErrConflict; the UNIQUE index makes the check and the insert one step, so
// concurrent creators of the same slug see exactly one success.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	const q = `INSERT INTO products (slug, name, price, grams, category, image, short_desc, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := r.db.Dialect.InsertID(ctx, r.db, q,
		p.Slug, p.Name, p.Price, p.Grams, p.Category, p.Image, p.ShortDesc, p.CreatedAt)
	if err != nil {
		if r.db.Dialect.IsUniqueViolation(err) {
			return ErrConflict
		}
		return errors.Wrap(err, "insert product")
	}
	p.ID = id
	return nil
}

// GetBySlug fetches a product by exact slug or returns ErrNotFound.
func (r *ProductRepo) GetBySlug(ctx context.Context, slug string) (*model.Product, error) {
	q := r.db.Dialect.Rebind("SELECT " + productColumns + " FROM products WHERE slug = ?")
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select product")
	}
	return p, nil
}

// List returns products newest id first, or newest createdAt first for
// SortNew.  Unknown sort values use the default order.
func (r *ProductRepo) List(ctx context.Context, opts model.ListOptions) ([]*model.Product, error) {
	q := "SELECT " + productColumns + " FROM products"
	if opts.Sort == model.SortNew {
		q += " ORDER BY created_at DESC, id DESC"
	} else {
		q += " ORDER BY id DESC"
	}
	var args []any
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	rows, err := r.db.QueryContext(ctx, r.db.Dialect.Rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	out := make([]*model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return out, nil
}

// Update applies patch to the product stored under slug inside a
// transaction and returns the resulting row.  Renaming onto an existing
// slug yields ErrConflict.
func (r *ProductRepo) Update(ctx context.Context, slug string, patch model.ProductPatch) (p *model.Product, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin update")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = errors.Wrap(tx.Commit(), "commit update")
		}
	}()

	sel := r.db.Dialect.Rebind("SELECT " + productColumns + " FROM products WHERE slug = ?" + r.db.Dialect.ForUpdate())
	p, err = scanProduct(tx.QueryRowContext(ctx, sel, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select product")
	}
	patch.Apply(p)

	const upd = `UPDATE products
	             SET slug = ?, name = ?, price = ?, grams = ?, category = ?, image = ?, short_desc = ?
	             WHERE id = ?`
	if _, err = tx.ExecContext(ctx, r.db.Dialect.Rebind(upd),
		p.Slug, p.Name, p.Price, p.Grams, p.Category, p.Image, p.ShortDesc, p.ID); err != nil {
		if r.db.Dialect.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// DeleteBySlug removes a product; a missing slug yields ErrNotFound.
func (r *ProductRepo) DeleteBySlug(ctx context.Context, slug string) error {
	res, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind("DELETE FROM products WHERE slug = ?"), slug)
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Slugs returns every product slug, used to build the sitemap.
func (r *ProductRepo) Slugs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT slug FROM products ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list slugs")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "scan slug")
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "list slugs")
}
