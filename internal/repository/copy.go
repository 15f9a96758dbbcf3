package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/model"
)

// CopyStats reports what CopyCatalog moved.
type CopyStats struct {
	Products        int
	ProductsSkipped int
	Reviews         int
	ReviewsSkipped  int
}

// CopyCatalog copies products, reviews and settings from src into dst.
// Products keep their createdAt and are skipped when dst already has the
// slug; reviews keep their approval flag and are skipped when dst already
// holds one with the same author, title and timestamp, so a rerun is safe.
// Rows are inserted oldest first so relative ordering by id survives.
//
// src is only read.  It may use this schema or the older camelCase one
// (shortDesc, createdAt, text); see sourceColumns.
func CopyCatalog(ctx context.Context, src, dst *database.DB) (CopyStats, error) {
	var st CopyStats

	cols, err := detectSourceColumns(ctx, src)
	if err != nil {
		return st, err
	}

	products, err := readSourceProducts(ctx, src, cols)
	if err != nil {
		return st, err
	}
	dstProducts := NewProductRepo(dst)
	for _, p := range products {
		err := dstProducts.Create(ctx, p)
		switch {
		case errors.Is(err, ErrConflict):
			st.ProductsSkipped++
		case err != nil:
			return st, err
		default:
			st.Products++
		}
	}

	reviews, err := readSourceReviews(ctx, src, cols)
	if err != nil {
		return st, err
	}
	dstReviews := NewReviewRepo(dst)
	existing, err := dstReviews.ListAll(ctx)
	if err != nil {
		return st, err
	}
	type reviewKey struct {
		name, title string
		at          int64
	}
	seen := make(map[reviewKey]bool, len(existing))
	for _, rv := range existing {
		seen[reviewKey{rv.Name, rv.Title, rv.CreatedAt}] = true
	}
	for _, rv := range reviews {
		k := reviewKey{rv.Name, rv.Title, rv.CreatedAt}
		if seen[k] {
			st.ReviewsSkipped++
			continue
		}
		if err := dstReviews.Create(ctx, rv); err != nil {
			return st, err
		}
		seen[k] = true
		st.Reviews++
	}

	settings, err := NewSettingsRepo(src).Get(ctx)
	if err != nil {
		return st, err
	}
	return st, NewSettingsRepo(dst).Save(ctx, settings)
}

// sourceColumns holds quoted column expressions for the source store.
type sourceColumns struct {
	grams          string
	shortDesc      string
	productCreated string
	reviewText     string
	reviewCreated  string
}

func detectSourceColumns(ctx context.Context, db *database.DB) (sourceColumns, error) {
	var c sourceColumns
	var err error
	pick := func(table, fallback string, names ...string) string {
		if err != nil {
			return ""
		}
		for _, n := range names {
			if hasColumn(ctx, db, table, n) {
				return db.Dialect.Quote(n)
			}
		}
		if fallback == "" {
			err = errors.Errorf("source table %s has none of %v", table, names)
		}
		return fallback
	}
	c.grams = pick("products", "0", "grams")
	c.shortDesc = pick("products", "''", "short_desc", "shortDesc")
	c.productCreated = pick("products", "", "created_at", "createdAt")
	c.reviewText = pick("reviews", "", "body", "text")
	c.reviewCreated = pick("reviews", "", "created_at", "createdAt")
	return c, err
}

func hasColumn(ctx context.Context, db *database.DB, table, column string) bool {
	rows, err := db.QueryContext(ctx, "SELECT "+db.Dialect.Quote(column)+" FROM "+table+" WHERE 1=0")
	if err != nil {
		return false
	}
	_ = rows.Close()
	return true
}

func readSourceProducts(ctx context.Context, db *database.DB, c sourceColumns) ([]*model.Product, error) {
	q := "SELECT id, slug, COALESCE(name, ''), COALESCE(price, 0), COALESCE(" + c.grams + ", 0), " +
		"COALESCE(category, ''), COALESCE(image, ''), COALESCE(" + c.shortDesc + ", ''), " +
		"COALESCE(" + c.productCreated + ", 0) FROM products " +
		"WHERE slug IS NOT NULL AND slug <> '' ORDER BY " + c.productCreated + " ASC, id ASC"
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "read source products")
	}
	defer rows.Close()
	var out []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan source product")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "read source products")
}

func readSourceReviews(ctx context.Context, db *database.DB, c sourceColumns) ([]*model.Review, error) {
	q := "SELECT id, COALESCE(name, ''), COALESCE(title, ''), COALESCE(" + c.reviewText + ", ''), " +
		"COALESCE(" + c.reviewCreated + ", 0), approved FROM reviews ORDER BY " + c.reviewCreated + " ASC, id ASC"
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "read source reviews")
	}
	defer rows.Close()
	var out []*model.Review
	for rows.Next() {
		rv := new(model.Review)
		var approved sql.NullBool
		if err := rows.Scan(&rv.ID, &rv.Name, &rv.Title, &rv.Text, &rv.CreatedAt, &approved); err != nil {
			return nil, errors.Wrap(err, "scan source review")
		}
		rv.Approved = approved.Valid && approved.Bool
		out = append(out, rv)
	}
	return out, errors.Wrap(rows.Err(), "read source reviews")
}
