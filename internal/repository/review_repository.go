package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/model"
)

const reviewColumns = "id, name, title, body, created_at, approved"

// ReviewRepo stores customer reviews.  Visibility on public paths is
// decided by the approved flag, which only Approve sets.
type ReviewRepo struct {
	db *database.DB
}

func NewReviewRepo(db *database.DB) *ReviewRepo { return &ReviewRepo{db: db} }

func scanReview(s rowScanner) (*model.Review, error) {
	rv := new(model.Review)
	if err := s.Scan(&rv.ID, &rv.Name, &rv.Title, &rv.Text, &rv.CreatedAt, &rv.Approved); err != nil {
		return nil, err
	}
	return rv, nil
}

// Create inserts rv as given (including its approved flag) and fills in its ID.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	const q = "INSERT INTO reviews (name, title, body, created_at, approved) VALUES (?, ?, ?, ?, ?)"
	id, err := r.db.Dialect.InsertID(ctx, r.db, q, rv.Name, rv.Title, rv.Text, rv.CreatedAt, rv.Approved)
	if err != nil {
		return errors.Wrap(err, "insert review")
	}
	rv.ID = id
	return nil
}

// GetByID fetches one review or returns ErrNotFound.
func (r *ReviewRepo) GetByID(ctx context.Context, id int64) (*model.Review, error) {
	q := r.db.Dialect.Rebind("SELECT " + reviewColumns + " FROM reviews WHERE id = ?")
	rv, err := scanReview(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select review")
	}
	return rv, nil
}

// ListApproved returns approved reviews, newest submission first.
func (r *ReviewRepo) ListApproved(ctx context.Context) ([]*model.Review, error) {
	return r.list(ctx, "SELECT "+reviewColumns+" FROM reviews WHERE approved = ? ORDER BY created_at DESC, id DESC", true)
}

// ListAll returns every review regardless of approval, newest id first.
func (r *ReviewRepo) ListAll(ctx context.Context) ([]*model.Review, error) {
	return r.list(ctx, "SELECT "+reviewColumns+" FROM reviews ORDER BY id DESC")
}

func (r *ReviewRepo) list(ctx context.Context, q string, args ...any) ([]*model.Review, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Dialect.Rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}
	defer rows.Close()

	out := make([]*model.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan review")
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}
	return out, nil
}

// Approve sets the approved flag.  Approving an approved review is a
// successful no-op; a missing id yields ErrNotFound.
func (r *ReviewRepo) Approve(ctx context.Context, id int64) error {
	// RowsAffected is unreliable for no-op updates on MySQL, so existence is
	// checked explicitly.
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind("UPDATE reviews SET approved = ? WHERE id = ?"), true, id); err != nil {
		return errors.Wrap(err, "approve review")
	}
	return nil
}

// Delete removes a review; a missing id yields ErrNotFound.
func (r *ReviewRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind("DELETE FROM reviews WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "delete review")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
