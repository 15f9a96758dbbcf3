package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/model"
)

// SettingsRepo reads and writes the singleton settings row.
type SettingsRepo struct {
	db *database.DB
}

func NewSettingsRepo(db *database.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get returns the settings row, or model.DefaultSettings when it is absent.
func (r *SettingsRepo) Get(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	q := r.db.Dialect.Rebind("SELECT currency, whatsapp_phone FROM settings WHERE id = ?")
	err := r.db.QueryRowContext(ctx, q, model.SettingsID).Scan(&s.Currency, &s.WhatsAppPhone)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, errors.Wrap(err, "select settings")
	}
	return s, nil
}

// Save writes s into the singleton row, creating it if needed.
func (r *SettingsRepo) Save(ctx context.Context, s model.Settings) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Dialect.Rebind("UPDATE settings SET currency = ?, whatsapp_phone = ? WHERE id = ?"),
		s.Currency, s.WhatsAppPhone, model.SettingsID)
	if err != nil {
		return errors.Wrap(err, "update settings")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.db.ExecContext(ctx,
		r.db.Dialect.Rebind("INSERT INTO settings (id, currency, whatsapp_phone) VALUES (?, ?, ?)"),
		model.SettingsID, s.Currency, s.WhatsAppPhone)
	if err != nil && !r.db.Dialect.IsUniqueViolation(err) {
		return errors.Wrap(err, "insert settings")
	}
	return nil
}
