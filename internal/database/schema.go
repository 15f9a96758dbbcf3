package database

import (
	"context"

	"github.com/pkg/errors"
)

type ddl struct {
	tables  []string
	columns []additiveColumn
}

// additiveColumn is a column added after the first release.  It is created
// only when selecting it fails.
type additiveColumn struct {
	table, column, definition string
}

var schemas = map[string]ddl{
	Sqlite: {
		tables: []string{
			`CREATE TABLE IF NOT EXISTS products (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE,
				price REAL NOT NULL DEFAULT 0,
				grams INTEGER NOT NULL DEFAULT 0,
				category TEXT NOT NULL DEFAULT '',
				image TEXT NOT NULL DEFAULT '',
				short_desc TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS reviews (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				title TEXT NOT NULL,
				body TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				approved INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS settings (
				id INTEGER PRIMARY KEY,
				currency TEXT NOT NULL DEFAULT 'USD',
				whatsapp_phone TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				token_hash TEXT PRIMARY KEY,
				is_admin INTEGER NOT NULL DEFAULT 0,
				ip_address TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				expires_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		},
		columns: []additiveColumn{
			{"products", "grams", "INTEGER NOT NULL DEFAULT 0"},
			{"products", "short_desc", "TEXT NOT NULL DEFAULT ''"},
		},
	},
	MySQL: {
		tables: []string{
			`CREATE TABLE IF NOT EXISTS products (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				slug VARCHAR(191) NOT NULL,
				price DECIMAL(12,2) NOT NULL DEFAULT 0,
				grams INT NOT NULL DEFAULT 0,
				category VARCHAR(255) NOT NULL DEFAULT '',
				image VARCHAR(1024) NOT NULL DEFAULT '',
				short_desc VARCHAR(1024) NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL,
				UNIQUE KEY uq_products_slug (slug)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS reviews (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				title VARCHAR(255) NOT NULL,
				body TEXT NOT NULL,
				created_at BIGINT NOT NULL,
				approved TINYINT(1) NOT NULL DEFAULT 0
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS settings (
				id INT NOT NULL PRIMARY KEY,
				currency VARCHAR(8) NOT NULL DEFAULT 'USD',
				whatsapp_phone VARCHAR(64) NOT NULL DEFAULT ''
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS sessions (
				token_hash CHAR(64) NOT NULL PRIMARY KEY,
				is_admin TINYINT(1) NOT NULL DEFAULT 0,
				ip_address VARCHAR(64) NOT NULL DEFAULT '',
				user_agent VARCHAR(512) NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL,
				expires_at BIGINT NOT NULL,
				KEY idx_sessions_expires (expires_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
		columns: []additiveColumn{
			{"products", "grams", "INT NOT NULL DEFAULT 0"},
			{"products", "short_desc", "VARCHAR(1024) NOT NULL DEFAULT ''"},
		},
	},
	Postgres: {
		tables: []string{
			`CREATE TABLE IF NOT EXISTS products (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE,
				price NUMERIC(12,2) NOT NULL DEFAULT 0,
				grams INTEGER NOT NULL DEFAULT 0,
				category TEXT NOT NULL DEFAULT '',
				image TEXT NOT NULL DEFAULT '',
				short_desc TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS reviews (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				title TEXT NOT NULL,
				body TEXT NOT NULL,
				created_at BIGINT NOT NULL,
				approved BOOLEAN NOT NULL DEFAULT FALSE
			)`,
			`CREATE TABLE IF NOT EXISTS settings (
				id INTEGER PRIMARY KEY,
				currency TEXT NOT NULL DEFAULT 'USD',
				whatsapp_phone TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				token_hash TEXT PRIMARY KEY,
				is_admin BOOLEAN NOT NULL DEFAULT FALSE,
				ip_address TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL,
				expires_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		},
		columns: []additiveColumn{
			{"products", "grams", "INTEGER NOT NULL DEFAULT 0"},
			{"products", "short_desc", "TEXT NOT NULL DEFAULT ''"},
		},
	},
}

// Migrate creates missing tables, adds columns introduced after the first
// release and makes sure the singleton settings row exists.
func Migrate(ctx context.Context, db *DB) error {
	s, ok := schemas[db.Dialect.Name]
	if !ok {
		return errors.Errorf("no schema for %s", db.Dialect.Name)
	}
	for _, stmt := range s.tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "creating schema")
		}
	}
	for _, col := range s.columns {
		check := "SELECT " + col.column + " FROM " + col.table + " WHERE 1=0"
		rows, err := db.QueryContext(ctx, check)
		if err == nil {
			_ = rows.Close()
			continue
		}
		alter := "ALTER TABLE " + col.table + " ADD COLUMN " + col.column + " " + col.definition
		if _, err := db.ExecContext(ctx, alter); err != nil {
			return errors.Wrapf(err, "adding column %s.%s", col.table, col.column)
		}
	}
	return seedSettings(ctx, db)
}

func seedSettings(ctx context.Context, db *DB) error {
	var n int
	if err := db.QueryRowContext(ctx, db.Dialect.Rebind("SELECT COUNT(*) FROM settings WHERE id = ?"), 1).Scan(&n); err != nil {
		return errors.Wrap(err, "checking settings row")
	}
	if n > 0 {
		return nil
	}
	_, err := db.ExecContext(ctx,
		db.Dialect.Rebind("INSERT INTO settings (id, currency, whatsapp_phone) VALUES (?, ?, ?)"),
		1, "USD", "")
	if err != nil && !db.Dialect.IsUniqueViolation(err) {
		return errors.Wrap(err, "seeding settings row")
	}
	return nil
}
