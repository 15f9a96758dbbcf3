package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// Engine names accepted by Open and DialectFor.
const (
	Sqlite   = "sqlite"
	MySQL    = "mysql"
	Postgres = "postgres"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect hides the differences between the supported engines.  Queries are
// written with `?` placeholders and passed through Rebind.
type Dialect struct {
	Name       string
	driverName string
}

// DialectFor resolves an engine name (with a few common aliases).
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return Dialect{Name: Sqlite, driverName: "sqlite"}, nil
	case "mysql", "mariadb":
		return Dialect{Name: MySQL, driverName: "mysql"}, nil
	case "postgres", "postgresql", "pgx":
		return Dialect{Name: Postgres, driverName: "pgx"}, nil
	}
	return Dialect{}, errors.Errorf("unsupported database driver %q", name)
}

// Rebind rewrites `?` placeholders to `$1..$n` for Postgres.  Queries must
// not contain literal question marks.
func (d Dialect) Rebind(q string) string {
	if d.Name != Postgres || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err came from a UNIQUE/PRIMARY KEY
// constraint on any supported engine.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// InsertID executes an INSERT and returns the generated id.  Postgres uses
// RETURNING since pgx does not implement LastInsertId.
func (d Dialect) InsertID(ctx context.Context, q Queryer, query string, args ...any) (int64, error) {
	if d.Name == Postgres {
		var id int64
		err := q.QueryRowContext(ctx, d.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ForUpdate returns the row locking suffix for SELECTs inside a
// transaction.  SQLite locks the whole database on write instead.
func (d Dialect) ForUpdate() string {
	if d.Name == Sqlite {
		return ""
	}
	return " FOR UPDATE"
}

// Quote quotes an identifier, keeping its case on Postgres.  SQLite gets
// brackets since it reads an unknown "name" as a string literal.
func (d Dialect) Quote(ident string) string {
	switch d.Name {
	case MySQL:
		return "`" + ident + "`"
	case Sqlite:
		return "[" + ident + "]"
	}
	return `"` + ident + `"`
}
