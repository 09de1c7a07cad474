package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/types"
)

// SQLiteWarehouse is an embedded warehouse for local runs. The dataset name
// is not used; SQLite has no schemas without ATTACH.
type SQLiteWarehouse struct {
	db    *sql.DB
	table string
}

func NewSQLite(dsn, table string) (*SQLiteWarehouse, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteWarehouse{db: db, table: table}, nil
}

func (w *SQLiteWarehouse) TableRef() string {
	return `"` + strings.ReplaceAll(w.table, `"`, `""`) + `"`
}

func (w *SQLiteWarehouse) EnsureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + w.TableRef() + ` (
	customer_id        TEXT NOT NULL,
	phone_number       TEXT,
	transcript         TEXT NOT NULL,
	complaint_type     TEXT NOT NULL,
	customer_sentiment TEXT NOT NULL,
	resolved           BOOLEAN NOT NULL,
	inserted_at        DATETIME NOT NULL DEFAULT (datetime('now'))
)`
	_, err := w.db.ExecContext(ctx, ddl)
	return eris.Wrap(err, "sqlite: create table")
}

func (w *SQLiteWarehouse) Query(ctx context.Context, stmt string) error {
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return classifySQLite("sqlite.query", err)
	}
	return nil
}

// LoadAppend inserts all rows in one transaction with a prepared statement.
func (w *SQLiteWarehouse) LoadAppend(ctx context.Context, rows []types.WarehouseRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLite("sqlite.load", eris.Wrap(err, "sqlite: begin"))
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(types.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+w.TableRef()+" ("+strings.Join(types.Columns, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return classifySQLite("sqlite.load", eris.Wrap(err, "sqlite: prepare insert"))
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Values()...); err != nil {
			return classifySQLite("sqlite.load", eris.Wrap(err, "sqlite: insert row"))
		}
	}
	if err := tx.Commit(); err != nil {
		return classifySQLite("sqlite.load", eris.Wrap(err, "sqlite: commit"))
	}
	return nil
}

// Count returns the number of stored rows.
func (w *SQLiteWarehouse) Count(ctx context.Context) (int, error) {
	var n int
	err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+w.TableRef()).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count")
}

func (w *SQLiteWarehouse) Close() error {
	return w.db.Close()
}

// classifySQLite maps SQLITE_ERROR (syntax, missing table or column) to
// MalformedStatement.
func classifySQLite(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_ERROR {
		return fault.New(fault.MalformedStatement, op, err)
	}
	return fault.New(fault.Transient, op, err)
}
