package warehouse

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/types"
)

// pgPool is the subset of pgxpool.Pool used here; pgxmock satisfies it too.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresWarehouse appends to <dataset>.<table> in Postgres.
type PostgresWarehouse struct {
	pool    pgPool
	schema  string
	table   string
	closeFn func()
}

func NewPostgres(ctx context.Context, connString, dataset, table string) (*PostgresWarehouse, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresWarehouse{pool: pool, schema: dataset, table: table, closeFn: pool.Close}, nil
}

func (w *PostgresWarehouse) identifier() pgx.Identifier {
	return pgx.Identifier{w.schema, w.table}
}

func (w *PostgresWarehouse) TableRef() string {
	return w.identifier().Sanitize()
}

// EnsureSchema creates the schema and table when missing.
func (w *PostgresWarehouse) EnsureSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{w.schema}.Sanitize()); err != nil {
		return eris.Wrap(err, "postgres: create schema")
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + w.TableRef() + ` (
	customer_id        TEXT NOT NULL,
	phone_number       TEXT,
	transcript         TEXT NOT NULL,
	complaint_type     TEXT NOT NULL,
	customer_sentiment TEXT NOT NULL,
	resolved           BOOLEAN NOT NULL,
	inserted_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrap(err, "postgres: create table")
	}
	return nil
}

func (w *PostgresWarehouse) Query(ctx context.Context, sql string) error {
	if _, err := w.pool.Exec(ctx, sql); err != nil {
		return classifyPg("postgres.query", err)
	}
	return nil
}

// LoadAppend uses the COPY protocol.
func (w *PostgresWarehouse) LoadAppend(ctx context.Context, rows []types.WarehouseRow) error {
	if len(rows) == 0 {
		return nil
	}
	src := make([][]any, len(rows))
	for i, r := range rows {
		src[i] = r.Values()
	}
	if _, err := w.pool.CopyFrom(ctx, w.identifier(), types.Columns, pgx.CopyFromRows(src)); err != nil {
		return classifyPg("postgres.copy", eris.Wrapf(err, "postgres: COPY INTO %s", w.TableRef()))
	}
	return nil
}

func (w *PostgresWarehouse) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// classifyPg maps syntax, access and data errors (SQLSTATE classes 42 and 22)
// to MalformedStatement. Everything else is treated as transient.
func classifyPg(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "42", "22":
			return fault.New(fault.MalformedStatement, op, err)
		}
	}
	return fault.New(fault.Transient, op, err)
}
