package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capitalize-ai/sqlchat/internal/model"
)

// PostgresAdapter talks to PostgreSQL through a pgx pool. Queries run in
// read-only transactions and introspection is limited to the public schema.
type PostgresAdapter struct {
	dsn      string
	maxConns int
	pool     *pgxpool.Pool
}

// NewPostgresAdapter creates an unconnected PostgreSQL adapter.
func NewPostgresAdapter(dsn string, maxConns int) *PostgresAdapter {
	return &PostgresAdapter{dsn: dsn, maxConns: maxConns}
}

// Connect creates the pool and verifies connectivity. The pool dials lazily,
// so it is kept even when the first ping fails and later calls recover once
// the server is reachable.
func (a *PostgresAdapter) Connect(ctx context.Context) error {
	if a.pool != nil {
		return a.Ping(ctx)
	}

	cfg, err := pgxpool.ParseConfig(a.dsn)
	if err != nil {
		return fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if a.maxConns > 0 {
		cfg.MaxConns = int32(a.maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	a.pool = pool

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (a *PostgresAdapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

// Ping implements Adapter.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.pool == nil {
		return ErrNotConnected
	}
	return a.pool.Ping(ctx)
}

// Execute implements Adapter.
func (a *PostgresAdapter) Execute(ctx context.Context, sql string) (*model.QueryResult, error) {
	if a.pool == nil {
		return nil, ErrNotConnected
	}

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return model.NewQueryResult(columns, out), nil
}

// Tables lists base tables in the public schema.
func (a *PostgresAdapter) Tables(ctx context.Context) ([]string, error) {
	if a.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := a.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Columns describes the columns of table in ordinal order.
func (a *PostgresAdapter) Columns(ctx context.Context, table string) ([]Column, error) {
	if a.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := a.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			col      Column
			nullable string
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Default); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ForeignKeys lists the references declared on table.
func (a *PostgresAdapter) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	if a.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := a.pool.Query(ctx, `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ForeignTable, &fk.ForeignColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// Dialect implements Adapter.
func (a *PostgresAdapter) Dialect() string { return DialectPostgres }
