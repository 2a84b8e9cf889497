package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLAdapter talks to MySQL or MariaDB. Queries run in READ ONLY transactions.
type MySQLAdapter struct {
	sqlDB
	dsn      string
	maxConns int
}

// NewMySQLAdapter creates an unconnected MySQL adapter.
func NewMySQLAdapter(dsn string, maxConns int) *MySQLAdapter {
	return &MySQLAdapter{
		sqlDB:    sqlDB{readOnlyTx: true},
		dsn:      dsn,
		maxConns: maxConns,
	}
}

// Connect opens the pool and verifies connectivity. The pool is kept when the
// first ping fails; database/sql dials again on the next use.
func (a *MySQLAdapter) Connect(ctx context.Context) error {
	if a.db != nil {
		return a.Ping(ctx)
	}

	cfg, err := mysql.ParseDSN(a.dsn)
	if err != nil {
		return fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if a.maxConns > 0 {
		db.SetMaxOpenConns(a.maxConns)
	}
	a.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to mysql: %w", err)
	}
	return nil
}

// Tables lists base tables of the connected schema.
func (a *MySQLAdapter) Tables(ctx context.Context) ([]string, error) {
	return a.queryStrings(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
}

// Columns describes the columns of table in ordinal order.
func (a *MySQLAdapter) Columns(ctx context.Context, table string) ([]Column, error) {
	db, err := a.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
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
			def      sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			col.Default = &def.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ForeignKeys lists the references declared on table.
func (a *MySQLAdapter) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	db, err := a.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL`, table)
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
func (a *MySQLAdapter) Dialect() string { return DialectMySQL }
