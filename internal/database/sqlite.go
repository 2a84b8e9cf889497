package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter reads a local SQLite file. Intended for development and tests.
type SQLiteAdapter struct {
	sqlDB
	path string
}

// NewSQLiteAdapter creates an unconnected SQLite adapter for the file at path.
func NewSQLiteAdapter(path string) *SQLiteAdapter {
	return &SQLiteAdapter{path: path}
}

// Connect opens the database file. A failed first ping keeps the handle so
// the file is opened again on the next use.
func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	if a.db != nil {
		return a.Ping(ctx)
	}

	db, err := sql.Open("sqlite", a.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	a.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	return nil
}

// Tables lists user tables.
func (a *SQLiteAdapter) Tables(ctx context.Context) ([]string, error) {
	return a.queryStrings(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
}

// Columns describes the columns of table.
func (a *SQLiteAdapter) Columns(ctx context.Context, table string) ([]Column, error) {
	db, err := a.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull", dflt_value FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			col     Column
			notNull int
			def     sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &def); err != nil {
			return nil, err
		}
		col.Nullable = notNull == 0
		if def.Valid {
			col.Default = &def.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ForeignKeys lists the references declared on table.
func (a *SQLiteAdapter) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	db, err := a.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var (
			fk ForeignKey
			to sql.NullString
		)
		if err := rows.Scan(&fk.Column, &fk.ForeignTable, &to); err != nil {
			return nil, err
		}
		fk.ForeignColumn = to.String
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// Dialect implements Adapter.
func (a *SQLiteAdapter) Dialect() string { return DialectSQLite }
