// Package database provides one read-only query adapter per supported SQL
// dialect. Exactly one adapter is constructed at startup and shared.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/sqlchat/internal/model"
)

// Supported dialects.
const (
	DialectPostgres = "postgresql"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// ErrNotConnected is returned by adapters used before Connect or after Close.
var ErrNotConnected = errors.New("database adapter not connected")

// Column describes one physical column of a table.
type Column struct {
	Name     string  `json:"column"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

// ForeignKey describes a single-column reference to another table.
type ForeignKey struct {
	Column        string `json:"column"`
	ForeignTable  string `json:"foreign_table"`
	ForeignColumn string `json:"foreign_column"`
}

// Adapter is the dialect-independent surface used by the rest of the service.
type Adapter interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	// Execute runs sql and returns every row. Callers are expected to have
	// verified the statement is read-only.
	Execute(ctx context.Context, sql string) (*model.QueryResult, error)

	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]Column, error)
	ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error)

	Dialect() string
}

// Config selects and configures the adapter.
type Config struct {
	Type        string
	PostgresDSN string
	MySQLDSN    string
	SQLitePath  string
	MaxConns    int
}

// New constructs the adapter for cfg.Type. The adapter is not connected.
func New(cfg Config) (Adapter, error) {
	switch strings.ToLower(cfg.Type) {
	case DialectPostgres, "postgres":
		return NewPostgresAdapter(cfg.PostgresDSN, cfg.MaxConns), nil
	case DialectMySQL:
		return NewMySQLAdapter(cfg.MySQLDSN, cfg.MaxConns), nil
	case DialectSQLite:
		return NewSQLiteAdapter(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q (supported: postgresql, mysql, sqlite)", cfg.Type)
	}
}

// SchemaContext renders the physical schema as prompt text.
func SchemaContext(ctx context.Context, a Adapter) (string, error) {
	tables, err := a.Tables(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Database dialect: %s\n\nSchema:\n\n", a.Dialect())

	for _, table := range tables {
		columns, err := a.Columns(ctx, table)
		if err != nil {
			return "", fmt.Errorf("failed to describe %s: %w", table, err)
		}
		fks, err := a.ForeignKeys(ctx, table)
		if err != nil {
			return "", fmt.Errorf("failed to list foreign keys of %s: %w", table, err)
		}
		refs := make(map[string]ForeignKey, len(fks))
		for _, fk := range fks {
			refs[fk.Column] = fk
		}

		fmt.Fprintf(&b, "Table: %s\n", table)
		for _, col := range columns {
			nullable := "NOT NULL"
			if col.Nullable {
				nullable = "NULL"
			}
			fmt.Fprintf(&b, "  - %s (%s, %s)", col.Name, col.Type, nullable)
			if fk, ok := refs[col.Name]; ok {
				fmt.Fprintf(&b, " -> %s.%s", fk.ForeignTable, fk.ForeignColumn)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}
