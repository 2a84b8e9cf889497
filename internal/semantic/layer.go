package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/capitalize-ai/sqlchat/internal/database"
)

// Schema is the part of a database adapter the layer reads.
type Schema interface {
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]database.Column, error)
	ForeignKeys(ctx context.Context, table string) ([]database.ForeignKey, error)
	Dialect() string
}

// TableSummary is one entry of ListTables.
type TableSummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	HasSemantic bool   `json:"has_semantic"`
}

// EnrichedColumn merges physical and semantic column metadata.
type EnrichedColumn struct {
	Name          string               `json:"name"`
	Type          string               `json:"type"`
	Nullable      bool                 `json:"nullable"`
	Default       *string              `json:"default"`
	DisplayName   string               `json:"display_name"`
	Description   string               `json:"description"`
	IsSensitive   bool                 `json:"is_sensitive"`
	ExampleValues []string             `json:"example_values"`
	ForeignKey    *database.ForeignKey `json:"foreign_key"`
}

// TableDetail is the merged view of a single table.
type TableDetail struct {
	Table         string           `json:"table"`
	DisplayName   string           `json:"display_name"`
	Description   string           `json:"description"`
	Columns       []EnrichedColumn `json:"columns"`
	CommonQueries []string         `json:"common_queries"`
	Joins         []string         `json:"joins"`
}

// Layer combines a schema source with a registry.
type Layer struct {
	schema   Schema
	registry *Registry
}

// NewLayer creates a Layer. A nil registry means the built-in one.
func NewLayer(schema Schema, registry *Registry) *Layer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Layer{schema: schema, registry: registry}
}

// Dialect reports the dialect of the underlying schema.
func (l *Layer) Dialect() string {
	return l.schema.Dialect()
}

// PromptContext renders every physical table, preferring its semantic
// description and falling back to raw column metadata.
func (l *Layer) PromptContext(ctx context.Context) (string, error) {
	tables, err := l.schema.Tables(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Database dialect: %s\n\n", l.schema.Dialect())
	b.WriteString("=== DATABASE SCHEMA & SEMANTIC CONTEXT ===\n\n")

	for _, name := range tables {
		if t, ok := l.registry.Get(name); ok {
			b.WriteString(t.PromptFragment())
			b.WriteString("\n")
			continue
		}
		raw, err := l.rawSection(ctx, name)
		if err != nil {
			return "", err
		}
		b.WriteString(raw)
	}

	b.WriteString("=== END SCHEMA ===")
	return b.String(), nil
}

// ListTables summarizes the physical tables.
func (l *Layer) ListTables(ctx context.Context) ([]TableSummary, error) {
	tables, err := l.schema.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	out := make([]TableSummary, 0, len(tables))
	for _, name := range tables {
		s := TableSummary{Name: name, DisplayName: name}
		if t, ok := l.registry.Get(name); ok {
			s.DisplayName = t.DisplayName
			s.Description = t.Description
			s.HasSemantic = true
		}
		out = append(out, s)
	}
	return out, nil
}

// Table returns the merged view of one table.
func (l *Layer) Table(ctx context.Context, name string) (*TableDetail, error) {
	columns, err := l.schema.Columns(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", name, err)
	}
	fks, err := l.schema.ForeignKeys(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list foreign keys of %s: %w", name, err)
	}
	refs := make(map[string]database.ForeignKey, len(fks))
	for _, fk := range fks {
		refs[fk.Column] = fk
	}

	sem, hasSem := l.registry.Get(name)
	detail := &TableDetail{
		Table:         name,
		DisplayName:   name,
		Columns:       make([]EnrichedColumn, 0, len(columns)),
		CommonQueries: []string{},
		Joins:         []string{},
	}
	if hasSem {
		detail.DisplayName = sem.DisplayName
		detail.Description = sem.Description
		if sem.CommonQueries != nil {
			detail.CommonQueries = sem.CommonQueries
		}
		if sem.Joins != nil {
			detail.Joins = sem.Joins
		}
	}

	for _, col := range columns {
		ec := EnrichedColumn{
			Name:          col.Name,
			Type:          col.Type,
			Nullable:      col.Nullable,
			Default:       col.Default,
			DisplayName:   col.Name,
			ExampleValues: []string{},
		}
		if fk, ok := refs[col.Name]; ok {
			fk := fk
			ec.ForeignKey = &fk
		}
		if hasSem {
			if sc, ok := sem.Column(col.Name); ok {
				ec.DisplayName = sc.DisplayName
				ec.Description = sc.Description
				ec.IsSensitive = sc.IsSensitive
				if sc.ExampleValues != nil {
					ec.ExampleValues = sc.ExampleValues
				}
			}
		}
		detail.Columns = append(detail.Columns, ec)
	}

	return detail, nil
}

func (l *Layer) rawSection(ctx context.Context, table string) (string, error) {
	columns, err := l.schema.Columns(ctx, table)
	if err != nil {
		return "", fmt.Errorf("failed to describe %s: %w", table, err)
	}
	fks, err := l.schema.ForeignKeys(ctx, table)
	if err != nil {
		return "", fmt.Errorf("failed to list foreign keys of %s: %w", table, err)
	}
	refs := make(map[string]database.ForeignKey, len(fks))
	for _, fk := range fks {
		refs[fk.Column] = fk
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s [no semantic definition]\n", table)
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
	return b.String(), nil
}
