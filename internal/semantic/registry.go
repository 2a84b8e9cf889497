// Package semantic merges the physical schema with business descriptions of
// tables and columns so the model knows what the data means.
package semantic

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Column is the business description of one column.
type Column struct {
	Name          string   `yaml:"name" json:"name"`
	DisplayName   string   `yaml:"display_name" json:"display_name"`
	Description   string   `yaml:"description" json:"description"`
	ExampleValues []string `yaml:"example_values" json:"example_values"`
	IsPrimaryKey  bool     `yaml:"is_primary_key" json:"is_primary_key"`
	IsForeignKey  bool     `yaml:"is_foreign_key" json:"is_foreign_key"`
	IsSensitive   bool     `yaml:"is_sensitive" json:"is_sensitive"`
}

// Table is the business description of one table.
type Table struct {
	Name          string   `yaml:"name" json:"name"`
	DisplayName   string   `yaml:"display_name" json:"display_name"`
	Description   string   `yaml:"description" json:"description"`
	Columns       []Column `yaml:"columns" json:"columns"`
	CommonQueries []string `yaml:"common_queries" json:"common_queries"`
	Joins         []string `yaml:"joins" json:"joins"`
}

// Column returns the description of the named column, if any.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// PromptFragment renders t for inclusion in a system prompt.
func (t *Table) PromptFragment() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s (%s)\n", t.Name, t.DisplayName)
	fmt.Fprintf(&b, "  Purpose: %s\n", t.Description)

	for _, col := range t.Columns {
		fmt.Fprintf(&b, "  - %s: %s", col.Name, col.Description)
		if col.IsSensitive {
			b.WriteString(" [SENSITIVE]")
		}
		if len(col.ExampleValues) > 0 {
			fmt.Fprintf(&b, "  e.g. %s", strings.Join(col.ExampleValues, ", "))
		}
		b.WriteString("\n")
	}

	if len(t.CommonQueries) > 0 {
		b.WriteString("  Common questions:\n")
		for _, q := range t.CommonQueries {
			fmt.Fprintf(&b, "    - %s\n", q)
		}
	}
	return b.String()
}

type registryFile struct {
	Tables []Table `yaml:"tables"`
}

// Registry holds table descriptions keyed by physical table name.
type Registry struct {
	tables map[string]*Table
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register adds or replaces the description of t.Name.
func (r *Registry) Register(t Table) {
	if _, exists := r.tables[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tables[t.Name] = &t
}

// Get returns the description of the named table, if any.
func (r *Registry) Get(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Names returns registered table names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ParseRegistry decodes a registry document.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse semantic registry: %w", err)
	}

	r := NewRegistry()
	for i, t := range file.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("semantic registry: table %d has no name", i)
		}
		if t.DisplayName == "" {
			t.DisplayName = t.Name
		}
		r.Register(t)
	}
	return r, nil
}

// LoadRegistry reads the registry at path. An empty path yields the built-in
// registry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read semantic registry: %w", err)
	}
	return ParseRegistry(data)
}

// DefaultRegistry returns the built-in descriptions.
func DefaultRegistry() *Registry {
	r, err := ParseRegistry(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("semantic: invalid built-in registry: %v", err))
	}
	return r
}
