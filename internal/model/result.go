package model

// QueryResult is the tabular outcome of one read-only query. Rows are keyed by
// column name; Columns gives their canonical order.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// NewQueryResult builds a result whose RowCount matches len(rows).
func NewQueryResult(columns []string, rows []map[string]any) *QueryResult {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return &QueryResult{
		Columns:  columns,
		Rows:     rows,
		RowCount: len(rows),
	}
}

// Normalize repairs a decoded result so RowCount agrees with Rows.
func (r *QueryResult) Normalize() *QueryResult {
	return NewQueryResult(r.Columns, r.Rows)
}
