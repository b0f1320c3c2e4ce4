// Package dataset provides the tabular data model shared by all pipeline
// stages: an ordered-column table of string-keyed rows, plus the binding
// layer that maps semantic field names to source column names.
//
// Cell values are nil, string, float64, or time.Time. Stages never mutate
// a table in place; they work on copies (see Clone).
package dataset

import "time"

// Row is one record keyed by column name.
type Row map[string]any

// String returns the cell as a string. ok is false when the cell is
// absent, nil, or not a string.
func (r Row) String(column string) (string, bool) {
	s, ok := r[column].(string)
	return s, ok
}

// Time returns the cell as a time.Time. ok is false when the cell is
// absent, nil, or not a time.Time.
func (r Row) Time(column string) (time.Time, bool) {
	t, ok := r[column].(time.Time)
	return t, ok
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered collection of rows sharing a column set.
// Columns fixes the presentation order; Rows preserve source order.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// New creates an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends a column to the order if not already declared.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// Append adds a row to the table.
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// Clone returns a deep copy of the table. Cell values are immutable value
// types, so row maps are copied but cells are shared.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = row.Clone()
	}
	return out
}
