package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Binding maps semantic field names (what a stage needs) to source column
// names (what a table actually has). Stages read through the binding so the
// core never hardcodes source column names.
type Binding map[string]string

// Column returns the column bound to the semantic field, or "" when unbound.
func (b Binding) Column(field string) string {
	return b[field]
}

// Resolve verifies every bound column exists in the table. All failures are
// collected into one MissingFieldsError so a misconfigured run reports the
// complete list up front instead of failing field by field.
func (b Binding) Resolve(t *Table, source string) error {
	var missing []MissingField
	for field, column := range b {
		if column == "" {
			missing = append(missing, MissingField{Field: field, Column: column})
			continue
		}
		if !t.HasColumn(column) {
			missing = append(missing, MissingField{Field: field, Column: column})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Field < missing[j].Field })
	return &MissingFieldsError{Source: source, Missing: missing}
}

// MissingField names one semantic field whose bound column is absent.
type MissingField struct {
	Field  string // semantic name, e.g. "serial"
	Column string // bound column, e.g. "serial_number"
}

// MissingFieldsError reports every semantic field that could not be
// resolved against a source table.
type MissingFieldsError struct {
	Source  string
	Missing []MissingField
}

// Error implements error.
func (e *MissingFieldsError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		if m.Column == "" {
			parts[i] = fmt.Sprintf("%s (unbound)", m.Field)
		} else {
			parts[i] = fmt.Sprintf("%s (column %q)", m.Field, m.Column)
		}
	}
	return fmt.Sprintf("%s: missing fields: %s", e.Source, strings.Join(parts, ", "))
}
