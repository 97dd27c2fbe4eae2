package cql

import (
	"fmt"
	"sort"
)

// Table describes the regular columns of a wide-row table.
// Key columns are opaque byte keys and are not listed.
type Table struct {
	name    string
	columns map[string]Type
}

// NewTable parses column type declarations into a Table.
func NewTable(name string, columns map[string]string) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	parsed := make(map[string]Type, len(columns))
	for col, decl := range columns {
		if col == "" {
			return nil, fmt.Errorf("column name is required")
		}
		t, err := Parse(decl)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		parsed[col] = t
	}
	return &Table{name: name, columns: parsed}, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Column returns the declared type of a column.
func (t *Table) Column(name string) (Type, bool) {
	typ, ok := t.columns[name]
	return typ, ok
}

// Columns returns the column names in sorted order.
func (t *Table) Columns() []string {
	names := make([]string, 0, len(t.columns))
	for n := range t.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
