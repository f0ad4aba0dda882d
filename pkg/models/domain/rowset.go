package domain

import (
	"fmt"
	"time"
)

// ColumnType is the semantic type of a RowSet column.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeNumber    ColumnType = "number"
	TypeTimestamp ColumnType = "timestamp"
	TypeBoolean   ColumnType = "boolean"
)

func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeTimestamp, TypeBoolean:
		return true
	}
	return false
}

type Column struct {
	Name string
	Type ColumnType
}

// RowSet is an ordered, immutable sequence of records with a fixed schema.
// Values are string, float64, time.Time, bool or nil.
type RowSet struct {
	columns []Column
	index   map[string]int
	rows    [][]any
}

// NewRowSet validates every value against the schema and copies the input,
// so later changes to columns or rows do not leak into the RowSet.
func NewRowSet(columns []Column, rows [][]any) (*RowSet, error) {
	rs := &RowSet{
		columns: append([]Column(nil), columns...),
		index:   make(map[string]int, len(columns)),
		rows:    make([][]any, 0, len(rows)),
	}
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("column %q has unknown type %q", c.Name, c.Type)
		}
		if _, dup := rs.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		rs.index[c.Name] = i
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, schema has %d columns", r, len(row), len(columns))
		}
		for i, v := range row {
			if !valueMatches(columns[i].Type, v) {
				return nil, fmt.Errorf("row %d column %q: %T is not a %s", r, columns[i].Name, v, columns[i].Type)
			}
		}
		rs.rows = append(rs.rows, append([]any(nil), row...))
	}
	return rs, nil
}

// MustRowSet is NewRowSet for statically known data.
func MustRowSet(columns []Column, rows [][]any) *RowSet {
	rs, err := NewRowSet(columns, rows)
	if err != nil {
		panic(err)
	}
	return rs
}

func valueMatches(t ColumnType, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeTimestamp:
		_, ok := v.(time.Time)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	}
	return false
}

func (rs *RowSet) Columns() []Column {
	return append([]Column(nil), rs.columns...)
}

func (rs *RowSet) ColumnNames() []string {
	names := make([]string, len(rs.columns))
	for i, c := range rs.columns {
		names[i] = c.Name
	}
	return names
}

func (rs *RowSet) Column(name string) (Column, bool) {
	i, ok := rs.index[name]
	if !ok {
		return Column{}, false
	}
	return rs.columns[i], true
}

func (rs *RowSet) Len() int {
	return len(rs.rows)
}

// Value returns the value of column name in row i, nil when the column is absent.
func (rs *RowSet) Value(i int, name string) any {
	c, ok := rs.index[name]
	if !ok || i < 0 || i >= len(rs.rows) {
		return nil
	}
	return rs.rows[i][c]
}

// Row returns a copy of row i in schema order.
func (rs *RowSet) Row(i int) []any {
	return append([]any(nil), rs.rows[i]...)
}

// Distinct counts distinct non-nil values of a column.
func (rs *RowSet) Distinct(name string) int {
	c, ok := rs.index[name]
	if !ok {
		return 0
	}
	seen := make(map[any]struct{})
	for _, row := range rs.rows {
		if row[c] == nil {
			continue
		}
		key := row[c]
		if t, ok := key.(time.Time); ok {
			key = t.UnixNano()
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}
