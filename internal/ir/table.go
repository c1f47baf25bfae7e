package ir

import "slices"

// Row is one record: a mapping from field name to value. A field that is
// not present in the map is missing, which is distinct from Null.
type Row map[string]Value

// Get returns the value of field and whether it is present.
func (r Row) Get(field string) (Value, bool) {
	v, ok := r[field]
	return v, ok
}

// Clone returns a shallow copy of the row. Values are immutable so a
// shallow copy is sufficient.
func (r Row) Clone() Row {
	out := make(Row, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered sequence of rows plus its schema.
//
// Fields is the ordered union of field names: either declared by the loader
// (e.g. a CSV header) or accumulated in first-seen order. Stages consult it
// to validate their field references before running, so an empty table
// still carries the schema its producer declared.
type Table struct {
	Fields []string
	Rows   []Row
}

// NewTable builds a table from rows, deriving the schema as the union of
// fields in first-seen order. Keys within a row are visited in sorted order
// so the derived schema is deterministic.
func NewTable(rows []Row) Table {
	t := Table{Rows: rows}
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, k := range sortedRowKeys(r) {
			if !seen[k] {
				seen[k] = true
				t.Fields = append(t.Fields, k)
			}
		}
	}
	return t
}

// NewTableWithFields builds a table with an explicit schema. Fields present
// in rows but not declared are appended to the schema.
func NewTableWithFields(fields []string, rows []Row) Table {
	t := Table{Fields: slices.Clone(fields), Rows: rows}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f] = true
	}
	for _, r := range rows {
		for _, k := range sortedRowKeys(r) {
			if !seen[k] {
				seen[k] = true
				t.Fields = append(t.Fields, k)
			}
		}
	}
	return t
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// HasField reports whether field is part of the schema.
func (t Table) HasField(field string) bool {
	return slices.Contains(t.Fields, field)
}

// WithField returns a copy of the schema with field appended if absent.
func (t Table) WithField(field string) []string {
	if t.HasField(field) {
		return slices.Clone(t.Fields)
	}
	return append(slices.Clone(t.Fields), field)
}

// Column returns the values of field for every row, Null where missing.
func (t Table) Column(field string) []Value {
	col := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		if v, ok := r[field]; ok && v != nil {
			col[i] = v
		} else {
			col[i] = Null{}
		}
	}
	return col
}

// Clone returns a copy of the table whose row slice and rows may be
// modified without affecting t.
func (t Table) Clone() Table {
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Clone()
	}
	return Table{Fields: slices.Clone(t.Fields), Rows: rows}
}

// Objects converts rows to Objects for canonical serialization.
func (t Table) Objects() List {
	out := make(List, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = Object(r)
	}
	return out
}

func sortedRowKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}
