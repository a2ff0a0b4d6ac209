package database

import (
	"bytes"
	"encoding/json"
)

// Row is one result row: an ordered mapping of column name to Column.
//
// Rows are immutable once built. If a query yields the same column name
// twice, Get returns the first occurrence; every occurrence stays
// reachable through At.
type Row struct {
	names  []string
	cols   []Column
	faults []error
	index  map[string]int
}

// rowBuilder assembles a Row column by column.
type rowBuilder struct {
	row Row
}

func newRowBuilder(n int) *rowBuilder {
	return &rowBuilder{row: Row{
		names:  make([]string, 0, n),
		cols:   make([]Column, 0, n),
		faults: make([]error, 0, n),
		index:  make(map[string]int, n),
	}}
}

// add appends a column. fault records a decode fault for the column, if any.
func (b *rowBuilder) add(name string, col Column, fault error) {
	if _, dup := b.row.index[name]; !dup {
		b.row.index[name] = len(b.row.names)
	}
	b.row.names = append(b.row.names, name)
	b.row.cols = append(b.row.cols, col)
	b.row.faults = append(b.row.faults, fault)
}

func (b *rowBuilder) build() Row {
	return b.row
}

// Get returns the column with the given name.
func (r Row) Get(name string) (Column, bool) {
	i, ok := r.index[name]
	if !ok {
		return Column{}, false
	}
	return r.cols[i], true
}

// Fault returns the decode fault recorded for the named column, or nil.
//
// A NULL column with a nil fault was NULL in the database; a NULL column
// with a fault (ErrMalformedDate, ErrUnknownType, ErrTextMissing) could not
// be decoded.
func (r Row) Fault(name string) error {
	i, ok := r.index[name]
	if !ok {
		return nil
	}
	return r.faults[i]
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.names) }

// At returns the name and value of the i-th column.
func (r Row) At(i int) (string, Column) {
	return r.names[i], r.cols[i]
}

// Columns returns the column names in result order.
func (r Row) Columns() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// MarshalJSON encodes the row as a JSON object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	written := 0
	for i, name := range r.names {
		if r.index[name] != i {
			continue
		}
		if written > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.cols[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		written++
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
