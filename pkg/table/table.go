// Package table provides the in-memory tabular model shared by the
// translation pipeline together with its CSV and XLSX codecs.
package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTable is returned by codecs when the input has a header but no rows,
// or no content at all.
var ErrEmptyTable = errors.New("table has no rows")

// ErrRowTooWide is returned by codecs for a data row with more cells than the
// header has columns.
var ErrRowTooWide = errors.New("row has more fields than the header")

// Row maps a column name to its cell text.
type Row map[string]string

// Table is an ordered sequence of rows sharing one column set.
//
// Columns keeps the header order so that serialization reproduces the input
// layout and so that row scans are deterministic.
type Table struct {
	Columns []string
	Rows    []Row
}

// New creates a table with the given header and no rows.
func New(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Append adds a row from positional values. Missing trailing values are
// stored as empty cells; extra values are ignored, so codecs must reject
// wide rows with checkWidth first.
func (t *Table) Append(values ...string) {
	row := make(Row, len(t.Columns))
	for i, col := range t.Columns {
		if i < len(values) {
			row[col] = values[i]
		} else {
			row[col] = ""
		}
	}
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Get returns the cell at (row, column). Out of range lookups return "".
func (t *Table) Get(row int, column string) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][column]
}

// Set writes the cell at (row, column). Out of range rows are ignored.
func (t *Table) Set(row int, column string, value string) {
	if row < 0 || row >= len(t.Rows) {
		return
	}
	t.Rows[row][column] = value
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: make([]string, len(t.Columns)),
		Rows:    make([]Row, len(t.Rows)),
	}
	copy(out.Columns, t.Columns)
	for i, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows[i] = nr
	}
	return out
}

// Values returns row i as positional values in column order.
func (t *Table) Values(i int) []string {
	out := make([]string, len(t.Columns))
	for j, col := range t.Columns {
		out[j] = t.Rows[i][col]
	}
	return out
}

// checkWidth rejects a record wider than the header.
func checkWidth(record int, values []string, width int) error {
	if len(values) > width {
		return fmt.Errorf("record %d has %d fields, header has %d: %w", record, len(values), width, ErrRowTooWide)
	}
	return nil
}

// IsBlank reports whether a cell is empty or whitespace only.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
