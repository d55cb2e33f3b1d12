// Package table holds the string-typed table model shared by every pipeline
// step, its markdown and CSV codecs, and the pure table algebra the steps
// apply to LLM answers.
package table

import (
	"fmt"
	"slices"
	"strings"
)

// Missing is the canonical value for an absent or inapplicable cell.
const Missing = "N/A"

const (
	rowWidthErrorFormat      = "row %d has %d cells, expected %d"
	unknownColumnErrorFormat = "unknown column %q"
)

// Table is an ordered list of named columns and rows of string cells.
// Every row holds exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New builds a table and checks that every row matches the header width.
func New(columns []string, rows [][]string) (Table, error) {
	for index, row := range rows {
		if len(row) != len(columns) {
			return Table{}, fmt.Errorf(rowWidthErrorFormat, index, len(row), len(columns))
		}
	}
	t := Table{Columns: slices.Clone(columns), Rows: make([][]string, len(rows))}
	for index, row := range rows {
		t.Rows[index] = slices.Clone(row)
	}
	return t, nil
}

// MustNew is New for literals in code and tests.
func MustNew(columns []string, rows ...[]string) Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with the given columns and no rows.
func Empty(columns ...string) Table {
	return Table{Columns: slices.Clone(columns), Rows: [][]string{}}
}

func (t Table) RowCount() int { return len(t.Rows) }
func (t Table) ColCount() int { return len(t.Columns) }

// ColumnIndex returns the position of the first column with the given name.
func (t Table) ColumnIndex(name string) (int, bool) {
	index := slices.Index(t.Columns, name)
	return index, index >= 0
}

// Column returns a copy of the named column's cells.
func (t Table) Column(name string) ([]string, error) {
	index, ok := t.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf(unknownColumnErrorFormat, name)
	}
	values := make([]string, len(t.Rows))
	for rowIndex, row := range t.Rows {
		values[rowIndex] = row[index]
	}
	return values, nil
}

// Cell returns the value at row/column name, or "" when either is out of range.
func (t Table) Cell(row int, column string) string {
	index, ok := t.ColumnIndex(column)
	if !ok || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][index]
}

// Row returns the named cells of one row.
func (t Table) Row(row int) map[string]string {
	values := make(map[string]string, len(t.Columns))
	if row < 0 || row >= len(t.Rows) {
		return values
	}
	for index, column := range t.Columns {
		values[column] = t.Rows[row][index]
	}
	return values
}

// String renders t as markdown.
func (t Table) String() string { return Encode(t) }

func (t Table) Clone() Table {
	clone := Table{Columns: slices.Clone(t.Columns), Rows: make([][]string, len(t.Rows))}
	for index, row := range t.Rows {
		clone.Rows[index] = slices.Clone(row)
	}
	return clone
}

// Equal reports whether both tables have the same columns and cells.
func (t Table) Equal(other Table) bool {
	if !slices.Equal(t.Columns, other.Columns) || len(t.Rows) != len(other.Rows) {
		return false
	}
	for index := range t.Rows {
		if !slices.Equal(t.Rows[index], other.Rows[index]) {
			return false
		}
	}
	return true
}

// RenameColumn renames the column at position index.
func (t Table) RenameColumn(index int, name string) (Table, error) {
	if index < 0 || index >= len(t.Columns) {
		return t, fmt.Errorf("column index %d out of range (%d columns)", index, len(t.Columns))
	}
	renamed := t.Clone()
	renamed.Columns[index] = name
	return renamed, nil
}

// AppendRow returns a copy of t with row added at the end.
func (t Table) AppendRow(row []string) (Table, error) {
	if len(row) != len(t.Columns) {
		return t, fmt.Errorf(rowWidthErrorFormat, len(t.Rows), len(row), len(t.Columns))
	}
	extended := t.Clone()
	extended.Rows = append(extended.Rows, slices.Clone(row))
	return extended, nil
}

// Fill returns a table of n rows where every cell is value.
func Fill(columns []string, n int, value string) Table {
	filled := Table{Columns: slices.Clone(columns), Rows: make([][]string, n)}
	for index := range filled.Rows {
		row := make([]string, len(columns))
		for cell := range row {
			row[cell] = value
		}
		filled.Rows[index] = row
	}
	return filled
}

// IsBlank reports whether a cell carries no text.
func IsBlank(cell string) bool {
	return strings.TrimSpace(cell) == ""
}
