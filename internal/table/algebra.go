package table

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// ErrMissingColumns is matched by every MissingColumnsError.
var ErrMissingColumns = errors.New("column groups do not cover the table")

// MissingColumnsError reports the gap between a column grouping and the table.
type MissingColumnsError struct {
	Missing []string
	Unknown []string
}

func (e *MissingColumnsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing columns %q", e.Missing))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("unknown columns %q", e.Unknown))
	}
	return fmt.Sprintf("%s: %s", ErrMissingColumns, strings.Join(parts, "; "))
}

func (e *MissingColumnsError) Is(target error) bool { return target == ErrMissingColumns }

// SelectRowCol keeps the given rows (in the given order) and columns. A nil
// slice keeps everything. Any error is logged and t is returned unchanged:
// callers use it for corrective edits where doing nothing is acceptable.
func SelectRowCol(t Table, rows []int, columns []string) Table {
	selected, err := TrySelectRowCol(t, rows, columns)
	if err != nil {
		zap.L().Warn("row/column selection skipped", zap.Error(err), zap.Ints("rows", rows), zap.Strings("columns", columns))
		return t
	}
	return selected
}

// TrySelectRowCol is SelectRowCol that reports failures instead of hiding them.
func TrySelectRowCol(t Table, rows []int, columns []string) (Table, error) {
	columnIndexes := make([]int, 0, len(t.Columns))
	if columns == nil {
		for index := range t.Columns {
			columnIndexes = append(columnIndexes, index)
		}
	} else {
		for _, name := range columns {
			index, ok := t.ColumnIndex(name)
			if !ok {
				return t, fmt.Errorf(unknownColumnErrorFormat, name)
			}
			columnIndexes = append(columnIndexes, index)
		}
	}

	rowIndexes := rows
	if rows == nil {
		rowIndexes = make([]int, len(t.Rows))
		for index := range rowIndexes {
			rowIndexes[index] = index
		}
	}

	selected := Table{Columns: make([]string, 0, len(columnIndexes)), Rows: make([][]string, 0, len(rowIndexes))}
	for _, index := range columnIndexes {
		selected.Columns = append(selected.Columns, t.Columns[index])
	}
	for _, rowIndex := range rowIndexes {
		if rowIndex < 0 || rowIndex >= len(t.Rows) {
			return t, fmt.Errorf("row index %d out of range (%d rows)", rowIndex, len(t.Rows))
		}
		row := make([]string, 0, len(columnIndexes))
		for _, index := range columnIndexes {
			row = append(row, t.Rows[rowIndex][index])
		}
		selected.Rows = append(selected.Rows, row)
	}
	return selected, nil
}

// SplitByCols returns one sub-table per column group. Groups may share
// columns but their union must be exactly the table's column set.
func SplitByCols(t Table, groups [][]string) ([]Table, error) {
	covered := make(map[string]bool, len(t.Columns))
	var unknown []string
	for _, group := range groups {
		for _, name := range group {
			if _, ok := t.ColumnIndex(name); !ok {
				if !slices.Contains(unknown, name) {
					unknown = append(unknown, name)
				}
				continue
			}
			covered[name] = true
		}
	}
	var missing []string
	for _, column := range t.Columns {
		if !covered[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 || len(unknown) > 0 {
		return nil, &MissingColumnsError{Missing: missing, Unknown: unknown}
	}

	parts := make([]Table, 0, len(groups))
	for _, group := range groups {
		part, err := TrySelectRowCol(t, nil, group)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// Transpose flips rows and columns: the old header becomes the first column
// and the old first column becomes the header. The result is cleaned of
// empty rows/columns and its headers are filled and de-duplicated.
func Transpose(t Table) Table {
	grid := make([][]string, 0, len(t.Rows)+1)
	grid = append(grid, t.Columns)
	grid = append(grid, t.Rows...)

	width := len(grid)
	flipped := make([][]string, len(t.Columns))
	for columnIndex := range t.Columns {
		line := make([]string, width)
		for rowIndex := range grid {
			line[rowIndex] = grid[rowIndex][columnIndex]
		}
		flipped[columnIndex] = line
	}

	if len(flipped) == 0 {
		return Empty()
	}
	transposed := Table{Columns: flipped[0], Rows: flipped[1:]}
	return transposed.RemoveEmptyColRow().FillEmptyHeaders().DeduplicateHeaders()
}

// Take returns the rows at the given positions, in order. Positions may repeat.
func Take(t Table, positions []int) (Table, error) {
	taken := Table{Columns: slices.Clone(t.Columns), Rows: make([][]string, 0, len(positions))}
	for _, position := range positions {
		if position < 0 || position >= len(t.Rows) {
			return Table{}, fmt.Errorf("position %d out of range (%d rows)", position, len(t.Rows))
		}
		taken.Rows = append(taken.Rows, slices.Clone(t.Rows[position]))
	}
	return taken, nil
}

// ConcatColumns places tables side by side. All tables must have the same
// number of rows.
func ConcatColumns(tables ...Table) (Table, error) {
	if len(tables) == 0 {
		return Empty(), nil
	}
	rowCount := tables[0].RowCount()
	combined := Table{Rows: make([][]string, rowCount)}
	for tableIndex, part := range tables {
		if part.RowCount() != rowCount {
			return Table{}, fmt.Errorf("table %d has %d rows, expected %d", tableIndex, part.RowCount(), rowCount)
		}
		combined.Columns = append(combined.Columns, part.Columns...)
		for rowIndex, row := range part.Rows {
			combined.Rows[rowIndex] = append(combined.Rows[rowIndex], row...)
		}
	}
	return combined, nil
}

// ConcatRows stacks tables. Columns are matched by name; the result holds the
// union of columns in first-seen order and cells absent from a part are blank.
func ConcatRows(tables ...Table) Table {
	var columns []string
	for _, part := range tables {
		for _, column := range part.Columns {
			if !slices.Contains(columns, column) {
				columns = append(columns, column)
			}
		}
	}
	stacked := Table{Columns: columns, Rows: [][]string{}}
	for _, part := range tables {
		positions := make([]int, len(columns))
		for index, column := range columns {
			position, ok := part.ColumnIndex(column)
			if !ok {
				position = -1
			}
			positions[index] = position
		}
		for _, row := range part.Rows {
			stackedRow := make([]string, len(columns))
			for index, position := range positions {
				if position >= 0 {
					stackedRow[index] = row[position]
				}
			}
			stacked.Rows = append(stacked.Rows, stackedRow)
		}
	}
	return stacked
}
