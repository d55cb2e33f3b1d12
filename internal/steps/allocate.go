package steps

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/temirov/pktables/internal/table"
)

// Work table columns.
const (
	WorkKey          = "Key"
	WorkSourceColumn = "Source column"
	WorkCellValue    = "Cell value"
	WorkContext      = "Context"
)

var workColumns = []string{WorkKey, WorkSourceColumn, WorkCellValue, WorkContext}

// WorkTable is one sub-table melted to one row per value cell. The
// per-row extraction steps answer one entry per work row.
type WorkTable struct {
	Table table.Table
	// OriginalIndex is sourceRow*width+sourceColumn in the aligned table.
	OriginalIndex []int
}

func (w WorkTable) RowCount() int { return w.Table.RowCount() }

// Keys returns the key cell of every work row.
func (w WorkTable) Keys() []string {
	keys, _ := w.Table.Column(WorkKey)
	return keys
}

// OriginalIndexTable renders OriginalIndex as a single-column table.
func (w WorkTable) OriginalIndexTable() table.Table {
	indexes := table.Empty(ColumnOriginalIndex)
	for _, index := range w.OriginalIndex {
		indexes.Rows = append(indexes.Rows, []string{strconv.Itoa(index)})
	}
	return indexes
}

// Allocate melts part, a column subset of aligned, into a work table. It
// emits one row per non-blank cell of a Parameter value column, in row-major
// order. Unit, p value, extra parameter-type and uncategorized cells of the
// same row are carried as context.
func Allocate(aligned table.Table, part table.Table, categories CategoryMap, key Category) (WorkTable, error) {
	keyColumns := categories.Restrict(part.Columns).Columns(key)
	if len(keyColumns) != 1 {
		return WorkTable{}, fmt.Errorf("sub-table has %d %q columns, expected 1", len(keyColumns), key)
	}
	keyIndex, _ := part.ColumnIndex(keyColumns[0])

	var valueColumns, contextColumns []int
	for index, column := range part.Columns {
		if index == keyIndex {
			continue
		}
		switch categories.Of(column) {
		case CategoryParameterValue:
			valueColumns = append(valueColumns, index)
		case CategoryPatientID:
			if key != CategoryPatientID {
				contextColumns = append(contextColumns, index)
			}
		default:
			contextColumns = append(contextColumns, index)
		}
	}

	width := aligned.ColCount()
	work := WorkTable{Table: table.Empty(workColumns...)}
	for rowIndex, row := range part.Rows {
		context := rowContext(part, row, contextColumns)
		for _, columnIndex := range valueColumns {
			cell := row[columnIndex]
			if table.IsBlank(cell) {
				continue
			}
			name := part.Columns[columnIndex]
			position, ok := aligned.ColumnIndex(name)
			if !ok {
				return WorkTable{}, fmt.Errorf("column %q is not in the aligned table", name)
			}
			work.Table.Rows = append(work.Table.Rows, []string{row[keyIndex], name, cell, context})
			work.OriginalIndex = append(work.OriginalIndex, rowIndex*width+position)
		}
	}
	return work, nil
}

func rowContext(part table.Table, row []string, columns []int) string {
	var parts []string
	for _, index := range columns {
		if table.IsBlank(row[index]) {
			continue
		}
		parts = append(parts, part.Columns[index]+": "+row[index])
	}
	return strings.Join(parts, "; ")
}
