package table

import (
	"fmt"
	"strings"
)

const unnamedColumnFormat = "Unnamed: %d"

// FillEmptyHeaders names blank headers "Unnamed: i" after their position.
func (t Table) FillEmptyHeaders() Table {
	repaired := t.Clone()
	for index, column := range repaired.Columns {
		if IsBlank(column) {
			repaired.Columns[index] = fmt.Sprintf(unnamedColumnFormat, index)
		}
	}
	return repaired
}

// DeduplicateHeaders suffixes every repeated header with _0, _1, ... in
// left-to-right order. Row count and cell values are untouched.
func (t Table) DeduplicateHeaders() Table {
	counts := make(map[string]int, len(t.Columns))
	for _, column := range t.Columns {
		counts[column]++
	}
	taken := make(map[string]bool, len(t.Columns))
	for _, column := range t.Columns {
		if counts[column] == 1 {
			taken[column] = true
		}
	}

	repaired := t.Clone()
	next := make(map[string]int, len(t.Columns))
	for index, column := range t.Columns {
		if counts[column] == 1 {
			continue
		}
		for {
			candidate := fmt.Sprintf("%s_%d", column, next[column])
			next[column]++
			if !taken[candidate] {
				taken[candidate] = true
				repaired.Columns[index] = candidate
				break
			}
		}
	}
	return repaired
}

// RemoveEmptyColRow drops rows whose cells are all blank and columns whose
// header and cells are all blank.
func (t Table) RemoveEmptyColRow() Table {
	keepColumns := make([]int, 0, len(t.Columns))
	for index, column := range t.Columns {
		if !IsBlank(column) || !columnBlank(t, index) {
			keepColumns = append(keepColumns, index)
		}
	}

	repaired := Table{Columns: make([]string, 0, len(keepColumns)), Rows: [][]string{}}
	for _, index := range keepColumns {
		repaired.Columns = append(repaired.Columns, t.Columns[index])
	}
	for _, row := range t.Rows {
		if rowBlank(row) {
			continue
		}
		kept := make([]string, 0, len(keepColumns))
		for _, index := range keepColumns {
			kept = append(kept, row[index])
		}
		repaired.Rows = append(repaired.Rows, kept)
	}
	return repaired
}

func columnBlank(t Table, index int) bool {
	for _, row := range t.Rows {
		if !IsBlank(row[index]) {
			return false
		}
	}
	return true
}

func rowBlank(row []string) bool {
	for _, cell := range row {
		if !IsBlank(cell) {
			return false
		}
	}
	return true
}

// DeduplicateHeadersMarkdown applies DeduplicateHeaders to markdown text.
func DeduplicateHeadersMarkdown(markdown string) (string, error) {
	return repairMarkdown(markdown, Table.DeduplicateHeaders)
}

// FillEmptyHeadersMarkdown applies FillEmptyHeaders to markdown text.
func FillEmptyHeadersMarkdown(markdown string) (string, error) {
	return repairMarkdown(markdown, Table.FillEmptyHeaders)
}

// RemoveEmptyColRowMarkdown applies RemoveEmptyColRow to markdown text.
func RemoveEmptyColRowMarkdown(markdown string) (string, error) {
	return repairMarkdown(markdown, Table.RemoveEmptyColRow)
}

// repairMarkdown parses markdown without the automatic header repair Decode
// performs, so each repair can be applied on its own.
func repairMarkdown(markdown string, repair func(Table) Table) (string, error) {
	raw, err := parseMarkdown(markdown)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(Encode(repair(raw)), "\n"), nil
}
