// Package assembly recombines the per sub-table outputs of a pipeline into
// one table and normalizes it: header canonicalization, the consistency
// cascade, filtering, order restoration and same-group merging.
package assembly

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/temirov/pktables/internal/fuzzy"
	"github.com/temirov/pktables/internal/table"
)

// HeaderCutoff is the similarity a header needs to be renamed to a vocabulary entry.
const HeaderCutoff = 0.8

// OriginalIndexColumn carries each row's position in the aligned source table.
const OriginalIndexColumn = "original_index"

// Block is the side-by-side parts produced for one sub-table. All parts
// have the same number of rows.
type Block struct {
	Parts []table.Table
}

// Assemble concatenates every block column-wise, then stacks the blocks.
func Assemble(blocks []Block) (table.Table, error) {
	combined := make([]table.Table, 0, len(blocks))
	for index, block := range blocks {
		joined, err := table.ConcatColumns(block.Parts...)
		if err != nil {
			return table.Table{}, fmt.Errorf("block %d: %w", index, err)
		}
		combined = append(combined, joined)
	}
	return table.ConcatRows(combined...), nil
}

// CanonicalizeHeaders renames each column to its closest vocabulary entry
// when the similarity reaches cutoff. Names already in the vocabulary, names
// without a close entry and names whose target is taken are kept.
func CanonicalizeHeaders(t table.Table, vocabulary []string, cutoff float64) table.Table {
	renamed := t.Clone()
	taken := make(map[string]bool, len(t.Columns))
	for _, column := range t.Columns {
		if slices.Contains(vocabulary, column) {
			taken[column] = true
		}
	}
	for index, column := range t.Columns {
		if slices.Contains(vocabulary, column) {
			continue
		}
		target := fuzzy.Nearest(column, vocabulary, cutoff, column)
		if target == column || taken[target] {
			continue
		}
		taken[target] = true
		renamed.Columns[index] = target
	}
	return renamed
}

// OrderColumns puts the vocabulary columns first, in vocabulary order,
// followed by any other columns in their current order.
func OrderColumns(t table.Table, vocabulary []string) table.Table {
	order := make([]string, 0, len(t.Columns))
	for _, column := range vocabulary {
		if _, ok := t.ColumnIndex(column); ok {
			order = append(order, column)
		}
	}
	for _, column := range t.Columns {
		if !slices.Contains(order, column) {
			order = append(order, column)
		}
	}
	ordered, err := table.TrySelectRowCol(t, nil, order)
	if err != nil {
		return t
	}
	return ordered
}

// Filter drops rows where every value column is N/A, then exact duplicates.
// original_index is ignored when comparing rows; the first occurrence stays.
func Filter(t table.Table, valueColumns []string) table.Table {
	var valueIndexes []int
	for _, column := range valueColumns {
		if index, ok := t.ColumnIndex(column); ok {
			valueIndexes = append(valueIndexes, index)
		}
	}
	originalIndex, hasOriginal := t.ColumnIndex(OriginalIndexColumn)

	filtered := table.Empty(t.Columns...)
	seen := make(map[string]bool, len(t.Rows))
	for _, row := range t.Rows {
		if len(valueIndexes) > 0 && allMissing(row, valueIndexes) {
			continue
		}
		key := rowKey(row, originalIndex, hasOriginal)
		if seen[key] {
			continue
		}
		seen[key] = true
		filtered.Rows = append(filtered.Rows, slices.Clone(row))
	}
	return filtered
}

func allMissing(row []string, indexes []int) bool {
	for _, index := range indexes {
		if row[index] != table.Missing {
			return false
		}
	}
	return true
}

func rowKey(row []string, skip int, hasSkip bool) string {
	key := make([]byte, 0, 64)
	for index, cell := range row {
		if hasSkip && index == skip {
			continue
		}
		key = strconv.AppendQuote(key, cell)
	}
	return string(key)
}

// RestoreOrder sorts rows by original_index and drops that column, then
// groups rows by groupKey in the order keys first appear. Both sorts are stable.
func RestoreOrder(t table.Table, groupKey string) (table.Table, error) {
	ordered := t.Clone()
	if index, ok := ordered.ColumnIndex(OriginalIndexColumn); ok {
		positions := make([]int, len(ordered.Rows))
		for rowIndex, row := range ordered.Rows {
			position, err := strconv.Atoi(row[index])
			if err != nil {
				return table.Table{}, fmt.Errorf("row %d: bad %s %q: %w", rowIndex, OriginalIndexColumn, row[index], err)
			}
			positions[rowIndex] = position
		}
		permutation := make([]int, len(ordered.Rows))
		for rowIndex := range permutation {
			permutation[rowIndex] = rowIndex
		}
		sort.SliceStable(permutation, func(i, j int) bool { return positions[permutation[i]] < positions[permutation[j]] })
		sorted := make([][]string, len(ordered.Rows))
		for target, source := range permutation {
			sorted[target] = ordered.Rows[source]
		}
		ordered.Rows = sorted

		keep := make([]string, 0, len(ordered.Columns)-1)
		for _, column := range ordered.Columns {
			if column != OriginalIndexColumn {
				keep = append(keep, column)
			}
		}
		dropped, err := table.TrySelectRowCol(ordered, nil, keep)
		if err != nil {
			return table.Table{}, err
		}
		ordered = dropped
	}

	keyIndex, ok := ordered.ColumnIndex(groupKey)
	if !ok {
		return ordered, nil
	}
	rank := make(map[string]int)
	for _, row := range ordered.Rows {
		if _, seen := rank[row[keyIndex]]; !seen {
			rank[row[keyIndex]] = len(rank)
		}
	}
	sort.SliceStable(ordered.Rows, func(i, j int) bool {
		return rank[ordered.Rows[i][keyIndex]] < rank[ordered.Rows[j][keyIndex]]
	})
	return ordered, nil
}

// Compatible reports whether two rows agree on every column where neither is N/A.
func Compatible(a, b []string) bool {
	for index := range a {
		if a[index] != b[index] && a[index] != table.Missing && b[index] != table.Missing {
			return false
		}
	}
	return true
}

// Merge fills the N/A cells of one row from the other. For compatible rows
// the result does not depend on argument order.
func Merge(a, b []string) []string {
	merged := slices.Clone(a)
	for index := range merged {
		if merged[index] == table.Missing {
			merged[index] = b[index]
		}
	}
	return merged
}

// MergeGroups merges pairs of compatible rows that share the identity
// columns. A single greedy pass: each row merges with the first later
// compatible row of its group, and a merged row is not paired again. The
// merged row takes the place of the earlier one.
func MergeGroups(t table.Table, identity []string) table.Table {
	var identityIndexes []int
	for _, column := range identity {
		if index, ok := t.ColumnIndex(column); ok {
			identityIndexes = append(identityIndexes, index)
		}
	}
	groupOf := func(row []string) string { return rowKeyOf(row, identityIndexes) }

	used := make([]bool, len(t.Rows))
	merged := table.Empty(t.Columns...)
	for i, row := range t.Rows {
		if used[i] {
			continue
		}
		used[i] = true
		result := slices.Clone(row)
		group := groupOf(row)
		for j := i + 1; j < len(t.Rows); j++ {
			if used[j] || groupOf(t.Rows[j]) != group || !Compatible(row, t.Rows[j]) {
				continue
			}
			used[j] = true
			result = Merge(row, t.Rows[j])
			break
		}
		merged.Rows = append(merged.Rows, result)
	}
	return merged
}

func rowKeyOf(row []string, indexes []int) string {
	key := make([]byte, 0, 64)
	for _, index := range indexes {
		key = strconv.AppendQuote(key, row[index])
	}
	return string(key)
}
