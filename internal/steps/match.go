package steps

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/temirov/pktables/internal/literal"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/table"
)

// NoMatch is the index a model answers for a row that fits no reference row.
const NoMatch = -1

// MatchRows assigns every work row to one row of a reference table, such as
// the drug or population table. The output is the reference table
// reordered to the work rows, with an all-ERROR row where nothing matched.
type MatchRows struct {
	StepName  string
	Entity    string
	Work      WorkTable
	Reference table.Table
	Caption   string
}

func (s MatchRows) Name() string { return s.StepName }

func (s MatchRows) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describeWork(s.Caption, s.Work))
	sb.WriteString(fmt.Sprintf("\n\nThese are the %s the paper reports (the # column is the index to answer with):\n", s.Entity))
	sb.WriteString(table.Encode(withRowIndex(s.Reference), table.WithMissing(table.Missing)))
	sb.WriteString(fmt.Sprintf("\n\nFor every row of the first table give the index of the %s it belongs to. ", s.Entity))
	sb.WriteString(fmt.Sprintf("Use %d when none fits. Return exactly %d indexes, in row order.\n", NoMatch, s.Work.RowCount()))
	sb.WriteString("Answer as a list of integers, for example <<[0, 0, 1, -1]>>")
	return request(sb.String()), nil
}

func (s MatchRows) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	const shape = "a list of integers"
	parsed, err := literal.ParseAnswer(response.RawText)
	if err != nil {
		return false, table.Table{}, parseRefine(err, shape), nil
	}
	indexes, err := literal.AsIntList(parsed)
	if err != nil {
		return false, table.Table{}, parseRefine(err, shape), nil
	}
	if len(indexes) != s.Work.RowCount() {
		return false, table.Table{}, invariantRefine(rowCountRefineFormat, len(indexes), s.Work.RowCount()), nil
	}
	for position, index := range indexes {
		if index < NoMatch || index >= s.Reference.RowCount() {
			return false, table.Table{}, invariantRefine("Row %d points at %d, but the indexes run from 0 to %d (or %d for no match).", position, index, s.Reference.RowCount()-1, NoMatch), nil
		}
	}
	matched, err := Realize(s.Reference, indexes)
	if err != nil {
		return false, table.Table{}, nil, err
	}
	return true, matched, nil, nil
}

// Realize reorders reference by indexes. NoMatch selects a synthetic row of
// ERROR cells appended after the reference rows.
func Realize(reference table.Table, indexes []int) (table.Table, error) {
	errorRow := make([]string, reference.ColCount())
	for index := range errorRow {
		errorRow[index] = ErrorCell
	}
	extended, err := reference.AppendRow(errorRow)
	if err != nil {
		return table.Table{}, err
	}
	positions := slices.Clone(indexes)
	for index, position := range positions {
		if position == NoMatch {
			positions[index] = reference.RowCount()
		}
	}
	return table.Take(extended, positions)
}

// Repeat is the matching result when the reference holds a single row.
func Repeat(reference table.Table, rows int) (table.Table, error) {
	return Realize(reference, make([]int, rows))
}
