package steps

import (
	"context"
	"strings"

	"github.com/temirov/pktables/internal/literal"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/table"
)

// DeleteRows drops rows and columns that do not belong to the variant, such
// as individual values inside a summary table.
type DeleteRows struct {
	Table   table.Table
	Caption string
	Variant Variant
}

func (s DeleteRows) Name() string { return NameRowDeletion }

func (s DeleteRows) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describe(s.Caption, s.Table))
	sb.WriteString("\n\nWe only want ")
	sb.WriteString(s.Variant.describeRows())
	sb.WriteString(". Find the rows and columns that hold ")
	sb.WriteString(s.Variant.describeOtherRows())
	sb.WriteString(", or nothing that is a pharmacokinetic measurement at all.\n")
	sb.WriteString("If everything should stay, answer with " + literal.NoChange + " and nothing else.\n")
	sb.WriteString("Otherwise answer with a pair (row indexes to keep, column names to keep), using None to keep all of them, ")
	sb.WriteString(`for example <<([0, 1, 3], None)>> or <<(None, ["Parameter", "Pregnant", "Postpartum"])>>`)
	return request(sb.String()), nil
}

func (s DeleteRows) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	if literal.HasNoChange(response.RawText) {
		return true, s.Table, nil, nil
	}
	const shape = "a pair (list of row indexes or None, list of column names or None), or " + literal.NoChange
	parsed, err := literal.ParseAnswer(response.RawText)
	if err != nil {
		return false, table.Table{}, parseRefine(err, shape), nil
	}
	pair, err := literal.AsList(parsed)
	if err == nil && len(pair) != 2 {
		err = &literal.ShapeError{Want: "a pair", Got: parsed}
	}
	if err != nil {
		return false, table.Table{}, parseRefine(err, shape), nil
	}
	rows, err := literal.AsOptionalIntList(pair[0])
	if err != nil {
		return false, table.Table{}, parseRefine(err, shape), nil
	}
	columns, err := literal.AsOptionalStringList(pair[1])
	if err != nil {
		return false, table.Table{}, parseRefine(err, shape), nil
	}
	selected := table.SelectRowCol(s.Table, rows, columns)
	if selected.RowCount() == 0 || selected.ColCount() == 0 {
		return false, table.Table{}, invariantRefine("That would leave an empty table. Keep at least one row and one column, or answer " + literal.NoChange + "."), nil
	}
	return true, selected, nil, nil
}

// AlignParameters decides whether the table must be transposed so that
// every row is one record of the variant's key and the first column holds
// that key.
type AlignParameters struct {
	Table   table.Table
	Caption string
	Variant Variant
}

func (s AlignParameters) Name() string { return NameParameterAlignment }

func (s AlignParameters) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describe(s.Caption, s.Table))
	if s.Variant == Individual {
		sb.WriteString("\n\nAre individual patients laid out as columns, so that each column header names a patient ")
		sb.WriteString("and the rows are parameters?")
	} else {
		sb.WriteString("\n\nAre the pharmacokinetic parameters (such as Cmax, AUC or half-life) laid out as column headers, ")
		sb.WriteString("so that each row is a group or condition rather than a parameter?")
	}
	sb.WriteString("\nAnswer <<True>> or <<False>>.")
	return request(sb.String()), nil
}

func (s AlignParameters) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	const shape = "True or False"
	parsed, err := literal.ParseAnswer(response.RawText)
	if err != nil {
		return false, table.Table{}, parseRefine(err, shape), nil
	}
	transpose, err := literal.AsBool(parsed)
	if err != nil {
		return false, table.Table{}, parseRefine(err, shape), nil
	}
	if !transpose {
		return true, s.Table, nil, nil
	}
	transposed := table.Transpose(s.Table)
	if transposed.ColCount() == 0 || transposed.RowCount() == 0 {
		return false, table.Table{}, invariantRefine("Transposing this table leaves no data. Answer <<False>> unless the layout really is flipped."), nil
	}
	renamed, err := transposed.RenameColumn(0, s.Variant.KeyLabel())
	if err != nil {
		return false, table.Table{}, nil, err
	}
	return true, withKeyColumn(renamed.DeduplicateHeaders(), s.Variant.KeyLabel()), nil, nil
}

// withKeyColumn restores the key label on column 0 after deduplication.
// Other columns that carried the same label keep their suffixes.
func withKeyColumn(t table.Table, key string) table.Table {
	if len(t.Columns) > 0 {
		t.Columns[0] = key
	}
	return t
}
