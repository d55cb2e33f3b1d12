package steps

import (
	"context"
	"strings"

	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/table"
)

// verifyPerRow accepts exactly one tuple per work row. Repeats are kept.
func verifyPerRow(response pipeline.LLMResponse, columns []string, rows int) (bool, table.Table, *pipeline.RefineRequest, error) {
	tuples, refine := parseTuples(response, len(columns), tupleShape(columns))
	if refine != nil {
		return false, table.Table{}, refine, nil
	}
	if len(tuples) != rows {
		return false, table.Table{}, invariantRefine(rowCountRefineFormat, len(tuples), rows), nil
	}
	output, err := table.New(columns, missingToSentinel(tuples))
	if err != nil {
		return false, table.Table{}, nil, err
	}
	return true, output, nil, nil
}

func describeWork(caption string, work WorkTable) string {
	var sb strings.Builder
	sb.WriteString(describe(caption, work.Table))
	sb.WriteString("\n\nEach row is one value cell of the source table: ")
	sb.WriteString("Key is the row label, Source column is the column header above the cell, ")
	sb.WriteString("Cell value is the cell itself and Context holds the other cells of the same row.")
	return sb.String()
}

// TypeUnit names the parameter and unit of every work row of a summary table.
type TypeUnit struct {
	Work    WorkTable
	Caption string
}

func (s TypeUnit) Name() string { return NameTypeUnit }

func (s TypeUnit) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describeWork(s.Caption, s.Work))
	sb.WriteString("\n\nFor every row give the pharmacokinetic parameter type (such as Cmax, Tmax, AUC0-inf, CL/F, t1/2) ")
	sb.WriteString("and its unit (such as ng/mL, h, L/h). Use N/A when there is no unit.\n")
	sb.WriteString(`Answer with one tuple per row, in row order, for example <<[("Cmax", "ng/mL"), ("Tmax", "h")]>>`)
	return request(sb.String()), nil
}

func (s TypeUnit) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	return verifyPerRow(response, TypeUnitColumns, s.Work.RowCount())
}

// TypeUnitValue names the parameter, unit and value of every work row of an
// individual table.
type TypeUnitValue struct {
	Work    WorkTable
	Caption string
}

func (s TypeUnitValue) Name() string { return NameTypeUnitValue }

func (s TypeUnitValue) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describeWork(s.Caption, s.Work))
	sb.WriteString("\n\nFor every row give the pharmacokinetic parameter type (such as Cmax, Tmax, AUC0-inf, CL/F), ")
	sb.WriteString("its unit and the numeric value measured for this patient. Use N/A when there is no unit.\n")
	sb.WriteString(`Answer with one tuple per row, in row order, for example <<[("Cmax", "ng/mL", "12.1"), ("Tmax", "h", "2")]>>`)
	return request(sb.String()), nil
}

func (s TypeUnitValue) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	return verifyPerRow(response, TypeUnitValueColumns, s.Work.RowCount())
}

// DecomposeValues splits the free-text value of every work row into its
// statistic, variation, interval and p value parts.
type DecomposeValues struct {
	Work    WorkTable
	Types   table.Table
	Caption string
}

func (s DecomposeValues) Name() string { return NameValueDecomposition }

func (s DecomposeValues) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describeWork(s.Caption, s.Work))
	if s.Types.RowCount() == s.Work.RowCount() && s.Types.ColCount() > 0 {
		sb.WriteString("\n\nThe parameter types of the rows, in the same order:\n")
		sb.WriteString(table.Encode(withRowIndex(s.Types), table.WithMissing(table.Missing)))
	}
	sb.WriteString("\n\nSplit every Cell value into: main value, statistics type (Mean, Median, Geometric mean, ...), ")
	sb.WriteString("variation type (SD, SE, CV%, ...), variation value, interval type (Range, 95% CI, IQR, ...), ")
	sb.WriteString("lower bound, upper bound and p value. Read the caption and context to tell what each number is. ")
	sb.WriteString("Use N/A for every part that is not present.\n")
	sb.WriteString(`Answer with one tuple per row, in row order, for example <<[("12.1", "Mean", "SD", "3.2", "N/A", "N/A", "N/A", "N/A"), ("2", "Median", "N/A", "N/A", "Range", "1", "4", "<0.05")]>>`)
	return request(sb.String()), nil
}

func (s DecomposeValues) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	return verifyPerRow(response, DecomposedColumns, s.Work.RowCount())
}

// ExtractTime finds the sampling time of every work row.
type ExtractTime struct {
	Work    WorkTable
	Types   table.Table
	Caption string
}

func (s ExtractTime) Name() string { return NameTimeExtraction }

func (s ExtractTime) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describeWork(s.Caption, s.Work))
	if s.Types.RowCount() == s.Work.RowCount() && s.Types.ColCount() > 0 {
		sb.WriteString("\n\nThe parameters of the rows, in the same order:\n")
		sb.WriteString(table.Encode(withRowIndex(s.Types), table.WithMissing(table.Missing)))
	}
	sb.WriteString("\n\nFor every row give the time the value refers to and its unit, such as (\"2\", \"Hour\") for a ")
	sb.WriteString("concentration measured 2 hours after the dose, or a gestational age such as (\"32\", \"Weeks\"). ")
	sb.WriteString("Use N/A when no time applies. Rows are not merged: return one tuple for every row even when they repeat.\n")
	sb.WriteString(`Answer with one tuple per row, in row order, for example <<[("2", "Hour"), ("N/A", "N/A")]>>`)
	return request(sb.String()), nil
}

func (s ExtractTime) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	return verifyPerRow(response, TimeColumns, s.Work.RowCount())
}
