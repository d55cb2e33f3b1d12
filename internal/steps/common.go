// Package steps holds the LLM-backed extraction steps. Each step builds a
// prompt from the current tables, parses the model's << >> answer and checks
// it against the table it was asked about before producing its output.
package steps

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/temirov/pktables/internal/literal"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/table"
)

// Step names as they appear in provenance.
const (
	NameDrugIdentity         = "drug-identity"
	NamePopulationIdentity   = "population-identity"
	NamePopulationRefinement = "population-refinement"
	NameRowDeletion          = "row-deletion"
	NameParameterAlignment   = "parameter-alignment"
	NameCategorization       = "column-categorization"
	NameTaskAllocation       = "task-allocation"
	NameColumnSplitting      = "column-splitting"
	NameTypeUnit             = "type-unit-extraction"
	NameTypeUnitValue        = "type-unit-value-extraction"
	NameValueDecomposition   = "value-decomposition"
	NameDrugMatching         = "drug-matching"
	NamePopulationMatching   = "population-matching"
	NameTimeExtraction       = "time-extraction"
	NameAssembly             = "assembly"
	NameRowCleanup           = "row-cleanup"
)

// Column labels produced by the steps.
const (
	ColumnDrugName       = "Drug name"
	ColumnAnalyte        = "Analyte"
	ColumnSpecimen       = "Specimen"
	ColumnPopulation     = "Population"
	ColumnPregnancyStage = "Pregnancy stage"
	ColumnSubjectN       = "Subject N"
	ColumnPatientID      = "Patient ID"
	ColumnParameterType  = "Parameter type"
	ColumnParameterUnit  = "Parameter unit"
	ColumnParameterValue = "Parameter value"
	ColumnMainValue      = "Main value"
	ColumnStatisticsType = "Statistics type"
	ColumnVariationType  = "Variation type"
	ColumnVariationValue = "Variation value"
	ColumnIntervalType   = "Interval type"
	ColumnLowerBound     = "Lower bound"
	ColumnUpperBound     = "Upper bound"
	ColumnPValue         = "P value"
	ColumnTimeValue      = "Time value"
	ColumnTimeUnit       = "Time unit"
	ColumnOriginalIndex  = "original_index"
	ErrorCell            = "ERROR"
)

const (
	answerFormatReminder  = "Show your reasoning first, then give the final answer wrapped in << and >>."
	rowCountRefineFormat  = "You returned %d rows but the table has %d rows. Return exactly one entry per row, in row order."
	parseRefineFormat     = "Your answer could not be read: %v. Wrap exactly one Python literal in << and >>, shaped as %s."
	emptyAnswerRefinement = "Your answer is empty. Return at least one entry."
)

var (
	DrugColumns                 = []string{ColumnDrugName, ColumnAnalyte, ColumnSpecimen}
	SummaryPopulationColumns    = []string{ColumnPopulation, ColumnPregnancyStage, ColumnSubjectN}
	IndividualPopulationColumns = []string{ColumnPopulation, ColumnPregnancyStage}
	TypeUnitColumns             = []string{ColumnParameterType, ColumnParameterUnit}
	TypeUnitValueColumns        = []string{ColumnParameterType, ColumnParameterUnit, ColumnParameterValue}
	DecomposedColumns           = []string{
		ColumnMainValue, ColumnStatisticsType, ColumnVariationType, ColumnVariationValue,
		ColumnIntervalType, ColumnLowerBound, ColumnUpperBound, ColumnPValue,
	}
	TimeColumns = []string{ColumnTimeValue, ColumnTimeUnit}
)

// Variant selects between the summary statistics and individual subject pipelines.
type Variant int

const (
	Summary Variant = iota
	Individual
)

func (v Variant) String() string {
	if v == Individual {
		return "individual"
	}
	return "summary"
}

// KeyCategory is the category that identifies a row after alignment.
func (v Variant) KeyCategory() Category {
	if v == Individual {
		return CategoryPatientID
	}
	return CategoryParameterType
}

// KeyLabel is the name given to the first column of an aligned table.
func (v Variant) KeyLabel() string {
	return string(v.KeyCategory())
}

func (v Variant) PopulationColumns() []string {
	if v == Individual {
		return IndividualPopulationColumns
	}
	return SummaryPopulationColumns
}

func (v Variant) describeRows() string {
	if v == Individual {
		return "values measured in individual patients"
	}
	return "summary statistics over groups of subjects"
}

func (v Variant) describeOtherRows() string {
	if v == Individual {
		return "summary statistics such as group means, medians or ranges"
	}
	return "values of individual patients"
}

const systemPrompt = "You are a careful pharmacokinetics curator extracting data from tables in published papers. " +
	"Work only from the table and caption you are given. " + answerFormatReminder

func request(userPrompt string) pipeline.LLMRequest {
	return pipeline.LLMRequest{SystemPrompt: systemPrompt, UserPrompt: userPrompt}
}

func describe(caption string, t table.Table) string {
	var sb strings.Builder
	if strings.TrimSpace(caption) != "" {
		sb.WriteString("Caption and footnotes:\n")
		sb.WriteString(strings.TrimSpace(caption))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Table (the # column is the 0-based row index):\n")
	sb.WriteString(table.Encode(withRowIndex(t)))
	return sb.String()
}

func withRowIndex(t table.Table) table.Table {
	indexed := table.Table{Columns: append([]string{"#"}, t.Columns...), Rows: make([][]string, len(t.Rows))}
	for index, row := range t.Rows {
		indexed.Rows[index] = append([]string{strconv.Itoa(index)}, row...)
	}
	return indexed
}

func parseRefine(err error, shape string) *pipeline.RefineRequest {
	return &pipeline.RefineRequest{
		Kind:            pipeline.RefineParse,
		UserPromptDelta: fmt.Sprintf(parseRefineFormat, err, shape),
		Reason:          err.Error(),
	}
}

func invariantRefine(format string, args ...any) *pipeline.RefineRequest {
	message := fmt.Sprintf(format, args...)
	return &pipeline.RefineRequest{Kind: pipeline.RefineInvariant, UserPromptDelta: message, Reason: message}
}

func algebraRefine(err error) *pipeline.RefineRequest {
	message := err.Error()
	var missing *table.MissingColumnsError
	if errors.As(err, &missing) {
		var parts []string
		if len(missing.Missing) > 0 {
			parts = append(parts, fmt.Sprintf("these columns are in no group: %s", quoteAll(missing.Missing)))
		}
		if len(missing.Unknown) > 0 {
			parts = append(parts, fmt.Sprintf("these names are not columns of the table: %s", quoteAll(missing.Unknown)))
		}
		message = strings.Join(parts, "; ")
	}
	return &pipeline.RefineRequest{
		Kind:            pipeline.RefineAlgebra,
		UserPromptDelta: "The grouping cannot be applied: " + message + ". Every column must appear in at least one group.",
		Reason:          err.Error(),
	}
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for index, value := range values {
		quoted[index] = strconv.Quote(value)
	}
	return strings.Join(quoted, ", ")
}

// parseTuples reads a list of arity-sized tuples from the answer.
func parseTuples(response pipeline.LLMResponse, arity int, shape string) ([][]string, *pipeline.RefineRequest) {
	parsed, err := literal.ParseAnswer(response.RawText)
	if err != nil {
		return nil, parseRefine(err, shape)
	}
	tuples, err := literal.AsTuples(parsed, arity)
	if err != nil {
		return nil, parseRefine(err, shape)
	}
	return tuples, nil
}

// dedupTuples drops repeated tuples, keeping first occurrences in order.
func dedupTuples(tuples [][]string) [][]string {
	seen := make(map[string]bool, len(tuples))
	out := make([][]string, 0, len(tuples))
	for _, tuple := range tuples {
		key := strings.Join(tuple, "\x1f")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tuple)
	}
	return out
}

// missingToSentinel replaces blank cells with N/A.
func missingToSentinel(tuples [][]string) [][]string {
	out := make([][]string, len(tuples))
	for index, tuple := range tuples {
		out[index] = slices.Clone(tuple)
		for position, cell := range out[index] {
			if table.IsBlank(cell) {
				out[index][position] = table.Missing
			}
		}
	}
	return out
}

func tupleShape(columns []string) string {
	return "a list of tuples (" + strings.Join(columns, ", ") + ")"
}
