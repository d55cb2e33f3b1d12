package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/table"
)

// tupleStep is the shared verify logic of the entity extraction steps: a
// non-empty list of fixed-arity tuples, de-duplicated in order.
type tupleStep struct {
	columns []string
}

func (s tupleStep) verify(response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	tuples, refine := parseTuples(response, len(s.columns), tupleShape(s.columns))
	if refine != nil {
		return false, table.Table{}, refine, nil
	}
	tuples = dedupTuples(missingToSentinel(tuples))
	if len(tuples) == 0 {
		return false, table.Table{}, invariantRefine(emptyAnswerRefinement), nil
	}
	output, err := table.New(s.columns, tuples)
	if err != nil {
		return false, table.Table{}, nil, err
	}
	return true, output, nil, nil
}

// DrugIdentity lists the (drug, analyte, specimen) combinations a table reports.
type DrugIdentity struct {
	Table   table.Table
	Caption string
}

func (s DrugIdentity) Name() string { return NameDrugIdentity }

func (s DrugIdentity) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describe(s.Caption, s.Table))
	sb.WriteString("\n\nList every unique combination of drug name, analyte and specimen reported in this table. ")
	sb.WriteString("The analyte is the substance measured: the parent drug or a metabolite. ")
	sb.WriteString("The specimen is the matrix it was measured in, such as plasma, serum, urine, cord blood or breast milk. ")
	sb.WriteString("Use N/A for anything the table and caption do not say.\n")
	sb.WriteString(`Answer as a list of tuples, for example <<[("Lamotrigine", "Lamotrigine", "Plasma"), ("Lamotrigine", "Lamotrigine-2N-glucuronide", "Urine")]>>`)
	return request(sb.String()), nil
}

func (s DrugIdentity) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	return tupleStep{columns: DrugColumns}.verify(response)
}

// PopulationIdentity lists the populations (and, for summary tables, their
// subject counts) a table reports.
type PopulationIdentity struct {
	Table   table.Table
	Caption string
	Variant Variant
}

func (s PopulationIdentity) Name() string { return NamePopulationIdentity }

func (s PopulationIdentity) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describe(s.Caption, s.Table))
	sb.WriteString("\n\nList every unique population described by this table together with its pregnancy stage")
	if s.Variant == Summary {
		sb.WriteString(" and the number of subjects (Subject N) the values were computed over")
	}
	sb.WriteString(". Population is the group of subjects, such as maternal, fetal, pediatric or healthy volunteers. ")
	sb.WriteString("Pregnancy stage is the trimester, delivery, postpartum or N/A. ")
	if s.Variant == Summary {
		sb.WriteString(subjectNRule)
		sb.WriteString(`Answer as a list of tuples, for example <<[("Maternal", "Trimester 3", "12"), ("Maternal", "Postpartum", "10")]>>`)
	} else {
		sb.WriteString(`Answer as a list of tuples, for example <<[("Maternal", "Delivery"), ("Fetal", "Delivery")]>>`)
	}
	return request(sb.String()), nil
}

// subjectNRule asks for one tuple per plausible subject count. Rows of a
// summary table often quote different N for the same group.
const subjectNRule = "If the same population and stage appear with different subject counts anywhere in the table or caption, " +
	"list one tuple for every distinct Subject N, even when that repeats the population. " +
	"Use N/A for anything the table and caption do not say.\n"

func (s PopulationIdentity) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	return tupleStep{columns: s.Variant.PopulationColumns()}.verify(response)
}

// PopulationRefinement revisits an extracted population table against the
// source table and returns a corrected version of the same shape.
type PopulationRefinement struct {
	Table       table.Table
	Caption     string
	Populations table.Table
}

func (s PopulationRefinement) Name() string { return NamePopulationRefinement }

func (s PopulationRefinement) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describe(s.Caption, s.Table))
	sb.WriteString("\n\nThese populations were extracted from the table:\n")
	sb.WriteString(table.Encode(s.Populations, table.WithMissing(table.Missing)))
	sb.WriteString("\n\nCheck them against the table and caption. Fix wrong pregnancy stages and subject counts, ")
	sb.WriteString("remove populations the table does not report and add any that are missing. ")
	sb.WriteString(subjectNRule)
	sb.WriteString(fmt.Sprintf("Answer with the complete corrected list of %s.", tupleShape(s.Populations.Columns)))
	return request(sb.String()), nil
}

func (s PopulationRefinement) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, table.Table, *pipeline.RefineRequest, error) {
	return tupleStep{columns: s.Populations.Columns}.verify(response)
}
