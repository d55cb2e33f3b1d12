// Package individual is the pipeline for tables of values measured in
// individual patients.
package individual

import (
	"context"

	"github.com/temirov/pktables/internal/assembly"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/sequence"
	"github.com/temirov/pktables/internal/steps"
	"github.com/temirov/pktables/internal/table"
)

const Name = "pk/individual"

// Columns is the output vocabulary, in output order.
var Columns = []string{
	steps.ColumnDrugName, steps.ColumnAnalyte, steps.ColumnSpecimen,
	steps.ColumnPatientID, steps.ColumnPopulation, steps.ColumnPregnancyStage,
	steps.ColumnParameterType, steps.ColumnParameterUnit, steps.ColumnParameterValue,
	steps.ColumnTimeValue, steps.ColumnTimeUnit,
}

var options = assembly.Options{
	Vocabulary: Columns,
	Rules: assembly.Rules{
		ParameterType:  steps.ColumnParameterType,
		ParameterUnit:  steps.ColumnParameterUnit,
		ParameterValue: steps.ColumnParameterValue,
		TimeValue:      steps.ColumnTimeValue,
		TimeUnit:       steps.ColumnTimeUnit,
	},
	ValueColumns: []string{steps.ColumnParameterValue},
	GroupKey:     steps.ColumnPatientID,
}

type Task struct{}

func New() pipeline.Pipeline { return Task{} }

func (Task) Name() string { return Name }

func (Task) Description() string {
	return "per-patient parameter values with time points"
}

func (t Task) Extract(ctx context.Context, run *pipeline.Run, source pipeline.Source) (table.Table, error) {
	output, err := t.extract(ctx, run, source)
	if err != nil {
		return table.Table{}, run.Fail(Name, err)
	}
	return output, nil
}

func (Task) extract(ctx context.Context, run *pipeline.Run, source pipeline.Source) (table.Table, error) {
	prepared, err := sequence.Prepare(ctx, run, source, steps.Individual)
	if err != nil {
		return table.Table{}, err
	}

	var blocks []assembly.Block
	for _, work := range prepared.Work {
		if work.RowCount() == 0 {
			continue
		}
		extracted, err := pipeline.Execute[table.Table](ctx, run, steps.TypeUnitValue{Work: work, Caption: source.Caption})
		if err != nil {
			return table.Table{}, err
		}
		drugs, err := sequence.MatchDrugs(ctx, run, prepared, work, source.Caption)
		if err != nil {
			return table.Table{}, err
		}
		populations, err := sequence.MatchPopulations(ctx, run, prepared, work, source.Caption)
		if err != nil {
			return table.Table{}, err
		}
		times, err := sequence.ExtractTime(ctx, run, work, extracted.Output, source.Caption)
		if err != nil {
			return table.Table{}, err
		}
		patients := table.Empty(steps.ColumnPatientID)
		for _, key := range work.Keys() {
			patients.Rows = append(patients.Rows, []string{key})
		}
		blocks = append(blocks, assembly.Block{Parts: []table.Table{
			patients, populations, drugs, extracted.Output, times, work.OriginalIndexTable(),
		}})
	}

	assembled, err := assembly.Assemble(blocks)
	if err != nil {
		return table.Table{}, err
	}
	run.Derive(steps.NameAssembly, assembled.String())
	if assembled.ColCount() == 0 {
		assembled = table.Empty(Columns...)
	}
	cleaned, err := assembly.Cleanup(assembled, options)
	if err != nil {
		return table.Table{}, err
	}
	run.Derive(steps.NameRowCleanup, cleaned.String())
	return cleaned, nil
}
