// Package summary is the pipeline for tables of summary statistics: means,
// medians and ranges over groups of subjects.
package summary

import (
	"context"

	"github.com/temirov/pktables/internal/assembly"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/sequence"
	"github.com/temirov/pktables/internal/steps"
	"github.com/temirov/pktables/internal/table"
)

const Name = "pk/summary"

// Columns is the output vocabulary, in output order.
var Columns = []string{
	steps.ColumnDrugName, steps.ColumnAnalyte, steps.ColumnSpecimen,
	steps.ColumnPopulation, steps.ColumnPregnancyStage, steps.ColumnSubjectN,
	steps.ColumnParameterType, steps.ColumnParameterUnit,
	steps.ColumnMainValue, steps.ColumnStatisticsType,
	steps.ColumnVariationType, steps.ColumnVariationValue,
	steps.ColumnIntervalType, steps.ColumnLowerBound, steps.ColumnUpperBound,
	steps.ColumnPValue, steps.ColumnTimeValue, steps.ColumnTimeUnit,
}

// MergeIdentity are the columns rows must share to be merged.
var MergeIdentity = []string{
	steps.ColumnDrugName, steps.ColumnAnalyte, steps.ColumnSpecimen,
	steps.ColumnPopulation, steps.ColumnPregnancyStage, steps.ColumnSubjectN,
	steps.ColumnParameterType, steps.ColumnParameterUnit,
}

var options = assembly.Options{
	Vocabulary: Columns,
	Rules: assembly.Rules{
		ParameterType:  steps.ColumnParameterType,
		ParameterUnit:  steps.ColumnParameterUnit,
		ParameterValue: steps.ColumnMainValue,
		TimeValue:      steps.ColumnTimeValue,
		TimeUnit:       steps.ColumnTimeUnit,
	},
	ValueColumns:  []string{steps.ColumnMainValue},
	GroupKey:      steps.ColumnPopulation,
	MergeIdentity: MergeIdentity,
}

type Task struct{}

func New() pipeline.Pipeline { return Task{} }

func (Task) Name() string { return Name }

func (Task) Description() string {
	return "summary statistics (mean, median, SD, CI, range) per population"
}

func (t Task) Extract(ctx context.Context, run *pipeline.Run, source pipeline.Source) (table.Table, error) {
	output, err := t.extract(ctx, run, source)
	if err != nil {
		return table.Table{}, run.Fail(Name, err)
	}
	return output, nil
}

func (Task) extract(ctx context.Context, run *pipeline.Run, source pipeline.Source) (table.Table, error) {
	prepared, err := sequence.Prepare(ctx, run, source, steps.Summary)
	if err != nil {
		return table.Table{}, err
	}

	var blocks []assembly.Block
	for _, work := range prepared.Work {
		if work.RowCount() == 0 {
			continue
		}
		typeUnit, err := pipeline.Execute[table.Table](ctx, run, steps.TypeUnit{Work: work, Caption: source.Caption})
		if err != nil {
			return table.Table{}, err
		}
		decomposed, err := pipeline.Execute[table.Table](ctx, run, steps.DecomposeValues{Work: work, Types: typeUnit.Output, Caption: source.Caption})
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
		times, err := sequence.ExtractTime(ctx, run, work, typeUnit.Output, source.Caption)
		if err != nil {
			return table.Table{}, err
		}
		blocks = append(blocks, assembly.Block{Parts: []table.Table{
			populations, drugs, typeUnit.Output, decomposed.Output, times, work.OriginalIndexTable(),
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
