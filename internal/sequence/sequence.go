// Package sequence runs the step chain shared by the summary and individual
// pipelines: identity extraction, table correction, categorization, column
// splitting and task allocation, plus the per work table matching steps.
package sequence

import (
	"context"
	"fmt"

	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/steps"
	"github.com/temirov/pktables/internal/table"
)

// Prepared is the state shared by every work table of one run. Drugs and
// Populations are read-only once prepared.
type Prepared struct {
	Drugs       table.Table
	Populations table.Table
	Aligned     table.Table
	Categories  steps.CategoryMap
	Work        []steps.WorkTable
}

// Prepare runs every step up to and including task allocation.
func Prepare(ctx context.Context, run *pipeline.Run, source pipeline.Source, variant steps.Variant) (Prepared, error) {
	var prepared Prepared
	caption := source.Caption

	if source.Drugs != nil {
		prepared.Drugs = source.Drugs.Clone()
		run.Skip(steps.NameDrugIdentity, "drug table supplied")
	} else {
		result, err := pipeline.Execute[table.Table](ctx, run, steps.DrugIdentity{Table: source.Table, Caption: caption})
		if err != nil {
			return Prepared{}, err
		}
		prepared.Drugs = result.Output
	}

	if source.Populations != nil {
		prepared.Populations = source.Populations.Clone()
		run.Skip(steps.NamePopulationIdentity, "population table supplied")
		if variant == steps.Summary {
			run.Skip(steps.NamePopulationRefinement, "population table supplied")
		}
	} else {
		result, err := pipeline.Execute[table.Table](ctx, run, steps.PopulationIdentity{Table: source.Table, Caption: caption, Variant: variant})
		if err != nil {
			return Prepared{}, err
		}
		prepared.Populations = result.Output
		if variant == steps.Summary {
			refined, err := pipeline.Execute[table.Table](ctx, run, steps.PopulationRefinement{Table: source.Table, Caption: caption, Populations: prepared.Populations})
			if err != nil {
				return Prepared{}, err
			}
			prepared.Populations = refined.Output
		}
	}

	kept, err := pipeline.Execute[table.Table](ctx, run, steps.DeleteRows{Table: source.Table, Caption: caption, Variant: variant})
	if err != nil {
		return Prepared{}, err
	}
	aligned, err := pipeline.Execute[table.Table](ctx, run, steps.AlignParameters{Table: kept.Output, Caption: caption, Variant: variant})
	if err != nil {
		return Prepared{}, err
	}
	prepared.Aligned = aligned.Output

	categorized, err := pipeline.Execute[steps.CategoryMap](ctx, run, steps.Categorize{Table: prepared.Aligned, Caption: caption, Variant: variant})
	if err != nil {
		return Prepared{}, err
	}
	prepared.Categories = categorized.Output

	key := variant.KeyCategory()
	keyColumns := prepared.Categories.Columns(key)
	run.Derive(steps.NameTaskAllocation, fmt.Sprintf("%d %q column(s), %d %q column(s)",
		len(keyColumns), key, prepared.Categories.Count(steps.CategoryParameterValue), steps.CategoryParameterValue))

	parts := []table.Table{prepared.Aligned}
	if len(keyColumns) == 1 {
		run.Skip(steps.NameColumnSplitting, "one key column")
	} else {
		split, err := pipeline.Execute[[]table.Table](ctx, run, steps.SplitColumns{
			Table:      prepared.Aligned,
			Caption:    caption,
			Categories: prepared.Categories,
			Key:        key,
		})
		if err != nil {
			return Prepared{}, err
		}
		parts = split.Output
	}

	for index, part := range parts {
		work, err := steps.Allocate(prepared.Aligned, part, prepared.Categories, key)
		if err != nil {
			return Prepared{}, fmt.Errorf("%s: sub-table %d: %w", steps.NameTaskAllocation, index, err)
		}
		prepared.Work = append(prepared.Work, work)
	}
	return prepared, nil
}

// MatchDrugs assigns a drug row to every work row. The step is skipped when
// there is only one drug.
func MatchDrugs(ctx context.Context, run *pipeline.Run, prepared Prepared, work steps.WorkTable, caption string) (table.Table, error) {
	return match(ctx, run, steps.MatchRows{
		StepName:  steps.NameDrugMatching,
		Entity:    "drug, analyte and specimen combinations",
		Work:      work,
		Reference: prepared.Drugs,
		Caption:   caption,
	})
}

// MatchPopulations assigns a population row to every work row. The step is
// skipped when there is only one population.
func MatchPopulations(ctx context.Context, run *pipeline.Run, prepared Prepared, work steps.WorkTable, caption string) (table.Table, error) {
	return match(ctx, run, steps.MatchRows{
		StepName:  steps.NamePopulationMatching,
		Entity:    "populations",
		Work:      work,
		Reference: prepared.Populations,
		Caption:   caption,
	})
}

func match(ctx context.Context, run *pipeline.Run, step steps.MatchRows) (table.Table, error) {
	if step.Reference.RowCount() == 1 {
		run.Skip(step.Name(), "single reference row")
		return steps.Repeat(step.Reference, step.Work.RowCount())
	}
	result, err := pipeline.Execute[table.Table](ctx, run, step)
	if err != nil {
		return table.Table{}, err
	}
	return result.Output, nil
}

// ExtractTime finds the time of every work row.
func ExtractTime(ctx context.Context, run *pipeline.Run, work steps.WorkTable, types table.Table, caption string) (table.Table, error) {
	result, err := pipeline.Execute[table.Table](ctx, run, steps.ExtractTime{Work: work, Types: types, Caption: caption})
	if err != nil {
		return table.Table{}, err
	}
	return result.Output, nil
}
