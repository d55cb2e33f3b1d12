package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/temirov/pktables/internal/fuzzy"
	"github.com/temirov/pktables/internal/literal"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/table"
)

// Categorize assigns every column of the aligned table to a Category.
type Categorize struct {
	Table   table.Table
	Caption string
	Variant Variant
}

func (s Categorize) Name() string { return NameCategorization }

func (s Categorize) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describe(s.Caption, s.Table))
	sb.WriteString("\n\nAssign every column of the table (ignore the # column) to exactly one of these categories: ")
	sb.WriteString(quoteAll(categoryLabels()))
	sb.WriteString(".\n")
	sb.WriteString(`- "Patient ID": identifies an individual subject.` + "\n")
	sb.WriteString(`- "Parameter type": names the pharmacokinetic parameter, such as Cmax or AUC.` + "\n")
	sb.WriteString(`- "Parameter unit": holds only units.` + "\n")
	sb.WriteString(`- "Parameter value": holds measured values.` + "\n")
	sb.WriteString(`- "P value": holds significance levels of a comparison.` + "\n")
	sb.WriteString(`- "Uncategorized": anything else.` + "\n")
	sb.WriteString(fmt.Sprintf("At least one column must be %q and at least one %q.\n", s.Variant.KeyCategory(), CategoryParameterValue))
	sb.WriteString(`Answer as a dict from column name to category, for example <<{"Parameter type": "Parameter type", "Pregnant": "Parameter value"}>>`)
	return request(sb.String()), nil
}

func (s Categorize) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, CategoryMap, *pipeline.RefineRequest, error) {
	const shape = "a dict from column name to category"
	parsed, err := literal.ParseAnswer(response.RawText)
	if err != nil {
		return false, nil, parseRefine(err, shape), nil
	}
	entries, err := literal.AsStringDict(parsed)
	if err != nil {
		return false, nil, parseRefine(err, shape), nil
	}
	categories := make(CategoryMap, 0, len(entries))
	for _, entry := range entries {
		category := fuzzy.Nearest(entry[1], categoryLabels(), fuzzy.DefaultCutoff, string(CategoryUncategorized))
		categories = append(categories, ColumnCategory{Column: entry[0], Category: Category(category)})
	}
	if err := categories.Validate(s.Table.Columns); err != nil {
		return false, nil, invariantRefine("Every column must appear exactly once as a key, and nothing else: %v. The columns are %s.", err, quoteAll(s.Table.Columns)), nil
	}
	categories = categories.Restrict(s.Table.Columns)
	for _, required := range []Category{s.Variant.KeyCategory(), CategoryParameterValue} {
		if categories.Count(required) == 0 {
			return false, nil, invariantRefine("No column was assigned to %q. At least one column must be.", required), nil
		}
	}
	return true, categories, nil, nil
}

// SplitColumns groups the columns of a table with several key columns so
// that every sub-table has exactly one.
type SplitColumns struct {
	Table      table.Table
	Caption    string
	Categories CategoryMap
	Key        Category
}

func (s SplitColumns) Name() string { return NameColumnSplitting }

func (s SplitColumns) Prompt(ctx context.Context) (pipeline.LLMRequest, error) {
	var sb strings.Builder
	sb.WriteString(describe(s.Caption, s.Table))
	sb.WriteString("\n\nThe columns were categorized as ")
	sb.WriteString(s.Categories.String())
	sb.WriteString(fmt.Sprintf(".\nThe table holds several %q columns: %s. ", s.Key, quoteAll(s.Categories.Columns(s.Key))))
	sb.WriteString(fmt.Sprintf("Split the columns into groups so that each group has exactly one %q column ", s.Key))
	sb.WriteString("together with the value, unit and p value columns that belong to it. ")
	sb.WriteString("A column may appear in several groups, and every column must appear in at least one.\n")
	sb.WriteString(`Answer as a list of lists of column names, for example <<[["Parameter type", "Mean"], ["Parameter type_1", "Median"]]>>`)
	return request(sb.String()), nil
}

func (s SplitColumns) Verify(ctx context.Context, response pipeline.LLMResponse) (bool, []table.Table, *pipeline.RefineRequest, error) {
	const shape = "a list of lists of column names"
	parsed, err := literal.ParseAnswer(response.RawText)
	if err != nil {
		return false, nil, parseRefine(err, shape), nil
	}
	groups, err := literal.AsStringGroups(parsed)
	if err != nil {
		return false, nil, parseRefine(err, shape), nil
	}
	if len(groups) == 0 {
		return false, nil, invariantRefine(emptyAnswerRefinement), nil
	}
	for index, group := range groups {
		keys := 0
		for _, column := range group {
			if s.Categories.Of(column) == s.Key {
				keys++
			}
		}
		if keys != 1 {
			return false, nil, invariantRefine("Group %d has %d %q columns; every group needs exactly one.", index, keys, s.Key), nil
		}
	}
	parts, err := table.SplitByCols(s.Table, groups)
	if err != nil {
		return false, nil, algebraRefine(err), nil
	}
	return true, parts, nil, nil
}
