package steps

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Category is the semantic role of a table column.
type Category string

const (
	CategoryPatientID      Category = "Patient ID"
	CategoryParameterType  Category = "Parameter type"
	CategoryParameterUnit  Category = "Parameter unit"
	CategoryParameterValue Category = "Parameter value"
	CategoryPValue         Category = "P value"
	CategoryUncategorized  Category = "Uncategorized"
)

// Categories is the closed set a column may be assigned to.
var Categories = []Category{
	CategoryPatientID,
	CategoryParameterType,
	CategoryParameterUnit,
	CategoryParameterValue,
	CategoryPValue,
	CategoryUncategorized,
}

func categoryLabels() []string {
	labels := make([]string, len(Categories))
	for index, category := range Categories {
		labels[index] = string(category)
	}
	return labels
}

// ColumnCategory assigns one column to a category.
type ColumnCategory struct {
	Column   string
	Category Category
}

// CategoryMap assigns every column of a table to exactly one category, in
// column order.
type CategoryMap []ColumnCategory

// Of returns the category of column, or Uncategorized when it is unknown.
func (m CategoryMap) Of(column string) Category {
	for _, entry := range m {
		if entry.Column == column {
			return entry.Category
		}
	}
	return CategoryUncategorized
}

// Columns lists the columns assigned to category, in table order.
func (m CategoryMap) Columns(category Category) []string {
	var columns []string
	for _, entry := range m {
		if entry.Category == category {
			columns = append(columns, entry.Column)
		}
	}
	return columns
}

func (m CategoryMap) Count(category Category) int {
	return len(m.Columns(category))
}

// Restrict keeps the entries of the given columns, in the given order.
func (m CategoryMap) Restrict(columns []string) CategoryMap {
	restricted := make(CategoryMap, 0, len(columns))
	for _, column := range columns {
		restricted = append(restricted, ColumnCategory{Column: column, Category: m.Of(column)})
	}
	return restricted
}

func (m CategoryMap) String() string {
	parts := make([]string, len(m))
	for index, entry := range m {
		parts[index] = fmt.Sprintf("%q: %q", entry.Column, entry.Category)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Validate checks that every column appears exactly once.
func (m CategoryMap) Validate(columns []string) error {
	seen := make(map[string]int, len(m))
	for _, entry := range m {
		seen[entry.Column]++
		if !slices.Contains(Categories, entry.Category) {
			return fmt.Errorf("column %q has unknown category %q", entry.Column, entry.Category)
		}
	}
	var missing, extra, repeated []string
	for _, column := range columns {
		switch seen[column] {
		case 0:
			missing = append(missing, column)
		case 1:
		default:
			repeated = append(repeated, column)
		}
	}
	for _, entry := range m {
		if !slices.Contains(columns, entry.Column) && !slices.Contains(extra, entry.Column) {
			extra = append(extra, entry.Column)
		}
	}
	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing columns "+quoteAll(missing))
	}
	if len(extra) > 0 {
		problems = append(problems, "names that are not columns "+quoteAll(extra))
	}
	if len(repeated) > 0 {
		problems = append(problems, "columns listed more than once "+quoteAll(repeated))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
