package assembly

import (
	"slices"
	"strings"

	"github.com/temirov/pktables/internal/table"
)

// ErrorCell marks a row whose matching step found nothing.
const ErrorCell = "ERROR"

var (
	missingSpellings = []string{"", "n/a", "unknown", "nan"}

	// LongTimeUnits are spellings of weeks, months and years. Times in these
	// units are gestational or postnatal ages, not sampling times.
	LongTimeUnits = []string{
		"week", "weeks", "wk", "wks", "wk.", "wks.",
		"month", "months", "mo", "mos", "mo.", "mos.", "mon", "mons",
		"year", "years", "yr", "yrs", "yr.", "yrs.",
	}

	// InstantParameters are parameters that have no time point.
	InstantParameters = []string{"cmax", "tmax", "cavg"}
)

// Rules names the columns the cascade works on. Rules whose columns are
// absent from the table are skipped.
type Rules struct {
	ParameterType  string
	ParameterUnit  string
	ParameterValue string
	TimeValue      string
	TimeUnit       string
}

// Cascade applies the consistency rules in order:
//  1. rows holding an ERROR cell are dropped
//  2. commas become spaces
//  3. blank, n/a, unknown and nan become N/A
//  4. a time value and its unit are N/A together, except that a week, month
//     or year unit survives a N/A value
//  5. a week, month or year unit sets the time value to N/A
//  6. a N/A parameter value sets type and unit to N/A
//  7. Cmax, Tmax and Cavg lose their time value and unit
//
// Applying Cascade to its own output changes nothing.
func Cascade(t table.Table, rules Rules) table.Table {
	column := func(name string) int {
		if name == "" {
			return -1
		}
		index, ok := t.ColumnIndex(name)
		if !ok {
			return -1
		}
		return index
	}
	parameterType := column(rules.ParameterType)
	parameterUnit := column(rules.ParameterUnit)
	parameterValue := column(rules.ParameterValue)
	timeValue := column(rules.TimeValue)
	timeUnit := column(rules.TimeUnit)

	cleaned := table.Empty(t.Columns...)
	for _, source := range t.Rows {
		if slices.Contains(source, ErrorCell) {
			continue
		}
		row := make([]string, len(source))
		for index, cell := range source {
			row[index] = normalizeMissing(strings.ReplaceAll(cell, ",", " "))
		}

		if timeValue >= 0 && timeUnit >= 0 {
			longUnit := IsLongTimeUnit(row[timeUnit])
			if row[timeValue] == table.Missing && !longUnit {
				row[timeUnit] = table.Missing
			}
			if row[timeUnit] == table.Missing {
				row[timeValue] = table.Missing
			}
			if longUnit {
				row[timeValue] = table.Missing
			}
		}
		if parameterValue >= 0 && row[parameterValue] == table.Missing {
			set(row, parameterType, table.Missing)
			set(row, parameterUnit, table.Missing)
		}
		if parameterType >= 0 && IsInstantParameter(row[parameterType]) {
			set(row, timeValue, table.Missing)
			set(row, timeUnit, table.Missing)
		}
		cleaned.Rows = append(cleaned.Rows, row)
	}
	return cleaned
}

func set(row []string, index int, value string) {
	if index >= 0 {
		row[index] = value
	}
}

func normalizeMissing(cell string) string {
	if slices.Contains(missingSpellings, strings.ToLower(strings.TrimSpace(cell))) {
		return table.Missing
	}
	return cell
}

// IsLongTimeUnit reports whether unit spells weeks, months or years.
func IsLongTimeUnit(unit string) bool {
	return slices.Contains(LongTimeUnits, strings.ToLower(strings.TrimSpace(unit)))
}

// IsInstantParameter reports whether parameter is Cmax, Tmax or Cavg.
func IsInstantParameter(parameter string) bool {
	return slices.Contains(InstantParameters, strings.ToLower(strings.TrimSpace(parameter)))
}
