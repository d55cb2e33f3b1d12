package literal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ShapeError reports a parsed value that does not have the declared shape.
type ShapeError struct {
	Want string
	Got  any
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Want, describe(e.Got))
}

func describe(value any) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case []any:
		return fmt.Sprintf("a sequence of %d items", len(v))
	case *Dict:
		return fmt.Sprintf("a dict of %d entries", len(v.Entries))
	case string:
		return fmt.Sprintf("string %q", v)
	default:
		return fmt.Sprintf("%T %v", value, value)
	}
}

// Stringify renders a scalar the way it reads in the answer. None is blank.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(v)
	}
}

func isScalar(value any) bool {
	switch value.(type) {
	case []any, *Dict:
		return false
	default:
		return true
	}
}

// AsList requires a list or tuple.
func AsList(value any) ([]any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, &ShapeError{Want: "a list", Got: value}
	}
	return items, nil
}

// AsStringList requires a flat sequence of scalars.
func AsStringList(value any) ([]string, error) {
	items, err := AsList(value)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !isScalar(item) {
			return nil, &ShapeError{Want: "a list of strings", Got: value}
		}
		out = append(out, Stringify(item))
	}
	return out, nil
}

// AsStringGroups requires a list of lists of scalars.
func AsStringGroups(value any) ([][]string, error) {
	items, err := AsList(value)
	if err != nil {
		return nil, err
	}
	groups := make([][]string, 0, len(items))
	for _, item := range items {
		group, err := AsStringList(item)
		if err != nil {
			return nil, &ShapeError{Want: "a list of lists of column names", Got: value}
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// AsTuples requires a list of sequences that each hold exactly arity scalars.
// A bare sequence of arity scalars is accepted as a single tuple.
func AsTuples(value any, arity int) ([][]string, error) {
	items, err := AsList(value)
	if err != nil {
		return nil, err
	}
	if len(items) == arity && allScalars(items) {
		items = []any{items}
	}
	tuples := make([][]string, 0, len(items))
	for index, item := range items {
		fields, ok := item.([]any)
		if !ok || len(fields) != arity || !allScalars(fields) {
			return nil, fmt.Errorf("item %d: %w", index, &ShapeError{Want: fmt.Sprintf("a tuple of %d values", arity), Got: item})
		}
		tuple := make([]string, arity)
		for position, field := range fields {
			tuple[position] = Stringify(field)
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

func allScalars(items []any) bool {
	for _, item := range items {
		if !isScalar(item) {
			return false
		}
	}
	return true
}

// AsInt accepts integers, integral floats and numeric strings.
func AsInt(value any) (int, error) {
	switch v := value.(type) {
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return parsed, nil
		}
	}
	return 0, &ShapeError{Want: "an integer", Got: value}
}

// AsIntList requires a sequence of integers.
func AsIntList(value any) ([]int, error) {
	items, err := AsList(value)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(items))
	for index, item := range items {
		number, err := AsInt(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", index, err)
		}
		out = append(out, number)
	}
	return out, nil
}

// AsOptionalIntList is AsIntList that maps None to nil.
func AsOptionalIntList(value any) ([]int, error) {
	if value == nil {
		return nil, nil
	}
	return AsIntList(value)
}

// AsOptionalStringList is AsStringList that maps None to nil.
func AsOptionalStringList(value any) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	return AsStringList(value)
}

// AsStringDict requires a dict of scalars and returns its entries as strings.
func AsStringDict(value any) ([][2]string, error) {
	d, ok := value.(*Dict)
	if !ok {
		return nil, &ShapeError{Want: "a dict", Got: value}
	}
	out := make([][2]string, 0, len(d.Entries))
	for _, entry := range d.Entries {
		if !isScalar(entry.Value) {
			return nil, &ShapeError{Want: "a dict of strings", Got: value}
		}
		out = append(out, [2]string{Stringify(entry.Key), Stringify(entry.Value)})
	}
	return out, nil
}

// AsBool accepts True/False and yes/no spellings.
func AsBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y":
			return true, nil
		case "false", "no", "n":
			return false, nil
		}
	}
	return false, &ShapeError{Want: "True or False", Got: value}
}
