package table

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedTable is matched by every MalformedTableError.
var ErrMalformedTable = errors.New("malformed markdown table")

// MalformedTableError describes why markdown text could not be decoded.
type MalformedTableError struct {
	Reason string
	Line   int
}

func (e *MalformedTableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", ErrMalformedTable, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedTable, e.Reason)
}

func (e *MalformedTableError) Is(target error) bool { return target == ErrMalformedTable }

var separatorCellPattern = regexp.MustCompile(`^:?-+:?$`)

type encodeOptions struct {
	missing string
}

// EncodeOption customises Encode.
type EncodeOption func(*encodeOptions)

// WithMissing replaces blank cells with the given placeholder, usually Missing.
func WithMissing(placeholder string) EncodeOption {
	return func(o *encodeOptions) { o.missing = placeholder }
}

// Encode renders t as a GitHub-style markdown table in column order.
func Encode(t Table, opts ...EncodeOption) string {
	var options encodeOptions
	for _, opt := range opts {
		opt(&options)
	}

	var sb strings.Builder
	writeMarkdownRow(&sb, t.Columns, "")
	separator := make([]string, len(t.Columns))
	for index := range separator {
		separator[index] = "---"
	}
	writeMarkdownRow(&sb, separator, "")
	for _, row := range t.Rows {
		writeMarkdownRow(&sb, row, options.missing)
	}
	return sb.String()
}

func writeMarkdownRow(sb *strings.Builder, cells []string, missing string) {
	sb.WriteString("|")
	for _, cell := range cells {
		value := escapeCell(cell)
		if strings.TrimSpace(value) == "" && missing != "" {
			value = missing
		}
		sb.WriteString(" ")
		sb.WriteString(value)
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

// cellEscaper flattens line breaks and escapes pipes. Other whitespace inside
// a cell is written as is; Decode trims only the ends of each cell.
var cellEscaper = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "|", `\|`)

func escapeCell(cell string) string {
	return cellEscaper.Replace(cell)
}

// Decode parses a markdown table. Headers are repaired (blank names filled,
// duplicates suffixed) so the result always has unique column names.
func Decode(markdown string) (Table, error) {
	decoded, err := parseMarkdown(markdown)
	if err != nil {
		return Table{}, err
	}
	return decoded.FillEmptyHeaders().DeduplicateHeaders(), nil
}

func parseMarkdown(markdown string) (Table, error) {
	lines := tableLines(markdown)
	if len(lines) < 2 {
		return Table{}, &MalformedTableError{Reason: fmt.Sprintf("expected at least 2 lines, got %d", len(lines))}
	}

	header := splitMarkdownRow(lines[0])
	if !isSeparatorRow(lines[1]) {
		return Table{}, &MalformedTableError{Reason: "missing separator row", Line: 2}
	}
	headerClosed := strings.HasSuffix(lines[0], "|")

	rows := make([][]string, 0, len(lines)-2)
	for index := 2; index < len(lines); index++ {
		line := lines[index]
		cells := splitMarkdownRow(line)
		isLast := index == len(lines)-1
		if isLast && (len(cells) < len(header) || (headerClosed && !strings.HasSuffix(line, "|"))) {
			break
		}
		fitted, ok := fitRow(cells, len(header))
		if !ok {
			return Table{}, &MalformedTableError{
				Reason: fmt.Sprintf("row has %d cells, header has %d", len(cells), len(header)),
				Line:   index + 1,
			}
		}
		rows = append(rows, fitted)
	}

	return Table{Columns: header, Rows: rows}, nil
}

// MustDecode is Decode for literals in code and tests.
func MustDecode(markdown string) Table {
	t, err := Decode(markdown)
	if err != nil {
		panic(err)
	}
	return t
}

func tableLines(markdown string) []string {
	var lines []string
	for _, raw := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func isSeparatorRow(line string) bool {
	cells := splitMarkdownRow(line)
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		if !separatorCellPattern.MatchString(strings.ReplaceAll(cell, " ", "")) {
			return false
		}
	}
	return true
}

// splitMarkdownRow splits one row on unescaped pipes and unescapes "\|".
func splitMarkdownRow(line string) []string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "|")
	if strings.HasSuffix(trimmed, "|") && !strings.HasSuffix(trimmed, `\|`) {
		trimmed = strings.TrimSuffix(trimmed, "|")
	}

	var cells []string
	var current strings.Builder
	for index := 0; index < len(trimmed); index++ {
		character := trimmed[index]
		if character == '\\' && index+1 < len(trimmed) && trimmed[index+1] == '|' {
			current.WriteByte('|')
			index++
			continue
		}
		if character == '|' {
			cells = append(cells, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}
		current.WriteByte(character)
	}
	cells = append(cells, strings.TrimSpace(current.String()))
	return cells
}

// fitRow pads short rows with blanks and drops surplus cells only when blank.
func fitRow(cells []string, width int) ([]string, bool) {
	if len(cells) == width {
		return cells, true
	}
	if len(cells) < width {
		padded := make([]string, width)
		copy(padded, cells)
		return padded, true
	}
	for _, surplus := range cells[width:] {
		if !IsBlank(surplus) {
			return nil, false
		}
	}
	return cells[:width], true
}
