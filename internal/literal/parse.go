// Package literal parses the small literal structures an LLM is asked to
// wrap in double angle brackets: lists, tuples, dicts, strings, numbers and
// None/True/False, in either Python or JSON spelling.
package literal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrSyntax is matched by every SyntaxError.
var ErrSyntax = errors.New("invalid literal")

// SyntaxError points at the offending byte offset of the input.
type SyntaxError struct {
	Offset  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrSyntax, e.Offset, e.Message)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// Entry is one key/value pair of a Dict.
type Entry struct {
	Key   any
	Value any
}

// Dict keeps dict entries in source order.
type Dict struct {
	Entries []Entry
}

// Parse reads exactly one literal. Values are returned as string, int64,
// float64, bool, nil, []any (lists and tuples) or *Dict.
func Parse(text string) (any, error) {
	p := &parser{input: text}
	p.skipSpace()
	value, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, p.errorf("unexpected trailing %q", p.rest(12))
	}
	return value, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) rest(limit int) string {
	remaining := p.input[p.pos:]
	if len(remaining) > limit {
		return remaining[:limit]
	}
	return remaining
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) {
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) value() (any, error) {
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '[':
		p.pos++
		return p.sequence(']')
	case c == '(':
		p.pos++
		return p.parenthesized()
	case c == '{':
		p.pos++
		return p.dict()
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	case isIdentStart(c):
		return p.keyword()
	default:
		return nil, p.errorf("unexpected character %q", string(c))
	}
}

func (p *parser) sequence(closing byte) ([]any, error) {
	items := []any{}
	for {
		p.skipSpace()
		if p.peek() == closing {
			p.pos++
			return items, nil
		}
		item, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++
			return items, nil
		default:
			return nil, p.errorf("expected ',' or %q", string(closing))
		}
	}
}

// parenthesized distinguishes "(x)" (grouping) from "(x,)" and "(x, y)" (tuples).
func (p *parser) parenthesized() (any, error) {
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return []any{}, nil
	}
	first, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	switch p.peek() {
	case ')':
		p.pos++
		return first, nil
	case ',':
		p.pos++
		remaining, err := p.sequence(')')
		if err != nil {
			return nil, err
		}
		return append([]any{first}, remaining...), nil
	default:
		return nil, p.errorf("expected ',' or ')'")
	}
}

func (p *parser) dict() (*Dict, error) {
	d := &Dict{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return d, nil
		}
		key, err := p.value()
		if err != nil {
			return nil, err
		}
		if _, isList := key.([]any); isList {
			return nil, p.errorf("unhashable dict key")
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after dict key")
		}
		p.pos++
		p.skipSpace()
		value, err := p.value()
		if err != nil {
			return nil, err
		}
		d.Entries = append(d.Entries, Entry{Key: key, Value: value})
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return d, nil
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *parser) str() (string, error) {
	quote := p.input[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch {
		case c == quote:
			p.pos++
			return sb.String(), nil
		case c == '\\':
			if p.pos+1 >= len(p.input) {
				return "", p.errorf("unterminated escape")
			}
			decoded, width, err := p.escape()
			if err != nil {
				return "", err
			}
			sb.WriteString(decoded)
			p.pos += width
		case c == '\n':
			return "", p.errorf("newline in string literal")
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) escape() (string, int, error) {
	switch next := p.input[p.pos+1]; next {
	case '\\', '\'', '"', '/':
		return string(next), 2, nil
	case 'n':
		return "\n", 2, nil
	case 't':
		return "\t", 2, nil
	case 'r':
		return "\r", 2, nil
	case 'u':
		if p.pos+6 > len(p.input) {
			return "", 0, p.errorf("short unicode escape")
		}
		code, err := strconv.ParseUint(p.input[p.pos+2:p.pos+6], 16, 32)
		if err != nil {
			return "", 0, p.errorf("bad unicode escape")
		}
		return string(rune(code)), 6, nil
	default:
		// Python keeps unknown escapes verbatim.
		return "\\" + string(next), 2, nil
	}
}

func (p *parser) number() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	isFloat := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch {
		case c >= '0' && c <= '9', c == '_':
		case c == '.' || c == 'e' || c == 'E':
			isFloat = true
		case (c == '-' || c == '+') && (p.input[p.pos-1] == 'e' || p.input[p.pos-1] == 'E'):
		default:
			return p.finishNumber(start, isFloat)
		}
		p.pos++
	}
	return p.finishNumber(start, isFloat)
}

func (p *parser) finishNumber(start int, isFloat bool) (any, error) {
	token := strings.ReplaceAll(p.input[start:p.pos], "_", "")
	if isFloat {
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			p.pos = start
			return nil, p.errorf("bad number %q", token)
		}
		return value, nil
	}
	value, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("bad number %q", token)
	}
	return value, nil
}

func (p *parser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	switch word := p.input[start:p.pos]; word {
	case "None", "null":
		return nil, nil
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	default:
		p.pos = start
		return nil, p.errorf("unknown name %q", word)
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
