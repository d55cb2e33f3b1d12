package literal_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/pktables/internal/literal"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected any
	}{
		{name: "list of tuples", input: `[("Lamotrigine", "Lamotrigine", "Plasma"), ('B', 'B', 'Urine')]`,
			expected: []any{[]any{"Lamotrigine", "Lamotrigine", "Plasma"}, []any{"B", "B", "Urine"}}},
		{name: "grouping is not a tuple", input: `(3)`, expected: int64(3)},
		{name: "one tuple", input: `(3,)`, expected: []any{int64(3)}},
		{name: "keywords", input: `[None, True, False, null, true]`, expected: []any{nil, true, false, nil, true}},
		{name: "numbers", input: `[-1, 2.5, 1_000, 1e3, .5]`, expected: []any{int64(-1), 2.5, int64(1000), 1000.0, 0.5}},
		{name: "escapes", input: `"a\"b\ncµ"`, expected: "a\"b\ncµ"},
		{name: "unknown escape kept", input: `'\d'`, expected: `\d`},
		{name: "empty list", input: ` [ ] `, expected: []any{}},
		{name: "trailing comma", input: `[1, 2,]`, expected: []any{int64(1), int64(2)}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			parsed, err := literal.Parse(testCase.input)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, parsed)
		})
	}
}

func TestParseDictKeepsOrder(t *testing.T) {
	parsed, err := literal.Parse(`{"Parameter": "Parameter type", "Mean": "Parameter value", 'Unit': 'Parameter unit'}`)
	require.NoError(t, err)
	entries, err := literal.AsStringDict(parsed)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{
		{"Parameter", "Parameter type"},
		{"Mean", "Parameter value"},
		{"Unit", "Parameter unit"},
	}, entries)
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{``, `[1, 2`, `{"a" 1}`, `[1] extra`, `foo`, `"open`, `{[1]: 2}`, `[1 2]`} {
		t.Run(input, func(t *testing.T) {
			_, err := literal.Parse(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, literal.ErrSyntax))
			var syntaxErr *literal.SyntaxError
			assert.True(t, errors.As(err, &syntaxErr))
		})
	}
}

func TestExtractAnswerTakesLastBlock(t *testing.T) {
	text := "First I thought <<[1]>> but on reflection\nthe answer is\n<<[\n  2,\n  3\n]>>"
	answer, err := literal.ExtractAnswer(text)
	require.NoError(t, err)
	assert.Equal(t, "[\n  2,\n  3\n]", answer)

	parsed, err := literal.ParseAnswer(text)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(3)}, parsed)

	_, err = literal.ExtractAnswer("no delimiters here")
	assert.ErrorIs(t, err, literal.ErrNoAnswer)
}

func TestExtractAnswerIgnoresStrayOpener(t *testing.T) {
	text := "Values reported as <<LOQ are excluded.\nFinal answer: <<[(\"2\", \"Hour\")]>>"
	answer, err := literal.ExtractAnswer(text)
	require.NoError(t, err)
	assert.Equal(t, `[("2", "Hour")]`, answer)

	parsed, err := literal.ParseAnswer(text)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"2", "Hour"}}, parsed)

	assert.Equal(t, "Values reported as <<LOQ are excluded.\nFinal answer:", literal.CleanReasoning(text))

	answer, err = literal.ExtractAnswer(`<<[("<0.5", "ng/mL")]>>`)
	require.NoError(t, err)
	assert.Equal(t, `[("<0.5", "ng/mL")]`, answer)
}

func TestNoChangeSentinel(t *testing.T) {
	assert.True(t, literal.HasNoChange("Nothing to delete. [[END]]"))
	assert.True(t, literal.HasNoChange("Nothing to delete. <<[[END]]>>"))
	assert.False(t, literal.HasNoChange("<<([0, 1], None)>>"))
	assert.False(t, literal.HasNoChange("plain text"))
}

func TestCleanReasoning(t *testing.T) {
	cleaned := literal.CleanReasoning("Step 1: look.   \n\n\n\nStep 2: answer.\n<<[1, 2]>>\n")
	assert.Equal(t, "Step 1: look.\n\nStep 2: answer.", cleaned)
}

func TestAsTuples(t *testing.T) {
	parsed, err := literal.Parse(`[["A", 10], ("B", None)]`)
	require.NoError(t, err)
	tuples, err := literal.AsTuples(parsed, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "10"}, {"B", ""}}, tuples)

	_, err = literal.AsTuples(parsed, 3)
	var shapeErr *literal.ShapeError
	assert.True(t, errors.As(err, &shapeErr))

	single, err := literal.Parse(`("Cmax", "ng/mL")`)
	require.NoError(t, err)
	tuples, err = literal.AsTuples(single, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Cmax", "ng/mL"}}, tuples)
}

func TestScalarShapes(t *testing.T) {
	indexes, err := literal.AsIntList([]any{int64(0), 2.0, "3", int64(-1)})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3, -1}, indexes)

	_, err = literal.AsIntList([]any{1.5})
	assert.Error(t, err)

	none, err := literal.AsOptionalIntList(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	groups, err := literal.AsStringGroups([]any{[]any{"A", "B"}, []any{"A", "C"}})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "B"}, {"A", "C"}}, groups)

	for _, truthy := range []any{true, "True", "yes", int64(1)} {
		value, err := literal.AsBool(truthy)
		require.NoError(t, err)
		assert.True(t, value)
	}
	_, err = literal.AsBool("maybe")
	assert.Error(t, err)

	assert.Equal(t, "2.5", literal.Stringify(2.5))
	assert.Equal(t, "12", literal.Stringify(int64(12)))
	assert.Equal(t, "", literal.Stringify(nil))
}
