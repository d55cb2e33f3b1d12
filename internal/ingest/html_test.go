package ingest_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/pktables/internal/ingest"
	"github.com/temirov/pktables/internal/table"
)

func parse(t *testing.T, document string) []ingest.Table {
	t.Helper()
	tables, err := ingest.Parse(strings.NewReader(document))
	require.NoError(t, err)
	return tables
}

func TestParseCaptionAndHeader(t *testing.T) {
	tables := parse(t, `<html><body>
<table>
  <caption>Table 1. Lamotrigine   pharmacokinetics</caption>
  <thead><tr><th>Parameter</th><th>Pregnant</th></tr></thead>
  <tbody>
    <tr><td>Cmax (ng/mL)</td><td>12.1 ± 3.2</td></tr>
    <tr><td></td><td></td></tr>
  </tbody>
  <tfoot><tr><td>Values are mean ± SD.</td></tr></tfoot>
</table>
</body></html>`)

	require.Len(t, tables, 1)
	got := tables[0]
	assert.Equal(t, "Table 1. Lamotrigine pharmacokinetics", got.Caption)
	assert.Equal(t, "Values are mean ± SD.", got.Footnote)
	assert.Equal(t, "Table 1. Lamotrigine pharmacokinetics\nValues are mean ± SD.", got.Context())
	assert.True(t, table.MustNew([]string{"Parameter", "Pregnant"},
		[]string{"Cmax (ng/mL)", "12.1 ± 3.2"}).Equal(got.Table))

	source := got.Source()
	assert.Equal(t, got.Context(), source.Caption)
	assert.True(t, got.Table.Equal(source.Table))
}

func TestParseExpandsSpans(t *testing.T) {
	tables := parse(t, `<table>
<tr><th rowspan="2">Parameter</th><th colspan="2">Pregnant</th></tr>
<tr><th>Mean</th><th>SD</th></tr>
<tr><td rowspan="2">AUC</td><td>100</td><td>20</td></tr>
<tr><td>110</td><td>25</td></tr>
</table>`)

	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Parameter", "Pregnant Mean", "Pregnant SD"}, tables[0].Table.Columns)
	assert.Equal(t, [][]string{
		{"AUC", "100", "20"},
		{"AUC", "110", "25"},
	}, tables[0].Table.Rows)
}

func TestParseWrappedCaptionAndFootnote(t *testing.T) {
	tables := parse(t, `<div class="table-wrap">
  <div class="caption"><b>Table 3.</b> Cord blood concentrations</div>
  <div class="tbl-box"><table>
    <tr><td>Patient</td><td>Cord (µg/mL)</td></tr>
    <tr><td>P1</td><td>１２</td></tr>
  </table></div>
  <div class="table-wrap-foot"><p>a Below the limit of quantification.</p></div>
</div>`)

	require.Len(t, tables, 1)
	got := tables[0]
	assert.Equal(t, "Table 3. Cord blood concentrations", got.Caption)
	assert.Equal(t, "a Below the limit of quantification.", got.Footnote)
	assert.Equal(t, []string{"Patient", "Cord (μg/mL)"}, got.Table.Columns, "NFKC folds the micro sign")
	assert.Equal(t, [][]string{{"P1", "12"}}, got.Table.Rows, "NFKC folds full-width digits")
}

func TestParsePrecedingTitleAndHeaderRepair(t *testing.T) {
	tables := parse(t, `<body>
<p>Table 4. Dosing</p>
<table>
  <tr><th></th><th>Dose</th><th>Dose</th></tr>
  <tr><td>A</td><td>10</td><td>20</td></tr>
</table>
<table><tr><td></td></tr></table>
</body>`)

	require.Len(t, tables, 1, "a table with no content is dropped")
	assert.Equal(t, "Table 4. Dosing", tables[0].Caption)
	assert.Equal(t, []string{"Unnamed: 0", "Dose_0", "Dose_1"}, tables[0].Table.Columns)
	assert.Equal(t, 0, tables[0].Index)
}

func TestParseNoTables(t *testing.T) {
	assert.Empty(t, parse(t, "<p>No tables here.</p>"))
}
