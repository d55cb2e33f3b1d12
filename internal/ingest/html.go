// Package ingest reads tables out of article HTML together with the caption
// and footnote text that the extraction steps use as context.
package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/table"
)

const (
	maxSpan              = 256
	containerSearchDepth = 3
)

// Table is one <table> element of a page.
type Table struct {
	// Index is the position of the table among the page's top-level tables.
	Index    int
	Caption  string
	Footnote string
	Table    table.Table
}

// Context is the caption followed by the footnote, the text the steps see
// next to the table.
func (t Table) Context() string {
	parts := make([]string, 0, 2)
	for _, part := range []string{t.Caption, t.Footnote} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}

// Source turns the table into the input of a pipeline run.
func (t Table) Source() pipeline.Source {
	return pipeline.Source{Table: t.Table.Clone(), Caption: t.Context()}
}

// Parse returns every non-empty top-level table of the document in document
// order. Tables nested inside other tables are flattened into their parent's
// cell text.
func Parse(r io.Reader) ([]Table, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var nodes []*html.Node
	collectTables(doc, &nodes)

	tables := make([]Table, 0, len(nodes))
	for index, node := range nodes {
		parsed, ok := parseTable(node)
		if !ok {
			continue
		}
		caption, footnote := surroundingText(node)
		tables = append(tables, Table{
			Index:    index,
			Caption:  caption,
			Footnote: footnote,
			Table:    parsed,
		})
	}
	return tables, nil
}

func collectTables(n *html.Node, nodes *[]*html.Node) {
	if isElement(n, "table") {
		*nodes = append(*nodes, n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTables(c, nodes)
	}
}

// rawCell is a td or th before span expansion.
type rawCell struct {
	text    string
	header  bool
	rowSpan int
	colSpan int
}

type rawRow struct {
	cells  []rawCell
	inHead bool
}

func parseTable(node *html.Node) (table.Table, bool) {
	var rows []rawRow
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "thead":
			rows = appendSectionRows(rows, c, true)
		case "tbody":
			rows = appendSectionRows(rows, c, false)
		case "tr":
			rows = append(rows, parseRow(c, false))
		}
	}
	if len(rows) == 0 {
		return table.Table{}, false
	}

	grid, width := expandSpans(rows)
	if width == 0 {
		return table.Table{}, false
	}

	headerRows := countHeaderRows(rows)
	if headerRows == 0 || headerRows == len(rows) {
		headerRows = 1
	}

	columns := make([]string, width)
	for column := 0; column < width; column++ {
		var parts []string
		for row := 0; row < headerRows; row++ {
			text := grid[row][column]
			if text != "" && (len(parts) == 0 || parts[len(parts)-1] != text) {
				parts = append(parts, text)
			}
		}
		columns[column] = strings.Join(parts, " ")
	}

	parsed, err := table.New(columns, grid[headerRows:])
	if err != nil {
		return table.Table{}, false
	}
	parsed = parsed.RemoveEmptyColRow().FillEmptyHeaders().DeduplicateHeaders()
	if parsed.ColCount() == 0 {
		return table.Table{}, false
	}
	return parsed, true
}

func appendSectionRows(rows []rawRow, section *html.Node, inHead bool) []rawRow {
	for c := section.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, "tr") {
			rows = append(rows, parseRow(c, inHead))
		}
	}
	return rows
}

func parseRow(tr *html.Node, inHead bool) rawRow {
	row := rawRow{inHead: inHead}
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if !isElement(c, "td") && !isElement(c, "th") {
			continue
		}
		row.cells = append(row.cells, rawCell{
			text:    cleanText(textContent(c)),
			header:  inHead || c.Data == "th",
			rowSpan: spanAttr(c, "rowspan"),
			colSpan: spanAttr(c, "colspan"),
		})
	}
	return row
}

// expandSpans lays the cells out on a rectangular grid, copying a spanning
// cell's text into every slot it covers.
func expandSpans(rows []rawRow) ([][]string, int) {
	type slot struct{ row, column int }
	occupied := make(map[slot]string)
	width := 0
	for rowIndex, row := range rows {
		column := 0
		for _, cell := range row.cells {
			for {
				if _, taken := occupied[slot{rowIndex, column}]; !taken {
					break
				}
				column++
			}
			for dr := 0; dr < cell.rowSpan && rowIndex+dr < len(rows); dr++ {
				for dc := 0; dc < cell.colSpan; dc++ {
					occupied[slot{rowIndex + dr, column + dc}] = cell.text
				}
			}
			column += cell.colSpan
			width = max(width, column)
		}
	}
	for position := range occupied {
		width = max(width, position.column+1)
	}

	grid := make([][]string, len(rows))
	for rowIndex := range grid {
		grid[rowIndex] = make([]string, width)
		for column := 0; column < width; column++ {
			grid[rowIndex][column] = occupied[slot{rowIndex, column}]
		}
	}
	return grid, width
}

// countHeaderRows counts thead rows, or else the leading rows made only of th cells.
func countHeaderRows(rows []rawRow) int {
	count := 0
	for _, row := range rows {
		if !row.inHead && !allHeader(row) {
			break
		}
		count++
	}
	return count
}

func allHeader(row rawRow) bool {
	if len(row.cells) == 0 {
		return false
	}
	for _, cell := range row.cells {
		if !cell.header {
			return false
		}
	}
	return true
}

func spanAttr(n *html.Node, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(attr(n, key)))
	if err != nil || value < 1 {
		return 1
	}
	return min(value, maxSpan)
}

// surroundingText finds the caption and footnote of a table: a <caption>
// child, <tfoot>, or caption and footnote blocks of a wrapping container
// such as <figure> or <div class="table-wrap">.
func surroundingText(node *html.Node) (string, string) {
	var caption string
	var footnotes []string
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case isElement(c, "caption"):
			caption = cleanText(textContent(c))
		case isElement(c, "tfoot"):
			if text := cleanText(textContent(c)); text != "" {
				footnotes = append(footnotes, text)
			}
		}
	}

	if container := findContainer(node); container != nil {
		var captionNodes, footNodes []*html.Node
		walkOutside(container, node, func(n *html.Node) bool {
			switch {
			case isElement(n, "figcaption") || hasClassPart(n, "caption"):
				captionNodes = append(captionNodes, n)
				return false
			case hasClassPart(n, "foot"):
				footNodes = append(footNodes, n)
				return false
			}
			return true
		})
		if caption == "" && len(captionNodes) > 0 {
			caption = cleanText(textContent(captionNodes[0]))
		}
		for _, n := range footNodes {
			if text := cleanText(textContent(n)); text != "" {
				footnotes = append(footnotes, text)
			}
		}
	}

	if caption == "" {
		caption = precedingTableTitle(node)
	}
	return caption, strings.Join(footnotes, "\n")
}

func findContainer(node *html.Node) *html.Node {
	current := node.Parent
	for depth := 0; current != nil && depth < containerSearchDepth; depth++ {
		if isElement(current, "figure") || hasClassPart(current, "table-wrap") || hasClassPart(current, "table-container") {
			return current
		}
		current = current.Parent
	}
	return nil
}

// walkOutside visits the descendants of root except the skip subtree. visit
// returns false to stop descending below a node.
func walkOutside(root, skip *html.Node, visit func(*html.Node) bool) {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c == skip || c.Type != html.ElementNode {
			continue
		}
		if visit(c) {
			walkOutside(c, skip, visit)
		}
	}
}

// precedingTableTitle picks up a "Table 2. ..." heading or paragraph placed
// right before a bare table.
func precedingTableTitle(node *html.Node) string {
	for sibling := node.PrevSibling; sibling != nil; sibling = sibling.PrevSibling {
		if sibling.Type != html.ElementNode {
			continue
		}
		text := cleanText(textContent(sibling))
		if strings.HasPrefix(strings.ToLower(text), "table") {
			return text
		}
		return ""
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
		case html.ElementNode:
			switch node.Data {
			case "script", "style":
				return
			case "br", "p", "div", "li", "tr", "td", "th":
				sb.WriteString(" ")
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// cleanText applies NFKC and collapses whitespace runs.
func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClassPart(n *html.Node, part string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, class := range strings.Fields(attr(n, "class")) {
		if strings.Contains(strings.ToLower(class), part) {
			return true
		}
	}
	return false
}
