package element

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"
)

// Get reads values from an element. An absent element yields empty values.
type Get struct {
	el *Element
}

// MatchCount returns how many elements match the locator
func (g *Get) MatchCount() int {
	els, err := g.el.all()
	if err != nil {
		return 0
	}
	return len(els)
}

// Text returns the rendered text of the element
func (g *Get) Text() string {
	el := g.el.lookup()
	if el == nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}

// Value returns the current value of an input, textarea or select
func (g *Get) Value() string {
	if !g.el.Is().Input() {
		return ""
	}
	return g.eval(`() => this.value`).Str()
}

// CSS returns the computed value of a css property
func (g *Get) CSS(property string) string {
	return g.eval(`(p) => getComputedStyle(this).getPropertyValue(p)`, property).Str()
}

// Attribute returns an attribute value, and whether the attribute is set
func (g *Get) Attribute(name string) (string, bool) {
	el := g.el.lookup()
	if el == nil {
		return "", false
	}
	value, err := el.Attribute(name)
	if err != nil || value == nil {
		return "", false
	}
	return *value, true
}

// AllAttributes returns every attribute of the element, nil when it is absent
func (g *Get) AllAttributes() map[string]string {
	if g.el.lookup() == nil {
		return nil
	}
	raw := g.eval(`() => {
		const attrs = {};
		for (const a of this.attributes) attrs[a.name] = a.value;
		return attrs;
	}`).Map()

	attrs := make(map[string]string, len(raw))
	for k, v := range raw {
		attrs[k] = v.Str()
	}
	return attrs
}

// Eval runs a function with the element as this and returns its result
func (g *Get) Eval(js string, args ...any) any {
	return g.eval(js, args...).Val()
}

// SelectedOption returns the text of the first selected option
func (g *Get) SelectedOption() string {
	return first(g.SelectedOptions())
}

// SelectedOptions returns the text of every selected option
func (g *Get) SelectedOptions() []string {
	return g.selectStrings(`() => Array.from(this.selectedOptions).map(o => o.text)`)
}

// SelectedValue returns the value of the first selected option
func (g *Get) SelectedValue() string {
	return first(g.SelectedValues())
}

// SelectedValues returns the value of every selected option
func (g *Get) SelectedValues() []string {
	return g.selectStrings(`() => Array.from(this.selectedOptions).map(o => o.value)`)
}

// NumOfSelectOptions returns how many options a select has
func (g *Get) NumOfSelectOptions() int {
	return len(g.SelectOptions())
}

// SelectOptions returns the text of every option
func (g *Get) SelectOptions() []string {
	return g.selectStrings(`() => Array.from(this.options).map(o => o.text)`)
}

// SelectValues returns the value of every option
func (g *Get) SelectValues() []string {
	return g.selectStrings(`() => Array.from(this.options).map(o => o.value)`)
}

func (g *Get) selectStrings(js string) []string {
	if !g.el.Is().Select() {
		return nil
	}
	return toStrings(g.eval(js))
}

// TableRows returns the cell text of every row of a table
func (g *Get) TableRows() [][]string {
	el := g.el.lookup()
	if el == nil || tagName(el) != "table" {
		return nil
	}
	html, err := el.HTML()
	if err != nil {
		return nil
	}
	return parseTable(html)
}

// TableColumns returns the cell text of every column of a table
func (g *Get) TableColumns() [][]string {
	rows := g.TableRows()
	var cols [][]string
	for _, row := range rows {
		for c, cell := range row {
			for len(cols) <= c {
				cols = append(cols, nil)
			}
			cols[c] = append(cols[c], cell)
		}
	}
	return cols
}

// NumOfTableRows returns how many rows a table has
func (g *Get) NumOfTableRows() int {
	return len(g.TableRows())
}

// NumOfTableColumns returns how many cells the widest row of a table has
func (g *Get) NumOfTableColumns() int {
	return len(g.TableColumns())
}

// TableRow returns the cells of row i, counted from 0
func (g *Get) TableRow(i int) []string {
	rows := g.TableRows()
	if i < 0 || i >= len(rows) {
		return nil
	}
	return rows[i]
}

// TableColumn returns the cells of column i, counted from 0
func (g *Get) TableColumn(i int) []string {
	cols := g.TableColumns()
	if i < 0 || i >= len(cols) {
		return nil
	}
	return cols[i]
}

// TableCell returns the text of a cell, and whether the cell exists
func (g *Get) TableCell(row, col int) (string, bool) {
	cells := g.TableRow(row)
	if col < 0 || col >= len(cells) {
		return "", false
	}
	return cells[col], true
}

// XPath returns an absolute xpath that identifies the element
func (g *Get) XPath() string {
	return g.eval(`() => {
		const path = (node) => {
			if (node.id) return 'id("' + node.id + '")';
			if (node === document.body) return node.tagName.toLowerCase();
			let index = 0;
			for (const sibling of node.parentNode.childNodes) {
				if (sibling === node) return path(node.parentNode) + '/' + node.tagName.toLowerCase() + '[' + (index + 1) + ']';
				if (sibling.nodeType === 1 && sibling.tagName === node.tagName) index++;
			}
		};
		return path(this);
	}`).Str()
}

func (g *Get) eval(js string, args ...any) gson.JSON {
	el := g.el.lookup()
	if el == nil {
		return gson.New(nil)
	}
	res, err := el.Eval(js, args...)
	if err != nil {
		return gson.New(nil)
	}
	return res.Value
}

// parseTable reads the rows of the outermost table in html
func parseTable(html string) [][]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var rows [][]string
	table := doc.Find("table").First()
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) != table.Get(0) {
			return
		}
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		rows = append(rows, cells)
	})
	return rows
}

func toStrings(v gson.JSON) []string {
	arr := v.Arr()
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		out = append(out, item.Str())
	}
	return out
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
