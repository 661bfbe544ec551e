package element

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ahrdadan/selenified/internal/check"
)

const (
	isPresentText      = " is present on the page"
	isNotPresentText   = " is not present on the page"
	isDisplayedText    = " is displayed on the page"
	isNotDisplayedText = " is not displayed on the page"
	isCheckedText      = " is checked on the page"
	isNotCheckedText   = " is not checked on the page"
	isEditableText     = " is editable on the page"
	isNotEditableText  = " is not editable on the page"
	isEnabledText      = " is enabled on the page"
	isNotEnabledText   = " is not enabled on the page"
	isNotInputText     = " is not an input on the page"
	isNotSelectText    = " is not a select on the page"
	isNotTableText     = " is not a table on the page"
	hasValue           = " has the value of <b>"
	hasText            = " has the text of <b>"
	hasOption          = " has the option of <b>"
	containsValue      = " contains the value of <b>"
	excludesValue      = " does not contain the value of <b>"
	containsText       = " contains the text of <b>"
	excludesText       = " does not contain the text of <b>"
	onlyValues         = ", only the values <b>"
	classValue         = " has a class value of <b>"
	matchPattern       = " to match a pattern of <b>"
	withValue          = "</i> with the value of <b>"
	endBold            = "</b>"
	classAttribute     = "class"
)

// requirement is what the element must be before a value check is evaluated
type requirement int

const (
	needNothing requirement = iota
	needPresent
	needInput
	needSelect
	needTable
)

// Checks evaluates element checks under one outcome policy. Every check
// records a report row and returns the value it observed.
type Checks struct {
	el      *Element
	checker *check.Checker
}

// Within returns checks that poll for d instead of the default wait
func (c *Checks) Within(d time.Duration) *Checks {
	return &Checks{el: c.el, checker: c.checker.Within(d)}
}

// unmet describes why the element does not satisfy req
func (c *Checks) unmet(req requirement) (string, bool) {
	if req == needNothing {
		return "", false
	}
	is := c.el.Is()
	start := c.el.PrettyOutputStart()
	if !is.Present() {
		return start + isNotPresentText, true
	}
	switch req {
	case needInput:
		if !is.Input() {
			return start + isNotInputText, true
		}
	case needSelect:
		if !is.Select() {
			return start + isNotSelectText, true
		}
	case needTable:
		if !is.Table() {
			return start + isNotTableText, true
		}
	}
	return "", false
}

// probeValue runs a check that reads a value with read and judges it with judge.
// When the element does not meet req the check fails and the zero value is returned.
func probeValue[T any](c *Checks, expected string, req requirement, read func() T, judge func(T) (string, bool)) T {
	out := check.Run(c.checker, check.Spec{
		Expected: expected,
		Probe: func() check.Outcome {
			if actual, bad := c.unmet(req); bad {
				return check.Outcome{Actual: actual}
			}
			v := read()
			actual, ok := judge(v)
			return check.Outcome{Actual: actual, Passed: ok, Value: v}
		},
	})
	v, _ := out.Value.(T)
	return v
}

// state runs a yes/no check on the element
func (c *Checks) state(req requirement, probe func(*Is) bool, want bool, yes, no string) bool {
	expected := c.el.PrettyOutput() + yes
	if !want {
		expected = c.el.PrettyOutput() + no
	}
	return probeValue(c, expected, req, func() bool { return probe(c.el.Is()) }, func(got bool) (string, bool) {
		if got {
			return c.el.PrettyOutputStart() + yes, want
		}
		return c.el.PrettyOutputStart() + no, !want
	})
}

// Present checks that the element is on the page
func (c *Checks) Present() bool {
	return c.state(needNothing, (*Is).Present, true, isPresentText, isNotPresentText)
}

// NotPresent checks that the element is not on the page
func (c *Checks) NotPresent() bool {
	return c.state(needNothing, (*Is).Present, false, isPresentText, isNotPresentText)
}

// Displayed checks that the element is visible
func (c *Checks) Displayed() bool {
	return c.state(needPresent, (*Is).Displayed, true, isDisplayedText, isNotDisplayedText)
}

// NotDisplayed checks that the element is on the page but hidden
func (c *Checks) NotDisplayed() bool {
	return c.state(needPresent, (*Is).Displayed, false, isDisplayedText, isNotDisplayedText)
}

// Checked checks that a checkbox or radio is checked
func (c *Checks) Checked() bool {
	return c.state(needPresent, (*Is).Checked, true, isCheckedText, isNotCheckedText)
}

// NotChecked checks that a checkbox or radio is not checked
func (c *Checks) NotChecked() bool {
	return c.state(needPresent, (*Is).Checked, false, isCheckedText, isNotCheckedText)
}

// Editable checks that the element accepts input
func (c *Checks) Editable() bool {
	return c.state(needPresent, (*Is).Editable, true, isEditableText, isNotEditableText)
}

// NotEditable checks that the element does not accept input
func (c *Checks) NotEditable() bool {
	return c.state(needPresent, (*Is).Editable, false, isEditableText, isNotEditableText)
}

// Enabled checks that the element is not disabled
func (c *Checks) Enabled() bool {
	return c.state(needPresent, (*Is).Enabled, true, isEnabledText, isNotEnabledText)
}

// NotEnabled checks that the element is disabled
func (c *Checks) NotEnabled() bool {
	return c.state(needPresent, (*Is).Enabled, false, isEnabledText, isNotEnabledText)
}

// MatchCountEquals checks how many elements match the locator
func (c *Checks) MatchCountEquals(want int) int {
	expected := fmt.Sprintf("%s having a match count of <b>%d</b>", c.el.PrettyOutput(), want)
	return probeValue(c, expected, needNothing, c.el.Get().MatchCount, func(got int) (string, bool) {
		return fmt.Sprintf("%s has a match count of <b>%d</b>", c.el.PrettyOutputStart(), got), got == want
	})
}

// ClassEquals checks the whole class attribute
func (c *Checks) ClassEquals(want string) string {
	expected := c.el.PrettyOutput() + " with class <b>" + want + endBold
	return probeValue(c, expected, needPresent, c.class, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + classValue + got + endBold, got == want
	})
}

// AttributeEquals checks the value of an attribute
func (c *Checks) AttributeEquals(name, want string) string {
	expected := c.el.PrettyOutput() + " having an attribute of <i>" + name + withValue + want + endBold
	var set bool
	return probeValue(c, expected, needPresent, func() string {
		var v string
		v, set = c.el.Get().Attribute(name)
		return v
	}, func(got string) (string, bool) {
		if !set {
			return c.el.PrettyOutputStart() + " does not have an attribute of <i>" + name + "</i>", false
		}
		return c.el.PrettyOutputStart() + " has an attribute of <i>" + name + withValue + got + endBold, got == want
	})
}

// TextEquals checks the rendered text
func (c *Checks) TextEquals(want string) string {
	expected := c.el.PrettyOutput() + " having text of <b>" + want + endBold
	return probeValue(c, expected, needPresent, c.el.Get().Text, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + hasText + got + endBold, got == want
	})
}

// CellEquals checks the text of a table cell
func (c *Checks) CellEquals(row, col int, want string) string {
	cell := fmt.Sprintf("at row %d and column %d within element%s", row, col, c.el.PrettyOutput())
	expected := "cell " + cell + "to have the text value of <b>" + want + endBold
	return deref(probeValue(c, expected, needTable, c.cell(row, col), func(got *string) (string, bool) {
		if got == nil {
			return "Cell " + cell + "does not exist", false
		}
		return "Cell " + cell + "has the text value of <b>" + *got + endBold, *got == want
	}))
}

// ValueEquals checks the value of an input
func (c *Checks) ValueEquals(want string) string {
	expected := c.el.PrettyOutput() + " having a value of <b>" + want + endBold
	return probeValue(c, expected, needInput, c.el.Get().Value, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + hasValue + got + endBold, got == want
	})
}

// CSSEquals checks the computed value of a css property
func (c *Checks) CSSEquals(property, want string) string {
	expected := c.el.PrettyOutput() + " having a css attribute of <i>" + property + withValue + want + endBold
	return probeValue(c, expected, needPresent, func() string { return c.el.Get().CSS(property) }, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + " has a css attribute of <i>" + property + withValue + got + endBold, got == want
	})
}

// SelectedOptionEquals checks the text of the selected option
func (c *Checks) SelectedOptionEquals(want string) string {
	expected := c.el.PrettyOutput() + " having a selected option of <b>" + want + endBold
	return probeValue(c, expected, needSelect, c.el.Get().SelectedOption, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + hasOption + got + endBold, got == want
	})
}

// SelectedValueEquals checks the value of the selected option
func (c *Checks) SelectedValueEquals(want string) string {
	expected := c.el.PrettyOutput() + " having a selected value of <b>" + want + endBold
	return probeValue(c, expected, needSelect, c.el.Get().SelectedValue, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + hasValue + got + endBold, got == want
	})
}

// SelectOptionsEqual checks the text of every option, in order
func (c *Checks) SelectOptionsEqual(want ...string) []string {
	expected := c.el.PrettyOutput() + " with select options of <b>" + list(want) + endBold
	return probeValue(c, expected, needSelect, c.el.Get().SelectOptions, func(got []string) (string, bool) {
		return c.el.PrettyOutputStart() + " has options of <b>" + list(got) + endBold, slices.Equal(got, want)
	})
}

// SelectValuesEqual checks the value of every option, in order
func (c *Checks) SelectValuesEqual(want ...string) []string {
	expected := c.el.PrettyOutput() + " with select values of <b>" + list(want) + endBold
	return probeValue(c, expected, needSelect, c.el.Get().SelectValues, func(got []string) (string, bool) {
		return c.el.PrettyOutputStart() + " has values of <b>" + list(got) + endBold, slices.Equal(got, want)
	})
}

// ClassContains checks that the class attribute contains a class
func (c *Checks) ClassContains(want string) string {
	expected := c.el.PrettyOutput() + " containing class <b>" + want + endBold
	return probeValue(c, expected, needPresent, c.class, func(got string) (string, bool) {
		if !hasClass(got, want) {
			return c.el.PrettyOutputStart() + classValue + got + endBold, false
		}
		return c.el.PrettyOutputStart() + classValue + got + "</b>, which contains <b>" + want + endBold, true
	})
}

// HasAttribute checks that an attribute is set
func (c *Checks) HasAttribute(name string) []string {
	expected := c.el.PrettyOutput() + " with attribute <b>" + name + endBold
	return probeValue(c, expected, needPresent, c.attributeNames, func(got []string) (string, bool) {
		if !slices.Contains(got, name) {
			return c.el.PrettyOutputStart() + " does not contain the attribute of <b>" + name + endBold +
				onlyValues + list(got) + endBold, false
		}
		return c.el.PrettyOutputStart() + " contains the attribute of <b>" + name + endBold, true
	})
}

// TextContains checks that the rendered text contains a substring
func (c *Checks) TextContains(want string) string {
	expected := c.el.PrettyOutput() + containsText + want + endBold
	return probeValue(c, expected, needPresent, c.el.Get().Text, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + hasText + got + endBold, strings.Contains(got, want)
	})
}

// ValueContains checks that the value of an input contains a substring
func (c *Checks) ValueContains(want string) string {
	expected := c.el.PrettyOutput() + containsValue + want + endBold
	return probeValue(c, expected, needInput, c.el.Get().Value, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + hasValue + got + endBold, strings.Contains(got, want)
	})
}

// SelectOptionContains checks that a select offers an option
func (c *Checks) SelectOptionContains(want string) []string {
	expected := c.el.PrettyOutput() + " with the option <b>" + want + "</b> available to be selected on the page"
	return probeValue(c, expected, needSelect, c.el.Get().SelectOptions, func(got []string) (string, bool) {
		if !slices.Contains(got, want) {
			return c.el.PrettyOutputStart() + " is present but does not contain the option <b>" + want + endBold, false
		}
		return c.el.PrettyOutputStart() + " is present and contains the option <b>" + want + endBold, true
	})
}

// SelectValueContains checks that a select offers a value
func (c *Checks) SelectValueContains(want string) []string {
	expected := c.el.PrettyOutput() + " having a select value of <b>" + want + "</b> available to be selected on the page"
	return probeValue(c, expected, needSelect, c.el.Get().SelectValues, func(got []string) (string, bool) {
		if !slices.Contains(got, want) {
			return c.el.PrettyOutputStart() + excludesValue + want + endBold + onlyValues + list(got) + endBold, false
		}
		return c.el.PrettyOutputStart() + containsValue + want + endBold, true
	})
}

// SelectOptionCount checks how many options a select has
func (c *Checks) SelectOptionCount(want int) int {
	expected := fmt.Sprintf("%s with number of select values equal to <b>%d</b>", c.el.PrettyOutput(), want)
	return probeValue(c, expected, needSelect, c.el.Get().NumOfSelectOptions, func(got int) (string, bool) {
		return fmt.Sprintf("%s has <b>%d</b> select options", c.el.PrettyOutputStart(), got), got == want
	})
}

// ColumnCount checks how many columns a table has
func (c *Checks) ColumnCount(want int) int {
	expected := fmt.Sprintf("%s with the number of table columns equal to <b>%d</b>", c.el.PrettyOutput(), want)
	return probeValue(c, expected, needTable, c.el.Get().NumOfTableColumns, func(got int) (string, bool) {
		if got != want {
			return fmt.Sprintf("%s does not have the number of columns <b>%d</b>. Instead, %d columns were found",
				c.el.PrettyOutputStart(), want, got), false
		}
		return fmt.Sprintf("%s has <b>%d</b> columns", c.el.PrettyOutputStart(), got), true
	})
}

// RowCount checks how many rows a table has
func (c *Checks) RowCount(want int) int {
	expected := fmt.Sprintf("%s with the number of table rows equal to <b>%d</b>", c.el.PrettyOutput(), want)
	return probeValue(c, expected, needTable, c.el.Get().NumOfTableRows, func(got int) (string, bool) {
		if got != want {
			return fmt.Sprintf("%s does not have the number of rows <b>%d</b>. Instead, %d rows were found",
				c.el.PrettyOutputStart(), want, got), false
		}
		return fmt.Sprintf("%s has <b>%d</b> rows", c.el.PrettyOutputStart(), got), true
	})
}

// ClassExcludes checks that the class attribute lacks a class
func (c *Checks) ClassExcludes(unwanted string) string {
	expected := c.el.PrettyOutput() + " without class <b>" + unwanted + endBold
	return probeValue(c, expected, needPresent, c.class, func(got string) (string, bool) {
		if hasClass(got, unwanted) {
			return c.el.PrettyOutputStart() + classValue + got + "</b>, which contains <b>" + unwanted + endBold, false
		}
		return c.el.PrettyOutputStart() + " does not contain a class value of <b>" + unwanted + endBold, true
	})
}

// LacksAttribute checks that an attribute is not set
func (c *Checks) LacksAttribute(name string) []string {
	expected := c.el.PrettyOutput() + " without attribute <b>" + name + endBold
	return probeValue(c, expected, needPresent, c.attributeNames, func(got []string) (string, bool) {
		if slices.Contains(got, name) {
			return c.el.PrettyOutputStart() + " contains the attribute of <b>" + name + endBold, false
		}
		return c.el.PrettyOutputStart() + " does not contain the attribute of <b>" + name + endBold +
			onlyValues + list(got) + endBold, true
	})
}

// TextExcludes checks that the rendered text lacks a substring
func (c *Checks) TextExcludes(unwanted string) string {
	expected := c.el.PrettyOutput() + excludesText + unwanted + endBold
	return probeValue(c, expected, needPresent, c.el.Get().Text, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + hasText + got + endBold, !strings.Contains(got, unwanted)
	})
}

// ValueExcludes checks that the value of an input lacks a substring
func (c *Checks) ValueExcludes(unwanted string) string {
	expected := c.el.PrettyOutput() + excludesValue + unwanted + endBold
	return probeValue(c, expected, needInput, c.el.Get().Value, func(got string) (string, bool) {
		return c.el.PrettyOutputStart() + hasValue + got + endBold, !strings.Contains(got, unwanted)
	})
}

// SelectOptionExcludes checks that a select does not offer an option
func (c *Checks) SelectOptionExcludes(unwanted string) []string {
	expected := c.el.PrettyOutput() + " without the option <b>" + unwanted + "</b> available to be selected on the page"
	return probeValue(c, expected, needSelect, c.el.Get().SelectOptions, func(got []string) (string, bool) {
		if slices.Contains(got, unwanted) {
			return c.el.PrettyOutputStart() + " is present and contains the option <b>" + unwanted + endBold, false
		}
		return c.el.PrettyOutputStart() + " is present but does not contain the option <b>" + unwanted + endBold, true
	})
}

// SelectValueExcludes checks that a select does not offer a value
func (c *Checks) SelectValueExcludes(unwanted string) []string {
	expected := c.el.PrettyOutput() + " without a select value of <b>" + unwanted + "</b> available to be selected on the page"
	return probeValue(c, expected, needSelect, c.el.Get().SelectValues, func(got []string) (string, bool) {
		if slices.Contains(got, unwanted) {
			return c.el.PrettyOutputStart() + containsValue + unwanted + endBold, false
		}
		return c.el.PrettyOutputStart() + excludesValue + unwanted + endBold + onlyValues + list(got) + endBold, true
	})
}

// TextMatches checks that the whole rendered text matches a pattern
func (c *Checks) TextMatches(pattern string) string {
	expected := c.el.PrettyOutput() + matchPattern + pattern + endBold
	return probeValue(c, expected, needPresent, c.el.Get().Text, c.matcher(pattern, hasText))
}

// CellMatches checks that the whole text of a table cell matches a pattern
func (c *Checks) CellMatches(row, col int, pattern string) string {
	cell := fmt.Sprintf("at row %d and column %d within element%s", row, col, c.el.PrettyOutput())
	expected := "cell " + cell + "to match a pattern of <b>" + pattern + endBold
	re, reErr := fullMatch(pattern)
	return deref(probeValue(c, expected, needTable, c.cell(row, col), func(got *string) (string, bool) {
		if got == nil {
			return "Cell " + cell + "does not exist", false
		}
		if reErr != nil {
			return "Unable to use pattern <b>" + pattern + "</b>: " + reErr.Error(), false
		}
		return "Cell " + cell + "has the text of <b>" + *got + endBold, re.MatchString(*got)
	}))
}

// ValueMatches checks that the whole value of an input matches a pattern
func (c *Checks) ValueMatches(pattern string) string {
	expected := c.el.PrettyOutput() + " having a value" + matchPattern + pattern + endBold
	return probeValue(c, expected, needInput, c.el.Get().Value, c.matcher(pattern, hasValue))
}

// SelectedOptionMatches checks that the text of the selected option matches a pattern
func (c *Checks) SelectedOptionMatches(pattern string) string {
	expected := c.el.PrettyOutput() + " having a selected option" + matchPattern + pattern + endBold
	return probeValue(c, expected, needSelect, c.el.Get().SelectedOption, c.matcher(pattern, hasOption))
}

// SelectedValueMatches checks that the value of the selected option matches a pattern
func (c *Checks) SelectedValueMatches(pattern string) string {
	expected := c.el.PrettyOutput() + " having a selected value" + matchPattern + pattern + endBold
	return probeValue(c, expected, needSelect, c.el.Get().SelectedValue, c.matcher(pattern, hasValue))
}

func (c *Checks) matcher(pattern, phrase string) func(string) (string, bool) {
	re, err := fullMatch(pattern)
	return func(got string) (string, bool) {
		if err != nil {
			return "Unable to use pattern <b>" + pattern + "</b>: " + err.Error(), false
		}
		return c.el.PrettyOutputStart() + phrase + got + endBold, re.MatchString(got)
	}
}

func (c *Checks) class() string {
	v, _ := c.el.Get().Attribute(classAttribute)
	return v
}

func (c *Checks) attributeNames() []string {
	names := make([]string, 0)
	for name := range c.el.Get().AllAttributes() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *Checks) cell(row, col int) func() *string {
	return func() *string {
		v, ok := c.el.Get().TableCell(row, col)
		if !ok {
			return nil
		}
		return &v
	}
}

// fullMatch compiles pattern so that it must match the whole input
func fullMatch(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")$")
}

func hasClass(classes, want string) bool {
	return slices.Contains(strings.Fields(classes), want)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func list(values []string) string {
	return "[" + strings.Join(values, ", ") + "]"
}
