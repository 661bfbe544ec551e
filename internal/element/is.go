package element

import (
	"strings"

	"github.com/go-rod/rod"
)

// Is answers yes/no questions about an element. An absent element answers false.
type Is struct {
	el *Element
}

// Present reports whether the element is on the page
func (i *Is) Present() bool {
	return i.el.lookup() != nil
}

// Input reports whether the element accepts typed text
func (i *Is) Input() bool {
	switch i.tag() {
	case "input", "textarea", "select":
		return true
	}
	return false
}

// Select reports whether the element is a select
func (i *Is) Select() bool {
	return i.tag() == "select"
}

// Table reports whether the element is a table
func (i *Is) Table() bool {
	return i.tag() == "table"
}

// Enabled reports whether the element is present and not disabled
func (i *Is) Enabled() bool {
	el := i.el.lookup()
	if el == nil {
		return false
	}
	disabled, err := el.Property("disabled")
	if err != nil {
		return false
	}
	return !disabled.Bool()
}

// Checked reports whether a checkbox or radio is checked
func (i *Is) Checked() bool {
	return i.property("checked")
}

// Displayed reports whether the element is visible
func (i *Is) Displayed() bool {
	el := i.el.lookup()
	if el == nil {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// SomethingSelected reports whether a select has a selection, or a checkbox or radio is checked
func (i *Is) SomethingSelected() bool {
	el := i.el.lookup()
	if el == nil {
		return false
	}
	res, err := el.Eval(`() => {
		if (this.tagName === 'SELECT') return this.selectedIndex >= 0;
		if (this.tagName === 'INPUT' && (this.type === 'checkbox' || this.type === 'radio')) return this.checked;
		return false;
	}`)
	return err == nil && res.Value.Bool()
}

// Editable reports whether the element is an enabled input that is not read only
func (i *Is) Editable() bool {
	if !i.Input() || !i.Enabled() {
		return false
	}
	return !i.property("readOnly")
}

// text reports whether the element takes typed text, which a select does not
func (i *Is) text() bool {
	switch i.tag() {
	case "input", "textarea":
		return true
	}
	return false
}

func (i *Is) writable() bool {
	return !i.property("readOnly")
}

func (i *Is) property(name string) bool {
	el := i.el.lookup()
	if el == nil {
		return false
	}
	value, err := el.Property(name)
	return err == nil && value.Bool()
}

func (i *Is) tag() string {
	return tagName(i.el.lookup())
}

func tagName(el *rod.Element) string {
	if el == nil {
		return ""
	}
	value, err := el.Property("tagName")
	if err != nil {
		return ""
	}
	return strings.ToLower(value.Str())
}
