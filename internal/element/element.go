// Package element provides locator-scoped page elements: actions that record a
// report row each, read-only probes, and assert/verify/wait checks.
package element

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ahrdadan/selenified/internal/check"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/locator"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/go-rod/rod"
)

// Context is what an element needs from the app that owns it
type Context interface {
	// Page returns the page or frame elements are looked up in, nil without a browser
	Page() *rod.Page
	Report() *report.Report
	Failer() check.Failer
	Config() *config.Config
	// Interact runs fn and returns early if fn opens a JavaScript dialog
	Interact(fn func() error) error
	// SwitchFrame makes frame the page elements are looked up in
	SwitchFrame(frame *rod.Page)
}

// Element identifies a page element. It is resolved again on every use.
type Element struct {
	ctx     Context
	typ     locator.Type
	locator string
	match   int
	parent  *Element
}

// New creates an element for the first match of a locator
func New(ctx Context, typ locator.Type, loc string) *Element {
	return NewMatch(ctx, typ, loc, 0)
}

// NewMatch creates an element for the given match (starting at 0) of a locator
func NewMatch(ctx Context, typ locator.Type, loc string, match int) *Element {
	if match < 0 {
		match = 0
	}
	return &Element{ctx: ctx, typ: typ, locator: loc, match: match}
}

// FindChild returns child, looked up within this element
func (e *Element) FindChild(child *Element) *Element {
	c := *child
	c.ctx = e.ctx
	c.parent = e
	return &c
}

// Type returns the locator type
func (e *Element) Type() locator.Type { return e.typ }

// Locator returns the locator value
func (e *Element) Locator() string { return e.locator }

// Match returns which match of the locator is used
func (e *Element) Match() int { return e.match }

// Parent returns the element this one is looked up in, if any
func (e *Element) Parent() *Element { return e.parent }

// PrettyOutputStart identifies the element at the start of a report sentence
func (e *Element) PrettyOutputStart() string {
	s := fmt.Sprintf("Element with <i>%s</i> of <i>%s</i>", e.typ, e.locator)
	if e.match > 0 {
		s += fmt.Sprintf(" and match of <i>%d</i>", e.match)
	}
	if e.parent != nil {
		s += " within " + e.parent.PrettyOutputLowercase()
	}
	return s
}

// PrettyOutputLowercase identifies the element in the middle of a sentence
func (e *Element) PrettyOutputLowercase() string {
	s := e.PrettyOutputStart()
	return strings.ToLower(s[:1]) + s[1:]
}

// PrettyOutput identifies the element framed by spaces
func (e *Element) PrettyOutput() string {
	return " " + e.PrettyOutputLowercase() + " "
}

// PrettyOutputEnd identifies the element at the end of a sentence
func (e *Element) PrettyOutputEnd() string {
	return e.PrettyOutputLowercase() + "."
}

// all returns every element matching the locator, without waiting
func (e *Element) all() (rod.Elements, error) {
	if e.parent != nil {
		parent, err := e.parent.resolve()
		if err != nil || parent == nil {
			return nil, err
		}
		q, err := locator.Translate(e.typ, e.locator, true)
		if err != nil {
			return nil, err
		}
		if q.Kind == locator.KindCSS {
			return parent.Elements(q.Expr)
		}
		return parent.ElementsX(q.Expr)
	}

	page := e.ctx.Page()
	if page == nil {
		return nil, nil
	}
	q, err := locator.Translate(e.typ, e.locator, false)
	if err != nil {
		return nil, err
	}
	if q.Kind == locator.KindCSS {
		return page.Elements(q.Expr)
	}
	return page.ElementsX(q.Expr)
}

// resolve returns the matched element, or nil when it is not on the page
func (e *Element) resolve() (*rod.Element, error) {
	els, err := e.all()
	if err != nil {
		return nil, err
	}
	if e.match >= len(els) {
		return nil, nil
	}
	return els[e.match], nil
}

// lookup is resolve for probes: errors are logged and treated as absence
func (e *Element) lookup() *rod.Element {
	el, err := e.resolve()
	if err != nil {
		log.Printf("Warning: failed to look up %s: %v", stripTags(e.PrettyOutputStart()), err)
		return nil
	}
	return el
}

func (e *Element) defaultWait() time.Duration {
	if cfg := e.ctx.Config(); cfg != nil {
		return cfg.DefaultWait
	}
	return check.DefaultTimeout
}

func (e *Element) pollInterval() time.Duration {
	if cfg := e.ctx.Config(); cfg != nil {
		return cfg.PollInterval
	}
	return 0
}

func (e *Element) checker(kind check.Kind) *check.Checker {
	c := check.New(kind, e.ctx.Report(), e.ctx.Failer()).Every(e.pollInterval())
	if kind == check.WaitFor {
		c = c.Within(e.defaultWait())
	}
	return c
}

// Is returns the element's boolean probes
func (e *Element) Is() *Is { return &Is{el: e} }

// Get returns the element's value probes
func (e *Element) Get() *Get { return &Get{el: e} }

// Assert returns checks that stop the test on failure
func (e *Element) Assert() *Checks { return &Checks{el: e, checker: e.checker(check.Assert)} }

// Verify returns checks that record failures and let the test continue
func (e *Element) Verify() *Checks { return &Checks{el: e, checker: e.checker(check.Verify)} }

// WaitFor returns checks that poll until they pass or the default wait elapses
func (e *Element) WaitFor() *Checks { return &Checks{el: e, checker: e.checker(check.WaitFor)} }

var tagReplacer = strings.NewReplacer("<i>", "", "</i>", "", "<b>", "", "</b>", "")

func stripTags(s string) string {
	return tagReplacer.Replace(s)
}
