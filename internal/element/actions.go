package element

import (
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/ahrdadan/selenified/internal/report"
	"github.com/ahrdadan/selenified/internal/wait"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

const (
	notPresent   = " as it is not present"
	notDisplayed = " as it is not displayed"
	notEnabled   = " as it is not enabled"
	notInput     = " as it is not an input"
	notEditable  = " as it is not editable"
	notSelect    = " as it is not a select"

	cantType   = "Unable to type in "
	cantMove   = "Unable to move to "
	cantSelect = "Unable to select "

	readyWithValue    = " is present, displayed, and enabled to have the value "
	notDisplayedIssue = ". <b>THIS ELEMENT WAS NOT DISPLAYED. THIS MIGHT BE AN ISSUE.</b>"
)

// condition is an action pre-condition. Polled conditions wait up to the
// default wait before failing.
type condition struct {
	holds  func(*Is) bool
	reason string
	poll   bool
}

var (
	isPresent   = condition{(*Is).Present, notPresent, true}
	isDisplayed = condition{(*Is).Displayed, notDisplayed, true}
	isEnabled   = condition{(*Is).Enabled, notEnabled, true}
	isSelect    = condition{(*Is).Select, notSelect, false}
	isText      = condition{(*Is).text, notInput, false}
	isWritable  = condition{(*Is).writable, notEditable, false}
)

// ready checks conditions in order and returns the resolved element, or records
// a failed row and returns nil
func (e *Element) ready(action, expected, cant string, conds ...condition) *rod.Element {
	is := e.Is()
	for _, c := range conds {
		ok := c.holds(is)
		if !ok && c.poll {
			_, ok = wait.Until(e.defaultWait(), e.pollInterval(), func() bool { return c.holds(is) })
		}
		if !ok {
			e.fail(action, expected, cant+e.PrettyOutput()+c.reason)
			return nil
		}
	}

	el := e.lookup()
	if el == nil {
		e.fail(action, expected, cant+e.PrettyOutput()+notPresent)
	}
	return el
}

// interact runs fn against el with rod's own waits bounded by the default wait
func (e *Element) interact(el *rod.Element, fn func(*rod.Element) error) error {
	timed := el.Timeout(e.defaultWait())
	defer timed.CancelTimeout()
	return e.ctx.Interact(func() error { return fn(timed) })
}

func (e *Element) fail(action, expected, actual string) {
	rep := e.ctx.Report()
	rep.RecordAction(action, expected, actual, report.FAILURE)
	rep.AddError()
}

func (e *Element) failErr(action, expected, cant string, err error) {
	log.Printf("Warning: %s%s: %v", cant, stripTags(e.PrettyOutputLowercase()), err)
	e.fail(action, expected, cant+e.PrettyOutput()+". "+err.Error())
}

func (e *Element) pass(action, expected, actual string) {
	e.ctx.Report().RecordAction(action, expected, actual, report.SUCCESS)
}

// Click clicks the element once it is present, displayed and enabled
func (e *Element) Click() {
	cant := "Unable to click "
	action := "Clicking " + e.PrettyOutput()
	expected := e.PrettyOutput() + " is present, displayed, and enabled to be clicked"

	el := e.ready(action, expected, cant, isPresent, isDisplayed, isEnabled)
	if el == nil {
		return
	}
	if err := e.interact(el, func(el *rod.Element) error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	}); err != nil {
		e.failErr(action, expected, cant, err)
		return
	}
	e.pass(action, expected, "Clicked "+e.PrettyOutputEnd())
}

// Submit submits the form the element belongs to
func (e *Element) Submit() {
	cant := "Unable to submit "
	action := "Submitting " + e.PrettyOutput()
	expected := e.PrettyOutput() + " is present, displayed, and enabled to be submitted"

	el := e.ready(action, expected, cant, isPresent, isDisplayed, isEnabled)
	if el == nil {
		return
	}
	if err := e.interact(el, func(el *rod.Element) error {
		_, err := el.Eval(`() => {
			const form = this.tagName === 'FORM' ? this : this.form;
			if (!form) throw new Error('element is not within a form');
			if (form.requestSubmit) form.requestSubmit(); else form.submit();
		}`)
		return err
	}); err != nil {
		e.failErr(action, expected, cant, err)
		return
	}
	e.pass(action, expected, "Submitted "+e.PrettyOutputEnd())
}

// Hover moves the mouse over the element
func (e *Element) Hover() {
	cant := "Unable to hover over "
	action := "Hovering over " + e.PrettyOutput()
	expected := e.PrettyOutput() + " is present, and displayed to be hovered over"

	el := e.ready(action, expected, cant, isPresent, isDisplayed)
	if el == nil {
		return
	}
	if err := e.interact(el, (*rod.Element).Hover); err != nil {
		e.failErr(action, expected, cant, err)
		return
	}
	e.pass(action, expected, "Hovered over "+e.PrettyOutputEnd())
}

// Focus gives the element focus
func (e *Element) Focus() {
	cant := "Unable to focus on "
	action := "Focusing on " + e.PrettyOutput()
	expected := e.PrettyOutput() + " is present, displayed, and enabled to be focused"

	el := e.ready(action, expected, cant, isPresent, isDisplayed, isEnabled)
	if el == nil {
		return
	}
	if err := e.interact(el, (*rod.Element).Focus); err != nil {
		e.failErr(action, expected, cant, err)
		return
	}
	e.pass(action, expected, "Focused on "+e.PrettyOutputEnd())
}

// Blur focuses the element and then removes focus from it
func (e *Element) Blur() {
	cant := "Unable to focus on "
	action := "Focusing, then unfocusing (blurring) on " + e.PrettyOutput()
	expected := e.PrettyOutput() + " is present, displayed, and enabled to be blurred"

	el := e.ready(action, expected, cant, isPresent, isDisplayed, isEnabled)
	if el == nil {
		return
	}
	if err := e.interact(el, func(el *rod.Element) error {
		if err := el.Focus(); err != nil {
			return err
		}
		return el.Blur()
	}); err != nil {
		e.failErr(action, expected, cant, err)
		return
	}
	e.pass(action, expected, "Focused, then unfocused (blurred) on "+e.PrettyOutputEnd())
}

// Type types text into an input. A hidden input is still typed into, with a warning.
func (e *Element) Type(text string) {
	action := "Typing text '" + text + "' in " + e.PrettyOutput()
	expected := e.PrettyOutput() + " is present, displayed, and enabled to have text " + text + " typed in"

	el := e.ready(action, expected, cantType, isPresent, isEnabled, isText, isWritable)
	if el == nil {
		return
	}

	displayed := e.Is().Displayed()
	err := e.interact(el, func(el *rod.Element) error {
		if displayed {
			return el.Input(text)
		}
		return setValue(el, text, true)
	})
	if err != nil {
		e.failErr(action, expected, cantType, err)
		return
	}

	actual := "Typed text '" + text + "' in " + e.PrettyOutputEnd()
	if !displayed {
		e.ctx.Report().RecordAction(action, expected, actual+notDisplayedIssue, report.WARNING)
		return
	}
	e.pass(action, expected, actual)
}

// TypeKeys presses keys while the element has focus
func (e *Element) TypeKeys(keys ...input.Key) {
	names := keyNames(keys)
	action := "Typing key '" + names + "' in " + e.PrettyOutput()
	expected := e.PrettyOutput() + " is present, displayed, and enabled to have text " + names + " entered"

	el := e.ready(action, expected, cantType, isPresent, isEnabled, isText, isWritable)
	if el == nil {
		return
	}

	displayed := e.Is().Displayed()
	if err := e.interact(el, func(el *rod.Element) error { return el.Type(keys...) }); err != nil {
		e.failErr(action, expected, cantType, err)
		return
	}

	actual := "Typed key '" + names + "' in " + e.PrettyOutputEnd()
	if !displayed {
		e.ctx.Report().RecordAction(action, expected, actual+notDisplayedIssue, report.WARNING)
		return
	}
	e.pass(action, expected, actual)
}

// Clear empties the text of an input
func (e *Element) Clear() {
	cant := "Unable to clear "
	action := "Clearing text in " + e.PrettyOutput()
	expected := e.PrettyOutput() + " is present, displayed, and enabled to have text cleared"

	el := e.ready(action, expected, cant, isPresent, isDisplayed, isEnabled, isText, isWritable)
	if el == nil {
		return
	}
	if err := e.interact(el, func(el *rod.Element) error { return setValue(el, "", false) }); err != nil {
		e.failErr(action, expected, cant, err)
		return
	}
	e.pass(action, expected, "Cleared text in "+e.PrettyOutputEnd())
}

// Select selects the option at index, counted from 0
func (e *Element) Select(index int) {
	action := fmt.Sprintf("Selecting %d in %s", index, e.PrettyOutput())
	expected := fmt.Sprintf("%s%s%d selected", e.PrettyOutput(), readyWithValue, index)

	el := e.ready(action, expected, cantSelect, isPresent, isDisplayed, isEnabled, isSelect)
	if el == nil {
		return
	}
	if options := e.Get().SelectOptions(); index < 0 || index >= len(options) {
		e.fail(action, expected, fmt.Sprintf(
			"Unable to select the <i>%d</i> option, as there are only <i>%d</i> available.", index, len(options)))
		return
	}
	if err := e.interact(el, func(el *rod.Element) error { return selectOption(el, "index", index) }); err != nil {
		e.failErr(action, expected, cantSelect, err)
		return
	}
	e.pass(action, expected, fmt.Sprintf("Selected option <b>%d</b> in %s", index, e.PrettyOutputEnd()))
}

// SelectOption selects the option with the given text
func (e *Element) SelectOption(option string) {
	e.selectBy("text", option, "option", e.Get().SelectOptions)
}

// SelectValue selects the option with the given value
func (e *Element) SelectValue(value string) {
	e.selectBy("value", value, "value", e.Get().SelectValues)
}

func (e *Element) selectBy(by, want, noun string, available func() []string) {
	action := "Selecting " + want + " in " + e.PrettyOutput()
	expected := e.PrettyOutput() + readyWithValue + want + " selected"

	el := e.ready(action, expected, cantSelect, isPresent, isDisplayed, isEnabled, isSelect)
	if el == nil {
		return
	}

	options := available()
	if !slices.Contains(options, want) {
		e.fail(action, expected, cantSelect+want+" in "+e.PrettyOutput()+
			" as that "+noun+" isn't present. Available "+noun+"s are:<i><br/>&nbsp;&nbsp;&nbsp;"+
			strings.Join(options, "<br/>&nbsp;&nbsp;&nbsp;")+"</i>")
		return
	}
	if err := e.interact(el, func(el *rod.Element) error { return selectOption(el, by, want) }); err != nil {
		e.failErr(action, expected, cantSelect, err)
		return
	}
	e.pass(action, expected, "Selected <b>"+want+"</b> in "+e.PrettyOutputEnd())
}

// ScrollTo scrolls the page until the element is in the viewport
func (e *Element) ScrollTo() {
	action := "Moving screen to " + e.PrettyOutput()
	e.scroll(action, `() => this.scrollIntoView({block: 'nearest', inline: 'nearest'})`)
}

// ScrollToCenter scrolls the page so the element is centered in the viewport
func (e *Element) ScrollToCenter() {
	action := "Moving screen to the center of " + e.PrettyOutput()
	e.scroll(action, `() => this.scrollIntoView({block: 'center', inline: 'center'})`)
}

// ScrollAbove scrolls the page so the element sits px pixels below the top of the viewport
func (e *Element) ScrollAbove(px int) {
	action := fmt.Sprintf("Moving screen to %d pixels above %s", px, e.PrettyOutput())
	e.scroll(action, `(px) => window.scrollBy(0, this.getBoundingClientRect().top - px)`, px)
}

func (e *Element) scroll(action, js string, args ...any) {
	expected := e.PrettyOutput() + " is now displayed within the current viewport"

	el := e.ready(action, expected, cantMove, isPresent)
	if el == nil {
		return
	}
	if _, err := el.Eval(js, args...); err != nil {
		e.failErr(action, expected, cantMove, err)
		return
	}

	inView, err := el.Eval(`() => {
		const r = this.getBoundingClientRect();
		return r.bottom > 0 && r.right > 0 && r.top < window.innerHeight && r.left < window.innerWidth;
	}`)
	if err != nil || !inView.Value.Bool() {
		e.fail(action, expected, e.PrettyOutputStart()+" is not displayed within the current viewport")
		return
	}
	e.pass(action, expected, e.PrettyOutputStart()+" is displayed within the current viewport")
}

// SelectFrame makes this iframe the frame that later lookups run in
func (e *Element) SelectFrame() {
	cant := "Unable to focus on frame "
	action := "Focusing on frame " + e.PrettyOutput()
	expected := "Frame " + e.PrettyOutput() + " is present, displayed, and focused"

	el := e.ready(action, expected, cant, isPresent, isDisplayed)
	if el == nil {
		return
	}
	frame, err := el.Frame()
	if err != nil {
		e.failErr(action, expected, cant, err)
		return
	}
	e.ctx.SwitchFrame(frame)
	e.pass(action, expected, "Focused on frame "+e.PrettyOutputEnd())
}

// setValue assigns an input's value and fires the events a user edit would
func setValue(el *rod.Element, text string, appendText bool) error {
	_, err := el.Eval(`(text, append) => {
		this.value = append ? this.value + text : text;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, text, appendText)
	return err
}

// selectOption selects one option of a select by index, text or value
func selectOption(el *rod.Element, by string, want any) error {
	_, err := el.Eval(`(by, want) => {
		const options = Array.from(this.options);
		const i = by === 'index' ? want : options.findIndex(o => (by === 'text' ? o.text : o.value) === want);
		if (i < 0 || i >= options.length) throw new Error('no option ' + want);
		this.selectedIndex = i;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, by, want)
	return err
}

func keyNames(keys []input.Key) string {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Info().Key)
	}
	return strings.Join(names, "")
}
