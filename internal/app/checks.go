package app

import (
	"fmt"
	"regexp"
	"time"

	"github.com/ahrdadan/selenified/internal/check"
	"github.com/go-rod/rod/lib/proto"
)

const (
	onPage      = " on the page"
	storedText  = " is stored for the page"
	endBold     = "</b>"
	matchPrefix = " matching the pattern <b>"
)

// Checks evaluates page checks under one outcome policy. Every check records a
// report row and returns the value it observed.
type Checks struct {
	app     *App
	checker *check.Checker
}

// Within returns checks that poll for d instead of the default wait
func (c *Checks) Within(d time.Duration) *Checks {
	return &Checks{app: c.app, checker: c.checker.Within(d)}
}

func (c *Checks) run(expected string, probe func() check.Outcome) check.Outcome {
	return check.Run(c.checker, check.Spec{Expected: expected, Probe: probe})
}

func (c *Checks) str(expected string, probe func() check.Outcome) string {
	s, _ := c.run(expected, probe).Value.(string)
	return s
}

// URLEquals checks the URL of the current tab
func (c *Checks) URLEquals(expected string) string {
	return c.str("Expected to be on page with the URL of <i>"+expected+"</i>", func() check.Outcome {
		url := c.app.Get().Location()
		return check.Outcome{Actual: "The page URL reads <b>" + url + endBold, Passed: url == expected, Value: url}
	})
}

// TitleEquals checks the title of the current tab
func (c *Checks) TitleEquals(expected string) string {
	return c.str("Expected to be on page with the title of <i>"+expected+"</i>", func() check.Outcome {
		title := c.app.Get().Title()
		return check.Outcome{Actual: "The page title reads <b>" + title + endBold, Passed: title == expected, Value: title}
	})
}

// TitleMatches checks the title of the current tab against a pattern that must
// match it in full
func (c *Checks) TitleMatches(pattern string) string {
	return c.str("Expected to be on page with the title"+matchPrefix+pattern+endBold, func() check.Outcome {
		title := c.app.Get().Title()
		ok, bad := matches(pattern, title)
		if bad != "" {
			return check.Outcome{Actual: bad, Value: title}
		}
		return check.Outcome{Actual: "The page title reads <b>" + title + endBold, Passed: ok, Value: title}
	})
}

// TextPresent checks that the rendered page contains text
func (c *Checks) TextPresent(text string) bool {
	return c.text(text, true)
}

// TextNotPresent checks that the rendered page does not contain text
func (c *Checks) TextNotPresent(text string) bool {
	return c.text(text, false)
}

func (c *Checks) text(text string, want bool) bool {
	expected := "Expected to find text <b>" + text + "</b> present" + onPage
	if !want {
		expected = "Expected not to find text <b>" + text + "</b> present" + onPage
	}
	out := c.run(expected, func() check.Outcome {
		present := c.app.Is().TextPresent(text)
		actual := "The text <b>" + text + "</b> is present" + onPage
		if !present {
			actual = "The text <b>" + text + "</b> is not present" + onPage
		}
		return check.Outcome{Actual: actual, Passed: present == want, Value: present}
	})
	present, _ := out.Value.(bool)
	return present
}

// dialogKind selects which dialogs a check looks at
type dialogKind struct {
	name    string
	article string
	typ     proto.PageDialogType // empty matches any dialog
}

var (
	alertKind        = dialogKind{name: "alert", article: "An"}
	confirmationKind = dialogKind{name: "confirmation", article: "A", typ: proto.PageDialogTypeConfirm}
	promptKind       = dialogKind{name: "prompt", article: "A", typ: proto.PageDialogTypePrompt}
)

func (k dialogKind) find(a *App) *dialog {
	d := a.openDialog()
	if d == nil || (k.typ != "" && d.typ != k.typ) {
		return nil
	}
	return d
}

func (k dialogKind) describe(d *dialog) string {
	if d == nil {
		return "No " + k.name + " is present" + onPage
	}
	return k.article + " " + k.name + " with text <b>" + d.message + "</b> is present" + onPage
}

func (c *Checks) dialogPresent(k dialogKind, want bool) bool {
	expected := "Expected to find " + article(k.name) + " " + k.name + onPage
	if !want {
		expected = "Expected not to find " + article(k.name) + " " + k.name + onPage
	}
	out := c.run(expected, func() check.Outcome {
		d := k.find(c.app)
		return check.Outcome{Actual: k.describe(d), Passed: (d != nil) == want, Value: d != nil}
	})
	present, _ := out.Value.(bool)
	return present
}

func (c *Checks) dialogText(k dialogKind, expected string, judge func(string) (bool, string)) string {
	return c.str(expected, func() check.Outcome {
		d := k.find(c.app)
		if d == nil {
			return check.Outcome{Actual: k.describe(nil)}
		}
		ok, bad := judge(d.message)
		if bad != "" {
			return check.Outcome{Actual: bad, Value: d.message}
		}
		return check.Outcome{Actual: k.describe(d), Passed: ok, Value: d.message}
	})
}

func (c *Checks) dialogEquals(k dialogKind, text string) string {
	expected := "Expected to find " + k.name + " with the text <b>" + text + "</b>" + onPage
	return c.dialogText(k, expected, func(msg string) (bool, string) { return msg == text, "" })
}

func (c *Checks) dialogMatches(k dialogKind, pattern string) string {
	expected := "Expected to find " + k.name + " with text" + matchPrefix + pattern + "</b>" + onPage
	return c.dialogText(k, expected, func(msg string) (bool, string) { return matches(pattern, msg) })
}

// AlertPresent checks that a dialog of any kind is open
func (c *Checks) AlertPresent() bool { return c.dialogPresent(alertKind, true) }

// AlertNotPresent checks that no dialog is open
func (c *Checks) AlertNotPresent() bool { return c.dialogPresent(alertKind, false) }

// AlertEquals checks the text of the open dialog
func (c *Checks) AlertEquals(text string) string { return c.dialogEquals(alertKind, text) }

// AlertMatches checks the text of the open dialog against a pattern
func (c *Checks) AlertMatches(pattern string) string { return c.dialogMatches(alertKind, pattern) }

// ConfirmationPresent checks that a confirmation is open
func (c *Checks) ConfirmationPresent() bool { return c.dialogPresent(confirmationKind, true) }

// ConfirmationNotPresent checks that no confirmation is open
func (c *Checks) ConfirmationNotPresent() bool { return c.dialogPresent(confirmationKind, false) }

// ConfirmationEquals checks the text of the open confirmation
func (c *Checks) ConfirmationEquals(text string) string {
	return c.dialogEquals(confirmationKind, text)
}

// ConfirmationMatches checks the text of the open confirmation against a pattern
func (c *Checks) ConfirmationMatches(pattern string) string {
	return c.dialogMatches(confirmationKind, pattern)
}

// PromptPresent checks that a prompt is open
func (c *Checks) PromptPresent() bool { return c.dialogPresent(promptKind, true) }

// PromptNotPresent checks that no prompt is open
func (c *Checks) PromptNotPresent() bool { return c.dialogPresent(promptKind, false) }

// PromptEquals checks the text of the open prompt
func (c *Checks) PromptEquals(text string) string { return c.dialogEquals(promptKind, text) }

// PromptMatches checks the text of the open prompt against a pattern
func (c *Checks) PromptMatches(pattern string) string { return c.dialogMatches(promptKind, pattern) }

// CookieExists checks that the named cookie is set
func (c *Checks) CookieExists(name string) bool {
	return c.cookiePresent(name, true)
}

// CookieNotExists checks that the named cookie is not set
func (c *Checks) CookieNotExists(name string) bool {
	return c.cookiePresent(name, false)
}

func (c *Checks) cookiePresent(name string, want bool) bool {
	expected := "Expected to find cookie with the name <b>" + name + "</b>" + storedText
	if !want {
		expected = "Expected not to find cookie with the name <b>" + name + "</b>" + storedText
	}
	out := c.run(expected, func() check.Outcome {
		actual, found := c.cookie(name)
		return check.Outcome{Actual: actual, Passed: found == want, Value: found}
	})
	found, _ := out.Value.(bool)
	return found
}

// CookieEquals checks the value of the named cookie
func (c *Checks) CookieEquals(name, value string) string {
	expected := "Expected to find cookie with the name <b>" + name + "</b> and a value of <b>" + value + "</b>" + storedText
	return c.cookieValue(name, expected, func(v string) (bool, string) { return v == value, "" })
}

// CookieMatches checks the value of the named cookie against a pattern
func (c *Checks) CookieMatches(name, pattern string) string {
	expected := "Expected to find cookie with the name <b>" + name + "</b> and a value" + matchPrefix + pattern + "</b>" + storedText
	return c.cookieValue(name, expected, func(v string) (bool, string) { return matches(pattern, v) })
}

func (c *Checks) cookieValue(name, expected string, judge func(string) (bool, string)) string {
	return c.str(expected, func() check.Outcome {
		cookie, ok := c.app.Get().Cookie(name)
		actual, _ := c.cookie(name)
		if !ok {
			return check.Outcome{Actual: actual}
		}
		passed, bad := judge(cookie.Value)
		if bad != "" {
			return check.Outcome{Actual: bad, Value: cookie.Value}
		}
		return check.Outcome{Actual: actual, Passed: passed, Value: cookie.Value}
	})
}

// cookie describes the named cookie for the report
func (c *Checks) cookie(name string) (string, bool) {
	cookie, ok := c.app.Get().Cookie(name)
	if !ok {
		return "No cookie with the name <b>" + name + "</b>" + storedText, false
	}
	return "A cookie with the name <b>" + name + "</b> and a value of <b>" + cookie.Value + "</b>" + storedText, true
}

func article(noun string) string {
	switch noun[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "an"
	}
	return "a"
}

// matches reports whether pattern matches s in full. An invalid pattern is
// returned as report text instead.
func matches(pattern, s string) (bool, string) {
	re, err := fullMatch(pattern)
	if err != nil {
		return false, fmt.Sprintf("The pattern <b>%s</b> is not valid: %v", pattern, err)
	}
	return re.MatchString(s), ""
}

func fullMatch(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")$")
}
