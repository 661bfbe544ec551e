package app

import (
	"log"
	"strings"
	"time"

	"github.com/ahrdadan/selenified/internal/browser"
	"github.com/go-rod/rod/lib/proto"
)

// Get reads page-level values. Without a browser every value is empty.
type Get struct {
	app *App
}

// Location returns the URL of the current tab
func (g *Get) Location() string {
	info := g.info()
	if info == nil {
		return ""
	}
	return info.URL
}

// Title returns the title of the current tab
func (g *Get) Title() string {
	info := g.info()
	if info == nil {
		return ""
	}
	return info.Title
}

func (g *Get) info() *proto.TargetTargetInfo {
	page := g.app.tab()
	if page == nil {
		return nil
	}
	info, err := page.Info()
	if err != nil {
		log.Printf("Warning: failed to read page info: %v", err)
		return nil
	}
	return info
}

// HTMLSource returns the HTML of the current frame or tab
func (g *Get) HTMLSource() string {
	page := g.app.Page()
	if page == nil {
		return ""
	}
	html, err := page.HTML()
	if err != nil {
		return ""
	}
	return html
}

// Eval runs a JavaScript function in the current frame or tab and returns its result
func (g *Get) Eval(js string, args ...any) any {
	page := g.app.Page()
	if page == nil {
		return nil
	}
	res, err := page.Eval(js, args...)
	if err != nil {
		log.Printf("Warning: failed to evaluate script: %v", err)
		return nil
	}
	return res.Value.Val()
}

// Alert returns the message of the open dialog, of any kind
func (g *Get) Alert() string {
	if d := g.app.openDialog(); d != nil {
		return d.message
	}
	return ""
}

// Confirmation returns the message of the open confirmation
func (g *Get) Confirmation() string {
	return g.dialogMessage(proto.PageDialogTypeConfirm)
}

// Prompt returns the message of the open prompt
func (g *Get) Prompt() string {
	return g.dialogMessage(proto.PageDialogTypePrompt)
}

func (g *Get) dialogMessage(typ proto.PageDialogType) string {
	if d := g.app.openDialog(); d != nil && d.typ == typ {
		return d.message
	}
	return ""
}

// Cookie returns the named cookie of the current page
func (g *Get) Cookie(name string) (browser.Cookie, bool) {
	for _, c := range g.AllCookies() {
		if c.Name == name {
			return c, true
		}
	}
	return browser.Cookie{}, false
}

// CookieValue returns the value of the named cookie
func (g *Get) CookieValue(name string) string {
	c, _ := g.Cookie(name)
	return c.Value
}

// CookiePath returns the path of the named cookie
func (g *Get) CookiePath(name string) string {
	c, _ := g.Cookie(name)
	return c.Path
}

// CookieDomain returns the domain of the named cookie
func (g *Get) CookieDomain(name string) string {
	c, _ := g.Cookie(name)
	return c.Domain
}

// CookieExpiration returns when the named cookie expires, zero for session cookies
func (g *Get) CookieExpiration(name string) time.Time {
	c, _ := g.Cookie(name)
	return c.Expires
}

// AllCookies returns the cookies visible to the current page
func (g *Get) AllCookies() []browser.Cookie {
	page := g.app.tab()
	if page == nil {
		return nil
	}
	cookies, err := page.Cookies(nil)
	if err != nil {
		log.Printf("Warning: failed to read cookies: %v", err)
		return nil
	}
	out := make([]browser.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, browser.FromProto(c))
	}
	return out
}

// bodyText returns the rendered text of the current frame or tab
func (g *Get) bodyText() string {
	page := g.app.Page()
	if page == nil {
		return ""
	}
	res, err := page.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// Is answers page-level yes/no questions
type Is struct {
	app *App
}

// AlertPresent reports whether a dialog of any kind is open
func (i *Is) AlertPresent() bool {
	return i.app.openDialog() != nil
}

// ConfirmationPresent reports whether a confirmation is open
func (i *Is) ConfirmationPresent() bool {
	d := i.app.openDialog()
	return d != nil && d.typ == proto.PageDialogTypeConfirm
}

// PromptPresent reports whether a prompt is open
func (i *Is) PromptPresent() bool {
	d := i.app.openDialog()
	return d != nil && d.typ == proto.PageDialogTypePrompt
}

// Location reports whether the current tab is at expected
func (i *Is) Location(expected string) bool {
	return i.app.Get().Location() == expected
}

// CookiePresent reports whether the named cookie is set for the current page
func (i *Is) CookiePresent(name string) bool {
	_, ok := i.app.Get().Cookie(name)
	return ok
}

// TextPresent reports whether the rendered page text contains text
func (i *Is) TextPresent(text string) bool {
	return strings.Contains(i.app.Get().bodyText(), text)
}

// TextPresentInSource reports whether the page HTML contains text
func (i *Is) TextPresentInSource(text string) bool {
	return strings.Contains(i.app.Get().HTMLSource(), text)
}
