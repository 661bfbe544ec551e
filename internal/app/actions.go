package app

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ahrdadan/selenified/internal/browser"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/ahrdadan/selenified/internal/wait"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const (
	available   = "</b> is available and selected"
	notSelected = "</b> was unable to be selected"
	framePrefix = "Frame <b>"
)

var errNoBrowser = errors.New("no browser session is open")

func (a *App) pass(action, expected, actual string) {
	a.rep.RecordAction(action, expected, actual, report.SUCCESS)
}

func (a *App) fail(action, expected, actual string) {
	a.rep.RecordAction(action, expected, actual, report.FAILURE)
	a.rep.AddError()
}

func (a *App) failErr(action, expected, prefix string, err error) {
	log.Printf("Warning: %s: %v", action, err)
	a.fail(action, expected, prefix+err.Error())
}

// do records a row for a page operation: expected as the actual text on
// success, prefix plus the error on failure
func (a *App) do(action, expected, prefix string, fn func(page *rod.Page) error) bool {
	page := a.tab()
	if page == nil {
		a.failErr(action, expected, prefix, errNoBrowser)
		return false
	}
	p := page.Timeout(a.pageTimeout)
	defer p.CancelTimeout()
	if err := fn(p); err != nil {
		a.failErr(action, expected, prefix, err)
		return false
	}
	a.pass(action, expected, expected)
	return true
}

// Wait pauses the test
func (a *App) Wait(seconds float64) {
	d := time.Duration(seconds * float64(time.Second))
	action := "Wait " + wait.Seconds(d) + " seconds"
	expected := "Waited " + wait.Seconds(d) + " seconds"

	select {
	case <-time.After(d):
		a.pass(action, expected, expected)
	case <-a.ctx.Done():
		a.failErr(action, expected, "Failed to wait "+wait.Seconds(d)+" seconds. ", a.ctx.Err())
	}
}

// GoToURL loads url in the current tab
func (a *App) GoToURL(url string) {
	action := "Loading " + url
	expected := "Loaded " + url

	page := a.tab()
	if page == nil {
		a.failErr(action, expected, "Fail to Load "+url+". ", errNoBrowser)
		return
	}

	start := time.Now()
	err := a.Interact(func() error {
		p := page.Timeout(a.pageTimeout)
		defer p.CancelTimeout()
		if err := p.Navigate(url); err != nil {
			return err
		}
		return p.WaitLoad()
	})
	if err != nil {
		a.failErr(action, expected, "Fail to Load "+url+". ", err)
		return
	}
	a.mu.Lock()
	a.frames = nil
	a.mu.Unlock()
	a.pass(action, expected, "Loaded "+url+" in "+wait.Seconds(time.Since(start).Round(time.Millisecond))+" seconds")
}

// TakeScreenshot saves a screenshot of the current tab to path
func (a *App) TakeScreenshot(path string) {
	data, err := pageScreenshotter{a}.Capture()
	if err != nil {
		log.Printf("Warning: failed to take screenshot: %v", err)
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("Warning: failed to create screenshot directory: %v", err)
			return
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("Warning: failed to write screenshot: %v", err)
	}
}

// OpenTab opens a blank tab and switches to it
func (a *App) OpenTab() {
	a.openTab("Opening new tab", "New tab is opened")
}

// OpenTabURL opens a tab, switches to it, and loads url
func (a *App) OpenTabURL(url string) {
	if a.openTab("Opening new tab", "New tab is opened") {
		a.GoToURL(url)
	}
}

func (a *App) openTab(action, expected string) bool {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		a.failErr(action, expected, "New tab was unable to be opened. ", errNoBrowser)
		return false
	}

	page, err := session.NewPage(a.ctx)
	if err != nil {
		a.failErr(action, expected, "New tab was unable to be opened. ", err)
		return false
	}
	if _, err := page.Activate(); err != nil {
		log.Printf("Warning: failed to activate new tab: %v", err)
	}

	a.mu.Lock()
	a.tabs = append(a.tabs, page)
	a.current = len(a.tabs) - 1
	a.frames = nil
	a.mu.Unlock()

	a.pass(action, expected, expected)
	return true
}

// SwitchNextTab switches to the tab opened after the current one, wrapping around
func (a *App) SwitchNextTab() {
	a.switchTab("Switching to next tab ", "Next tab <b>", 1)
}

// SwitchPreviousTab switches to the tab opened before the current one, wrapping around
func (a *App) SwitchPreviousTab() {
	a.switchTab("Switching to previous tab ", "Previous tab <b>", -1)
}

func (a *App) switchTab(action, which string, step int) {
	expected := which + available

	a.mu.Lock()
	n := len(a.tabs)
	if n == 0 {
		a.mu.Unlock()
		a.failErr(action, expected, which+notSelected+". ", errNoBrowser)
		return
	}
	a.current = ((a.current+step)%n + n) % n
	a.frames = nil
	page := a.tabs[a.current]
	a.mu.Unlock()

	if _, err := page.Activate(); err != nil {
		a.failErr(action, expected, which+notSelected+". ", err)
		return
	}
	a.pass(action, expected, expected)
}

// CloseTab closes the current tab and switches to the previous one
func (a *App) CloseTab() {
	a.closeCurrent("Closing currently open tab", "Tab is closed", "Tab was unable to be closed. ")
}

// SwitchToNewWindow switches to a window the page opened, such as a popup
func (a *App) SwitchToNewWindow() {
	action := "Switching to the new window"
	expected := "New window is available and selected"
	prefix := "New window was unable to be selected. "

	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		a.failErr(action, expected, prefix, errNoBrowser)
		return
	}

	pages, err := session.Pages()
	if err != nil {
		a.failErr(action, expected, prefix, err)
		return
	}

	a.mu.Lock()
	var found *rod.Page
	for _, p := range pages {
		known := slices.ContainsFunc(a.tabs, func(t *rod.Page) bool { return t.TargetID == p.TargetID })
		if !known && !a.seen[p.TargetID] {
			found = p
			break
		}
	}
	if found == nil {
		a.mu.Unlock()
		a.fail(action, expected, prefix+"No new window was found.")
		return
	}
	a.seen[found.TargetID] = true
	a.parent = a.tabLocked()
	a.tabs = append(a.tabs, found)
	a.current = len(a.tabs) - 1
	a.frames = nil
	a.mu.Unlock()

	a.pass(action, expected, expected)
}

// SwitchToParentWindow switches back to the window that was current before SwitchToNewWindow
func (a *App) SwitchToParentWindow() {
	action := "Switching back to parent window"
	expected := "Parent window is available and selected"

	a.mu.Lock()
	i := -1
	if a.parent != nil {
		i = slices.Index(a.tabs, a.parent)
	}
	if i >= 0 {
		a.current = i
		a.frames = nil
	}
	a.mu.Unlock()

	if i < 0 {
		a.fail(action, expected, "Parent window was unable to be selected. There is no parent window.")
		return
	}
	a.pass(action, expected, expected)
}

// CloseCurrentWindow closes the current window and switches to its parent, or the previous tab
func (a *App) CloseCurrentWindow() {
	a.closeCurrent("Closing currently selected window", "Current window is closed",
		"Current window was unable to be closed. ")
}

func (a *App) closeCurrent(action, expected, prefix string) {
	a.mu.Lock()
	page := a.tabLocked()
	a.mu.Unlock()
	if page == nil {
		a.failErr(action, expected, prefix, errNoBrowser)
		return
	}
	if err := page.Close(); err != nil {
		a.failErr(action, expected, prefix, err)
		return
	}

	a.mu.Lock()
	if w, ok := a.dialogs[string(page.TargetID)]; ok {
		w.stop()
		delete(a.dialogs, string(page.TargetID))
	}
	a.tabs = slices.Delete(a.tabs, a.current, a.current+1)
	a.frames = nil
	next := a.current - 1
	if a.parent != nil && a.parent != page {
		if i := slices.Index(a.tabs, a.parent); i >= 0 {
			next = i
		}
	}
	if a.parent == page {
		a.parent = nil
	}
	if next < 0 {
		next = 0
	}
	a.current = next
	a.mu.Unlock()

	a.pass(action, expected, expected)
}

// GoBack navigates back one page in history
func (a *App) GoBack() {
	a.navigate("Going back one page", "Previous page from browser history is loaded",
		"Browser was unable to go back one page. ", (*rod.Page).NavigateBack)
}

// GoForward navigates forward one page in history
func (a *App) GoForward() {
	a.navigate("Going forward one page", "Next page from browser history is loaded",
		"Browser was unable to go forward one page. ", (*rod.Page).NavigateForward)
}

// Refresh reloads the current page
func (a *App) Refresh() {
	a.navigate("Reloading current page", "Page is refreshed",
		"Browser was unable to be refreshed. ", (*rod.Page).Reload)
}

// RefreshHard reloads the current page, bypassing the cache
func (a *App) RefreshHard() {
	a.navigate("Reloading current page while clearing the cache", "Cache is cleared, and the page is refreshed",
		"There was a problem clearing the cache and reloading the page. ", func(p *rod.Page) error {
			return proto.PageReload{IgnoreCache: true}.Call(p)
		})
}

func (a *App) navigate(action, expected, prefix string, fn func(*rod.Page) error) {
	if a.do(action, expected, prefix, func(p *rod.Page) error {
		return a.Interact(func() error {
			if err := fn(p); err != nil {
				return err
			}
			return p.WaitLoad()
		})
	}) {
		a.mu.Lock()
		a.frames = nil
		a.mu.Unlock()
	}
}

// SetCookie adds a cookie for the current page
func (a *App) SetCookie(cookie browser.CookieParam) {
	expiry := "session"
	if !cookie.Expires.IsZero() {
		expiry = cookie.Expires.UTC().Format(time.RFC1123)
	}
	action := "Setting up cookie with attributes:<div><table><tbody><tr><td>Domain</td><td>" + cookie.Domain +
		"</tr><tr><td>Expiration</td><td>" + expiry + "</tr><tr><td>Name</td><td>" + cookie.Name +
		"</tr><tr><td>Path</td><td>" + cookie.Path + "</tr><tr><td>Value</td><td>" + cookie.Value +
		"</tr></tbody></table></div><br/>"

	a.do(action, "Cookie is added", "Unable to add cookie. ", func(p *rod.Page) error {
		return p.SetCookies(browser.ToCookieParams(a.Get().Location(), []browser.CookieParam{cookie}))
	})
}

// DeleteCookie removes the named cookie. A cookie that does not exist is a failure.
func (a *App) DeleteCookie(name string) {
	action := "Deleting cookie <i>" + name + "</i>"
	expected := "Cookie <i>" + name + "</i> is removed"

	if a.tab() != nil && !a.Is().CookiePresent(name) {
		a.fail(action, expected, "Unable to remove cookie <i>"+name+"</i> as it doesn't exist.")
		return
	}
	a.do(action, expected, "Unable to remove cookie <i>"+name+"</i>. ", func(p *rod.Page) error {
		return proto.NetworkDeleteCookies{Name: name, URL: a.Get().Location()}.Call(p)
	})
}

// DeleteAllCookies removes every cookie of the browser
func (a *App) DeleteAllCookies() {
	a.do("Deleting all cookies", "All cookies are removed", "Unable to remove all cookies. ", func(p *rod.Page) error {
		return proto.NetworkClearBrowserCookies{}.Call(p)
	})
}

// Maximize maximizes the browser window
func (a *App) Maximize() {
	a.do("Maximizing browser", "Browser is maximized", "Browser was unable to be maximized. ", func(p *rod.Page) error {
		return p.SetWindow(&proto.BrowserBounds{WindowState: proto.BrowserWindowStateMaximized})
	})
}

// Resize sets the viewport to width by height pixels
func (a *App) Resize(width, height int) {
	action := fmt.Sprintf("Resizing browser to %d x %d", width, height)
	expected := fmt.Sprintf("Browser is resized to %d x %d", width, height)

	a.do(action, expected, "Browser was unable to be resized. ", func(p *rod.Page) error {
		return p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: width, Height: height})
	})
}

// Scroll scrolls the page down by px pixels
func (a *App) Scroll(px int) {
	page := a.Page()
	if page == nil {
		a.failErr(fmt.Sprintf("Scrolling page by %d", px), "Page is scrolled", "Unable to scroll page. ", errNoBrowser)
		return
	}

	initial := scrollY(page)
	action := fmt.Sprintf("Scrolling page from %d to %d", initial, px)
	expected := fmt.Sprintf("Page is now set at position %d", px)

	if _, err := page.Eval(`(y) => window.scrollBy(0, y)`, px); err != nil {
		a.failErr(action, expected, "Unable to scroll page. ", err)
		return
	}
	if pos := scrollY(page); pos != px {
		a.fail(action, expected, fmt.Sprintf("Page is set at position %d", pos))
		return
	}
	a.pass(action, expected, expected)
}

func scrollY(page *rod.Page) int {
	res, err := page.Eval(`() => Math.round(window.scrollY)`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// SelectFrameIndex switches to the i-th frame of the current page, counted from 0
func (a *App) SelectFrameIndex(i int) {
	id := fmt.Sprint(i)
	a.selectFrame(id, func(p *rod.Page) (*rod.Element, error) {
		frames, err := p.Elements("iframe, frame")
		if err != nil {
			return nil, err
		}
		if i < 0 || i >= len(frames) {
			return nil, fmt.Errorf("the page has %d frames", len(frames))
		}
		return frames[i], nil
	})
}

// SelectFrameName switches to the frame with the given name or id
func (a *App) SelectFrameName(name string) {
	a.selectFrame(name, func(p *rod.Page) (*rod.Element, error) {
		frames, err := p.Elements(fmt.Sprintf(`iframe[name=%q], iframe[id=%q], frame[name=%q], frame[id=%q]`,
			name, name, name, name))
		if err != nil {
			return nil, err
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("no frame is named %q", name)
		}
		return frames[0], nil
	})
}

func (a *App) selectFrame(id string, find func(*rod.Page) (*rod.Element, error)) {
	action := "Switching to frame <b>" + id + "</b>"
	expected := framePrefix + id + available
	prefix := framePrefix + id + notSelected + ". "

	page := a.Page()
	if page == nil {
		a.failErr(action, expected, prefix, errNoBrowser)
		return
	}
	el, err := find(page)
	if err != nil {
		a.failErr(action, expected, prefix, err)
		return
	}
	frame, err := el.Frame()
	if err != nil {
		a.failErr(action, expected, prefix, err)
		return
	}
	a.SwitchFrame(frame)
	a.pass(action, expected, expected)
}

// SelectParentFrame leaves the current frame for the one containing it
func (a *App) SelectParentFrame() {
	action := "Switching to parent frame"
	expected := "Parent frame is available and selected"

	a.mu.Lock()
	if n := len(a.frames); n > 0 {
		a.frames = a.frames[:n-1]
	}
	a.mu.Unlock()
	a.pass(action, expected, expected)
}

// SelectMainWindow leaves every frame for the top level page
func (a *App) SelectMainWindow() {
	action := "Switching to main window"
	expected := "Main window is available and selected"

	a.mu.Lock()
	a.frames = nil
	a.mu.Unlock()
	a.pass(action, expected, expected)
}

// AcceptAlert clicks OK on an alert
func (a *App) AcceptAlert() {
	action := "Clicking 'OK' on an alert"
	expected := "Alert is present to be clicked"
	if a.openDialog() == nil {
		a.fail(action, expected, "Unable to click alert as it is not present")
		return
	}
	a.answer(action, expected, "alert", true)
}

// AcceptConfirmation clicks OK on a confirmation
func (a *App) AcceptConfirmation() {
	action := "Clicking 'OK' on a confirmation"
	expected := "Confirmation is present to be clicked"
	if !a.Is().ConfirmationPresent() {
		a.fail(action, expected, "Unable to click confirmation as it is not present")
		return
	}
	a.answer(action, expected, "confirmation", true)
}

// DismissConfirmation clicks Cancel on a confirmation
func (a *App) DismissConfirmation() {
	action := "Clicking 'Cancel' on a confirmation"
	expected := "Confirmation is present to be clicked"
	if !a.Is().ConfirmationPresent() {
		a.fail(action, expected, "Unable to click confirmation as it is not present")
		return
	}
	a.answer(action, expected, "confirmation", false)
}

// AcceptPrompt clicks OK on a prompt, submitting any text typed with TypeIntoPrompt
func (a *App) AcceptPrompt() {
	action := "Clicking 'OK' on a prompt"
	expected := "Prompt is present to be clicked"
	if !a.Is().PromptPresent() {
		a.fail(action, expected, "Unable to click prompt as it is not present")
		return
	}
	a.answer(action, expected, "prompt", true)
}

// DismissPrompt clicks Cancel on a prompt
func (a *App) DismissPrompt() {
	action := "Clicking 'Cancel' on a prompt"
	expected := "Prompt is present to be clicked"
	if !a.Is().PromptPresent() {
		a.fail(action, expected, "Unable to click prompt as it is not present")
		return
	}
	a.answer(action, expected, "prompt", false)
}

// TypeIntoPrompt enters text into a prompt. The text is submitted by AcceptPrompt.
func (a *App) TypeIntoPrompt(text string) {
	action := "Typing text '" + text + "' into prompt"
	expected := "Prompt is present and enabled to have text " + text + " typed in"
	if !a.Is().PromptPresent() {
		a.fail(action, expected, "Unable to type into prompt as it is not present")
		return
	}

	a.mu.Lock()
	typed := text
	if a.prompt != nil {
		typed = *a.prompt + text
	}
	a.prompt = &typed
	a.mu.Unlock()
	a.pass(action, expected, "Typed text '"+text+"' into prompt")
}

func (a *App) answer(action, expected, popup string, accept bool) {
	button := "'OK'"
	if !accept {
		button = "'Cancel'"
	}
	if err := a.handleDialog(accept); err != nil {
		a.failErr(action, expected, "Unable to click "+button+" on the "+popup+". ", err)
		return
	}
	a.pass(action, expected, "Clicked "+button+" on the "+popup)
}
