package scenario

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/ahrdadan/selenified/internal/app"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/element"
	"github.com/ahrdadan/selenified/internal/report"
)

// needs flags what a step must carry for its action
type needs uint8

const (
	needLocator needs = 1 << iota
	needValue
	needName
	needCookie
	needLocalPath
)

type actionSpec struct {
	needs needs
	run   func(x *exec, s Step)
}

// exec is a scenario run in progress
type exec struct {
	app *app.App
	sc  *Scenario
}

func (x *exec) element(s Step) *element.Element {
	if s.Locator.Match > 0 {
		return x.app.NewElement(s.Locator.Type, s.Locator.Value, s.Locator.Match)
	}
	return x.app.NewElement(s.Locator.Type, s.Locator.Value)
}

// checks returns the element checks for the step's mode
func (x *exec) checks(s Step) *element.Checks {
	el := x.element(s)
	switch s.mode() {
	case ModeAssert:
		return el.Assert()
	case ModeWait:
		if d := s.timeout(); d > 0 {
			return el.WaitFor().Within(d)
		}
		return el.WaitFor()
	default:
		return el.Verify()
	}
}

// waitFor returns element checks that always poll
func (x *exec) waitFor(s Step) *element.Checks {
	s.Mode = ModeWait
	return x.checks(s)
}

// pageChecks returns the page checks for the step's mode
func (x *exec) pageChecks(s Step) *app.Checks {
	switch s.mode() {
	case ModeAssert:
		return x.app.Assert()
	case ModeWait:
		if d := s.timeout(); d > 0 {
			return x.app.WaitFor().Within(d)
		}
		return x.app.WaitFor()
	default:
		return x.app.Verify()
	}
}

var actions = map[string]actionSpec{
	// navigation
	"goto": {run: func(x *exec, s Step) {
		url := s.Value
		if url == "" {
			url = x.sc.URL
		}
		x.app.GoToURL(url)
	}},
	"back":         {run: func(x *exec, s Step) { x.app.GoBack() }},
	"forward":      {run: func(x *exec, s Step) { x.app.GoForward() }},
	"refresh":      {run: func(x *exec, s Step) { x.app.Refresh() }},
	"refresh_hard": {run: func(x *exec, s Step) { x.app.RefreshHard() }},

	// element actions
	"click":  {needs: needLocator, run: func(x *exec, s Step) { x.element(s).Click() }},
	"submit": {needs: needLocator, run: func(x *exec, s Step) { x.element(s).Submit() }},
	"hover":  {needs: needLocator, run: func(x *exec, s Step) { x.element(s).Hover() }},
	"type":   {needs: needLocator, run: func(x *exec, s Step) { x.element(s).Type(s.Value) }},
	"clear":  {needs: needLocator, run: func(x *exec, s Step) { x.element(s).Clear() }},
	"select": {needs: needLocator, run: func(x *exec, s Step) { x.element(s).Select(s.Index) }},
	"select_option": {needs: needLocator | needValue, run: func(x *exec, s Step) {
		x.element(s).SelectOption(s.Value)
	}},
	"select_value": {needs: needLocator | needValue, run: func(x *exec, s Step) {
		x.element(s).SelectValue(s.Value)
	}},
	"scroll": {run: func(x *exec, s Step) {
		if s.Locator != nil {
			x.element(s).ScrollTo()
			return
		}
		x.app.Scroll(s.Index)
	}},

	// waiting
	"wait":           {run: func(x *exec, s Step) { x.app.Wait(s.Timeout) }},
	"wait_present":   {needs: needLocator, run: func(x *exec, s Step) { x.waitFor(s).Present() }},
	"wait_displayed": {needs: needLocator, run: func(x *exec, s Step) { x.waitFor(s).Displayed() }},

	// dialogs
	"accept_alert":         {run: func(x *exec, s Step) { x.app.AcceptAlert() }},
	"accept_confirmation":  {run: func(x *exec, s Step) { x.app.AcceptConfirmation() }},
	"dismiss_confirmation": {run: func(x *exec, s Step) { x.app.DismissConfirmation() }},
	"accept_prompt":        {run: func(x *exec, s Step) { x.app.AcceptPrompt() }},
	"dismiss_prompt":       {run: func(x *exec, s Step) { x.app.DismissPrompt() }},
	"type_into_prompt":     {needs: needValue, run: func(x *exec, s Step) { x.app.TypeIntoPrompt(s.Value) }},

	// cookies
	"set_cookie":    {needs: needCookie, run: func(x *exec, s Step) { x.app.SetCookie(*s.Cookie) }},
	"delete_cookie": {needs: needName, run: func(x *exec, s Step) { x.app.DeleteCookie(s.Name) }},

	// frames
	"frame": {run: func(x *exec, s Step) {
		switch {
		case s.Locator != nil:
			x.element(s).SelectFrame()
		case s.Value != "":
			x.app.SelectFrameName(s.Value)
		default:
			x.app.SelectFrameIndex(s.Index)
		}
	}},
	"parent_frame": {run: func(x *exec, s Step) { x.app.SelectParentFrame() }},
	"main_window":  {run: func(x *exec, s Step) { x.app.SelectMainWindow() }},

	// tabs
	"open_tab": {run: func(x *exec, s Step) {
		if s.Value != "" {
			x.app.OpenTabURL(s.Value)
			return
		}
		x.app.OpenTab()
	}},
	"switch_next_tab": {run: func(x *exec, s Step) { x.app.SwitchNextTab() }},
	"close_tab":       {run: func(x *exec, s Step) { x.app.CloseTab() }},

	"screenshot": {needs: needValue | needLocalPath, run: func(x *exec, s Step) {
		x.app.TakeScreenshot(filepath.Join(x.app.Report().Dir(), s.Value))
	}},

	// element checks
	"present":       {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).Present() }},
	"not_present":   {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).NotPresent() }},
	"displayed":     {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).Displayed() }},
	"enabled":       {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).Enabled() }},
	"checked":       {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).Checked() }},
	"text_equals":   {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).TextEquals(s.Value) }},
	"text_contains": {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).TextContains(s.Value) }},
	"text_matches":  {needs: needLocator | needValue, run: func(x *exec, s Step) { x.checks(s).TextMatches(s.Value) }},
	"value_equals":  {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).ValueEquals(s.Value) }},
	"cell_equals":   {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).CellEquals(s.Row, s.Col, s.Value) }},
	"options_equal": {needs: needLocator, run: func(x *exec, s Step) { x.checks(s).SelectOptionsEqual(s.Values...) }},
	"attribute_equals": {needs: needLocator | needName, run: func(x *exec, s Step) {
		x.checks(s).AttributeEquals(s.Name, s.Value)
	}},

	// page checks
	"title_equals":  {run: func(x *exec, s Step) { x.pageChecks(s).TitleEquals(s.Value) }},
	"title_matches": {needs: needValue, run: func(x *exec, s Step) { x.pageChecks(s).TitleMatches(s.Value) }},
	"url_equals":    {needs: needValue, run: func(x *exec, s Step) { x.pageChecks(s).URLEquals(s.Value) }},
	"text_present":  {needs: needValue, run: func(x *exec, s Step) { x.pageChecks(s).TextPresent(s.Value) }},
	"alert_present": {run: func(x *exec, s Step) {
		if s.Value != "" {
			x.pageChecks(s).AlertEquals(s.Value)
			return
		}
		x.pageChecks(s).AlertPresent()
	}},
	"cookie_equals": {needs: needName, run: func(x *exec, s Step) { x.pageChecks(s).CookieEquals(s.Name, s.Value) }},
}

// Progress is called after each step with how many of total steps are done
type Progress func(done, total int, step Step)

// Runner executes scenarios against an App
type Runner struct {
	OnProgress Progress
}

// Run validates sc and performs its steps in order. It stops early when ctx is
// done. A failed assert stops the calling goroutine through the App's failer.
func (r *Runner) Run(ctx context.Context, a *app.App, sc *Scenario) error {
	if err := sc.Validate(); err != nil {
		return err
	}

	x := &exec{app: a, sc: sc}
	total := len(sc.Steps)
	for i, s := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scenario %q stopped after %d of %d steps: %w", sc.Name, i, total, err)
		}
		actions[s.Action].run(x, s)
		if r.OnProgress != nil {
			r.OnProgress(i+1, total, s)
		}
	}
	return nil
}

// Execute opens an App for sc, runs it to completion and returns the
// finalized report summary. The scenario's browser overrides cfg's.
func Execute(ctx context.Context, cfg *config.Config, sc *Scenario, progress Progress, opts ...app.Option) (report.Summary, error) {
	if err := sc.Validate(); err != nil {
		return report.Summary{}, err
	}

	runCfg := *cfg
	if sc.Browser != "" {
		runCfg.Browser = sc.Browser
	}
	info := sc.Info()
	info.Browser = ""

	failer := &RunFailer{}
	a, err := app.New(ctx, failer, &runCfg, info, opts...)
	if err != nil {
		return report.Summary{}, err
	}

	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		runErr = (&Runner{OnProgress: progress}).Run(ctx, a, sc)
	}()
	<-done

	if failer.Stopped() {
		log.Printf("Scenario %q stopped on a failed assert", sc.Name)
	}
	if err := a.Close(); err != nil {
		log.Printf("Warning: failed to finalize report of %q: %v", sc.Name, err)
	}
	summary, _ := a.Summary()
	return summary, runErr
}
