// Package app ties a browser session to a test report. An App is what a test
// drives: page-level actions, element creation, and page checks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ahrdadan/selenified/internal/browser"
	"github.com/ahrdadan/selenified/internal/check"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/element"
	"github.com/ahrdadan/selenified/internal/locator"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// screenshotTimeout bounds a single screenshot capture
const screenshotTimeout = 10 * time.Second

// Option customizes an App
type Option func(*App)

// WithSink publishes every report step to sink
func WithSink(sink report.Sink) Option {
	return func(a *App) { a.sink = sink }
}

// WithPageTimeout bounds navigation and other page operations
func WithPageTimeout(d time.Duration) Option {
	return func(a *App) { a.pageTimeout = d }
}

// App is a test's browser session plus its report
type App struct {
	ctx         context.Context
	cfg         *config.Config
	failer      check.Failer
	kind        browser.Browser
	session     *browser.Session
	rep         *report.Report
	sink        report.Sink
	pageTimeout time.Duration

	mu      sync.Mutex
	tabs    []*rod.Page
	current int
	parent  *rod.Page
	frames  []*rod.Page
	dialogs map[string]*dialogWatcher
	seen    map[proto.TargetTargetID]bool // windows that are not new
	prompt  *string

	closeOnce sync.Once
	closeErr  error
}

// New opens the browser named in cfg and creates the test's report. The App is
// closed when the test finishes if tb supports Cleanup.
func New(ctx context.Context, tb check.Failer, cfg *config.Config, info report.Info, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	kind, err := browser.Lookup(cfg.Browser)
	if err != nil {
		return nil, err
	}

	a := &App{
		ctx:         ctx,
		cfg:         cfg,
		failer:      tb,
		kind:        kind,
		pageTimeout: 30 * time.Second,
		dialogs:     make(map[string]*dialogWatcher),
		seen:        make(map[proto.TargetTargetID]bool),
	}
	for _, opt := range opts {
		opt(a)
	}

	session, err := browser.Open(ctx, browser.Options{
		Browser:   kind,
		Hub:       cfg.Hub,
		Headless:  cfg.Headless,
		Proxy:     cfg.Proxy,
		ChromeBin: cfg.ChromeBin,
	})
	if err != nil && !errors.Is(err, browser.ErrNoSession) {
		return nil, fmt.Errorf("failed to open %s: %w", kind, err)
	}
	a.session = session

	if a.session != nil {
		page, err := a.session.NewPage(ctx)
		if err != nil {
			a.session.Close()
			return nil, err
		}
		a.tabs = []*rod.Page{page}
		if pages, err := a.session.Pages(); err == nil {
			for _, p := range pages {
				a.seen[p.TargetID] = true
			}
		}
		a.watcher()
	}

	if info.Browser == "" {
		info.Browser = kind.String()
	}
	if info.URL == "" {
		info.URL = cfg.AppURL
	}
	a.rep, err = report.New(info, report.Options{
		OutputDir:      cfg.OutputDir,
		Screenshotter:  pageScreenshotter{a},
		RealBrowser:    a.session != nil && kind.IsReal(),
		Sink:           a.sink,
		PackageResults: cfg.PackageResults,
		GeneratePDF:    cfg.GeneratePDF,
	})
	if err != nil {
		if a.session != nil {
			a.session.Close()
		}
		return nil, err
	}

	if c, ok := tb.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { a.Close() })
	}

	if info.URL != "" && a.session != nil {
		a.GoToURL(info.URL)
	}
	return a, nil
}

// Close fails the test if soft checks failed, kills the browser, and finalizes
// the report. It is safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		check.Teardown(a.rep, a.failer)
		a.KillDriver()
		_, a.closeErr = a.rep.Finalize(a.status())
	})
	return a.closeErr
}

// KillDriver closes the browser session. Later page operations record failures.
func (a *App) KillDriver() {
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.tabs = nil
	a.frames = nil
	for id, w := range a.dialogs {
		w.stop()
		delete(a.dialogs, id)
	}
	a.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			log.Printf("Warning: failed to close %s: %v", a.kind, err)
		}
	}
}

func (a *App) status() report.Result {
	if f, ok := a.failer.(interface{ Skipped() bool }); ok && f.Skipped() {
		return report.SKIPPED
	}
	if f, ok := a.failer.(interface{ Failed() bool }); ok && f.Failed() {
		return report.FAILURE
	}
	return report.SUCCESS
}

// Report returns the test's report
func (a *App) Report() *report.Report { return a.rep }

// Failer returns what failed assertions are reported to
func (a *App) Failer() check.Failer { return a.failer }

// Config returns the run configuration
func (a *App) Config() *config.Config { return a.cfg }

// Browser returns the browser the test runs in
func (a *App) Browser() browser.Browser { return a.kind }

// Summary returns the report summary, available once the App is closed
func (a *App) Summary() (report.Summary, bool) { return a.rep.Summary() }

// Page returns the frame or tab elements are looked up in. It is nil without a
// browser, and while an open dialog blocks the page.
func (a *App) Page() *rod.Page {
	if a.openDialog() != nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.frames); n > 0 {
		return a.frames[n-1]
	}
	return a.tabLocked()
}

// tab returns the current tab, ignoring frames
func (a *App) tab() *rod.Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tabLocked()
}

func (a *App) tabLocked() *rod.Page {
	if a.current < 0 || a.current >= len(a.tabs) {
		return nil
	}
	return a.tabs[a.current]
}

// SwitchFrame makes frame the page that elements are looked up in
func (a *App) SwitchFrame(frame *rod.Page) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames = append(a.frames, frame)
}

// NewElement creates an element for the first match of a locator, or for the
// given match when one is passed
func (a *App) NewElement(typ locator.Type, loc string, match ...int) *element.Element {
	if len(match) > 0 {
		return element.NewMatch(a, typ, loc, match[0])
	}
	return element.New(a, typ, loc)
}

// Interact runs fn and returns as soon as it finishes or it opens a JavaScript
// dialog, which would otherwise block fn until the dialog is handled
func (a *App) Interact(fn func() error) error {
	w := a.watcher()
	if w == nil {
		return fn()
	}
	w.drain()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-w.opened:
		return nil
	}
}

// Get returns the page-level probes
func (a *App) Get() *Get { return &Get{app: a} }

// Is returns the page-level boolean probes
func (a *App) Is() *Is { return &Is{app: a} }

// Assert returns page checks that stop the test on failure
func (a *App) Assert() *Checks { return a.checks(check.Assert) }

// Verify returns page checks that record failures and let the test continue
func (a *App) Verify() *Checks { return a.checks(check.Verify) }

// WaitFor returns page checks that poll until they pass or the default wait elapses
func (a *App) WaitFor() *Checks { return a.checks(check.WaitFor) }

func (a *App) checks(kind check.Kind) *Checks {
	c := check.New(kind, a.rep, a.failer).Every(a.cfg.PollInterval)
	if kind == check.WaitFor {
		c = c.Within(a.cfg.DefaultWait)
	}
	return &Checks{app: a, checker: c}
}

// pageScreenshotter captures the current tab for the report
type pageScreenshotter struct {
	app *App
}

func (s pageScreenshotter) Capture() ([]byte, error) {
	page := s.app.tab()
	if page == nil {
		return nil, browser.ErrNoSession
	}
	if d := s.app.openDialog(); d != nil {
		return nil, fmt.Errorf("a %s is open", d.kind())
	}
	return page.Timeout(screenshotTimeout).Screenshot(false, nil)
}
