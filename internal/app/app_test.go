package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/locator"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFailer struct {
	errors []string
	failed bool
}

func (f *fakeFailer) Helper() {}

func (f *fakeFailer) Errorf(format string, args ...any) {
	f.errors = append(f.errors, fmt.Sprintf(format, args...))
	f.failed = true
}

func (f *fakeFailer) FailNow() { f.failed = true }

func (f *fakeFailer) Failed() bool { return f.failed }

func testConfig(t *testing.T, browser string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Browser = browser
	cfg.OutputDir = t.TempDir()
	cfg.DefaultWait = 100 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func newApp(t *testing.T) (*App, *fakeFailer) {
	t.Helper()
	f := &fakeFailer{}
	a, err := New(context.Background(), f, testConfig(t, "NONE"), report.Info{Name: "app"})
	require.NoError(t, err)
	return a, f
}

func lastStep(t *testing.T, a *App) report.Step {
	t.Helper()
	steps := a.Report().Steps()
	require.NotEmpty(t, steps)
	return steps[len(steps)-1]
}

func TestNewRejectsUnknownBrowser(t *testing.T) {
	_, err := New(context.Background(), &fakeFailer{}, testConfig(t, "NETSCAPE"), report.Info{Name: "app"})
	assert.Error(t, err)
}

func TestWithoutBrowser(t *testing.T) {
	a, _ := newApp(t)

	assert.Nil(t, a.Page())
	assert.Equal(t, "NONE", a.Report().Info().Browser)
	assert.Empty(t, a.Get().Title())
	assert.Empty(t, a.Get().AllCookies())
	assert.False(t, a.Is().AlertPresent())
	assert.False(t, a.NewElement(locator.ID, "x").Is().Present())
}

func TestWait(t *testing.T) {
	a, _ := newApp(t)

	a.Wait(0.02)

	step := lastStep(t, a)
	assert.Equal(t, "Wait 0.02 seconds", step.Action)
	assert.Equal(t, report.StatusPass, step.Status)
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, &fakeFailer{}, testConfig(t, "NONE"), report.Info{Name: "app"})
	require.NoError(t, err)
	cancel()

	a.Wait(5)

	step := lastStep(t, a)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.Contains(t, step.Actual, "Failed to wait 5.0 seconds")
}

func TestGoToURLWithoutBrowser(t *testing.T) {
	a, _ := newApp(t)

	a.GoToURL("https://example.com")

	step := lastStep(t, a)
	assert.Equal(t, "Loading https://example.com", step.Action)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.Contains(t, step.Actual, "Fail to Load https://example.com. ")
	assert.Equal(t, 1, a.Report().Errors())
}

func TestPageChecksWithoutBrowser(t *testing.T) {
	a, f := newApp(t)

	assert.Empty(t, a.Verify().TitleEquals("Home"))
	step := lastStep(t, a)
	assert.Equal(t, "Expected to be on page with the title of <i>Home</i>", step.Expected)
	assert.Equal(t, "The page title reads <b></b>", step.Actual)
	assert.Equal(t, report.StatusFail, step.Status)

	assert.False(t, a.Verify().AlertNotPresent())
	assert.Equal(t, report.StatusPass, lastStep(t, a).Status)
	assert.Equal(t, "No alert is present on the page", lastStep(t, a).Actual)

	assert.False(t, a.Verify().CookieNotExists("session"))
	assert.Equal(t, "No cookie with the name <b>session</b> is stored for the page", lastStep(t, a).Actual)

	a.Verify().TitleMatches("(")
	assert.Contains(t, lastStep(t, a).Actual, "is not valid")

	assert.False(t, f.failed)
	a.Assert().PromptPresent()
	assert.True(t, f.failed)
	require.Len(t, f.errors, 1)
	assert.Contains(t, f.errors[0], "Expected to find a prompt on the page")
}

func TestWaitForTimesOut(t *testing.T) {
	a, f := newApp(t)

	start := time.Now()
	a.WaitFor().Within(30 * time.Millisecond).ConfirmationPresent()
	assert.Less(t, time.Since(start), time.Second)

	step := lastStep(t, a)
	assert.Equal(t, "Waiting up to 0.03 seconds Expected to find a confirmation on the page", step.Expected)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.False(t, f.failed)
}

func TestCloseFinalizesOnce(t *testing.T) {
	a, f := newApp(t)
	a.Verify().URLEquals("https://example.com/")

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	summary, ok := a.Summary()
	require.True(t, ok)
	assert.Equal(t, report.FAILURE, summary.Status)
	assert.Equal(t, report.FAILURE, summary.Outcome)
	assert.Equal(t, 1, summary.Errors)
	require.Len(t, f.errors, 1)
	assert.Contains(t, f.errors[0], "1 check(s) failed")
}

func TestCloseSucceeds(t *testing.T) {
	a, f := newApp(t)
	a.Verify().CookieNotExists("session")

	require.NoError(t, a.Close())
	summary, ok := a.Summary()
	require.True(t, ok)
	assert.True(t, summary.Succeeded())
	assert.Empty(t, f.errors)
}

func TestMatches(t *testing.T) {
	ok, bad := matches(`\d+ items`, "12 items")
	assert.True(t, ok)
	assert.Empty(t, bad)

	ok, _ = matches(`\d+`, "12 items")
	assert.False(t, ok)

	_, bad = matches("[", "x")
	assert.Contains(t, bad, "The pattern <b>[</b> is not valid")
}

const dialogPage = `<!DOCTYPE html>
<html><head><title>Dialogs</title></head><body>
<p>Hello there</p>
<button id="alert" onclick="alert('Hi')">Alert</button>
<button id="confirm" onclick="document.getElementById('out').textContent = confirm('Sure?')">Confirm</button>
<button id="prompt" onclick="document.getElementById('out').textContent = prompt('Name?')">Prompt</button>
<div id="out"></div>
<iframe name="inner" srcdoc="<p id='deep'>Inside</p>"></iframe>
</body></html>`

func TestAppInBrowser(t *testing.T) {
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no Chromium found")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "visited", Value: "yes"})
		fmt.Fprint(w, dialogPage)
	}))
	t.Cleanup(srv.Close)

	f := &fakeFailer{}
	cfg := testConfig(t, "CHROME")
	a, err := New(context.Background(), f, cfg, report.Info{Name: "dialogs", URL: srv.URL})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, "Dialogs", a.Verify().TitleEquals("Dialogs"))
	assert.True(t, a.Verify().TextPresent("Hello there"))
	assert.Equal(t, "yes", a.Verify().CookieEquals("visited", "yes"))

	a.NewElement(locator.ID, "alert").Click()
	assert.Equal(t, "Hi", a.WaitFor().AlertEquals("Hi"))
	assert.False(t, a.Is().ConfirmationPresent())
	a.AcceptAlert()
	a.Verify().AlertNotPresent()

	a.NewElement(locator.ID, "confirm").Click()
	a.WaitFor().ConfirmationMatches("Sure.")
	a.DismissConfirmation()
	a.NewElement(locator.ID, "out").WaitFor().TextEquals("false")

	a.NewElement(locator.ID, "prompt").Click()
	a.WaitFor().PromptPresent()
	a.TypeIntoPrompt("Ada")
	a.AcceptPrompt()
	a.NewElement(locator.ID, "out").WaitFor().TextEquals("Ada")

	a.SelectFrameName("inner")
	a.NewElement(locator.ID, "deep").Verify().TextEquals("Inside")
	a.SelectMainWindow()
	a.NewElement(locator.ID, "out").Verify().Present()

	a.DeleteCookie("visited")
	a.Verify().CookieNotExists("visited")

	assert.Equal(t, 0, a.Report().Errors(), "%v", a.Report().Steps())
}
