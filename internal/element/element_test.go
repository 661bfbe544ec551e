package element

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahrdadan/selenified/internal/check"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/locator"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
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
}

func (f *fakeFailer) FailNow() { f.failed = true }

type testContext struct {
	page   *rod.Page
	rep    *report.Report
	failer *fakeFailer
	cfg    *config.Config
}

func (c *testContext) Page() *rod.Page { return c.page }
func (c *testContext) Report() *report.Report { return c.rep }
func (c *testContext) Failer() check.Failer { return c.failer }
func (c *testContext) Config() *config.Config { return c.cfg }
func (c *testContext) Interact(fn func() error) error { return fn() }
func (c *testContext) SwitchFrame(frame *rod.Page) { c.page = frame }

func newContext(t *testing.T, page *rod.Page) *testContext {
	t.Helper()
	rep, err := report.New(report.Info{Name: "element", Browser: "NONE"}, report.Options{OutputDir: t.TempDir()})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.DefaultWait = 100 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	return &testContext{page: page, rep: rep, failer: &fakeFailer{}, cfg: cfg}
}

func lastStep(t *testing.T, rep *report.Report) report.Step {
	t.Helper()
	steps := rep.Steps()
	require.NotEmpty(t, steps)
	return steps[len(steps)-1]
}

func TestPrettyOutput(t *testing.T) {
	ctx := newContext(t, nil)

	el := New(ctx, locator.ID, "login")
	assert.Equal(t, "Element with <i>ID</i> of <i>login</i>", el.PrettyOutputStart())
	assert.Equal(t, " element with <i>ID</i> of <i>login</i> ", el.PrettyOutput())
	assert.Equal(t, "element with <i>ID</i> of <i>login</i>.", el.PrettyOutputEnd())

	row := NewMatch(ctx, locator.TAGNAME, "tr", 2)
	child := New(nil, locator.CSS, "form").FindChild(row)
	assert.Equal(t, "Element with <i>TAGNAME</i> of <i>tr</i> and match of <i>2</i>", row.PrettyOutputStart())
	assert.Equal(t, row.Locator(), child.Locator())
	require.NotNil(t, child.Parent())
	assert.Contains(t, child.PrettyOutputStart(), " within element with <i>CSS</i> of <i>form</i>")

	assert.Equal(t, 0, NewMatch(ctx, locator.ID, "x", -3).Match())
}

func TestAbsentElementProbes(t *testing.T) {
	el := New(newContext(t, nil), locator.ID, "missing")

	assert.False(t, el.Is().Present())
	assert.False(t, el.Is().Displayed())
	assert.False(t, el.Is().Enabled())
	assert.Equal(t, 0, el.Get().MatchCount())
	assert.Empty(t, el.Get().Text())
	assert.Nil(t, el.Get().SelectOptions())
	assert.Nil(t, el.Get().AllAttributes())

	_, ok := el.Get().Attribute("class")
	assert.False(t, ok)
}

func TestActionOnAbsentElementFails(t *testing.T) {
	ctx := newContext(t, nil)
	el := New(ctx, locator.ID, "submit")

	el.Click()

	step := lastStep(t, ctx.rep)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.Equal(t, "Unable to click  element with <i>ID</i> of <i>submit</i>  as it is not present", step.Actual)
	assert.Equal(t, 1, ctx.rep.Errors())
	assert.False(t, ctx.failer.failed)
}

func TestVerifyRecordsWithoutStopping(t *testing.T) {
	ctx := newContext(t, nil)
	el := New(ctx, locator.ID, "missing")

	assert.False(t, el.Verify().Present())
	assert.False(t, el.Verify().NotPresent())

	steps := ctx.rep.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, report.StatusFail, steps[0].Status)
	assert.Equal(t, "Element with <i>ID</i> of <i>missing</i> is not present on the page", steps[0].Actual)
	assert.Equal(t, report.StatusPass, steps[1].Status)
	assert.Equal(t, 1, ctx.rep.Errors())
	assert.False(t, ctx.failer.failed)
}

func TestValueCheckNeedsElement(t *testing.T) {
	ctx := newContext(t, nil)
	el := New(ctx, locator.ID, "name")

	assert.Empty(t, el.Verify().ValueEquals("bob"))
	step := lastStep(t, ctx.rep)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.Contains(t, step.Actual, "is not present on the page")
}

func TestAssertStopsTest(t *testing.T) {
	ctx := newContext(t, nil)

	New(ctx, locator.CSS, ".banner").Assert().Displayed()

	assert.True(t, ctx.failer.failed)
	require.Len(t, ctx.failer.errors, 1)
	assert.Contains(t, ctx.failer.errors[0], "is not present on the page")
}

func TestWaitForUsesWithin(t *testing.T) {
	ctx := newContext(t, nil)
	el := New(ctx, locator.ID, "spinner")

	start := time.Now()
	assert.False(t, el.WaitFor().Within(30*time.Millisecond).NotPresent())
	assert.Less(t, time.Since(start), time.Second)

	el.WaitFor().Within(30 * time.Millisecond).Present()
	step := lastStep(t, ctx.rep)
	assert.Equal(t, "Waiting up to 0.03 seconds  element with <i>ID</i> of <i>spinner</i>  is present on the page", step.Expected)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.False(t, ctx.failer.failed)
}

func TestParseTable(t *testing.T) {
	rows := parseTable(`<table>
		<tr><th>Name</th><th>Role</th></tr>
		<tr><td> Ada </td><td><table><tr><td>nested</td></tr></table>Admin</td></tr>
	</table>`)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Name", "Role"}, rows[0])
	assert.Equal(t, "Ada", rows[1][0])
	assert.Contains(t, rows[1][1], "Admin")
}

func TestFullMatch(t *testing.T) {
	re, err := fullMatch("Wel.*")
	require.NoError(t, err)
	assert.True(t, re.MatchString("Welcome"))
	assert.False(t, re.MatchString("A Welcome"))

	_, err = fullMatch("(")
	assert.Error(t, err)
}

const fixture = `<!DOCTYPE html>
<html><body>
<h1 id="title" class="big header">Welcome</h1>
<input id="name" value="">
<input id="hidden" style="display:none">
<button id="off" disabled>Off</button>
<select id="color"><option value="r">Red</option><option value="g">Green</option></select>
<input id="locked" value="fixed" readonly>
<div style="position:relative">
<button id="under">Under</button>
<div id="overlay" style="position:absolute;top:0;left:0;width:300px;height:100px;background:#fff"></div>
</div>
<table id="grid"><tr><th>A</th><th>B</th></tr><tr><td>1</td><td>2</td></tr></table>
</body></html>`

func newPage(t *testing.T) *rod.Page {
	t.Helper()
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chromium found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fixture)
	}))
	t.Cleanup(srv.Close)

	l := launcher.New().Bin(bin).Headless(true).NoSandbox(true)
	u, err := l.Launch()
	require.NoError(t, err)
	b := rod.New().ControlURL(u)
	require.NoError(t, b.Connect())
	t.Cleanup(func() {
		_ = b.Close()
		l.Kill()
	})

	page, err := b.Page(proto.TargetCreateTarget{URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, page.WaitLoad())
	return page
}

func TestElementsInBrowser(t *testing.T) {
	page := newPage(t)
	ctx := newContext(t, page)

	title := New(ctx, locator.ID, "title")
	assert.Equal(t, "Welcome", title.Verify().TextEquals("Welcome"))
	assert.Equal(t, "big header", title.Verify().ClassContains("big"))
	title.Verify().TextMatches("Wel.*")
	assert.Equal(t, `id("title")`, title.Get().XPath())

	name := New(ctx, locator.ID, "name")
	name.Type("bob")
	assert.Equal(t, report.StatusPass, lastStep(t, ctx.rep).Status)
	assert.Equal(t, "bob", name.Verify().ValueEquals("bob"))
	name.Clear()
	assert.Empty(t, name.Get().Value())

	New(ctx, locator.ID, "hidden").Type("secret")
	assert.Equal(t, "warning", lastStep(t, ctx.rep).Result)
	assert.Contains(t, lastStep(t, ctx.rep).Actual, "THIS ELEMENT WAS NOT DISPLAYED")

	New(ctx, locator.ID, "off").Click()
	assert.Contains(t, lastStep(t, ctx.rep).Actual, "as it is not enabled")

	color := New(ctx, locator.ID, "color")
	color.SelectOption("Green")
	assert.Equal(t, "g", color.Verify().SelectedValueEquals("g"))
	color.SelectOption("Blue")
	assert.Contains(t, lastStep(t, ctx.rep).Actual, "Available options are")
	assert.Equal(t, []string{"Red", "Green"}, color.Verify().SelectOptionsEqual("Red", "Green"))

	grid := New(ctx, locator.ID, "grid")
	assert.Equal(t, 2, grid.Verify().RowCount(2))
	assert.Equal(t, 2, grid.Verify().ColumnCount(2))
	assert.Equal(t, "2", grid.Verify().CellEquals(1, 1, "2"))
	assert.Equal(t, []string{"A", "1"}, grid.Get().TableColumn(0))

	// disabled Click and missing option; the hidden Type is only a warning
	assert.Equal(t, 2, ctx.rep.Errors())
}

func TestActionsFailWithinDefaultWait(t *testing.T) {
	page := newPage(t)
	ctx := newContext(t, page)

	start := time.Now()
	New(ctx, locator.ID, "locked").Type("more")
	step := lastStep(t, ctx.rep)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.Contains(t, step.Actual, "as it is not editable")
	assert.Equal(t, "fixed", New(ctx, locator.ID, "locked").Get().Value())

	New(ctx, locator.ID, "locked").Clear()
	assert.Contains(t, lastStep(t, ctx.rep).Actual, "as it is not editable")

	New(ctx, locator.ID, "under").Click()
	step = lastStep(t, ctx.rep)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.Contains(t, step.Actual, "Unable to click")
	assert.Less(t, time.Since(start), 10*time.Second)

	New(ctx, locator.ID, "color").Type("Green")
	step = lastStep(t, ctx.rep)
	assert.Equal(t, report.StatusFail, step.Status)
	assert.Contains(t, step.Actual, "as it is not an input")

	assert.Len(t, ctx.rep.Steps(), 4)
	assert.Equal(t, 4, ctx.rep.Errors())
}
