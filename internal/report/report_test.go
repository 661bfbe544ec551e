package report

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScreenshotter struct {
	data []byte
	err  error
}

func (f fakeScreenshotter) Capture() ([]byte, error) {
	return f.data, f.err
}

type collectingSink struct {
	mu    sync.Mutex
	steps []Step
}

func (s *collectingSink) Publish(step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func newReport(t *testing.T, opts Options) *Report {
	t.Helper()
	opts.OutputDir = t.TempDir()
	r, err := New(Info{
		Name:    "Login works",
		Suite:   "Smoke",
		Group:   "auth",
		Version: "1",
		Author:  "qa",
		URL:     "http://localhost/",
		Browser: "NONE",
	}, opts)
	require.NoError(t, err)
	return r
}

func load(t *testing.T, path string) *goquery.Document {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	return doc
}

func TestHeaderPlaceholders(t *testing.T) {
	r := newReport(t, Options{})

	data, err := os.ReadFile(r.File())
	require.NoError(t, err)
	content := string(data)

	for _, placeholder := range []string{"PASSORFAIL", "STEPSPERFORMED", "STEPSPASSED", "STEPSFAILED", "TIMEFINISHED", "RUNTIME"} {
		assert.Contains(t, content, placeholder)
	}
	assert.Contains(t, content, "function toggleVis")
	assert.Contains(t, content, "id='all_results'")
	assert.Equal(t, "Login_works_NONE.html", filepath.Base(r.File()))
}

func TestRecordActionStatuses(t *testing.T) {
	r := newReport(t, Options{})

	r.RecordAction("Clicking <i>button</i>", "Button is clicked", "Button clicked", SUCCESS)
	r.RecordAction("Typing", "Text entered", "Field disabled", FAILURE)
	r.RecordAction("Scrolling", "Page scrolled", "Nothing to scroll", WARNING)

	steps := r.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, StatusPass, steps[0].Status)
	assert.Equal(t, "success", steps[0].Result)
	assert.Equal(t, StatusFail, steps[1].Status)
	assert.Equal(t, StatusCheck, steps[2].Status)
	assert.Equal(t, 1, r.Passes())
	assert.Equal(t, 1, r.Fails())
	assert.Equal(t, 1, r.Checks())
	assert.Equal(t, []int{1, 2, 3}, []int{steps[0].Number, steps[1].Number, steps[2].Number})
}

func TestRecordCheckWithWait(t *testing.T) {
	r := newReport(t, Options{})

	r.RecordExpectedWait("Element is present", 5*time.Second)
	r.RecordActualWait("Element is present", 250*time.Millisecond, PASS)

	steps := r.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, "Waiting up to 5.0 seconds Element is present", steps[0].Expected)
	assert.Equal(t, "After waiting for 0.25 seconds, element is present", steps[0].Actual)
	assert.Equal(t, StatusPass, steps[0].Status)
}

func TestScreenshotsOnlyForRealBrowsers(t *testing.T) {
	shots := fakeScreenshotter{data: []byte("png")}

	r := newReport(t, Options{Screenshotter: shots})
	r.RecordAction("Clicking", "clicked", "missing", FAILURE)
	assert.Empty(t, r.Steps()[0].Screenshot)

	live := newReport(t, Options{Screenshotter: shots, RealBrowser: true})
	live.RecordAction("Clicking", "clicked", "clicked", SUCCESS)
	live.RecordAction("Clicking", "clicked", "missing", FAILURE)
	steps := live.Steps()
	assert.Empty(t, steps[0].Screenshot)
	require.NotEmpty(t, steps[1].Screenshot)
	assert.Contains(t, steps[1].Actual, "toggleImage(\""+steps[1].Screenshot+"\")")

	data, err := os.ReadFile(filepath.Join(live.Dir(), steps[1].Screenshot))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestScreenshotFailureIsReported(t *testing.T) {
	r := newReport(t, Options{Screenshotter: fakeScreenshotter{err: errors.New("no page")}, RealBrowser: true})

	r.RecordExpected("Title is Home")
	r.RecordActual("Title is About", FAIL)

	step := r.Steps()[0]
	assert.Empty(t, step.Screenshot)
	assert.True(t, strings.HasSuffix(step.Actual, noScreenshot))
}

func TestFinalizeSuccess(t *testing.T) {
	r := newReport(t, Options{})
	r.RecordAction("Open", "opened", "opened", SUCCESS)
	r.RecordExpected("Title is Home")
	r.RecordActual("Title is Home", PASS)

	summary, err := r.Finalize(SUCCESS)
	require.NoError(t, err)
	assert.Equal(t, SUCCESS, summary.Outcome)
	assert.True(t, summary.Succeeded())
	assert.Equal(t, 2, summary.Steps)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, "00:00:00", summary.Runtime)

	doc := load(t, r.File())
	assert.Equal(t, "SUCCESS", doc.Find("font.pass b").First().Text())
	assert.Equal(t, 2, doc.Find("#all_results td.pass").Length())

	data, err := os.ReadFile(r.File())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "PASSORFAIL")
	assert.NotContains(t, string(data), "RUNTIME")
	assert.True(t, strings.HasSuffix(string(data), "</html>\n"))
}

func TestFinalizeKeepsPlaceholderWordsInInfo(t *testing.T) {
	r, err := New(Info{Name: "STEPSPASSED RUNTIME", Objectives: "PASSORFAIL", Browser: "NONE"},
		Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	r.RecordAction("Open", "opened", "opened", SUCCESS)

	_, err = r.Finalize(SUCCESS)
	require.NoError(t, err)

	doc := load(t, r.File())
	assert.Equal(t, "STEPSPASSED RUNTIME", doc.Find("title").Text())

	data, err := os.ReadFile(r.File())
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Run Time: 00:00:00")
	assert.Contains(t, content, "<td colspan=3>PASSORFAIL</td>")
	assert.NotContains(t, content, "<!--")
}

func TestFinalizeWithErrorsFails(t *testing.T) {
	r := newReport(t, Options{})
	r.RecordAction("Open", "opened", "opened", SUCCESS)
	r.AddError()

	summary, err := r.Finalize(SUCCESS)
	require.NoError(t, err)
	assert.Equal(t, FAILURE, summary.Outcome)
	assert.Equal(t, 1, summary.Errors)

	doc := load(t, r.File())
	assert.Equal(t, "FAILURE", doc.Find("font.fail b").First().Text())
}

func TestFinalizeWarningStatus(t *testing.T) {
	r := newReport(t, Options{})

	summary, err := r.Finalize(SKIPPED)
	require.NoError(t, err)
	assert.Equal(t, SKIPPED, summary.Outcome)

	doc := load(t, r.File())
	assert.Equal(t, "SKIPPED", doc.Find("font.warning b").First().Text())
}

func TestFinalizeIsIdempotent(t *testing.T) {
	sink := &collectingSink{}
	r := newReport(t, Options{Sink: sink})
	r.RecordExpected("never answered")

	first, err := r.Finalize(SUCCESS)
	require.NoError(t, err)
	second, err := r.Finalize(FAILURE)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, first.Checks)
	assert.Len(t, sink.steps, 1)

	got, ok := r.Summary()
	assert.True(t, ok)
	assert.Equal(t, first.RunID, got.RunID)
}

func TestPackageResults(t *testing.T) {
	r := newReport(t, Options{
		Screenshotter:  fakeScreenshotter{data: []byte("png")},
		RealBrowser:    true,
		PackageResults: true,
	})
	r.RecordAction("Click", "clicked", "missing", FAILURE)

	summary, err := r.Finalize(SUCCESS)
	require.NoError(t, err)
	require.NotEmpty(t, summary.Package)
	assert.Equal(t, "Login_works_NONE_RESULTS.zip", filepath.Base(summary.Package))

	zr, err := zip.OpenReader(summary.Package)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "Login_works_NONE.html")
	assert.Contains(t, names, summary.Screenshots[0])
}

func TestGeneratePDF(t *testing.T) {
	r := newReport(t, Options{GeneratePDF: true})
	r.RecordAction("Typing <b>admin</b>", "Text entered", "Text entered", SUCCESS)

	summary, err := r.Finalize(SUCCESS)
	require.NoError(t, err)
	require.NotEmpty(t, summary.PDF)

	data, err := os.ReadFile(summary.PDF)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestFormatHTML(t *testing.T) {
	assert.Equal(t, "a&nbsp;b<br/>c", FormatHTML("a b\nc"))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Typing admin", plainText("Typing <b>admin</b>"+imageLink("x.png")))
}

func TestImageName(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	name := ImageName(at)
	assert.True(t, strings.HasPrefix(name, "1700000000123_"))
	assert.True(t, strings.HasSuffix(name, ".png"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(name, "1700000000123_"), ".png"), 10)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "01:02:03", formatClock(time.Hour+2*time.Minute+3*time.Second))
}

func TestListSummaries(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"First", "Second"} {
		r, err := New(Info{Name: name, Browser: "NONE"}, Options{OutputDir: filepath.Join(dir, name)})
		require.NoError(t, err)
		r.RecordAction("Open", "opened", "opened", SUCCESS)
		_, err = r.Finalize(SUCCESS)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.json"), []byte(`{"name":"x"}`), 0644))

	summaries, err := ListSummaries(dir)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Second", summaries[0].Name)
	assert.Equal(t, "Second/Second_NONE.html", summaries[0].File)
	assert.FileExists(t, SummaryFile(filepath.Join(dir, "First", "First_NONE.html")))

	none, err := ListSummaries(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
