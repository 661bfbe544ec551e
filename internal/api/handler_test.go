package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahrdadan/selenified/internal/api"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/queue"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/gofiber/fiber/v2"
)

// fakeQueue is an in-memory RunQueue
type fakeQueue struct {
	mu       sync.Mutex
	runs     map[string]*queue.Run
	keys     map[string]string
	enqueued int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{runs: map[string]*queue.Run{}, keys: map[string]string{}}
}

func (q *fakeQueue) EnqueueWithIdempotency(run *queue.Run) (*queue.Run, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if id, ok := q.keys[run.IdempotencyKey]; ok && run.IdempotencyKey != "" {
		return q.runs[id], true, nil
	}
	q.enqueued++
	q.runs[run.ID] = run
	if run.IdempotencyKey != "" {
		q.keys[run.IdempotencyKey] = run.ID
	}
	return run, false, nil
}

func (q *fakeQueue) GetRun(id string) (*queue.Run, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	run, ok := q.runs[id]
	if !ok {
		return nil, queue.ErrRunNotFound
	}
	return run, nil
}

func (q *fakeQueue) ListRuns() []*queue.Run {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*queue.Run, 0, len(q.runs))
	for _, run := range q.runs {
		out = append(out, run)
	}
	return out
}

func (q *fakeQueue) CancelRun(id string) (*queue.Run, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	run, ok := q.runs[id]
	if !ok {
		return nil, queue.ErrRunNotFound
	}
	if run.Status.Finished() {
		return nil, fmt.Errorf("%w: %s", queue.ErrRunFinished, id)
	}
	run.SetStatus(queue.RunStatusCanceled)
	return run, nil
}

func (q *fakeQueue) Subscribe(string) <-chan queue.Event {
	ch := make(chan queue.Event)
	close(ch)
	return ch
}

func (q *fakeQueue) Unsubscribe(string, <-chan queue.Event) {}

func (q *fakeQueue) add(name string, status queue.RunStatus) *queue.Run {
	run := queue.NewRun(queue.RunRequest{})
	run.Name = name
	run.SetStatus(status)
	q.mu.Lock()
	q.runs[run.ID] = run
	q.mu.Unlock()
	return run
}

func setupTestApp(t *testing.T, runs api.RunQueue) (*fiber.App, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Normalize()

	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	t.Cleanup(api.SetupRoutes(app, cfg, runs))
	return app, cfg
}

func decode(t *testing.T, resp *http.Response) api.Response {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	var response api.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("Failed to parse response %q: %v", body, err)
	}
	return response
}

const runBody = `{
	"browser": "chrome",
	"timeout": 60,
	"scenario": {
		"name": "Login",
		"url": "https://example.com/login",
		"steps": [
			{"action": "goto"},
			{"action": "type", "locator": {"type": "id", "value": "user"}, "value": "ada"},
			{"action": "title_equals", "value": "Welcome"}
		]
	}
}`

func postRun(t *testing.T, app *fiber.App, body, contentType, key string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("POST", "/selenified/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	if key != "" {
		req.Header.Set("X-Idempotency-Key", key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if response := decode(t, resp); !response.Success {
		t.Errorf("Expected success to be true")
	}
}

func TestBrowserStatus(t *testing.T) {
	app, cfg := setupTestApp(t, nil)
	cfg.Hub = "ws://grid:4444"

	resp, err := app.Test(httptest.NewRequest("GET", "/selenified/browser/status", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Errorf("Expected a request ID header")
	}

	data := decode(t, resp).Data.(map[string]interface{})
	if data["engine"] != "hub" {
		t.Errorf("Expected engine hub, got %v", data["engine"])
	}
	if data["endpoint"] != "ws://grid:4444" {
		t.Errorf("Expected the hub as endpoint, got %v", data["endpoint"])
	}
}

func TestBrowserStatusUnsupportedLocally(t *testing.T) {
	app, cfg := setupTestApp(t, nil)
	cfg.Browser = "FIREFOX"

	resp, err := app.Test(httptest.NewRequest("GET", "/selenified/browser/status", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}

	data := decode(t, resp).Data.(map[string]interface{})
	if data["engine"] != "none" {
		t.Errorf("Expected engine none, got %v", data["engine"])
	}
	if data["error"] == nil {
		t.Errorf("Expected an error explaining the browser cannot run locally")
	}
}

func TestReports(t *testing.T) {
	app, cfg := setupTestApp(t, nil)

	dir := filepath.Join(cfg.OutputDir, "run_1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	html := filepath.Join(dir, "Login_Chrome.html")
	if err := os.WriteFile(html, []byte("<html>Login</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	summary, _ := json.Marshal(report.Summary{Name: "Login", File: html, Outcome: report.SUCCESS, Finished: time.Now()})
	if err := os.WriteFile(report.SummaryFile(html), summary, 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/selenified/reports", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	data := decode(t, resp).Data.(map[string]interface{})
	if data["count"] != float64(1) {
		t.Fatalf("Expected 1 report, got %v", data["count"])
	}
	first := data["reports"].([]interface{})[0].(map[string]interface{})
	if first["file"] != "run_1/Login_Chrome.html" {
		t.Errorf("Expected a relative report path, got %v", first["file"])
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/selenified/reports/run_1/Login_Chrome.html", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html>Login</html>" {
		t.Errorf("Unexpected report body %q", body)
	}
}

func TestRunsDisabled(t *testing.T) {
	app, _ := setupTestApp(t, nil)

	resp := postRun(t, app, runBody, "application/json", "")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}
	if decode(t, resp).Success {
		t.Errorf("Expected success to be false")
	}
}

func TestCreateRun(t *testing.T) {
	runs := newFakeQueue()
	app, _ := setupTestApp(t, runs)

	resp := postRun(t, app, runBody, "application/json", "")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", resp.StatusCode)
	}

	data := decode(t, resp).Data.(map[string]interface{})
	id, _ := data["run_id"].(string)
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("Expected a run ID, got %v", data["run_id"])
	}
	if data["status_url"] != "http://localhost:8000/selenified/runs/"+id {
		t.Errorf("Unexpected status URL %v", data["status_url"])
	}
	events := data["events"].(map[string]interface{})
	if events["ws_url"] != "ws://localhost:8000/selenified/ws?run_id="+id {
		t.Errorf("Unexpected websocket URL %v", events["ws_url"])
	}

	run, err := runs.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Name != "Login" || run.Request.Browser != "chrome" || run.Timeout != 60 {
		t.Errorf("Run was not built from the request: %+v", run)
	}
}

func TestCreateRunYAML(t *testing.T) {
	runs := newFakeQueue()
	app, _ := setupTestApp(t, runs)

	body := "name: Search\nsteps:\n  - action: title_equals\n    value: Search\n"
	req := httptest.NewRequest("POST", "/selenified/runs?browser=edge", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/yaml")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", resp.StatusCode)
	}

	id := decode(t, resp).Data.(map[string]interface{})["run_id"].(string)
	run, _ := runs.GetRun(id)
	if run.Name != "Search" || run.Request.Browser != "edge" {
		t.Errorf("Run was not built from the scenario: %+v", run)
	}
}

func TestCreateRunInvalid(t *testing.T) {
	app, _ := setupTestApp(t, newFakeQueue())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{invalid json}`},
		{"missing scenario name", `{"scenario": {"steps": [{"action": "goto"}]}}`},
		{"no steps", `{"scenario": {"name": "Empty"}}`},
		{"unknown action", `{"scenario": {"name": "X", "steps": [{"action": "fly"}]}}`},
		{"missing locator", `{"scenario": {"name": "X", "steps": [{"action": "click"}]}}`},
		{"screenshot outside report", `{"scenario": {"name": "X", "steps": [{"action": "screenshot", "value": "../x.png"}]}}`},
		{"absolute screenshot", `{"scenario": {"name": "X", "steps": [{"action": "screenshot", "value": "/tmp/x.png"}]}}`},
		{"bad webhook", `{"notify": {"webhook_url": "not a url"}, "scenario": {"name": "X", "steps": [{"action": "goto"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRun(t, app, tt.body, "application/json", "")
			if resp.StatusCode != 400 {
				t.Errorf("Expected status 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCreateRunIdempotent(t *testing.T) {
	runs := newFakeQueue()
	app, _ := setupTestApp(t, runs)

	first := decode(t, postRun(t, app, runBody, "application/json", "key-1")).Data.(map[string]interface{})

	resp := postRun(t, app, runBody, "application/json", "key-1")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Idempotency-Replayed") != "true" {
		t.Errorf("Expected the stored response to be replayed")
	}
	second := decode(t, resp).Data.(map[string]interface{})
	if first["run_id"] != second["run_id"] {
		t.Errorf("Expected the same run, got %v and %v", first["run_id"], second["run_id"])
	}
	if runs.enqueued != 1 {
		t.Errorf("Expected one run to be enqueued, got %d", runs.enqueued)
	}
}

func TestGetRun(t *testing.T) {
	runs := newFakeQueue()
	app, _ := setupTestApp(t, runs)

	run := runs.add("Login", queue.RunStatusQueued)
	run.SetSummary(report.Summary{Name: "Login", Outcome: report.SUCCESS})

	resp, err := app.Test(httptest.NewRequest("GET", "/selenified/runs/"+run.ID, nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	data := decode(t, resp).Data.(map[string]interface{})
	if data["status"] != string(queue.RunStatusPassed) {
		t.Errorf("Expected status passed, got %v", data["status"])
	}
	if data["summary"] == nil {
		t.Errorf("Expected the summary of the finished run")
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/selenified/runs/run_missing", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestListRuns(t *testing.T) {
	runs := newFakeQueue()
	app, _ := setupTestApp(t, runs)
	runs.add("a", queue.RunStatusQueued)
	runs.add("b", queue.RunStatusRunning)
	runs.add("c", queue.RunStatusRunning)

	resp, err := app.Test(httptest.NewRequest("GET", "/selenified/runs?status=running", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	data := decode(t, resp).Data.(map[string]interface{})
	if data["count"] != float64(2) {
		t.Errorf("Expected 2 running runs, got %v", data["count"])
	}
}

func TestCancelRun(t *testing.T) {
	runs := newFakeQueue()
	app, _ := setupTestApp(t, runs)
	queued := runs.add("a", queue.RunStatusQueued)
	passed := runs.add("b", queue.RunStatusPassed)

	tests := []struct {
		id   string
		want int
	}{
		{queued.ID, 200},
		{passed.ID, fiber.StatusConflict},
		{"run_missing", 404},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest("POST", "/selenified/runs/"+tt.id+"/cancel", nil))
		if err != nil {
			t.Fatalf("Failed to test request: %v", err)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.id, tt.want, resp.StatusCode)
		}
	}
	if queued.Status != queue.RunStatusCanceled {
		t.Errorf("Expected the queued run to be canceled, got %s", queued.Status)
	}
}

func TestStreamEventsOfFinishedRun(t *testing.T) {
	runs := newFakeQueue()
	app, _ := setupTestApp(t, runs)
	run := runs.add("a", queue.RunStatusFailed)

	resp, err := app.Test(httptest.NewRequest("GET", "/selenified/runs/"+run.ID+"/events", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected an event stream, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), "event: status\ndata: ") || !strings.Contains(string(body), `"status":"failed"`) {
		t.Errorf("Unexpected stream %q", body)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	app, _ := setupTestApp(t, newFakeQueue())

	resp, err := app.Test(httptest.NewRequest("GET", "/selenified/ws?run_id=run_1", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Expected status 426, got %d", resp.StatusCode)
	}
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/plain", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}
	if response := decode(t, resp); response.Error != "boom" {
		t.Errorf("Expected the error message, got %q", response.Error)
	}
}
