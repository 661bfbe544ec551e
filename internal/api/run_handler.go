package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahrdadan/selenified/internal/queue"
	"github.com/ahrdadan/selenified/internal/scenario"
	"github.com/ahrdadan/selenified/internal/security"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RunQueue is the part of queue.Manager the run endpoints use
type RunQueue interface {
	EnqueueWithIdempotency(run *queue.Run) (*queue.Run, bool, error)
	GetRun(id string) (*queue.Run, error)
	ListRuns() []*queue.Run
	CancelRun(id string) (*queue.Run, error)
	Subscribe(runID string) <-chan queue.Event
	Unsubscribe(runID string, ch <-chan queue.Event)
}

var validate = validator.New()

// RunHandler handles run-related API requests
type RunHandler struct {
	runs             RunQueue
	idempotencyStore *security.IdempotencyStore
	baseURL          string
}

// NewRunHandler creates a run handler. A nil store disables response replay.
func NewRunHandler(runs RunQueue, idempotencyStore *security.IdempotencyStore, baseURL string) *RunHandler {
	return &RunHandler{
		runs:             runs,
		idempotencyStore: idempotencyStore,
		baseURL:          baseURL,
	}
}

// parseRunRequest reads a RunRequest from JSON, or a bare scenario from YAML
// with the run options taken from the query string
func parseRunRequest(c *fiber.Ctx) (queue.RunRequest, error) {
	var req queue.RunRequest
	if security.IsYAML(c) {
		sc, err := scenario.Parse(c.Body())
		if err != nil {
			return req, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.Scenario = *sc
		req.Browser = c.Query("browser")
		req.Timeout = c.QueryInt("timeout")
		return req, nil
	}

	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := req.Scenario.Validate(); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return req, nil
}

// CreateRun queues a scenario
// POST /selenified/runs
func (h *RunHandler) CreateRun(c *fiber.Ctx) error {
	req, err := parseRunRequest(c)
	if err != nil {
		return err
	}

	key := c.Get(security.IdempotencyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}
	req.IdempotencyKey = key

	run, duplicate, err := h.runs.EnqueueWithIdempotency(queue.NewRun(req))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("Failed to enqueue run: %v", err))
	}

	response := queue.RunCreatedResponse{
		RunID:     run.ID,
		Status:    run.Status,
		StatusURL: h.url("/selenified/runs/" + run.ID),
	}
	response.Events.SSEURL = h.url("/selenified/runs/" + run.ID + "/events")
	response.Events.WSURL = h.wsURL("/selenified/ws?run_id=" + run.ID)

	if duplicate {
		c.Set("X-Idempotency-Hit", "true")
	} else if key != "" && h.idempotencyStore != nil {
		h.idempotencyStore.Store(key, run.ID, response)
	}

	return c.Status(fiber.StatusAccepted).JSON(Response{
		Success: true,
		Data:    response,
	})
}

func (h *RunHandler) url(path string) string {
	return h.baseURL + path
}

func (h *RunHandler) wsURL(path string) string {
	if rest, ok := strings.CutPrefix(h.baseURL, "https://"); ok {
		return "wss://" + rest + path
	}
	if rest, ok := strings.CutPrefix(h.baseURL, "http://"); ok {
		return "ws://" + rest + path
	}
	return path
}

// ListRuns returns the live runs, newest first. ?status= filters them.
// GET /selenified/runs
func (h *RunHandler) ListRuns(c *fiber.Ctx) error {
	status := queue.RunStatus(c.Query("status"))
	runs := make([]map[string]any, 0)
	for _, run := range h.runs.ListRuns() {
		if status != "" && run.Status != status {
			continue
		}
		runs = append(runs, runView(run))
	}

	return c.JSON(Response{
		Success: true,
		Data: map[string]any{
			"runs":  runs,
			"count": len(runs),
		},
	})
}

// GetRun returns the status of a run, and its summary once finished
// GET /selenified/runs/:run_id
func (h *RunHandler) GetRun(c *fiber.Ctx) error {
	run, err := h.lookup(c)
	if err != nil {
		return err
	}

	view := runView(run)
	if run.ProgressInfo != nil {
		view["progress_info"] = run.ProgressInfo
	}
	if run.Summary != nil {
		view["summary"] = run.Summary
	}
	if run.Error != "" {
		view["error"] = run.Error
	}
	if run.Status == queue.RunStatusRetrying || run.RetryCount > 0 {
		retry := map[string]any{
			"retry_count": run.RetryCount,
			"max_retries": run.MaxRetries,
			"last_error":  run.LastError,
		}
		if run.NextRetryAt > 0 {
			retry["next_retry_at"] = time.Unix(run.NextRetryAt, 0).UTC().Format(time.RFC3339)
		}
		view["retry_info"] = retry
	}
	if run.ExpiresAt > 0 {
		view["expires_at"] = time.Unix(run.ExpiresAt, 0).UTC().Format(time.RFC3339)
	}

	return c.JSON(Response{
		Success: true,
		Data:    view,
	})
}

func runView(run *queue.Run) map[string]any {
	return map[string]any{
		"run_id":     run.ID,
		"name":       run.Name,
		"status":     run.Status,
		"progress":   run.Progress,
		"message":    run.Message,
		"created_at": run.CreatedAt,
		"updated_at": run.UpdatedAt,
	}
}

func (h *RunHandler) lookup(c *fiber.Ctx) (*queue.Run, error) {
	id := c.Params("run_id")
	if id == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Run ID is required")
	}
	run, err := h.runs.GetRun(id)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Run not found")
	}
	return run, nil
}

// CancelRun cancels a queued or running run
// POST /selenified/runs/:run_id/cancel
func (h *RunHandler) CancelRun(c *fiber.Ctx) error {
	run, err := h.runs.CancelRun(c.Params("run_id"))
	switch {
	case errors.Is(err, queue.ErrRunNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Run not found")
	case errors.Is(err, queue.ErrRunFinished):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case err != nil:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(Response{
		Success: true,
		Data: map[string]any{
			"run_id": run.ID,
			"status": run.Status,
		},
	})
}

func currentEvent(run *queue.Run) queue.Event {
	return queue.Event{
		RunID:    run.ID,
		Status:   run.Status,
		Progress: run.Progress,
		Message:  run.Message,
	}
}

// StreamEvents streams the status changes and steps of a run via SSE
// GET /selenified/runs/:run_id/events
func (h *RunHandler) StreamEvents(c *fiber.Ctx) error {
	run, err := h.lookup(c)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	// Subscribe before writing the current state so nothing is missed between
	var events <-chan queue.Event
	if !run.Status.Finished() {
		events = h.runs.Subscribe(run.ID)
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if events != nil {
			defer h.runs.Unsubscribe(run.ID, events)
		}

		writeSSE(w, currentEvent(run))
		if events == nil {
			return
		}
		for event := range events {
			if writeSSE(w, event) != nil || (event.Step == nil && event.Status.Finished()) {
				return
			}
		}
	})

	return nil
}

func writeSSE(w *bufio.Writer, event queue.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	name := "status"
	if event.Step != nil {
		name = "step"
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}

// HandleWebSocket streams the events of ?run_id= as JSON messages
// GET /selenified/ws
func (h *RunHandler) HandleWebSocket(c *websocket.Conn) {
	defer c.Close()

	runID := c.Query("run_id")
	if runID == "" {
		_ = c.WriteJSON(map[string]any{"error": "run_id is required"})
		return
	}
	run, err := h.runs.GetRun(runID)
	if err != nil {
		_ = c.WriteJSON(map[string]any{"error": "run not found"})
		return
	}

	var events <-chan queue.Event
	if !run.Status.Finished() {
		events = h.runs.Subscribe(runID)
		defer h.runs.Unsubscribe(runID, events)
	}

	if err := c.WriteJSON(currentEvent(run)); err != nil || events == nil {
		return
	}
	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			return
		}
		if event.Step == nil && event.Status.Finished() {
			_ = c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Status)))
			return
		}
	}
}

// disabled answers every run endpoint when no queue is configured
func disabled(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusServiceUnavailable, "Run queue is disabled; start the server with --with-nats")
}
