// Package api serves finished reports and the run queue over HTTP.
package api

import (
	"errors"
	"time"

	"github.com/ahrdadan/selenified/internal/browser"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/gofiber/fiber/v2"
)

// Handler serves the endpoints that need no run queue
type Handler struct {
	cfg *config.Config
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config) *Handler {
	return &Handler{cfg: cfg}
}

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(Response{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]any{
			"status":    "ok",
			"version":   config.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// BrowserStatus reports the browser runs are started in and what drives it
func (h *Handler) BrowserStatus(c *fiber.Ctx) error {
	data := map[string]any{
		"browser":  h.cfg.Browser,
		"hub":      h.cfg.Hub,
		"headless": h.cfg.Headless,
	}

	b, err := browser.Lookup(h.cfg.Browser)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	engine, err := browser.EngineFor(b, h.cfg.IsHubSet())
	if err != nil {
		data["error"] = err.Error()
	}
	data["engine"] = engine.String()

	switch engine {
	case browser.EngineHub:
		data["endpoint"] = h.cfg.Hub
	case browser.EngineChromium:
		bin := h.cfg.ChromeBin
		if bin == "" {
			bin, _ = browser.LookChrome()
		}
		data["endpoint"] = bin
		data["available"] = bin != ""
	}

	return c.JSON(Response{
		Success: true,
		Data:    data,
	})
}

// ListReports returns the summaries of the finished reports under OutputDir
func (h *Handler) ListReports(c *fiber.Ctx) error {
	summaries, err := report.ListSummaries(h.cfg.OutputDir)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if summaries == nil {
		summaries = []report.Summary{}
	}

	return c.JSON(Response{
		Success: true,
		Data: map[string]any{
			"reports": summaries,
			"count":   len(summaries),
		},
	})
}
