package api

import (
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// burstMax caps the run requests a client may make within one second
const burstMax = 20

// SetupRoutes registers every endpoint. runs may be nil when the server has
// no queue, in which case the run endpoints answer 503. The returned func
// stops the background cleanup of the rate limiter and idempotency store.
func SetupRoutes(app *fiber.App, cfg *config.Config, runs RunQueue) func() {
	handler := NewHandler(cfg)

	// Health check (no rate limit)
	app.Get("/health", handler.HealthCheck)

	sel := app.Group("/selenified")
	sel.Use(security.Headers())

	sel.Get("/browser/status", handler.BrowserStatus)

	// Reports: the summary list, then the files themselves
	sel.Get("/reports", handler.ListReports)
	sel.Static("/reports", cfg.OutputDir, fiber.Static{
		Browse:        false,
		ByteRange:     true,
		CacheDuration: -1,
	})

	if runs == nil {
		sel.All("/runs", disabled)
		sel.All("/runs/*", disabled)
		sel.Get("/ws", disabled)
		return func() {}
	}

	limiter := security.NewRateLimiter(security.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitRequests,
		WindowDuration:    cfg.RateLimitWindow,
		BurstMax:          burstMax,
	})
	idempotency := security.NewIdempotencyStore(cfg.IdempotencyTTL)
	sec := security.NewMiddleware(limiter, idempotency)
	runHandler := NewRunHandler(runs, idempotency, cfg.BaseURL)

	group := sel.Group("/runs")
	group.Use(sec.RateLimit(), security.ValidateRequest(), sec.Idempotency())

	group.Post("", runHandler.CreateRun)
	group.Get("", runHandler.ListRuns)
	group.Get("/:run_id", runHandler.GetRun)
	group.Post("/:run_id/cancel", runHandler.CancelRun)
	group.Get("/:run_id/events", runHandler.StreamEvents)

	// WebSocket endpoint for run events
	sel.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	sel.Get("/ws", websocket.New(runHandler.HandleWebSocket))

	return func() {
		limiter.Stop()
		idempotency.Stop()
	}
}
