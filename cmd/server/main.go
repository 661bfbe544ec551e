package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrdadan/selenified/internal/api"
	"github.com/ahrdadan/selenified/internal/browser"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/nats"
	"github.com/ahrdadan/selenified/internal/queue"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// Parse CLI flags
	cfg := config.ParseFlags()

	// Handle --version and --help
	config.HandleFlags(cfg)

	// Banner
	log.Printf("Starting %s v%s (Browser Tests + Reports)", config.AppName, config.Version)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	checkBrowser(cfg)

	// NATS + JetStream setup
	var natsServer *nats.Server
	var queueManager *queue.Manager

	if cfg.WithNats {
		log.Printf("Setting up NATS JetStream...")

		var err error
		natsServer, err = nats.NewServer(nats.ServerConfig{
			BinPath:  cfg.NatsBin,
			StoreDir: cfg.NatsStore,
			URL:      cfg.NatsURL,
			AutoDL:   cfg.NatsAutoDL,
		})
		if err != nil {
			log.Fatalf("Failed to create NATS server: %v", err)
		}

		if err := natsServer.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start NATS server: %v", err)
		}
		defer func() { _ = natsServer.Stop() }()

		js, err := natsServer.GetJetStream()
		if err != nil {
			log.Fatalf("Failed to get JetStream: %v", err)
		}
		queueManager, err = queue.NewManager(js, queue.Options{
			RunTTL:     cfg.RunTTL,
			MaxTimeout: cfg.MaxRunTimeout,
			MaxRetries: cfg.MaxRetries,
		})
		if err != nil {
			log.Fatalf("Failed to create queue manager: %v", err)
		}

		if err := queueManager.Start(queue.NewScenarioProcessor(cfg)); err != nil {
			log.Fatalf("Failed to start queue processor: %v", err)
		}
		defer queueManager.Stop()
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      config.AppName,
		ErrorHandler: api.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Setup routes; the run endpoints answer 503 without a queue
	var runs api.RunQueue
	if queueManager != nil {
		runs = queueManager
	}
	release := api.SetupRoutes(app, cfg, runs)
	defer release()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Reports served from %s at %s/selenified/reports", cfg.OutputDir, cfg.BaseURL)
	if cfg.WithNats {
		log.Printf("NATS JetStream enabled at %s", cfg.NatsURL)
	}

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// checkBrowser warns when queued runs will not find the configured browser
func checkBrowser(cfg *config.Config) {
	b, err := browser.Lookup(cfg.Browser)
	if err != nil {
		log.Fatalf("Invalid --browser: %v", err)
	}
	engine, err := browser.EngineFor(b, cfg.IsHubSet())
	if err != nil {
		log.Printf("Warning: %v; runs without a hub will fail", err)
		return
	}
	if engine == browser.EngineChromium && cfg.ChromeBin == "" {
		if _, ok := browser.LookChrome(); !ok {
			log.Printf("Warning: no local Chromium found; rod will download one on the first run (or run `selenified install-chrome`)")
		}
	}
	log.Printf("Runs use %s via %s", b, engine)
}
