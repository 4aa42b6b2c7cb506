package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"triage_server/config"
	"triage_server/infra/database"
	"triage_server/internal/bootstrap"
	"triage_server/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "triage-server",
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "all", "Run mode: api, worker, all, migrate")
	down := flag.Int("down", 0, "With -mode=migrate, roll back this many migrations instead of applying")
	flag.Parse()

	if *mode == "migrate" {
		runMigrate(*down)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	ctx := context.Background()
	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		app, err := bootstrap.NewAPI(deps, nil)
		if err != nil {
			logger.Fatal("Failed to initialize API: %v", err)
		}
		runAPI(cfg, app, nil)
	case "worker":
		runWorker(bootstrap.NewWorker(deps))
	case "all":
		w := bootstrap.NewWorker(deps)
		w.Start()
		app, err := bootstrap.NewAPI(deps, w)
		if err != nil {
			w.Stop()
			logger.Fatal("Failed to initialize API: %v", err)
		}
		runAPI(cfg, app, w)
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runMigrate(down int) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL is required for -mode=migrate")
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	var (
		res *database.MigrationResult
		err error
	)
	if down > 0 {
		res, err = database.MigrateDown(dir, dsn, down)
	} else {
		res, err = database.MigrateUp(dir, dsn)
	}
	if err != nil {
		logger.Fatal("Migration failed: %v", err)
	}
	logger.Info("Migration complete: version=%d dirty=%t changed=%t", res.Version, res.Dirty, res.Changed)
}

// runAPI serves until SIGINT/SIGTERM, then shuts down the server and the
// in-process worker if there is one.
func runAPI(cfg *config.Config, app *fiber.App, w *bootstrap.Worker) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)

		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Error("Server stopped: %v", err)
	}

	if w != nil {
		stopWorker(w)
	}
}

func runWorker(w *bootstrap.Worker) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Starting worker...")
	w.Start()

	<-sigChan
	stopWorker(w)
}

func stopWorker(w *bootstrap.Worker) {
	logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker shut down gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("Worker shutdown timed out, forcing exit")
		os.Exit(1)
	}
}
