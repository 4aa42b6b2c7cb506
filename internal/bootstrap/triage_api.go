package bootstrap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"triage_server/adapter/in/http"
	"triage_server/adapter/out/messaging"
	"triage_server/core/port/out"
	"triage_server/infra/middleware"
	"triage_server/pkg/logger"
)

const (
	streamMaxLen = 100000

	webhookRatePerSecond = 50
	webhookRateBurst     = 100
)

// NewAPI builds the HTTP server. w is the in-process worker and may be nil
// when ingest jobs go through the Redis stream.
func NewAPI(deps *Dependencies, w *Worker) (*fiber.App, error) {
	cfg := deps.Config

	queue, err := ingestQueue(deps, w)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          2 * 1024 * 1024,
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.Latency(deps.Latency))
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" || allowOrigins == "*" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders: "X-Request-ID",
		MaxAge:        86400,
	}))

	var redisCheck http.HealthChecker
	if deps.Redis != nil {
		redisCheck = http.RedisPinger(func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() })
	}
	var postgresCheck http.HealthChecker
	if deps.DB != nil {
		postgresCheck = deps.DB
	}
	http.NewHealthHandler(postgresCheck, redisCheck).Register(app)

	// Webhook (called by the platform, rate limited per client IP)
	limiter := middleware.NewRateLimiter(webhookRatePerSecond, webhookRateBurst)
	app.Use("/webhook", limiter.Handler())
	app.Use("/api/v1/webhook", limiter.Handler())

	var dedup http.DeliveryDeduper
	if deps.Cache != nil {
		dedup = deps.Cache
	}
	webhookHandler := http.NewWebhookHandler(
		cfg.WhatsAppVerifyToken,
		queue,
		dedup,
		time.Duration(cfg.IdempotencyTTLMin)*time.Minute,
	)
	webhookHandler.Register(app)

	// Review API
	api := app.Group("/api/v1")
	http.NewMessageHandler(deps.Service, deps.Assistant).Register(api)
	http.NewPreviewHandler(deps.Assistant).Register(api)

	if cfg.IsDevelopment() {
		RegisterDevRoutes(app, deps, w, webhookHandler)
		logger.Info("Development routes enabled under /dev")
	}

	logger.Info("API server initialized successfully")
	return app, nil
}

// ingestQueue prefers the durable Redis stream and falls back to the
// in-process pool.
func ingestQueue(deps *Dependencies, w *Worker) (out.IngestQueue, error) {
	if deps.Redis != nil {
		return messaging.NewRedisProducer(deps.Redis, streamMaxLen), nil
	}
	if w != nil {
		logger.Warn("Redis not available, webhook jobs go straight to the in-process pool")
		return w.Queue(), nil
	}
	return nil, errors.New("no ingest queue: set REDIS_URL or run with -mode=all")
}
