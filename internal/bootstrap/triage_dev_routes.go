package bootstrap

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"triage_server/adapter/in/http"
	"triage_server/core/domain"
	"triage_server/infra/database"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// RegisterDevRoutes registers development-only routes.
// WARNING: Only enable in development environment!
func RegisterDevRoutes(app *fiber.App, deps *Dependencies, w *Worker, webhook *http.WebhookHandler) {
	dev := app.Group("/dev")

	// Run one message through the pipeline synchronously, bypassing the queue.
	dev.Post("/ingest", func(c *fiber.Ctx) error {
		var req struct {
			ID   string `json:"id"`
			From string `json:"from"`
			Body string `json:"body"`
		}
		if err := http.ParseBody(c, &req); err != nil {
			return err
		}
		if req.Body == "" {
			return apperr.MissingField("body")
		}
		if req.ID == "" {
			req.ID = "dev-" + uuid.NewString()
		}
		if req.From == "" {
			req.From = "dev"
		}

		logger.Info("[DevTest] Ingest: id=%s", req.ID)

		res, err := deps.Pipeline.Ingest(c.UserContext(), &domain.InboundMessage{
			ExternalID: req.ID,
			From:       req.From,
			Body:       req.Body,
			Kind:       domain.KindText,
			RawPayload: []byte(fmt.Sprintf(`{"dev":true,"received_at":%q}`, time.Now().UTC().Format(time.RFC3339))),
		}, false)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"outcome":        res.Outcome,
			"message":        res.Message,
			"classification": res.Classification,
			"team":           res.Team,
		})
	})

	dev.Get("/metrics", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"webhook":     webhook.GetMetrics(),
			"api_latency": deps.Latency.AllStats(),
		}
		if w != nil {
			body["pool"] = w.GetMetrics()
			body["job_latency"] = w.pool.Latency()
		}
		if deps.DB != nil {
			body["postgres"] = database.GetPoolStats(deps.DB)
		}
		return c.JSON(body)
	})
}
