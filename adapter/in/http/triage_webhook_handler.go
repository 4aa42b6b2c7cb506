package http

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

const (
	IdempotencyTTL = time.Hour

	hubModeSubscribe = "subscribe"

	ackReceived  = "Webhook received"
	ackNoEntries = "No entries found"
)

// DeliveryDeduper is a best-effort "seen before" filter for message ids.
// *cache.RedisCache satisfies it.
type DeliveryDeduper interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type WebhookMetrics struct {
	Received   int64
	Queued     int64
	Duplicates int64
	Ignored    int64
	Errors     int64
}

type WebhookHandler struct {
	verifyToken string
	queue       out.IngestQueue
	dedup       DeliveryDeduper
	ttl         time.Duration
	metrics     WebhookMetrics
}

// NewWebhookHandler creates the platform webhook handler. dedup may be nil.
func NewWebhookHandler(verifyToken string, queue out.IngestQueue, dedup DeliveryDeduper, ttl time.Duration) *WebhookHandler {
	if ttl <= 0 {
		ttl = IdempotencyTTL
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		queue:       queue,
		dedup:       dedup,
		ttl:         ttl,
	}
}

func (h *WebhookHandler) Register(router fiber.Router) {
	for _, path := range []string{"/webhook/whatsapp", "/api/v1/webhook/whatsapp"} {
		router.Get(path, h.Verify)
		router.Post(path, h.Receive)
	}
}

func (h *WebhookHandler) GetMetrics() WebhookMetrics {
	return WebhookMetrics{
		Received:   atomic.LoadInt64(&h.metrics.Received),
		Queued:     atomic.LoadInt64(&h.metrics.Queued),
		Duplicates: atomic.LoadInt64(&h.metrics.Duplicates),
		Ignored:    atomic.LoadInt64(&h.metrics.Ignored),
		Errors:     atomic.LoadInt64(&h.metrics.Errors),
	}
}

// hubQuery reads hub_<name>, falling back to the dotted hub.<name> form.
func hubQuery(c *fiber.Ctx, name string) string {
	if v := c.Query("hub_" + name); v != "" {
		return v
	}
	return c.Query("hub." + name)
}

// Verify answers the subscription handshake.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := hubQuery(c, "mode")
	token := hubQuery(c, "verify_token")
	challenge := hubQuery(c, "challenge")

	if mode == "" || token == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Bad Request")
	}
	if mode != hubModeSubscribe || h.verifyToken == "" || token != h.verifyToken {
		logger.Warn("[Webhook] verification rejected (mode=%s)", mode)
		return c.Status(fiber.StatusForbidden).SendString("Forbidden")
	}

	logger.Info("[Webhook] verified")
	return c.Status(fiber.StatusOK).SendString(challenge)
}

type webhookPayload struct {
	Entry []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
}

// textMessages returns the inbound text messages of a delivery.
func textMessages(payload *webhookPayload, raw []byte) ([]*domain.InboundMessage, int) {
	var (
		msgs    []*domain.InboundMessage
		ignored int
	)
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, m := range change.Value.Messages {
				if m.Type != string(domain.KindText) || m.Text == nil {
					ignored++
					continue
				}
				msgs = append(msgs, &domain.InboundMessage{
					ExternalID: m.ID,
					From:       m.From,
					Body:       m.Text.Body,
					Kind:       domain.KindText,
					RawPayload: raw,
				})
			}
		}
	}
	return msgs, ignored
}

// Receive acknowledges every delivery with 200 and enqueues one ingest job
// per text message.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	atomic.AddInt64(&h.metrics.Received, 1)

	// fiber reuses the request buffer after the handler returns
	raw := append([]byte(nil), c.Body()...)

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		atomic.AddInt64(&h.metrics.Errors, 1)
		logger.WithError(err).Warn("[Webhook] malformed payload")
		return c.JSON(MessageResponse{Message: ackNoEntries})
	}
	if len(payload.Entry) == 0 {
		return c.JSON(MessageResponse{Message: ackNoEntries})
	}

	msgs, ignored := textMessages(&payload, raw)
	atomic.AddInt64(&h.metrics.Ignored, int64(ignored))

	ctx := c.UserContext()
	for _, msg := range msgs {
		h.dispatch(ctx, msg)
	}

	return c.JSON(MessageResponse{Message: ackReceived})
}

func (h *WebhookHandler) dispatch(ctx context.Context, msg *domain.InboundMessage) {
	log := logger.WithField("message_id", msg.ExternalID)

	key := "wa:msg:" + msg.ExternalID
	if h.dedup != nil && msg.ExternalID != "" {
		fresh, err := h.dedup.SetNX(ctx, key, "1", h.ttl)
		switch {
		case err != nil:
			// the store's unique constraint still protects us
			log.WithError(err).Warn("[Webhook] idempotency check failed")
		case !fresh:
			atomic.AddInt64(&h.metrics.Duplicates, 1)
			log.Info("[Webhook] duplicate delivery skipped")
			return
		}
	}

	if err := h.queue.Enqueue(ctx, msg); err != nil {
		atomic.AddInt64(&h.metrics.Errors, 1)
		log.WithError(err).Error("[Webhook] failed to enqueue message")
		if h.dedup != nil && msg.ExternalID != "" {
			if derr := h.dedup.Delete(ctx, key); derr != nil {
				log.WithError(derr).Warn("[Webhook] failed to release idempotency key")
			}
		}
		return
	}

	atomic.AddInt64(&h.metrics.Queued, 1)
	log.Debug("[Webhook] message queued")
}
