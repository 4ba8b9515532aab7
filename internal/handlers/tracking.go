package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"docutrack/internal/logging"
	"docutrack/internal/models"
	"docutrack/internal/schema"
	"docutrack/internal/services"
)

// TrackingHandler handles event batch ingestion
type TrackingHandler struct {
	sinks    *services.SinkManager
	limiter  services.RateLimiter
	registry *schema.Registry
	rollups  *services.RollupService
	metrics  *services.Metrics
}

// NewTrackingHandler creates a new tracking handler. registry and rollups
// may be nil; ingestion works without them.
func NewTrackingHandler(
	sinks *services.SinkManager,
	limiter services.RateLimiter,
	registry *schema.Registry,
	rollups *services.RollupService,
	metrics *services.Metrics,
) *TrackingHandler {
	return &TrackingHandler{
		sinks:    sinks,
		limiter:  limiter,
		registry: registry,
		rollups:  rollups,
		metrics:  metrics,
	}
}

// clientIP extracts the caller identity for rate limiting. Proxy headers
// win over the socket address because deployments sit behind a load
// balancer.
func clientIP(c *fiber.Ctx) string {
	// Header values alias fasthttp's reused request buffer; copy them so
	// keys stored past the handler (e.g. rate-limit windows) stay stable.
	if forwarded := utils.CopyString(c.Get("X-Forwarded-For")); forwarded != "" {
		for i := 0; i < len(forwarded); i++ {
			if forwarded[i] == ',' {
				return forwarded[:i]
			}
		}
		return forwarded
	}
	if realIP := utils.CopyString(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return "unknown"
}

// Ingest accepts a batch of events, filters invalid ones and fans the rest
// out to the configured sinks. Per-event filtering means one malformed
// event never fails the batch.
func (h *TrackingHandler) Ingest(c *fiber.Ctx) error {
	ip := clientIP(c)

	allowed, err := h.limiter.Allow(c.Context(), ip)
	if err != nil {
		log.Printf("⚠️  [TRACKING] Rate limit check failed for %s: %v", ip, err)
	}
	if !allowed {
		if h.metrics != nil {
			h.metrics.RecordRateLimited()
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Rate limit exceeded",
		})
	}

	var batch models.TrackingBatch
	if err := c.BodyParser(&batch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(batch.Events) == 0 {
		if h.metrics != nil {
			h.metrics.RecordRejected("empty_batch", 1)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request: events array required",
		})
	}

	valid := make([]*models.TrackingEvent, 0, len(batch.Events))
	for i := range batch.Events {
		event, ok := batch.Events[i].Validate()
		if !ok {
			continue
		}
		if h.registry != nil && !h.registry.CheckProperties(event.EventName, event.Properties) {
			log.Printf("⚠️  [TRACKING] Event %s carries none of its documented property keys", event.EventName)
		}
		valid = append(valid, event)
	}

	dropped := len(batch.Events) - len(valid)
	if dropped > 0 && h.metrics != nil {
		h.metrics.RecordRejected("validation", dropped)
	}

	if len(valid) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No valid events to process",
		})
	}

	logging.WithRequest(ip, len(valid)).Debug("ingesting event batch")

	if !h.sinks.SaveEvents(c.Context(), valid) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process events",
		})
	}

	if h.metrics != nil {
		h.metrics.RecordIngested(len(valid))
	}
	if h.rollups != nil {
		h.rollups.Enqueue(valid)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": len(valid),
		"timestamp": time.Now().UnixMilli(),
	})
}

// Preflight answers CORS preflight for the ingestion endpoint. The
// collector posts from arbitrary origins, so the policy is wildcard.
func (h *TrackingHandler) Preflight(c *fiber.Ctx) error {
	c.Set("Access-Control-Allow-Origin", "*")
	c.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Set("Access-Control-Allow-Headers", "Content-Type")
	return c.SendStatus(fiber.StatusOK)
}
