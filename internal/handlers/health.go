package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"docutrack/internal/database"
	"docutrack/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongoDB *database.MongoDB
	redis   *services.RedisService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mongoDB *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{mongoDB: mongoDB, redis: redis}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"

	if h.mongoDB != nil {
		if err := h.mongoDB.Ping(c.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(c.Context()); err != nil {
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
