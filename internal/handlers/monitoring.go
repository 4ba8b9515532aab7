package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"docutrack/internal/services"
)

// MonitoringHandler handles operational status requests
type MonitoringHandler struct {
	monitoring *services.MonitoringService
}

// NewMonitoringHandler creates a new monitoring handler
func NewMonitoringHandler(monitoring *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{monitoring: monitoring}
}

// Status returns subsystem health, coarse performance numbers, the hourly
// trend and a recent event feed
func (h *MonitoringHandler) Status(c *fiber.Ctx) error {
	ctx := c.Context()

	limit, err := strconv.Atoi(c.Query("recentLimit", "20"))
	if err != nil {
		limit = 20
	}

	return c.JSON(fiber.Map{
		"systemStatus":       h.monitoring.GetSystemStatus(ctx),
		"performanceMetrics": h.monitoring.GetPerformanceMetrics(ctx),
		"performanceTrend":   h.monitoring.GetPerformanceTrend(ctx),
		"recentEvents":       h.monitoring.GetRecentEvents(ctx, limit),
	})
}
