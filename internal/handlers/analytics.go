package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"docutrack/internal/logging"
	"docutrack/internal/services"
)

// AnalyticsHandler handles aggregation query requests
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// parseDays reads the days query parameter, defaulting to 7 and clamping
// to the raw event retention window
func parseDays(c *fiber.Ctx) int {
	days, err := strconv.Atoi(c.Query("days", "7"))
	if err != nil || days <= 0 {
		return 7
	}
	if days > 90 {
		return 90
	}
	return days
}

// Query dispatches on the type query parameter
func (h *AnalyticsHandler) Query(c *fiber.Ctx) error {
	queryType := c.Query("type", "overview")
	days := parseDays(c)
	ctx := c.Context()

	logging.WithAggregate(queryType, days).Debug("analytics query")

	switch queryType {
	case "overview":
		return c.JSON(h.analytics.GetOverview(ctx, days))

	case "user":
		userID := c.Query("userId")
		if userID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "userId parameter required for user analytics",
			})
		}
		return c.JSON(h.analytics.GetUserAnalytics(ctx, userID, days))

	case "page":
		path := c.Query("path")
		if path == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "path parameter required for page analytics",
			})
		}
		return c.JSON(h.analytics.GetPageAnalytics(ctx, path, days))

	case "events":
		return c.JSON(h.analytics.GetEventBreakdown(ctx, days))

	case "users":
		return c.JSON(h.analytics.GetActiveUsers(ctx, days))

	case "realtime":
		return c.JSON(h.analytics.GetRealtime(ctx))

	case "performance":
		return c.JSON(h.analytics.GetPerformance(ctx, days))

	case "document":
		documentID := c.Query("documentId")
		if documentID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "documentId parameter required for document analytics",
			})
		}
		return c.JSON(h.analytics.GetDocumentAnalytics(ctx, documentID, days))

	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown analytics type: " + queryType,
		})
	}
}
