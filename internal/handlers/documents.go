package handlers

import (
	"github.com/gofiber/fiber/v2"

	"docutrack/internal/services"
)

// DocumentsHandler handles document-centric analytics requests
type DocumentsHandler struct {
	documents *services.DocumentAnalyticsService
}

// NewDocumentsHandler creates a new documents handler
func NewDocumentsHandler(documents *services.DocumentAnalyticsService) *DocumentsHandler {
	return &DocumentsHandler{documents: documents}
}

// Dashboard returns fleet-wide document activity, template usage,
// collaboration load and the most active documents
func (h *DocumentsHandler) Dashboard(c *fiber.Ctx) error {
	days := parseDays(c)
	return c.JSON(h.documents.GetDashboard(c.Context(), days))
}
