package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/ws"
)

// HealthHandler reports liveness and connection counts.
type HealthHandler struct {
	hubs *ws.HubManager
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(hubs *ws.HubManager) *HealthHandler {
	return &HealthHandler{hubs: hubs}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.hubs.ConnectionCount(),
		"subjects":    h.hubs.SubjectCount(),
	})
}

// RegisterRoutes registers the health route.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
}
