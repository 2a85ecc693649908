package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/session"
)

// ControlHandler lets caretakers steer a child's activity over HTTP.
type ControlHandler struct {
	sessions *session.Manager
}

// NewControlHandler creates a new ControlHandler.
func NewControlHandler(sessions *session.Manager) *ControlHandler {
	return &ControlHandler{sessions: sessions}
}

// ControlRequest is an opaque control payload for the child.
type ControlRequest struct {
	Control json.RawMessage `json:"control" binding:"required"`
}

// SurpriseRequest names the surprise element to play.
type SurpriseRequest struct {
	SurpriseType string `json:"surprise_type" binding:"required"`
}

// PauseRequest is a pause length in seconds. Zero uses the default.
type PauseRequest struct {
	Duration int `json:"duration" binding:"gte=0"`
}

// Control handles POST /api/children/:childId/control.
func (h *ControlHandler) Control(c *gin.Context) {
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	h.sessions.SendCaretakerControl(c.Param("childId"), req.Control)
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// Surprise handles POST /api/children/:childId/surprise.
func (h *ControlHandler) Surprise(c *gin.Context) {
	var req SurpriseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	h.sessions.TriggerSurprise(c.Param("childId"), req.SurpriseType)
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// Pause handles POST /api/children/:childId/pause.
func (h *ControlHandler) Pause(c *gin.Context) {
	var req PauseRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	duration := req.Duration
	if duration == 0 {
		duration = session.DefaultPauseSeconds
	}
	h.sessions.Pause(c.Param("childId"), duration)
	c.JSON(http.StatusAccepted, gin.H{"status": "sent", "duration": duration})
}

// RegisterRoutes registers the control routes on a Gin router group.
func (h *ControlHandler) RegisterRoutes(rg *gin.RouterGroup) {
	children := rg.Group("/children/:childId")
	{
		children.POST("/control", h.Control)
		children.POST("/surprise", h.Surprise)
		children.POST("/pause", h.Pause)
	}
}
