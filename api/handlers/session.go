// Package handlers provides HTTP API request handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/session"
)

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	sessions *session.Manager
	planner  *session.Planner
	history  session.SummaryLister
}

// NewSessionHandler creates a new SessionHandler. history may be nil.
func NewSessionHandler(sessions *session.Manager, planner *session.Planner, history session.SummaryLister) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		planner:  planner,
		history:  history,
	}
}

// EndSessionRequest represents the request body for ending a session.
type EndSessionRequest struct {
	Summary json.RawMessage `json:"summary"`
}

// LogEventRequest represents the request body for logging a game event.
type LogEventRequest struct {
	Event json.RawMessage `json:"event" binding:"required"`
}

// StartSessionResponse is returned when a session starts.
type StartSessionResponse struct {
	SessionID string          `json:"session_id"`
	Config    json.RawMessage `json:"config"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID         string          `json:"session_id"`
	ChildID    string          `json:"child_id"`
	Status     string          `json:"status"`
	Config     json.RawMessage `json:"config,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	EventCount int             `json:"event_count"`
	Events     []model.Event   `json:"events,omitempty"`
	Duration   string          `json:"duration"`
	StartedAt  string          `json:"started_at"`
	EndedAt    string          `json:"ended_at,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// toSessionResponse converts a model.Session to SessionResponse. Events are
// included only when withEvents is set.
func toSessionResponse(s *model.Session, withEvents bool) *SessionResponse {
	resp := &SessionResponse{
		ID:         s.ID,
		ChildID:    s.ChildID,
		Status:     string(s.Status),
		Config:     s.Config,
		Summary:    s.Summary,
		EventCount: len(s.Events),
		Duration:   formatDuration(s.Duration()),
		StartedAt:  s.StartedAt.Format(time.RFC3339),
	}
	if s.EndedAt != nil {
		resp.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	if withEvents {
		resp.Events = s.Events
	}
	return resp
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// bindOptionalJSON binds the body into obj; an empty body is not an error.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Start handles POST /api/children/:childId/sessions - starts a session.
// Without an explicit config one is planned from the profile and history.
func (h *SessionHandler) Start(c *gin.Context) {
	var req model.StartSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	req.ChildID = c.Param("childId")
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	ctx := c.Request.Context()
	config := req.Config
	if len(config) == 0 {
		config = h.planner.Plan(ctx, req.ChildID, req.Profile)
	}

	sessionID, err := h.sessions.Start(ctx, req.ChildID, config)
	if err != nil {
		if errors.Is(err, model.ErrSubjectRequired) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start session: "+err.Error())
		return
	}

	// A coalesced start keeps the running session's config.
	if sess, err := h.sessions.Get(sessionID); err == nil {
		config = sess.Config
	}
	c.JSON(http.StatusCreated, StartSessionResponse{SessionID: sessionID, Config: config})
}

// End handles POST /api/sessions/:id/end - completes a session.
func (h *SessionHandler) End(c *gin.Context) {
	var req EndSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	sessionID := c.Param("id")
	sess, ok := h.lookup(c, sessionID)
	if !ok {
		return
	}
	if sess.IsCompleted() {
		sendError(c, http.StatusConflict, "SESSION_COMPLETED", "Session "+sessionID+" already completed")
		return
	}

	h.sessions.End(c.Request.Context(), sessionID, req.Summary)

	sess, ok = h.lookup(c, sessionID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess, false))
}

// LogEvent handles POST /api/sessions/:id/events - records a game event.
func (h *SessionHandler) LogEvent(c *gin.Context) {
	var req LogEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	sessionID := c.Param("id")
	if _, ok := h.lookup(c, sessionID); !ok {
		return
	}

	h.sessions.LogEvent(c.Request.Context(), sessionID, req.Event)
	c.JSON(http.StatusAccepted, gin.H{"status": "logged"})
}

// Get handles GET /api/sessions/:id - gets a session with its events.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.lookup(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess, true))
}

// List handles GET /api/sessions - lists sessions, optionally by status.
func (h *SessionHandler) List(c *gin.Context) {
	status := model.SessionStatus(c.Query("status"))
	switch status {
	case "", model.SessionStatusActive, model.SessionStatusCompleted:
	default:
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown status "+string(status))
		return
	}

	sessions := h.sessions.List(status)
	response := make([]*SessionResponse, len(sessions))
	for i, sess := range sessions {
		response[i] = toSessionResponse(sess, false)
	}
	c.JSON(http.StatusOK, response)
}

// Summaries handles GET /api/children/:childId/summaries - lists archived
// sessions of a child, newest first.
func (h *SessionHandler) Summaries(c *gin.Context) {
	limit := session.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = n
	}

	if h.history == nil {
		c.JSON(http.StatusOK, []model.SessionSummary{})
		return
	}
	summaries, err := h.history.ListSummaries(c.Request.Context(), c.Param("childId"), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list summaries: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *SessionHandler) lookup(c *gin.Context, sessionID string) (*model.Session, bool) {
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return nil, false
	}
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return nil, false
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return nil, false
	}
	return sess, true
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.POST("/:id/end", h.End)
		sessions.POST("/:id/events", h.LogEvent)
	}

	children := rg.Group("/children/:childId")
	{
		children.POST("/sessions", h.Start)
		children.GET("/summaries", h.Summaries)
	}
}
