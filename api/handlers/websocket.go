package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/auth"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/protocol"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/ws"
)

// WebSocketHandler handles WebSocket connections of children and caretakers.
type WebSocketHandler struct {
	wsHandler  *ws.Handler
	authorizer auth.Authorizer
	logger     zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler, authorizer auth.Authorizer, logger zerolog.Logger) *WebSocketHandler {
	if authorizer == nil {
		authorizer = auth.AllowAll{}
	}
	return &WebSocketHandler{
		wsHandler:  wsHandler,
		authorizer: authorizer,
		logger:     logger.With().Str("component", "ws_attach").Logger(),
	}
}

// Attach handles GET /ws/:childId?type=child|caretaker&token=...
func (h *WebSocketHandler) Attach(c *gin.Context) {
	childID := c.Param("childId")
	if childID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Child ID is required")
		return
	}

	role, err := protocol.ParseRole(c.DefaultQuery("type", string(protocol.RoleCaretaker)))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}
	if err := h.authorizer.Authorize(c.Request.Context(), token, childID, role); err != nil {
		switch {
		case errors.Is(err, model.ErrForbidden):
			sendError(c, http.StatusForbidden, "FORBIDDEN", err.Error())
		default:
			sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
		}
		return
	}

	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, childID, role); err != nil {
		// The upgrader has already written the error response.
		h.logger.Warn().Err(err).Str("child_id", childID).Msg("WebSocket upgrade failed")
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws/:childId", h.Attach)
}
