package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/ws"
)

// FeedHandler serves the recent caretaker frames of a child so a caretaker
// that joins late can catch up.
type FeedHandler struct {
	hubs *ws.HubManager
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(hubs *ws.HubManager) *FeedHandler {
	return &FeedHandler{hubs: hubs}
}

// Feed handles GET /api/children/:childId/feed.
func (h *FeedHandler) Feed(c *gin.Context) {
	frames := h.hubs.Feed(c.Param("childId"))
	out := make([]json.RawMessage, 0, len(frames))
	for _, f := range frames {
		out = append(out, json.RawMessage(f))
	}
	c.JSON(http.StatusOK, out)
}

// RegisterRoutes registers the feed route on a Gin router group.
func (h *FeedHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/children/:childId/feed", h.Feed)
}
