package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LiveServer upgrades dashboard connections
type LiveServer interface {
	ServeWs(w http.ResponseWriter, r *http.Request)
}

// LiveHandler exposes the live dashboard channel
type LiveHandler struct {
	hub LiveServer
}

// NewLiveHandler creates a new LiveHandler
func NewLiveHandler(hub LiveServer) *LiveHandler {
	return &LiveHandler{hub: hub}
}

// Connect handles GET /api/v1/live (websocket)
func (h *LiveHandler) Connect(c *gin.Context) {
	h.hub.ServeWs(c.Writer, c.Request)
}
