package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// StatsProvider computes occupancy for a scope
type StatsProvider interface {
	ComputeStats(ctx context.Context, scope *int64) (*models.DashboardStats, error)
}

// DashboardHandler serves the public live dashboard
type DashboardHandler struct {
	stats  StatsProvider
	logger *logrus.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(stats StatsProvider, logger *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{stats: stats, logger: logger}
}

// PublicStats handles GET /api/v1/dashboard/public?location_id=
// An omitted location_id is the global scope.
func (h *DashboardHandler) PublicStats(c *gin.Context) {
	var scope *int64
	if raw := strings.TrimSpace(c.Query("location_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "location_id must be a number",
				Code:    "INVALID_LOCATION_ID",
			})
			return
		}
		scope = &id
	}

	stats, err := h.stats.ComputeStats(c.Request.Context(), scope)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, stats)
}
