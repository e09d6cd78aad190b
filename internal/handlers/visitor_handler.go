package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pobtrack/pob-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// VisitorDesk lends and returns visitor cards
type VisitorDesk interface {
	List(ctx context.Context) (*services.VisitorOverview, error)
	CheckIn(ctx context.Context, in services.VisitorCheckInInput, meta services.ScanInput) (*services.ScanOutcome, error)
	CheckOut(ctx context.Context, cardID int64, meta services.ScanInput) (*services.ScanOutcome, error)
}

// VisitorHandler exposes the visitor card desk
type VisitorHandler struct {
	visitors VisitorDesk
	logger   *logrus.Logger
}

// NewVisitorHandler creates a new VisitorHandler
func NewVisitorHandler(visitors VisitorDesk, logger *logrus.Logger) *VisitorHandler {
	return &VisitorHandler{visitors: visitors, logger: logger}
}

// ListVisitors handles GET /api/v1/visitors
func (h *VisitorHandler) ListVisitors(c *gin.Context) {
	overview, err := h.visitors.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// CheckIn handles POST /api/v1/visitors/check-in
func (h *VisitorHandler) CheckIn(c *gin.Context) {
	var req services.VisitorCheckInInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	out, err := h.visitors.CheckIn(c.Request.Context(), req, requestMeta(c, "visitor"))
	if err != nil {
		respondScanError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ScanResponse{Status: "success", ScanOutcome: out})
}

// CheckOut handles POST /api/v1/visitors/:id/check-out
func (h *VisitorHandler) CheckOut(c *gin.Context) {
	cardID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || cardID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid card ID",
			Code:    "INVALID_CARD_ID",
		})
		return
	}

	out, err := h.visitors.CheckOut(c.Request.Context(), cardID, requestMeta(c, "visitor"))
	if err != nil {
		respondScanError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ScanResponse{Status: "success", ScanOutcome: out})
}
