package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	defaultBadgeSize = 256
	minBadgeSize     = 64
	maxBadgeSize     = 1024
)

// BadgeLookup resolves a badge UID
type BadgeLookup interface {
	GetByUID(ctx context.Context, uid string) (*models.Personnel, error)
}

// BadgeHandler renders printable badge QR codes
type BadgeHandler struct {
	personnel BadgeLookup
	logger    *logrus.Logger
}

// NewBadgeHandler creates a new BadgeHandler
func NewBadgeHandler(personnel BadgeLookup, logger *logrus.Logger) *BadgeHandler {
	return &BadgeHandler{personnel: personnel, logger: logger}
}

// BadgeQR handles GET /api/v1/badges/:uid/qr?size=
func (h *BadgeHandler) BadgeQR(c *gin.Context) {
	uid := c.Param("uid")

	size := defaultBadgeSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "size must be a number",
				Code:    "INVALID_SIZE",
			})
			return
		}
		size = clamp(n, minBadgeSize, maxBadgeSize)
	}

	person, err := h.personnel.GetByUID(c.Request.Context(), uid)
	if err != nil {
		h.logger.WithError(err).WithField("uid", uid).Error("Failed to look up badge")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to look up badge",
			Code:    "INTERNAL_ERROR",
		})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "unknown_badge",
			Message: "Card " + uid + " is not registered",
			Code:    "UNKNOWN_BADGE",
		})
		return
	}

	png, err := qrcode.Encode(person.UID, qrcode.Medium, size)
	if err != nil {
		h.logger.WithError(err).WithField("uid", uid).Error("Failed to render badge QR")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to render QR code",
			Code:    "INTERNAL_ERROR",
		})
		return
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
