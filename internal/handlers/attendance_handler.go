package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pobtrack/pob-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// AttendanceLister pages through the attendance log
type AttendanceLister interface {
	List(ctx context.Context, page, limit int, search, status string) (*services.AttendancePage, error)
}

// AttendanceHandler serves the attendance monitor
type AttendanceHandler struct {
	attendance AttendanceLister
	logger     *logrus.Logger
}

// NewAttendanceHandler creates a new AttendanceHandler
func NewAttendanceHandler(attendance AttendanceLister, logger *logrus.Logger) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, logger: logger}
}

// ListAttendance handles GET /api/v1/attendance?page=&limit=&search=&status=
func (h *AttendanceHandler) ListAttendance(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.attendance.List(c.Request.Context(), page, limit, c.Query("search"), c.Query("status"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
