package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pobtrack/pob-backend/internal/middleware"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/pobtrack/pob-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// EventManager runs attendance events
type EventManager interface {
	Create(ctx context.Context, in services.CreateEventInput) (*models.Event, error)
	Close(ctx context.Context, id uuid.UUID) (*models.Event, error)
	RecordScan(ctx context.Context, eventID uuid.UUID, uid string, meta services.ScanInput) (*services.EventScanOutcome, error)
	Get(ctx context.Context, id uuid.UUID) (*services.EventDetail, error)
	List(ctx context.Context) ([]models.Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// EventHandler exposes event lifecycle and event check-in
type EventHandler struct {
	events EventManager
	logger *logrus.Logger
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(events EventManager, logger *logrus.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// EventScanRequest is a badge read during an event
type EventScanRequest struct {
	UID string `json:"uid" binding:"required"`
}

// CreateEvent handles POST /api/v1/events
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req services.CreateEventInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if userCtx, ok := middleware.GetUserContext(c); ok && userCtx.Username != "" {
		req.CreatedBy = &userCtx.Username
	}

	event, err := h.events.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// ListEvents handles GET /api/v1/events
func (h *EventHandler) ListEvents(c *gin.Context) {
	events, err := h.events.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	detail, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// CloseEvent handles PATCH /api/v1/events/:id/close
func (h *EventHandler) CloseEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	event, err := h.events.Close(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// ScanEvent handles POST /api/v1/events/:id/scan
func (h *EventHandler) ScanEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	var req EventScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ScanErrorResponse{
			Status:        "error",
			ErrorResponse: ErrorResponse{Error: "validation_error", Message: "uid is required", Code: "VALIDATION_FAILED"},
		})
		return
	}

	out, err := h.events.RecordScan(c.Request.Context(), id, req.UID, requestMeta(c, "event"))
	if err != nil {
		respondScanError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    out.Message,
		"duplicate":  out.Duplicate,
		"personnel":  out.Personnel,
		"attendance": out.Attendance,
	})
}

// DeleteEvent handles DELETE /api/v1/events/:id
func (h *EventHandler) DeleteEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	if err := h.events.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
}

func eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid event ID",
			Code:    "INVALID_EVENT_ID",
		})
		return uuid.Nil, false
	}
	return id, true
}
