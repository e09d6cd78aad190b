package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pobtrack/pob-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ScanErrorResponse is the error body of scan endpoints. Scanners display Message as is.
type ScanErrorResponse struct {
	Status string `json:"status"`
	ErrorResponse
}

type errorMapping struct {
	kind    error
	status  int
	error   string
	code    string
	message string
}

// Order matters only for readability; the sentinels are disjoint
var errorMappings = []errorMapping{
	{services.ErrValidation, http.StatusBadRequest, "validation_error", "VALIDATION_FAILED", "Invalid request"},
	{services.ErrInvalidLocation, http.StatusBadRequest, "invalid_location", "INVALID_LOCATION", "Scan location could not be resolved"},
	{services.ErrUnknownBadge, http.StatusNotFound, "unknown_badge", "UNKNOWN_BADGE", "Card is not registered"},
	{services.ErrEventNotFound, http.StatusNotFound, "not_found", "EVENT_NOT_FOUND", "Event not found"},
	{services.ErrMedicalDenied, http.StatusForbidden, "medical_denied", "MEDICAL_DENIED", "Access denied: medical clearance"},
	{services.ErrEventClosed, http.StatusConflict, "event_closed", "EVENT_CLOSED", "Event is closed"},
	{services.ErrAlreadyClosed, http.StatusConflict, "already_closed", "EVENT_ALREADY_CLOSED", "Event is already closed"},
	{services.ErrCardUnavailable, http.StatusConflict, "card_unavailable", "CARD_UNAVAILABLE", "Visitor card is not available"},
	{services.ErrConcurrencyConflict, http.StatusConflict, "conflict", "CONCURRENT_SCAN", "Another scan for this card is in progress, please tap again"},
	{services.ErrStorageUnavailable, http.StatusServiceUnavailable, "unavailable", "STORAGE_UNAVAILABLE", "Service temporarily unavailable, please try again"},
	{services.ErrRequestTimeout, http.StatusGatewayTimeout, "timeout", "REQUEST_TIMEOUT", "Request timed out, please try again"},
}

// classifyError maps a service error to its HTTP status and response body. ScanError and
// validation messages are shown to the user; anything else gets the generic message.
func classifyError(err error) (int, ErrorResponse) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		resp := ErrorResponse{Error: m.error, Message: m.message, Code: m.code}
		var scanErr *services.ScanError
		if errors.As(err, &scanErr) {
			resp.Message = scanErr.Message
		} else if m.kind == services.ErrValidation {
			resp.Message = err.Error()
		}
		return m.status, resp
	}
	return http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Something went wrong, please try again",
		Code:    "INTERNAL_ERROR",
	}
}

// respondError writes the mapped error and logs server-side failures
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, resp := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.JSON(status, resp)
}

// respondScanError is respondError for scanner clients
func respondScanError(c *gin.Context, logger *logrus.Logger, err error) {
	status, resp := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Scan failed")
	}
	c.JSON(status, ScanErrorResponse{Status: "error", ErrorResponse: resp})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request body: " + err.Error(),
		Code:    "VALIDATION_FAILED",
	})
}
