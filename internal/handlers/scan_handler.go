package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pobtrack/pob-backend/internal/services"
	"github.com/pobtrack/pob-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// Scanner records gate scans
type Scanner interface {
	Process(ctx context.Context, in services.ScanInput) (*services.ScanOutcome, error)
}

// ScanHandler exposes the gate scan endpoints
type ScanHandler struct {
	scanner Scanner
	logger  *logrus.Logger
}

// NewScanHandler creates a new ScanHandler
func NewScanHandler(scanner Scanner, logger *logrus.Logger) *ScanHandler {
	return &ScanHandler{scanner: scanner, logger: logger}
}

// ScanRequest is a badge read from a handheld or camera scanner
type ScanRequest struct {
	UID        string `json:"uid" binding:"required"`
	LocationID *int64 `json:"location_id" binding:"required"`
}

// DeviceScanRequest is a badge read from a fixed gate device
type DeviceScanRequest struct {
	UID string `json:"uid" binding:"required"`
}

// ScanResponse is the success body of scan endpoints
type ScanResponse struct {
	Status string `json:"status"`
	*services.ScanOutcome
}

// Scan handles POST /api/v1/scan
func (h *ScanHandler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ScanErrorResponse{
			Status:        "error",
			ErrorResponse: ErrorResponse{Error: "validation_error", Message: "uid and location_id are required", Code: "VALIDATION_FAILED"},
		})
		return
	}

	in := requestMeta(c, "handheld")
	in.UID = req.UID
	in.LocationID = req.LocationID
	h.process(c, in)
}

// DeviceScan handles POST /api/v1/devices/:device_id/scan
func (h *ScanHandler) DeviceScan(c *gin.Context) {
	var req DeviceScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ScanErrorResponse{
			Status:        "error",
			ErrorResponse: ErrorResponse{Error: "validation_error", Message: "uid is required", Code: "VALIDATION_FAILED"},
		})
		return
	}

	in := requestMeta(c, "device")
	in.UID = req.UID
	in.DeviceIdentifier = c.Param("device_id")
	h.process(c, in)
}

func (h *ScanHandler) process(c *gin.Context, in services.ScanInput) {
	out, err := h.scanner.Process(c.Request.Context(), in)
	if err != nil {
		respondScanError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ScanResponse{Status: "success", ScanOutcome: out})
}

// requestMeta fills the audit fields of a scan from the request
func requestMeta(c *gin.Context, source string) services.ScanInput {
	return services.ScanInput{
		Source:    source,
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
}
