package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/pobtrack/pob-backend/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AttendancePage is one page of the attendance monitor
type AttendancePage struct {
	Data       []models.AttendanceLogEntry `json:"data"`
	Total      int                         `json:"total"`
	Page       int                         `json:"page"`
	TotalPages int                         `json:"totalPages"`
}

// AttendanceService serves the attendance log
type AttendanceService struct {
	store AttendanceStore
}

// NewAttendanceService creates a new AttendanceService
func NewAttendanceService(store AttendanceStore) *AttendanceService {
	return &AttendanceService{store: store}
}

// List returns a page of attendance records, newest first
func (s *AttendanceService) List(ctx context.Context, page, limit int, search, status string) (*AttendancePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	st := models.AttendanceStatus(strings.ToUpper(strings.TrimSpace(status)))
	if st != "" && !st.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	entries, total, err := s.store.List(ctx, models.AttendanceFilter{
		Search: search,
		Status: st,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, storageError("failed to list attendance", err)
	}

	return &AttendancePage{
		Data:       entries,
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}
