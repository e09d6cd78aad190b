package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pobtrack/pob-backend/internal/database"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/pobtrack/pob-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// Audit outcomes
const (
	AuditOutcomeRecorded = "recorded"
	AuditOutcomeRejected = "rejected"
)

// ScanAuditEntry is one scan attempt, successful or not
type ScanAuditEntry struct {
	UID         string
	PersonnelID *int64
	LocationID  *int64
	DeviceID    string
	EventID     *uuid.UUID
	Action      models.AttendanceStatus // empty when rejected
	Outcome     string
	Reason      string
	Source      string // manual, device, event, visitor
	IPAddress   string
	UserAgent   string
}

// AuditService writes the scan audit trail
type AuditService struct {
	db     database.DB
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB, logger *logrus.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger,
	}
}

// RecordScan writes entry to scan_audit_logs. Failures are logged, never returned: an audit
// outage must not turn a recorded scan into a rejected one.
func (s *AuditService) RecordScan(ctx context.Context, entry ScanAuditEntry) {
	if err := s.insert(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"uid":     entry.UID,
			"outcome": entry.Outcome,
		}).Error("Failed to write scan audit log")
	}
}

func (s *AuditService) insert(ctx context.Context, entry ScanAuditEntry) error {
	deviceInfo := utils.ParseUserAgent(entry.UserAgent)

	details := map[string]interface{}{
		"source":      entry.Source,
		"device_info": deviceInfo,
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	var action *string
	if entry.Action != "" {
		a := string(entry.Action)
		action = &a
	}

	query := `
		INSERT INTO scan_audit_logs (
			id, uid, personnel_id, location_id, device_id, event_id, action, outcome, reason,
			details, ip_address, user_agent, device_type, browser, os, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
	`

	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		entry.UID,
		entry.PersonnelID,
		entry.LocationID,
		nullIfEmpty(entry.DeviceID),
		entry.EventID,
		action,
		entry.Outcome,
		nullIfEmpty(entry.Reason),
		detailsJSON,
		nullIfEmpty(entry.IPAddress),
		nullIfEmpty(entry.UserAgent),
		deviceInfo.DeviceType,
		deviceInfo.Browser,
		deviceInfo.OS,
	)
	if err != nil {
		return fmt.Errorf("failed to log scan audit: %w", database.Classify(err))
	}
	return nil
}

// CleanupOldAuditLogs removes audit rows older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM scan_audit_logs WHERE created_at < $1`, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", database.Classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
