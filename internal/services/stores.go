package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pobtrack/pob-backend/internal/database"
	"github.com/pobtrack/pob-backend/internal/models"
)

// Storage ports implemented by the repositories in internal/database

// PersonnelStore looks up badge holders
type PersonnelStore interface {
	GetByUID(ctx context.Context, uid string) (*models.Personnel, error)
	GetByID(ctx context.Context, id int64) (*models.Personnel, error)
	ListSpareCards(ctx context.Context) ([]models.Personnel, error)
}

// LocationStore reads the location master data
type LocationStore interface {
	ListAll(ctx context.Context) ([]models.Location, error)
}

// DeviceStore resolves fixed scanners
type DeviceStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.Device, error)
}

// AttendanceStore owns attendance records
type AttendanceStore interface {
	ApplyTransition(ctx context.Context, personnelID int64, decide database.TransitionFunc) (*models.Transition, error)
	ListOpenPresence(ctx context.Context) ([]models.PresenceRow, error)
	ListTappedInSince(ctx context.Context, since time.Time) ([]models.PresenceRow, error)
	List(ctx context.Context, f models.AttendanceFilter) ([]models.AttendanceLogEntry, int, error)
}

// EventStore owns events and their attendance
type EventStore interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context) ([]models.Event, error)
	Close(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	RecordAttendance(ctx context.Context, eventID uuid.UUID, personnelID int64, at time.Time) (*database.EventScanResult, error)
	ListAttendances(ctx context.Context, eventID uuid.UUID) ([]models.EventAttendance, error)
}

// VehicleStore reads vehicle presence
type VehicleStore interface {
	ListOnBoard(ctx context.Context) ([]models.VehiclePresence, error)
}

// VisitorCardStore lends and returns spare cards
type VisitorCardStore interface {
	AssignCard(ctx context.Context, cardID int64, a database.VisitorAssignment) (bool, error)
	ReleaseCard(ctx context.Context, cardID int64) (bool, error)
}

// Publisher fans committed scans out to live dashboards
type Publisher interface {
	PublishNewLog(payload models.NewLogPayload)
	PublishDashboardUpdate()
}

// ScanAuditor records every scan attempt. Implementations must not fail the scan.
type ScanAuditor interface {
	RecordScan(ctx context.Context, entry ScanAuditEntry)
}
