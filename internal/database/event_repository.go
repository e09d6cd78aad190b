package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pobtrack/pob-backend/internal/models"
)

// EventScanResult is what RecordAttendance found and did
type EventScanResult struct {
	EventFound  bool
	EventStatus models.EventStatus
	Attendance  *models.EventAttendance
	Created     bool
}

// EventRepository owns events and event_attendances
type EventRepository struct {
	db DB
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventSelect = `
	SELECT e.id, e.name, e.location_id, l.name AS location_name, e.target_pob_count, e.status,
		e.created_at, e.created_by, e.closed_at,
		(SELECT COUNT(*) FROM event_attendances ea WHERE ea.event_id = e.id) AS attendance_count
	FROM events e
	LEFT JOIN locations l ON l.id = e.location_id
`

// Create inserts a new event
func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (id, name, location_id, target_pob_count, status, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query, e.ID, e.Name, e.LocationID, e.TargetPOBCount, e.Status, e.CreatedAt, e.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", Classify(err))
	}
	return nil
}

// GetByID returns an event with its attendance count, or nil
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var e models.Event
	err := r.db.GetContext(ctx, &e, eventSelect+` WHERE e.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", Classify(err))
	}
	return &e, nil
}

// List returns all events, newest first
func (r *EventRepository) List(ctx context.Context) ([]models.Event, error) {
	events := []models.Event{}
	if err := r.db.SelectContext(ctx, &events, eventSelect+` ORDER BY e.created_at DESC`); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", Classify(err))
	}
	return events, nil
}

// Close moves an OPEN event to CLOSED. It reports false when no OPEN event with that id exists.
func (r *EventRepository) Close(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE events SET status = 'CLOSED', closed_at = $2 WHERE id = $1 AND status = 'OPEN'`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to close event: %w", Classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// Delete removes an event; its attendance rows go with it (ON DELETE CASCADE)
func (r *EventRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", Classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// RecordAttendance checks a person in to an event. The event row is share-locked so a concurrent
// close waits for the insert (or the insert observes CLOSED), and the (event_id, personnel_id)
// constraint turns a repeat scan into a lookup of the existing row.
func (r *EventRepository) RecordAttendance(ctx context.Context, eventID uuid.UUID, personnelID int64, at time.Time) (*EventScanResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", Classify(err))
	}
	defer tx.Rollback()

	res := &EventScanResult{}
	err = tx.GetContext(ctx, &res.EventStatus, `SELECT status FROM events WHERE id = $1 FOR SHARE`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock event: %w", Classify(err))
	}
	res.EventFound = true
	if res.EventStatus != models.EventOpen {
		return res, nil
	}

	var row models.EventAttendance
	err = tx.GetContext(ctx, &row, `
		INSERT INTO event_attendances (id, event_id, personnel_id, scanned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, personnel_id) DO NOTHING
		RETURNING id, event_id, personnel_id, scanned_at
	`, uuid.New(), eventID, personnelID, at)
	switch {
	case err == nil:
		res.Created = true
	case errors.Is(err, sql.ErrNoRows):
		err = tx.GetContext(ctx, &row, `
			SELECT id, event_id, personnel_id, scanned_at
			FROM event_attendances
			WHERE event_id = $1 AND personnel_id = $2
		`, eventID, personnelID)
		if err != nil {
			return nil, fmt.Errorf("failed to get existing event attendance: %w", Classify(err))
		}
	default:
		return nil, fmt.Errorf("failed to insert event attendance: %w", Classify(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit event attendance: %w", Classify(err))
	}
	res.Attendance = &row
	return res, nil
}

// ListAttendances returns the people checked in to an event, in scan order
func (r *EventRepository) ListAttendances(ctx context.Context, eventID uuid.UUID) ([]models.EventAttendance, error) {
	query := `
		SELECT ea.id, ea.event_id, ea.personnel_id, p.uid,
			COALESCE(p.visitor_name, p.name) AS personnel_name, ea.scanned_at
		FROM event_attendances ea
		JOIN personnel p ON p.id = ea.personnel_id
		WHERE ea.event_id = $1
		ORDER BY ea.scanned_at, ea.id
	`

	attendances := []models.EventAttendance{}
	if err := r.db.SelectContext(ctx, &attendances, query, eventID); err != nil {
		return nil, fmt.Errorf("failed to list event attendances: %w", Classify(err))
	}
	return attendances, nil
}
