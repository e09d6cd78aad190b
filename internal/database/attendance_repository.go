package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pobtrack/pob-backend/internal/models"
)

// TransitionFunc decides what to do given the person's current open record (nil when none).
// Returning an error aborts the transaction without writing anything.
type TransitionFunc func(current *models.AttendanceRecord) (*models.Transition, error)

// AttendanceRepository owns attendance_records
type AttendanceRepository struct {
	db DB
}

// NewAttendanceRepository creates a new AttendanceRepository
func NewAttendanceRepository(db DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, personnel_id, location_id, status, time_in, time_out, device_id, created_at, updated_at`

// ApplyTransition reads the open record of a person and applies the transition chosen by decide
// in one transaction. The transaction holds a per-person advisory lock, so two transitions for
// the same person never interleave even across server instances.
func (r *AttendanceRepository) ApplyTransition(ctx context.Context, personnelID int64, decide TransitionFunc) (*models.Transition, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", Classify(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, personnelID); err != nil {
		return nil, fmt.Errorf("failed to lock personnel attendance: %w", Classify(err))
	}

	var current *models.AttendanceRecord
	var rec models.AttendanceRecord
	err = tx.GetContext(ctx, &rec, `
		SELECT `+attendanceColumns+`
		FROM attendance_records
		WHERE personnel_id = $1 AND time_out IS NULL
		FOR UPDATE
	`, personnelID)
	switch {
	case err == nil:
		current = &rec
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to get open attendance: %w", Classify(err))
	}

	t, err := decide(current)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	if t.Close != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE attendance_records
			SET status = $2, time_out = $3, updated_at = $3
			WHERE id = $1 AND time_out IS NULL
		`, t.Close.RecordID, t.Close.Status, t.Close.TimeOut)
		if err != nil {
			return nil, fmt.Errorf("failed to close attendance: %w", Classify(err))
		}
		if rows, err := result.RowsAffected(); err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		} else if rows != 1 {
			return nil, fmt.Errorf("attendance %s already closed: %w", t.Close.RecordID, ErrConflict)
		}
	}

	if t.Open != nil {
		o := t.Open
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records (`+attendanceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, o.ID, o.PersonnelID, o.LocationID, o.Status, o.TimeIn, o.TimeOut, o.DeviceID, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert attendance: %w", Classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit attendance: %w", Classify(err))
	}
	return t, nil
}

// ListOpenPresence returns every open record with the personnel fields needed for occupancy
func (r *AttendanceRepository) ListOpenPresence(ctx context.Context) ([]models.PresenceRow, error) {
	query := `
		SELECT ar.id, ar.personnel_id, ar.location_id, ar.status, ar.time_in,
			p.is_spare, d.name AS division_name
		FROM attendance_records ar
		JOIN personnel p ON p.id = ar.personnel_id
		LEFT JOIN divisions d ON d.id = p.division_id
		WHERE ar.time_out IS NULL
	`

	var rows []models.PresenceRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list open attendance: %w", Classify(err))
	}
	return rows, nil
}

// ListTappedInSince returns the entry transitions (IN or RETURN, open or since closed) whose
// time_in is at or after since
func (r *AttendanceRepository) ListTappedInSince(ctx context.Context, since time.Time) ([]models.PresenceRow, error) {
	query := `
		SELECT ar.id, ar.personnel_id, ar.location_id, ar.status, ar.time_in,
			p.is_spare, d.name AS division_name
		FROM attendance_records ar
		JOIN personnel p ON p.id = ar.personnel_id
		LEFT JOIN divisions d ON d.id = p.division_id
		WHERE ar.time_in >= $1 AND ar.status <> 'FIELD'
	`

	var rows []models.PresenceRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to list tap-ins: %w", Classify(err))
	}
	return rows, nil
}

// List returns one page of the attendance log, newest first, plus the total matching rows
func (r *AttendanceRepository) List(ctx context.Context, f models.AttendanceFilter) ([]models.AttendanceLogEntry, int, error) {
	var where []string
	var args []interface{}

	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(p.name ILIKE $%d OR p.uid ILIKE $%d OR p.visitor_name ILIKE $%d)", len(args), len(args), len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)))
	}

	from := `
		FROM attendance_records ar
		JOIN personnel p ON p.id = ar.personnel_id
		JOIN locations l ON l.id = ar.location_id
	`
	if len(where) > 0 {
		from += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) `+from, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count attendance: %w", Classify(err))
	}

	args = append(args, f.Limit, f.Offset)
	query := `
		SELECT ar.id, ar.personnel_id, COALESCE(p.visitor_name, p.name) AS personnel_name, p.uid,
			ar.location_id, l.name AS location_name, ar.status, ar.time_in, ar.time_out
	` + from + fmt.Sprintf(` ORDER BY ar.updated_at DESC, ar.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	entries := []models.AttendanceLogEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list attendance: %w", Classify(err))
	}
	return entries, total, nil
}
