package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle state of an attendance event
type EventStatus string

const (
	EventOpen   EventStatus = "OPEN"
	EventClosed EventStatus = "CLOSED"
)

// Event is a bounded roll call / muster session
type Event struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	Name            string      `db:"name" json:"name"`
	LocationID      int64       `db:"location_id" json:"location_id"`
	LocationName    *string     `db:"location_name" json:"location_name,omitempty"`
	TargetPOBCount  int         `db:"target_pob_count" json:"target_pob_count"`
	Status          EventStatus `db:"status" json:"status"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	CreatedBy       *string     `db:"created_by" json:"created_by,omitempty"`
	ClosedAt        *time.Time  `db:"closed_at" json:"closed_at,omitempty"`
	AttendanceCount int         `db:"attendance_count" json:"attendance_count"`
}

// IsOpen reports whether scans are still accepted
func (e *Event) IsOpen() bool {
	return e != nil && e.Status == EventOpen
}

// EventAttendance is one person checked in to an event
type EventAttendance struct {
	ID            uuid.UUID `db:"id" json:"id"`
	EventID       uuid.UUID `db:"event_id" json:"event_id"`
	PersonnelID   int64     `db:"personnel_id" json:"personnel_id"`
	UID           string    `db:"uid" json:"uid"`
	PersonnelName string    `db:"personnel_name" json:"personnel_name"`
	ScannedAt     time.Time `db:"scanned_at" json:"scanned_at"`
}
