package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus is the physical state recorded by an attendance row
type AttendanceStatus string

const (
	AttendanceIn     AttendanceStatus = "IN"
	AttendanceOut    AttendanceStatus = "OUT"
	AttendanceField  AttendanceStatus = "FIELD"
	AttendanceReturn AttendanceStatus = "RETURN"
)

// IsValid reports whether s is a known attendance status
func (s AttendanceStatus) IsValid() bool {
	switch s {
	case AttendanceIn, AttendanceOut, AttendanceField, AttendanceReturn:
		return true
	}
	return false
}

// OnBoard reports whether an open row with this status counts toward POB
func (s AttendanceStatus) OnBoard() bool {
	return s == AttendanceIn || s == AttendanceReturn
}

// AttendanceRecord is one person's state relative to a location.
// A record with TimeOut == nil is "open"; a person has at most one open record.
type AttendanceRecord struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	PersonnelID int64            `db:"personnel_id" json:"personnel_id"`
	LocationID  int64            `db:"location_id" json:"location_id"`
	Status      AttendanceStatus `db:"status" json:"status"`
	TimeIn      *time.Time       `db:"time_in" json:"time_in"`
	TimeOut     *time.Time       `db:"time_out" json:"time_out"`
	DeviceID    *int64           `db:"device_id" json:"device_id,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the record has not been closed yet
func (r *AttendanceRecord) IsOpen() bool {
	return r != nil && r.TimeOut == nil
}

// CloseOp closes an open record as part of a transition
type CloseOp struct {
	RecordID uuid.UUID
	Status   AttendanceStatus
	TimeOut  time.Time
}

// Transition is the atomic unit applied for one gate scan: an optional close of the
// person's previous open record plus the new record.
type Transition struct {
	PersonnelID int64
	Close       *CloseOp
	Open        *AttendanceRecord
}

// PresenceRow is an attendance record joined with the personnel fields the occupancy
// aggregation needs
type PresenceRow struct {
	RecordID     uuid.UUID        `db:"id"`
	PersonnelID  int64            `db:"personnel_id"`
	LocationID   int64            `db:"location_id"`
	Status       AttendanceStatus `db:"status"`
	TimeIn       *time.Time       `db:"time_in"`
	IsSpare      bool             `db:"is_spare"`
	DivisionName *string          `db:"division_name"`
}

// AttendanceLogEntry is a row of the attendance monitor listing
type AttendanceLogEntry struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	PersonnelID   int64            `db:"personnel_id" json:"personnel_id"`
	PersonnelName string           `db:"personnel_name" json:"personnel_name"`
	UID           string           `db:"uid" json:"uid"`
	LocationID    int64            `db:"location_id" json:"location_id"`
	LocationName  string           `db:"location_name" json:"location_name"`
	Status        AttendanceStatus `db:"status" json:"status"`
	TimeIn        *time.Time       `db:"time_in" json:"time_in"`
	TimeOut       *time.Time       `db:"time_out" json:"time_out"`
}

// AttendanceFilter narrows the attendance monitor listing
type AttendanceFilter struct {
	Search string
	Status AttendanceStatus
	Limit  int
	Offset int
}
