package models

import (
	"strings"
	"time"
)

// Personnel is a badge holder. Spare cards are personnel rows flagged IsSpare that get
// temporarily assigned to a visitor.
type Personnel struct {
	ID           int64      `db:"id" json:"id"`
	UID          string     `db:"uid" json:"uid"`
	Name         string     `db:"name" json:"name"`
	DivisionID   *int64     `db:"division_id" json:"division_id,omitempty"`
	DivisionName *string    `db:"division_name" json:"division_name,omitempty"`
	Photo        *string    `db:"photo" json:"photo,omitempty"`
	MCUStatus    *string    `db:"mcu_status" json:"mcu_status,omitempty"`
	MCULastDate  *time.Time `db:"mcu_last_date" json:"mcu_last_date,omitempty"`
	IsActive     bool       `db:"is_active" json:"is_active"`

	// Spare / visitor card state
	IsSpare           bool       `db:"is_spare" json:"is_spare"`
	VisitorName       *string    `db:"visitor_name" json:"visitor_name,omitempty"`
	VisitorCompany    *string    `db:"visitor_company" json:"visitor_company,omitempty"`
	VisitorLocationID *int64     `db:"visitor_location_id" json:"visitor_location_id,omitempty"`
	VisitorCheckedIn  *time.Time `db:"visitor_checked_in_at" json:"visitor_checked_in_at,omitempty"`
}

// IsAvailableCard reports whether this is a spare card not currently lent to anyone
func (p *Personnel) IsAvailableCard() bool {
	return p.IsSpare && p.VisitorName == nil
}

// DisplayName returns the visitor name for lent spare cards, the personnel name otherwise
func (p *Personnel) DisplayName() string {
	if p.IsSpare && p.VisitorName != nil && strings.TrimSpace(*p.VisitorName) != "" {
		return *p.VisitorName
	}
	return p.Name
}

// PersonnelSummary is the personnel view returned with scan outcomes
type PersonnelSummary struct {
	ID        int64   `json:"id"`
	UID       string  `json:"uid"`
	Name      string  `json:"name"`
	Photo     *string `json:"photo,omitempty"`
	MCUStatus *string `json:"mcu_status,omitempty"`
	IsVisitor bool    `json:"is_visitor"`
}

// Summary builds the public summary of a personnel record
func (p *Personnel) Summary() PersonnelSummary {
	return PersonnelSummary{
		ID:        p.ID,
		UID:       p.UID,
		Name:      p.DisplayName(),
		Photo:     p.Photo,
		MCUStatus: p.MCUStatus,
		IsVisitor: p.IsSpare,
	}
}
