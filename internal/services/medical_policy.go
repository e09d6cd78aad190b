package services

import (
	"strings"
	"time"

	"github.com/pobtrack/pob-backend/internal/config"
	"github.com/pobtrack/pob-backend/internal/models"
)

// MedicalVerdict is the outcome of the MCU check for one scan. The zero value means clear.
type MedicalVerdict struct {
	Deny    bool
	Warning string
}

// MedicalPolicy decides whether a person's MCU state warns or blocks an entry
type MedicalPolicy struct {
	FeatureActive   bool
	ValidityDays    int
	DenyOnViolation bool
	ExpiredMessage  string
	UnfitMessage    string
	DeniedMessage   string
}

// NewMedicalPolicy builds the policy from configuration
func NewMedicalPolicy(cfg config.MedicalConfig) MedicalPolicy {
	return MedicalPolicy{
		FeatureActive:   cfg.FeatureActive,
		ValidityDays:    cfg.ValidityDays,
		DenyOnViolation: cfg.DenyOnViolation,
		ExpiredMessage:  cfg.ExpiredMessage,
		UnfitMessage:    cfg.UnfitMessage,
		DeniedMessage:   cfg.DeniedMessage,
	}
}

// Evaluate checks p for a scan resolving to action. Leaving (OUT) is never blocked.
// Visitor cards carry a declared status but no check-up date, so only the status applies to them.
func (mp MedicalPolicy) Evaluate(p *models.Personnel, action models.AttendanceStatus, now time.Time) MedicalVerdict {
	if !mp.FeatureActive || p == nil {
		return MedicalVerdict{}
	}

	violation := ""
	switch {
	case p.MCUStatus != nil && strings.EqualFold(strings.TrimSpace(*p.MCUStatus), "unfit"):
		violation = mp.UnfitMessage
	case p.IsSpare:
	case p.MCULastDate == nil:
		violation = mp.ExpiredMessage
	case now.Sub(*p.MCULastDate) > time.Duration(mp.ValidityDays)*24*time.Hour:
		violation = mp.ExpiredMessage
	}
	if violation == "" {
		return MedicalVerdict{}
	}

	if mp.DenyOnViolation && action != models.AttendanceOut {
		return MedicalVerdict{Deny: true, Warning: mp.DeniedMessage}
	}
	return MedicalVerdict{Warning: violation}
}
