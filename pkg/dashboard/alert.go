package dashboard

import (
	"time"

	"github.com/pobtrack/pob-backend/internal/models"
)

// Alert durations
const (
	AlertDuration        = 5 * time.Second
	AlertDurationWarning = 10 * time.Second
)

// Alert is the transient welcome/goodbye card shown for a scan
type Alert struct {
	Title      string
	Message    string
	Location   string
	Status     models.AttendanceStatus
	AvatarURL  *string
	MCUWarning *string
	Duration   time.Duration
}

// ShouldAlert reports whether a dashboard viewing scope should show the alert for ev.
// Global and SITE dashboards show every scan, any other scope only scans at exactly that location.
func ShouldAlert(scope *models.LocationInfo, ev models.NewLogPayload) bool {
	if scope == nil || scope.ID == 0 {
		return true
	}
	if scope.Type == models.LocationTypeSite {
		return true
	}
	return ev.LocationID == scope.ID
}

// BuildAlert renders the alert card for a scan
func BuildAlert(ev models.NewLogPayload) Alert {
	a := Alert{
		Location:   ev.Location,
		Status:     ev.Status,
		AvatarURL:  ev.AvatarURL,
		MCUWarning: ev.MCUWarning,
		Duration:   AlertDuration,
	}

	switch ev.Status {
	case models.AttendanceIn:
		a.Title = "WELCOME"
		a.Message = "Welcome " + ev.Name
		if ev.MessageIn != nil && *ev.MessageIn != "" {
			a.Message = *ev.MessageIn
		}
	case models.AttendanceOut:
		a.Title = "GOODBYE"
		a.Message = "Goodbye " + ev.Name
		if ev.MessageOut != nil && *ev.MessageOut != "" {
			a.Message = *ev.MessageOut
		}
	case models.AttendanceReturn:
		a.Title = "WELCOME BACK"
		a.Message = "Welcome Back " + ev.Name + " to Base"
	default:
		a.Title = "INFORMATION"
		a.Message = ev.Name
	}

	if ev.MCUWarning != nil && *ev.MCUWarning != "" {
		a.Duration = AlertDurationWarning
	}
	return a
}
