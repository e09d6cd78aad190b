package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pobtrack/pob-backend/internal/database"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// ScanInput is one badge read at a gate
type ScanInput struct {
	UID              string `validate:"required,max=128"`
	LocationID       *int64
	DeviceIdentifier string `validate:"max=128"`

	// ForceAction overrides the decision (visitor check-out forces OUT)
	ForceAction models.AttendanceStatus `validate:"omitempty,oneof=IN OUT"`

	// Request metadata for the audit trail
	Source    string
	IPAddress string
	UserAgent string
}

// ScanOutcome is the committed result of a scan
type ScanOutcome struct {
	Action         models.AttendanceStatus `json:"action"`
	Personnel      models.PersonnelSummary `json:"personnel"`
	Message        string                  `json:"message"`
	Location       models.LocationInfo     `json:"location"`
	MCUWarning     *string                 `json:"mcu_warning,omitempty"`
	RecordID       *uuid.UUID              `json:"record_id,omitempty"`
	ClosedRecordID *uuid.UUID              `json:"closed_record_id,omitempty"`
}

// ScanService records gate scans as attendance transitions
type ScanService struct {
	personnel  PersonnelStore
	devices    DeviceStore
	locations  *LocationIndex
	attendance AttendanceStore
	locker     PersonLocker
	medical    MedicalPolicy
	publisher  Publisher
	auditor    ScanAuditor
	timeout    time.Duration
	logger     *logrus.Logger
	validate   *validator.Validate
	now        func() time.Time
}

// NewScanService creates a new ScanService
func NewScanService(
	personnel PersonnelStore,
	devices DeviceStore,
	locations *LocationIndex,
	attendance AttendanceStore,
	locker PersonLocker,
	medical MedicalPolicy,
	publisher Publisher,
	auditor ScanAuditor,
	timeout time.Duration,
	logger *logrus.Logger,
) *ScanService {
	return &ScanService{
		personnel:  personnel,
		devices:    devices,
		locations:  locations,
		attendance: attendance,
		locker:     locker,
		medical:    medical,
		publisher:  publisher,
		auditor:    auditor,
		timeout:    timeout,
		logger:     logger,
		validate:   validator.New(),
		now:        time.Now,
	}
}

// scanContext is what a scan resolved to before touching attendance
type scanContext struct {
	person    *models.Personnel
	location  *models.Location
	parentID  *int64
	direction *models.Direction
	deviceID  *int64
}

// Process validates and records one scan. Every call ends either in a committed transition
// followed by a new_log push, or in an error; both are written to the audit trail.
func (s *ScanService) Process(ctx context.Context, in ScanInput) (*ScanOutcome, error) {
	in.UID = strings.TrimSpace(in.UID)
	in.DeviceIdentifier = strings.TrimSpace(in.DeviceIdentifier)

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, sc, err := s.process(scanCtx, in)
	if err != nil && (errors.Is(err, ErrRequestTimeout) || errors.Is(scanCtx.Err(), context.DeadlineExceeded)) {
		err = scanErrorf(ErrRequestTimeout, "Scan timed out, please tap again")
	}

	s.audit(ctx, in, sc, out, err)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"uid":         in.UID,
			"location_id": in.LocationID,
			"device":      in.DeviceIdentifier,
		}).WithError(err).Warn("Scan rejected")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"uid":         in.UID,
		"location_id": out.Location.ID,
		"action":      out.Action,
	}).Info("Scan recorded")
	return out, nil
}

func (s *ScanService) process(ctx context.Context, in ScanInput) (*ScanOutcome, *scanContext, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	sc, err := s.resolve(ctx, in)
	if err != nil {
		return nil, sc, err
	}

	unlock, err := s.locker.Lock(ctx, personLockKey(sc.person.ID))
	if err != nil {
		return nil, sc, fmt.Errorf("failed to lock personnel: %w", err)
	}
	defer unlock()

	var (
		t       *models.Transition
		verdict MedicalVerdict
		action  models.AttendanceStatus
	)
	for attempt := 0; attempt < 2; attempt++ {
		t, err = s.attendance.ApplyTransition(ctx, sc.person.ID, func(current *models.AttendanceRecord) (*models.Transition, error) {
			now := s.now()
			action = decideAction(sc.location, current, sc.direction, in.ForceAction)
			verdict = s.medical.Evaluate(sc.person, action, now)
			if verdict.Deny {
				return nil, scanErrorf(ErrMedicalDenied, "%s", verdict.Warning)
			}
			return buildTransition(sc, current, action, now), nil
		})
		if !errors.Is(err, database.ErrConflict) {
			break
		}
		s.logger.WithField("personnel_id", sc.person.ID).Debug("Attendance conflict, retrying scan once")
	}
	if err != nil {
		var scanErr *ScanError
		if errors.As(err, &scanErr) {
			return nil, sc, err
		}
		return nil, sc, storageError("failed to record attendance", err)
	}

	out := s.outcome(sc, t, action, verdict)
	s.publish(sc, out)
	return out, sc, nil
}

// resolve turns the raw input into a location, a person and an optional device direction
func (s *ScanService) resolve(ctx context.Context, in ScanInput) (*scanContext, error) {
	sc := &scanContext{}

	var locationID int64
	switch {
	case in.DeviceIdentifier != "":
		device, err := s.devices.GetByIdentifier(ctx, in.DeviceIdentifier)
		if err != nil {
			return sc, storageError("failed to resolve device", err)
		}
		if device == nil || !device.IsActive {
			return sc, scanErrorf(ErrInvalidLocation, "Device %s is not registered or inactive", in.DeviceIdentifier)
		}
		locationID = device.LocationID
		dir := device.Direction
		sc.direction = &dir
		sc.deviceID = &device.ID
	case in.LocationID != nil:
		if *in.LocationID <= 0 {
			return sc, scanErrorf(ErrInvalidLocation, "Location %d not found", *in.LocationID)
		}
		locationID = *in.LocationID
	default:
		return sc, scanErrorf(ErrInvalidLocation, "Scan location is required")
	}

	loc, tree, err := s.locations.Resolve(ctx, locationID)
	if err != nil {
		return sc, err
	}
	if loc == nil {
		return sc, scanErrorf(ErrInvalidLocation, "Location %d not found", locationID)
	}
	sc.location = loc
	if parent, ok := tree.Parent(loc.ID); ok {
		sc.parentID = &parent.ID
	}

	person, err := s.personnel.GetByUID(ctx, in.UID)
	if err != nil {
		return sc, storageError("failed to resolve badge", err)
	}
	if person == nil || !person.IsActive || person.IsAvailableCard() {
		return sc, scanErrorf(ErrUnknownBadge, "Card %s is not registered", in.UID)
	}
	sc.person = person
	return sc, nil
}

// decideAction applies the transition precedence: forced exit, field location, return from
// field, forced or device direction, then flip on the current state
func decideAction(loc *models.Location, current *models.AttendanceRecord, direction *models.Direction, force models.AttendanceStatus) models.AttendanceStatus {
	if force == models.AttendanceOut {
		return force
	}
	if loc.IsField() {
		return models.AttendanceField
	}
	if current.IsOpen() && current.Status == models.AttendanceField {
		return models.AttendanceReturn
	}
	if force != "" {
		return force
	}
	if direction != nil {
		if *direction == models.DirectionOut {
			return models.AttendanceOut
		}
		return models.AttendanceIn
	}
	if current.IsOpen() && current.Status.OnBoard() {
		return models.AttendanceOut
	}
	return models.AttendanceIn
}

// buildTransition closes the open record (if any) and opens the next one. An OUT only closes;
// an OUT with nothing open is kept as a closed row so the tap is not lost. A closed field
// record stays FIELD so it never reads as a tap-in.
func buildTransition(sc *scanContext, current *models.AttendanceRecord, action models.AttendanceStatus, now time.Time) *models.Transition {
	t := &models.Transition{PersonnelID: sc.person.ID}

	if current.IsOpen() {
		closeStatus := models.AttendanceOut
		if current.Status == models.AttendanceField {
			closeStatus = models.AttendanceField
		}
		t.Close = &models.CloseOp{RecordID: current.ID, Status: closeStatus, TimeOut: now}
		if action == models.AttendanceOut {
			return t
		}
	}

	rec := &models.AttendanceRecord{
		ID:          uuid.New(),
		PersonnelID: sc.person.ID,
		LocationID:  sc.location.ID,
		Status:      action,
		DeviceID:    sc.deviceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if action == models.AttendanceOut {
		rec.TimeOut = &now
	} else {
		rec.TimeIn = &now
	}
	t.Open = rec
	return t
}

func (s *ScanService) outcome(sc *scanContext, t *models.Transition, action models.AttendanceStatus, verdict MedicalVerdict) *ScanOutcome {
	out := &ScanOutcome{
		Action:    action,
		Personnel: sc.person.Summary(),
		Message:   scanMessage(sc.location, action, sc.person.DisplayName()),
		Location: models.LocationInfo{
			ID:   sc.location.ID,
			Type: sc.location.Type,
			Name: sc.location.Name,
		},
	}
	if verdict.Warning != "" {
		w := verdict.Warning
		out.MCUWarning = &w
	}
	if t.Open != nil {
		id := t.Open.ID
		out.RecordID = &id
	}
	if t.Close != nil {
		id := t.Close.RecordID
		out.ClosedRecordID = &id
	}
	return out
}

// scanMessage renders the greeting shown on the scanner and the dashboards. Custom location
// messages may use {name} as a placeholder.
func scanMessage(loc *models.Location, action models.AttendanceStatus, name string) string {
	custom := func(tmpl *string) (string, bool) {
		if tmpl == nil || strings.TrimSpace(*tmpl) == "" {
			return "", false
		}
		return strings.ReplaceAll(*tmpl, "{name}", name), true
	}

	switch action {
	case models.AttendanceIn:
		if msg, ok := custom(loc.CustomInMessage); ok {
			return msg
		}
		return "Welcome " + name
	case models.AttendanceReturn:
		if msg, ok := custom(loc.CustomInMessage); ok {
			return msg
		}
		return "Welcome Back " + name + " to Base"
	case models.AttendanceOut:
		if msg, ok := custom(loc.CustomOutMessage); ok {
			return msg
		}
		return "Goodbye " + name
	case models.AttendanceField:
		return name + " is on field duty at " + loc.Name
	}
	return name
}

func (s *ScanService) publish(sc *scanContext, out *ScanOutcome) {
	if s.publisher == nil {
		return
	}
	payload := models.NewLogPayload{
		UID:              sc.person.UID,
		Name:             out.Personnel.Name,
		Status:           out.Action,
		Location:         sc.location.Name,
		LocationID:       sc.location.ID,
		LocationParentID: sc.parentID,
		AvatarURL:        sc.person.Photo,
		MCUWarning:       out.MCUWarning,
	}
	switch out.Action {
	case models.AttendanceIn, models.AttendanceReturn:
		payload.MessageIn = &out.Message
	case models.AttendanceOut:
		payload.MessageOut = &out.Message
	}
	s.publisher.PublishNewLog(payload)
}

func (s *ScanService) audit(ctx context.Context, in ScanInput, sc *scanContext, out *ScanOutcome, scanErr error) {
	if s.auditor == nil {
		return
	}
	entry := ScanAuditEntry{
		UID:        in.UID,
		LocationID: in.LocationID,
		DeviceID:   in.DeviceIdentifier,
		Source:     in.Source,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
	}
	if sc != nil && sc.person != nil {
		entry.PersonnelID = &sc.person.ID
	}
	if sc != nil && sc.location != nil {
		entry.LocationID = &sc.location.ID
	}
	if scanErr != nil {
		entry.Outcome = AuditOutcomeRejected
		entry.Reason = scanErr.Error()
	} else {
		entry.Outcome = AuditOutcomeRecorded
		entry.Action = out.Action
		if out.MCUWarning != nil {
			entry.Reason = *out.MCUWarning
		}
	}
	s.auditor.RecordScan(context.WithoutCancel(ctx), entry)
}

func personLockKey(personnelID int64) string {
	return fmt.Sprintf("personnel:%d", personnelID)
}
