package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// CreateEventInput is the payload for opening a new attendance event
type CreateEventInput struct {
	Name           string  `json:"name" binding:"required" validate:"required,max=200"`
	LocationID     int64   `json:"location_id" binding:"required" validate:"required,gt=0"`
	TargetPOBCount int     `json:"target_pob_count" validate:"gte=0"`
	CreatedBy      *string `json:"-"`
}

// EventScanOutcome is the result of checking a badge in to an event
type EventScanOutcome struct {
	Attendance models.EventAttendance  `json:"attendance"`
	Personnel  models.PersonnelSummary `json:"personnel"`
	Message    string                  `json:"message"`
	Duplicate  bool                    `json:"duplicate"`
}

// EventDetail is an event with its attendance list
type EventDetail struct {
	Event       models.Event             `json:"event"`
	Attendances []models.EventAttendance `json:"attendances"`
}

// EventService runs the OPEN -> CLOSED event lifecycle and event check-ins
type EventService struct {
	events    EventStore
	personnel PersonnelStore
	locations *LocationIndex
	locker    PersonLocker
	auditor   ScanAuditor
	logger    *logrus.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// NewEventService creates a new EventService
func NewEventService(events EventStore, personnel PersonnelStore, locations *LocationIndex, locker PersonLocker, auditor ScanAuditor, logger *logrus.Logger) *EventService {
	return &EventService{
		events:    events,
		personnel: personnel,
		locations: locations,
		locker:    locker,
		auditor:   auditor,
		logger:    logger,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Create opens a new event. Events are born OPEN.
func (s *EventService) Create(ctx context.Context, in CreateEventInput) (*models.Event, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	loc, _, err := s.locations.Resolve(ctx, in.LocationID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, scanErrorf(ErrInvalidLocation, "Location %d not found", in.LocationID)
	}

	e := &models.Event{
		ID:             uuid.New(),
		Name:           in.Name,
		LocationID:     in.LocationID,
		LocationName:   &loc.Name,
		TargetPOBCount: in.TargetPOBCount,
		Status:         models.EventOpen,
		CreatedAt:      s.now(),
		CreatedBy:      in.CreatedBy,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, storageError("failed to create event", err)
	}

	s.logger.WithFields(logrus.Fields{
		"event_id":    e.ID,
		"location_id": e.LocationID,
	}).Info("Event opened")
	return e, nil
}

// Close transitions an OPEN event to CLOSED. Closing a CLOSED event fails with ErrAlreadyClosed
// and changes nothing.
func (s *EventService) Close(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	closed, err := s.events.Close(ctx, id, s.now())
	if err != nil {
		return nil, storageError("failed to close event", err)
	}

	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("failed to get event", err)
	}
	if e == nil {
		return nil, ErrEventNotFound
	}
	if !closed {
		return nil, scanErrorf(ErrAlreadyClosed, "Event %s is already closed", e.Name)
	}

	s.logger.WithFields(logrus.Fields{
		"event_id":   e.ID,
		"attendance": e.AttendanceCount,
		"target":     e.TargetPOBCount,
	}).Info("Event closed")
	return e, nil
}

// RecordScan checks the badge holder in to an open event. A repeat scan of the same badge
// returns the original check-in with Duplicate set instead of adding a row.
func (s *EventService) RecordScan(ctx context.Context, eventID uuid.UUID, uid string, meta ScanInput) (*EventScanOutcome, error) {
	uid = strings.TrimSpace(uid)
	out, personnelID, err := s.recordScan(ctx, eventID, uid)
	if errors.Is(err, ErrRequestTimeout) {
		err = scanErrorf(ErrRequestTimeout, "Scan timed out, please tap again")
	}

	if s.auditor != nil {
		entry := ScanAuditEntry{
			UID:         uid,
			PersonnelID: personnelID,
			EventID:     &eventID,
			Source:      "event",
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			Outcome:     AuditOutcomeRecorded,
		}
		if err != nil {
			entry.Outcome = AuditOutcomeRejected
			entry.Reason = err.Error()
		}
		s.auditor.RecordScan(context.WithoutCancel(ctx), entry)
	}
	return out, err
}

func (s *EventService) recordScan(ctx context.Context, eventID uuid.UUID, uid string) (*EventScanOutcome, *int64, error) {
	if uid == "" {
		return nil, nil, fmt.Errorf("%w: uid is required", ErrValidation)
	}

	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, nil, storageError("failed to get event", err)
	}
	if e == nil {
		return nil, nil, ErrEventNotFound
	}
	if !e.IsOpen() {
		return nil, nil, scanErrorf(ErrEventClosed, "Event %s is closed", e.Name)
	}

	person, err := s.personnel.GetByUID(ctx, uid)
	if err != nil {
		return nil, nil, storageError("failed to resolve badge", err)
	}
	if person == nil || !person.IsActive || person.IsAvailableCard() {
		return nil, nil, scanErrorf(ErrUnknownBadge, "Card %s is not registered", uid)
	}

	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("event:%s:%d", eventID, person.ID))
	if err != nil {
		return nil, &person.ID, storageError("failed to lock event attendance", err)
	}
	defer unlock()

	res, err := s.events.RecordAttendance(ctx, eventID, person.ID, s.now())
	if err != nil {
		return nil, &person.ID, storageError("failed to record event attendance", err)
	}
	if !res.EventFound {
		return nil, &person.ID, ErrEventNotFound
	}
	if res.EventStatus != models.EventOpen {
		return nil, &person.ID, scanErrorf(ErrEventClosed, "Event %s is closed", e.Name)
	}

	name := person.DisplayName()
	att := *res.Attendance
	att.UID = person.UID
	att.PersonnelName = name

	out := &EventScanOutcome{
		Attendance: att,
		Personnel:  person.Summary(),
		Duplicate:  !res.Created,
	}
	if res.Created {
		out.Message = "Attendance recorded: " + name
	} else {
		out.Message = name + " already recorded"
	}

	s.logger.WithFields(logrus.Fields{
		"event_id":  eventID,
		"uid":       uid,
		"duplicate": out.Duplicate,
	}).Info("Event scan")
	return out, &person.ID, nil
}

// Get returns an event with its attendance list
func (s *EventService) Get(ctx context.Context, id uuid.UUID) (*EventDetail, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("failed to get event", err)
	}
	if e == nil {
		return nil, ErrEventNotFound
	}

	attendances, err := s.events.ListAttendances(ctx, id)
	if err != nil {
		return nil, storageError("failed to list event attendance", err)
	}
	return &EventDetail{Event: *e, Attendances: attendances}, nil
}

// List returns all events, newest first
func (s *EventService) List(ctx context.Context) ([]models.Event, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, storageError("failed to list events", err)
	}
	return events, nil
}

// Delete removes an event and its attendance, whatever its state
func (s *EventService) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.events.Delete(ctx, id)
	if err != nil {
		return storageError("failed to delete event", err)
	}
	if !deleted {
		return ErrEventNotFound
	}
	s.logger.WithField("event_id", id).Info("Event deleted")
	return nil
}
