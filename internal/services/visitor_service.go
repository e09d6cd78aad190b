package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pobtrack/pob-backend/internal/database"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// VisitorCheckInInput lends a spare card to a visitor
type VisitorCheckInInput struct {
	CardID     int64   `json:"personnel_id" binding:"required" validate:"required,gt=0"`
	Name       string  `json:"name" binding:"required" validate:"required,max=120"`
	Company    string  `json:"company" validate:"max=120"`
	LocationID int64   `json:"location_id" binding:"required" validate:"required,gt=0"`
	MCUStatus  *string `json:"mcu_status"`
}

// VisitorOverview splits spare cards by state
type VisitorOverview struct {
	Available []models.Personnel `json:"available"`
	Active    []models.Personnel `json:"active"`
}

// VisitorService runs the spare card lifecycle: Available -> CheckedIn -> Available
type VisitorService struct {
	personnel PersonnelStore
	cards     VisitorCardStore
	scans     *ScanService
	logger    *logrus.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// NewVisitorService creates a new VisitorService
func NewVisitorService(personnel PersonnelStore, cards VisitorCardStore, scans *ScanService, logger *logrus.Logger) *VisitorService {
	return &VisitorService{
		personnel: personnel,
		cards:     cards,
		scans:     scans,
		logger:    logger,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// List returns available and lent cards
func (s *VisitorService) List(ctx context.Context) (*VisitorOverview, error) {
	cards, err := s.personnel.ListSpareCards(ctx)
	if err != nil {
		return nil, storageError("failed to list visitor cards", err)
	}

	out := &VisitorOverview{Available: []models.Personnel{}, Active: []models.Personnel{}}
	for _, c := range cards {
		if c.IsAvailableCard() {
			out.Available = append(out.Available, c)
		} else {
			out.Active = append(out.Active, c)
		}
	}
	return out, nil
}

// CheckIn lends the card and records the visitor's entry. If the entry is rejected the card
// goes back to Available.
func (s *VisitorService) CheckIn(ctx context.Context, in VisitorCheckInInput, meta ScanInput) (*ScanOutcome, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Company = strings.TrimSpace(in.Company)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	card, err := s.spareCard(ctx, in.CardID)
	if err != nil {
		return nil, err
	}

	assigned, err := s.cards.AssignCard(ctx, card.ID, database.VisitorAssignment{
		Name:       in.Name,
		Company:    in.Company,
		LocationID: in.LocationID,
		MCUStatus:  in.MCUStatus,
		At:         s.now(),
	})
	if err != nil {
		return nil, storageError("failed to assign visitor card", err)
	}
	if !assigned {
		return nil, scanErrorf(ErrCardUnavailable, "Card %s is already in use", card.Name)
	}

	out, err := s.scans.Process(ctx, ScanInput{
		UID:         card.UID,
		LocationID:  &in.LocationID,
		ForceAction: models.AttendanceIn,
		Source:      "visitor",
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	})
	if err != nil {
		if _, rerr := s.cards.ReleaseCard(context.WithoutCancel(ctx), card.ID); rerr != nil {
			s.logger.WithError(rerr).WithField("card_id", card.ID).Error("Failed to revert visitor card assignment")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"card_id":     card.ID,
		"location_id": in.LocationID,
	}).Info("Visitor checked in")
	return out, nil
}

// CheckOut records the visitor's exit at the check-in location and returns the card to Available
func (s *VisitorService) CheckOut(ctx context.Context, cardID int64, meta ScanInput) (*ScanOutcome, error) {
	card, err := s.spareCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.IsAvailableCard() {
		return nil, scanErrorf(ErrCardUnavailable, "Card %s is not checked in", card.Name)
	}
	if card.VisitorLocationID == nil {
		return nil, scanErrorf(ErrInvalidLocation, "Card %s has no check-in location", card.Name)
	}

	out, err := s.scans.Process(ctx, ScanInput{
		UID:         card.UID,
		LocationID:  card.VisitorLocationID,
		ForceAction: models.AttendanceOut,
		Source:      "visitor",
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.cards.ReleaseCard(ctx, card.ID); err != nil {
		return nil, storageError("failed to release visitor card", err)
	}

	s.logger.WithField("card_id", card.ID).Info("Visitor checked out")
	return out, nil
}

func (s *VisitorService) spareCard(ctx context.Context, id int64) (*models.Personnel, error) {
	card, err := s.personnel.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("failed to get visitor card", err)
	}
	if card == nil || !card.IsSpare || !card.IsActive {
		return nil, scanErrorf(ErrCardUnavailable, "Visitor card %d not found", id)
	}
	return card, nil
}
