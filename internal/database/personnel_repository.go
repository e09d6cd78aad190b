package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pobtrack/pob-backend/internal/models"
)

// PersonnelRepository reads badge holders
type PersonnelRepository struct {
	db DB
}

// NewPersonnelRepository creates a new PersonnelRepository
func NewPersonnelRepository(db DB) *PersonnelRepository {
	return &PersonnelRepository{db: db}
}

const personnelSelect = `
	SELECT p.id, p.uid, p.name, p.division_id, d.name AS division_name, p.photo,
		p.mcu_status, p.mcu_last_date, p.is_active, p.is_spare,
		p.visitor_name, p.visitor_company, p.visitor_location_id, p.visitor_checked_in_at
	FROM personnel p
	LEFT JOIN divisions d ON d.id = p.division_id
`

// GetByUID returns the personnel holding a badge, or nil if the uid is unknown
func (r *PersonnelRepository) GetByUID(ctx context.Context, uid string) (*models.Personnel, error) {
	return r.getOne(ctx, personnelSelect+` WHERE p.uid = $1`, uid)
}

// GetByID returns a personnel record, or nil if it does not exist
func (r *PersonnelRepository) GetByID(ctx context.Context, id int64) (*models.Personnel, error) {
	return r.getOne(ctx, personnelSelect+` WHERE p.id = $1`, id)
}

func (r *PersonnelRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Personnel, error) {
	var p models.Personnel
	err := r.db.GetContext(ctx, &p, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get personnel: %w", Classify(err))
	}
	return &p, nil
}

// ListSpareCards returns every spare card, lent or not, ordered by card name
func (r *PersonnelRepository) ListSpareCards(ctx context.Context) ([]models.Personnel, error) {
	query := personnelSelect + ` WHERE p.is_spare = TRUE AND p.is_active = TRUE ORDER BY p.name, p.id`

	var cards []models.Personnel
	if err := r.db.SelectContext(ctx, &cards, query); err != nil {
		return nil, fmt.Errorf("failed to list spare cards: %w", Classify(err))
	}
	return cards, nil
}
