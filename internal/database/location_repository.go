package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pobtrack/pob-backend/internal/models"
)

// LocationRepository reads the location master data
type LocationRepository struct {
	db DB
}

// NewLocationRepository creates a new LocationRepository
func NewLocationRepository(db DB) *LocationRepository {
	return &LocationRepository{db: db}
}

const locationColumns = `id, name, type, parent_id, capacity, custom_in_message, custom_out_message`

// ListAll returns every location as a flat list
func (r *LocationRepository) ListAll(ctx context.Context) ([]models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations ORDER BY id`

	var locations []models.Location
	if err := r.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", Classify(err))
	}
	return locations, nil
}

// GetByID returns a location or nil when it does not exist
func (r *LocationRepository) GetByID(ctx context.Context, id int64) (*models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`

	var loc models.Location
	err := r.db.GetContext(ctx, &loc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", Classify(err))
	}
	return &loc, nil
}
