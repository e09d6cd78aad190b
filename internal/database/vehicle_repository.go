package database

import (
	"context"
	"fmt"

	"github.com/pobtrack/pob-backend/internal/models"
)

// VehicleRepository reads vehicle presence for the occupancy stats
type VehicleRepository struct {
	db DB
}

// NewVehicleRepository creates a new VehicleRepository
func NewVehicleRepository(db DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// ListOnBoard returns the vehicles currently on board
func (r *VehicleRepository) ListOnBoard(ctx context.Context) ([]models.VehiclePresence, error) {
	query := `SELECT id, class, location_id FROM vehicles WHERE on_board = TRUE`

	var vehicles []models.VehiclePresence
	if err := r.db.SelectContext(ctx, &vehicles, query); err != nil {
		return nil, fmt.Errorf("failed to list vehicles on board: %w", Classify(err))
	}
	return vehicles, nil
}
