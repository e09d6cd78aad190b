package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pobtrack/pob-backend/internal/models"
)

// DeviceRepository resolves fixed scanners
type DeviceRepository struct {
	db DB
}

// NewDeviceRepository creates a new DeviceRepository
func NewDeviceRepository(db DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// GetByIdentifier returns the device registered under a physical identifier, or nil
func (r *DeviceRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Device, error) {
	query := `
		SELECT id, identifier, name, location_id, direction, is_active
		FROM devices
		WHERE identifier = $1
	`

	var device models.Device
	err := r.db.GetContext(ctx, &device, query, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", Classify(err))
	}
	return &device, nil
}
