package database

import (
	"context"
	"fmt"
	"time"
)

// VisitorAssignment is the visitor a spare card gets lent to
type VisitorAssignment struct {
	Name       string
	Company    string
	LocationID int64
	MCUStatus  *string
	At         time.Time
}

// VisitorRepository moves spare cards between Available and CheckedIn
type VisitorRepository struct {
	db DB
}

// NewVisitorRepository creates a new VisitorRepository
func NewVisitorRepository(db DB) *VisitorRepository {
	return &VisitorRepository{db: db}
}

// AssignCard lends an available card. It reports false when the card does not exist, is not a
// spare card, or is already lent; the check and the write are a single statement.
func (r *VisitorRepository) AssignCard(ctx context.Context, cardID int64, a VisitorAssignment) (bool, error) {
	query := `
		UPDATE personnel
		SET visitor_name = $2,
			visitor_company = $3,
			visitor_location_id = $4,
			mcu_status = $5,
			visitor_checked_in_at = $6
		WHERE id = $1 AND is_spare = TRUE AND is_active = TRUE AND visitor_name IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, cardID, a.Name, a.Company, a.LocationID, a.MCUStatus, a.At)
	if err != nil {
		return false, fmt.Errorf("failed to assign visitor card: %w", Classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ReleaseCard returns a lent card to Available. It reports false when the card was not lent.
func (r *VisitorRepository) ReleaseCard(ctx context.Context, cardID int64) (bool, error) {
	query := `
		UPDATE personnel
		SET visitor_name = NULL,
			visitor_company = NULL,
			visitor_location_id = NULL,
			mcu_status = NULL,
			visitor_checked_in_at = NULL
		WHERE id = $1 AND is_spare = TRUE AND visitor_name IS NOT NULL
	`

	result, err := r.db.ExecContext(ctx, query, cardID)
	if err != nil {
		return false, fmt.Errorf("failed to release visitor card: %w", Classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}
