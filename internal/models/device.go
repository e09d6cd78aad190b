package models

// Direction is the role of a fixed scanning device
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Device is a fixed scanner bound to one location
type Device struct {
	ID         int64     `db:"id" json:"id"`
	Identifier string    `db:"identifier" json:"identifier"`
	Name       string    `db:"name" json:"name"`
	LocationID int64     `db:"location_id" json:"location_id"`
	Direction  Direction `db:"direction" json:"direction"`
	IsActive   bool      `db:"is_active" json:"is_active"`
}
