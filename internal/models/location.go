package models

// LocationType classifies a node of the location hierarchy
type LocationType string

const (
	LocationTypeSite     LocationType = "SITE"
	LocationTypeMainGate LocationType = "MAIN_GATE"
	LocationTypeGate     LocationType = "GATE"
	LocationTypeOffice   LocationType = "OFFICE"
	LocationTypeField    LocationType = "FIELD"
	LocationTypeRoom     LocationType = "ROOM"
	LocationTypeOther    LocationType = "OTHER"
)

// IsValid reports whether t is one of the known location types
func (t LocationType) IsValid() bool {
	switch t {
	case LocationTypeSite, LocationTypeMainGate, LocationTypeGate, LocationTypeOffice,
		LocationTypeField, LocationTypeRoom, LocationTypeOther:
		return true
	}
	return false
}

// Location is a site, gate, room or any other place personnel can be scanned at.
// Rows are owned by master data; the attendance core only reads them.
type Location struct {
	ID               int64        `db:"id" json:"id"`
	Name             string       `db:"name" json:"name"`
	Type             LocationType `db:"type" json:"type"`
	ParentID         *int64       `db:"parent_id" json:"parent_id"`
	Capacity         *int         `db:"capacity" json:"capacity,omitempty"`
	CustomInMessage  *string      `db:"custom_in_message" json:"custom_in_message,omitempty"`
	CustomOutMessage *string      `db:"custom_out_message" json:"custom_out_message,omitempty"`
}

// IsSite reports whether the location is a SITE
func (l *Location) IsSite() bool {
	return l != nil && l.Type == LocationTypeSite
}

// IsField reports whether scans at this location put people on field duty
func (l *Location) IsField() bool {
	return l != nil && l.Type == LocationTypeField
}

// LocationInfo describes the resolved scope of a dashboard query
type LocationInfo struct {
	ID   int64        `json:"id"`
	Type LocationType `json:"type"`
	Name string       `json:"name"`
}
