package models

// VehicleClass is the light/heavy classification of a vehicle
type VehicleClass string

const (
	VehicleLight VehicleClass = "LV"
	VehicleHeavy VehicleClass = "HV"
)

// VehiclePresence is a vehicle currently on board and where it is parked
type VehiclePresence struct {
	ID         int64        `db:"id"`
	Class      VehicleClass `db:"class"`
	LocationID *int64       `db:"location_id"`
}

// VehicleStats breaks down on-board vehicles
type VehicleStats struct {
	Light   int `json:"light"`
	Heavy   int `json:"heavy"`
	OnBoard int `json:"onBoard"`
}

// DepartmentCount is the number of people on board for one division
type DepartmentCount struct {
	Name        string `json:"name"`
	ActiveCount int    `json:"active_count"`
}

// DashboardStats is the occupancy snapshot for one scope
type DashboardStats struct {
	POBCount         int               `json:"pobCount"`
	TodayTapIn       int               `json:"todayTapIn"`
	FieldCount       int               `json:"fieldCount"`
	VisitorCount     int               `json:"visitorCount"`
	Vehicles         VehicleStats      `json:"vehicles"`
	DepartmentCounts []DepartmentCount `json:"departmentCounts"`
	LocationInfo     *LocationInfo     `json:"locationInfo"`
}
