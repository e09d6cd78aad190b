package models

// Live channel event names
const (
	LiveEventNewLog          = "new_log"
	LiveEventDashboardUpdate = "dashboard_update"
)

// NewLogPayload is pushed to every dashboard after a gate scan is committed
type NewLogPayload struct {
	UID              string           `json:"uid"`
	Name             string           `json:"name"`
	Status           AttendanceStatus `json:"status"`
	Location         string           `json:"location"`
	LocationID       int64            `json:"location_id"`
	LocationParentID *int64           `json:"location_parent_id"`
	AvatarURL        *string          `json:"avatar_url,omitempty"`
	MessageIn        *string          `json:"message_in,omitempty"`
	MessageOut       *string          `json:"message_out,omitempty"`
	MCUWarning       *string          `json:"mcu_warning,omitempty"`
}

// LiveEnvelope is the frame written to websocket clients
type LiveEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}
