package domain

import (
	"encoding/json"
	"time"
)

// EventRecord is one row of the permission_event table: the shared event
// fields, the type discriminator and the variant payload.
type EventRecord struct {
	ID           int64           `json:"id"`
	PermissionID string          `json:"permissionId"`
	RegionID     string          `json:"regionId,omitempty"`
	EventType    EventType       `json:"eventType"`
	Status       Status          `json:"status"`
	EventCreated time.Time       `json:"eventCreated"`
	Payload      json.RawMessage `json:"payload"`
}
