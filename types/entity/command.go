package entity

import (
	"encoding/json"
	"time"
)

// DeviceCommand is a client-to-device instruction. EntityVersion starts at 0
// and is bumped every time the device reports status/result, which is what
// the "wait for update" long poll keys on.
type DeviceCommand struct {
	ID            string          `json:"id,omitempty" db:"id"`
	DeviceGUID    string          `json:"device_guid,omitempty" db:"device_guid"`
	Timestamp     time.Time       `json:"timestamp,omitempty" db:"timestamp"`
	UserID        string          `json:"user_id,omitempty" db:"user_id"`
	Command       string          `json:"command,omitempty" db:"command"`
	Parameters    json.RawMessage `json:"parameters,omitempty" db:"parameters"`
	Lifetime      int             `json:"lifetime,omitempty" db:"lifetime"`
	Status        string          `json:"status,omitempty" db:"status"`
	Result        json.RawMessage `json:"result,omitempty" db:"result"`
	EntityVersion int             `json:"entity_version" db:"entity_version"`
}

// DeviceCommandUpdate is the mutable subset a device may report back.
type DeviceCommandUpdate struct {
	ID     string           `json:"id,omitempty"`
	Status *string          `json:"status,omitempty"`
	Result *json.RawMessage `json:"result,omitempty"`
}
