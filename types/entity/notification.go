package entity

import (
	"encoding/json"
	"time"
)

type DeviceNotification struct {
	ID           string          `json:"id,omitempty" db:"id"`
	DeviceGUID   string          `json:"device_guid,omitempty" db:"device_guid"`
	Timestamp    time.Time       `json:"timestamp,omitempty" db:"timestamp"`
	Notification string          `json:"notification,omitempty" db:"notification"`
	Parameters   json.RawMessage `json:"parameters,omitempty" db:"parameters"`
}
