package entity

import (
	"encoding/json"
	"time"
)

// Device statuses reported by devices themselves or derived by the hub
// when a device goes quiet past its class' offline timeout.
const (
	DeviceStatusOnline  = "Online"
	DeviceStatusOffline = "Offline"
)

type Device struct {
	GUID          string          `json:"guid,omitempty" db:"guid"`
	Name          string          `json:"name,omitempty" db:"name"`
	Status        string          `json:"status,omitempty" db:"status"`
	Key           string          `json:"key,omitempty" db:"key"`
	NetworkID     string          `json:"network_id,omitempty" db:"network_id"`
	DeviceClassID string          `json:"device_class_id,omitempty" db:"device_class_id"`
	Data          json.RawMessage `json:"data,omitempty" db:"data"`
	LastOnline    time.Time       `json:"last_online,omitempty" db:"last_online"`
}

type DeviceClass struct {
	ID             string          `json:"id,omitempty" db:"id"`
	Name           string          `json:"name,omitempty" db:"name"`
	Version        string          `json:"version,omitempty" db:"version"`
	OfflineTimeout int             `json:"offline_timeout,omitempty" db:"offline_timeout"`
	Data           json.RawMessage `json:"data,omitempty" db:"data"`
}
