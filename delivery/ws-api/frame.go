package wsapi

import (
	"time"

	"github.com/desain-gratis/devicehub/types/entity"
)

// Actions accepted from (and pushed to) the websocket peer.
const (
	actionAuthenticate = "authenticate"
	actionServerInfo   = "server/info"

	actionCommandInsert      = "command/insert"
	actionCommandUpdate      = "command/update"
	actionCommandSubscribe   = "command/subscribe"
	actionCommandUnsubscribe = "command/unsubscribe"

	actionNotificationInsert      = "notification/insert"
	actionNotificationSubscribe   = "notification/subscribe"
	actionNotificationUnsubscribe = "notification/unsubscribe"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type request struct {
	Action     string `json:"action"`
	RequestID  string `json:"requestId,omitempty"`
	Token      string `json:"token,omitempty"`
	DeviceGUID string `json:"deviceGuid,omitempty"`

	SubscriptionID string `json:"subscriptionId,omitempty"`
	CommandID      string `json:"commandId,omitempty"`

	Command      *entity.DeviceCommand       `json:"command,omitempty"`
	Update       *entity.DeviceCommandUpdate `json:"update,omitempty"`
	Notification *entity.DeviceNotification  `json:"notification,omitempty"`
}

// response is both the reply to a request (requestId echoed back) and the
// push frame for a dispatched event (requestId empty, subscriptionId set).
type response struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
	Status    string `json:"status"`

	Code    int    `json:"code,omitempty"`
	Message string `json:"error,omitempty"`

	SubscriptionID string `json:"subscriptionId,omitempty"`
	DeviceGUID     string `json:"deviceGuid,omitempty"`

	Command      *entity.DeviceCommand      `json:"command,omitempty"`
	Notification *entity.DeviceNotification `json:"notification,omitempty"`
	Info         *serverInfo                `json:"info,omitempty"`
}

type serverInfo struct {
	APIVersion      string    `json:"apiVersion"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
}
