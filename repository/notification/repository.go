package notification

import (
	"context"
	"time"

	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

type Query struct {
	Start        time.Time
	End          time.Time
	Notification string

	// "timestamp" (default) or "notification"
	SortField string
	SortAsc   bool

	Take int
	Skip int
}

type Repository interface {
	Insert(ctx context.Context, n entity.DeviceNotification) (entity.DeviceNotification, *types.CommonError)

	GetByID(ctx context.Context, deviceGUID, ID string) (entity.DeviceNotification, *types.CommonError)

	QueryByDevice(ctx context.Context, deviceGUID string, q Query) ([]entity.DeviceNotification, *types.CommonError)

	// GetNewerThan is the long poll's authoritative re-check.
	GetNewerThan(ctx context.Context, deviceGUID string, since time.Time) ([]entity.DeviceNotification, *types.CommonError)
}
