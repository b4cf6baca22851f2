package command

import (
	"context"
	"time"

	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

// Query is the filter set of the command history endpoint.
type Query struct {
	Start   time.Time
	End     time.Time
	Command string
	Status  string

	// "timestamp" (default), "command" or "status"
	SortField string
	SortAsc   bool

	Take int
	Skip int
}

type Repository interface {
	Insert(ctx context.Context, cmd entity.DeviceCommand) (entity.DeviceCommand, *types.CommonError)

	// Update applies a device-reported status/result and bumps EntityVersion.
	Update(ctx context.Context, deviceGUID string, update entity.DeviceCommandUpdate) (entity.DeviceCommand, *types.CommonError)

	GetByID(ctx context.Context, deviceGUID, ID string) (entity.DeviceCommand, *types.CommonError)

	QueryByDevice(ctx context.Context, deviceGUID string, q Query) ([]entity.DeviceCommand, *types.CommonError)

	// GetNewerThan is the long poll's authoritative re-check.
	GetNewerThan(ctx context.Context, deviceGUID string, since time.Time) ([]entity.DeviceCommand, *types.CommonError)
}
