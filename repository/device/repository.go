package device

import (
	"context"

	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

type Repository interface {
	// Upsert registers a new device or overwrites an existing one (PUT semantics).
	Upsert(ctx context.Context, d entity.Device) (entity.Device, *types.CommonError)

	GetByGUID(ctx context.Context, guid string) (entity.Device, *types.CommonError)

	List(ctx context.Context) ([]entity.Device, *types.CommonError)

	Delete(ctx context.Context, guid string) (entity.Device, *types.CommonError)
}

type ClassRepository interface {
	Insert(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError)

	Update(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError)

	GetByID(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError)

	List(ctx context.Context) ([]entity.DeviceClass, *types.CommonError)

	Delete(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError)
}
