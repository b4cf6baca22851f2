package device

import (
	"context"
	"net/http"
	"time"

	"github.com/desain-gratis/devicehub/repository/device"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

type Usecase interface {
	// Register creates or overwrites a device (PUT semantics).
	Register(ctx context.Context, d entity.Device) (entity.Device, *types.CommonError)

	Get(ctx context.Context, guid string) (entity.Device, *types.CommonError)

	List(ctx context.Context) ([]entity.Device, *types.CommonError)

	Delete(ctx context.Context, guid string) (entity.Device, *types.CommonError)

	CreateClass(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError)
	UpdateClass(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError)
	GetClass(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError)
	ListClasses(ctx context.Context) ([]entity.DeviceClass, *types.CommonError)
	DeleteClass(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError)
}

var _ Usecase = &usecase{}

type usecase struct {
	repo    device.Repository
	classes device.ClassRepository
}

func New(repo device.Repository, classes device.ClassRepository) *usecase {
	return &usecase{
		repo:    repo,
		classes: classes,
	}
}

func (u *usecase) Register(ctx context.Context, d entity.Device) (entity.Device, *types.CommonError) {
	if d.GUID == "" || d.Name == "" {
		return entity.Device{}, badRequest("Device guid and name are required")
	}

	if d.DeviceClassID != "" {
		if _, err := u.classes.GetByID(ctx, d.DeviceClassID); err != nil {
			return entity.Device{}, err
		}
	}

	if d.Status == "" {
		d.Status = entity.DeviceStatusOnline
	}
	d.LastOnline = time.Now().UTC()

	return u.repo.Upsert(ctx, d)
}

func (u *usecase) Get(ctx context.Context, guid string) (entity.Device, *types.CommonError) {
	return u.repo.GetByGUID(ctx, guid)
}

func (u *usecase) List(ctx context.Context) ([]entity.Device, *types.CommonError) {
	return u.repo.List(ctx)
}

func (u *usecase) Delete(ctx context.Context, guid string) (entity.Device, *types.CommonError) {
	return u.repo.Delete(ctx, guid)
}

func (u *usecase) CreateClass(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError) {
	if c.Name == "" {
		return entity.DeviceClass{}, badRequest("Device class name is required")
	}
	return u.classes.Insert(ctx, c)
}

func (u *usecase) UpdateClass(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError) {
	if c.ID == "" {
		return entity.DeviceClass{}, badRequest("Device class ID is required")
	}
	return u.classes.Update(ctx, c)
}

func (u *usecase) GetClass(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError) {
	return u.classes.GetByID(ctx, ID)
}

func (u *usecase) ListClasses(ctx context.Context) ([]entity.DeviceClass, *types.CommonError) {
	return u.classes.List(ctx)
}

func (u *usecase) DeleteClass(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError) {
	return u.classes.Delete(ctx, ID)
}

func badRequest(message string) *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{
				HTTPCode: http.StatusBadRequest,
				Code:     "INVALID_REQUEST",
				Message:  message,
			},
		},
	}
}
