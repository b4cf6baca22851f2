package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/desain-gratis/devicehub/lib/dispatch"
	"github.com/desain-gratis/devicehub/repository/notification"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

// DeviceKey routes a device's notifications through the hub.
func DeviceKey(deviceGUID string) string {
	return "notification:" + deviceGUID
}

type Usecase interface {
	// Submit stores a device notification and wakes everyone polling the device.
	Submit(ctx context.Context, n entity.DeviceNotification) (entity.DeviceNotification, *types.CommonError)

	Get(ctx context.Context, deviceGUID, ID string) (entity.DeviceNotification, *types.CommonError)

	Query(ctx context.Context, deviceGUID string, q notification.Query) ([]entity.DeviceNotification, *types.CommonError)

	// Poll returns notifications newer than since, blocking up to timeout
	// when there are none yet.
	Poll(ctx context.Context, deviceGUID string, since time.Time, timeout time.Duration) ([]entity.DeviceNotification, *types.CommonError)
}

var _ Usecase = &usecase{}

type usecase struct {
	repo notification.Repository
	hub  *dispatch.Hub
}

func New(repo notification.Repository, hub *dispatch.Hub) *usecase {
	return &usecase{
		repo: repo,
		hub:  hub,
	}
}

func (u *usecase) Submit(ctx context.Context, n entity.DeviceNotification) (entity.DeviceNotification, *types.CommonError) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Timestamp = time.Now().UTC()

	stored, err := u.repo.Insert(ctx, n)
	if err != nil {
		return entity.DeviceNotification{}, err
	}

	u.hub.Publish(ctx, DeviceKey(stored.DeviceGUID), stored)

	return stored, nil
}

func (u *usecase) Get(ctx context.Context, deviceGUID, ID string) (entity.DeviceNotification, *types.CommonError) {
	return u.repo.GetByID(ctx, deviceGUID, ID)
}

func (u *usecase) Query(ctx context.Context, deviceGUID string, q notification.Query) ([]entity.DeviceNotification, *types.CommonError) {
	return u.repo.QueryByDevice(ctx, deviceGUID, q)
}

func (u *usecase) Poll(ctx context.Context, deviceGUID string, since time.Time, timeout time.Duration) ([]entity.DeviceNotification, *types.CommonError) {
	list, err := u.repo.GetNewerThan(ctx, deviceGUID, since)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 || timeout <= 0 {
		return list, nil
	}

	if u.hub.SubscribeAndWait(ctx, DeviceKey(deviceGUID), timeout) {
		return u.repo.GetNewerThan(ctx, deviceGUID, since)
	}

	return []entity.DeviceNotification{}, nil
}
