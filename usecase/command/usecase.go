package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/desain-gratis/devicehub/lib/dispatch"
	"github.com/desain-gratis/devicehub/repository/command"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

// Entity keys routing command events through the hub. DeviceKey carries new
// commands for a device, UpdateKey carries status/result updates of one command.
func DeviceKey(deviceGUID string) string {
	return "command:" + deviceGUID
}

func UpdateKey(commandID string) string {
	return "update:" + commandID
}

type Usecase interface {
	// Submit stores a new command and wakes everyone polling the device.
	Submit(ctx context.Context, cmd entity.DeviceCommand) (entity.DeviceCommand, *types.CommonError)

	// Update applies a device-reported status/result and wakes everyone
	// waiting on that command.
	Update(ctx context.Context, deviceGUID string, update entity.DeviceCommandUpdate) (entity.DeviceCommand, *types.CommonError)

	Get(ctx context.Context, deviceGUID, ID string) (entity.DeviceCommand, *types.CommonError)

	Query(ctx context.Context, deviceGUID string, q command.Query) ([]entity.DeviceCommand, *types.CommonError)

	// Poll returns commands newer than since, blocking up to timeout when
	// there are none yet. Empty result after timeout is success, not error.
	Poll(ctx context.Context, deviceGUID string, since time.Time, timeout time.Duration) ([]entity.DeviceCommand, *types.CommonError)

	// WaitForUpdate blocks up to timeout until the command has been updated
	// (EntityVersion > 0). Returns nil command if it still has no update.
	WaitForUpdate(ctx context.Context, deviceGUID, ID string, timeout time.Duration) (*entity.DeviceCommand, *types.CommonError)
}

var _ Usecase = &usecase{}

type usecase struct {
	repo command.Repository
	hub  *dispatch.Hub
}

func New(repo command.Repository, hub *dispatch.Hub) *usecase {
	return &usecase{
		repo: repo,
		hub:  hub,
	}
}

func (u *usecase) Submit(ctx context.Context, cmd entity.DeviceCommand) (entity.DeviceCommand, *types.CommonError) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.Timestamp = time.Now().UTC()
	cmd.EntityVersion = 0

	stored, err := u.repo.Insert(ctx, cmd)
	if err != nil {
		return entity.DeviceCommand{}, err
	}

	// publish only after the durable commit, at most once per state change
	u.hub.Publish(ctx, DeviceKey(stored.DeviceGUID), stored)

	return stored, nil
}

func (u *usecase) Update(ctx context.Context, deviceGUID string, update entity.DeviceCommandUpdate) (entity.DeviceCommand, *types.CommonError) {
	stored, err := u.repo.Update(ctx, deviceGUID, update)
	if err != nil {
		return entity.DeviceCommand{}, err
	}

	u.hub.Publish(ctx, UpdateKey(stored.ID), stored)

	return stored, nil
}

func (u *usecase) Get(ctx context.Context, deviceGUID, ID string) (entity.DeviceCommand, *types.CommonError) {
	return u.repo.GetByID(ctx, deviceGUID, ID)
}

func (u *usecase) Query(ctx context.Context, deviceGUID string, q command.Query) ([]entity.DeviceCommand, *types.CommonError) {
	return u.repo.QueryByDevice(ctx, deviceGUID, q)
}

func (u *usecase) Poll(ctx context.Context, deviceGUID string, since time.Time, timeout time.Duration) ([]entity.DeviceCommand, *types.CommonError) {
	list, err := u.repo.GetNewerThan(ctx, deviceGUID, since)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 || timeout <= 0 {
		return list, nil
	}

	if u.hub.SubscribeAndWait(ctx, DeviceKey(deviceGUID), timeout) {
		// the wake is a hint; the DAO is the source of truth
		return u.repo.GetNewerThan(ctx, deviceGUID, since)
	}

	return []entity.DeviceCommand{}, nil
}

func (u *usecase) WaitForUpdate(ctx context.Context, deviceGUID, ID string, timeout time.Duration) (*entity.DeviceCommand, *types.CommonError) {
	cmd, err := u.repo.GetByID(ctx, deviceGUID, ID)
	if err != nil {
		return nil, err
	}

	if cmd.EntityVersion == 0 && timeout > 0 {
		if u.hub.SubscribeAndWait(ctx, UpdateKey(ID), timeout) {
			cmd, err = u.repo.GetByID(ctx, deviceGUID, ID)
			if err != nil {
				return nil, err
			}
		}
	}

	if cmd.EntityVersion == 0 {
		return nil, nil
	}
	return &cmd, nil
}
