package postgres

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/desain-gratis/devicehub/repository/device"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

var (
	_ device.Repository      = &handler{}
	_ device.ClassRepository = &classHandler{}
)

type handler struct {
	db        *sqlx.DB
	tableName string
}

func New(db *sqlx.DB, tableName string) *handler {
	return &handler{
		db:        db,
		tableName: tableName,
	}
}

const deviceColumns = `guid, name, status, key, network_id, device_class_id, data, last_online`

func (h *handler) Upsert(ctx context.Context, d entity.Device) (entity.Device, *types.CommonError) {
	q := `INSERT INTO ` + h.tableName + ` (` + deviceColumns + `)
		VALUES (:guid, :name, :status, :key, :network_id, :device_class_id, :data, :last_online)
		ON CONFLICT (guid) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			key = EXCLUDED.key,
			network_id = EXCLUDED.network_id,
			device_class_id = EXCLUDED.device_class_id,
			data = EXCLUDED.data,
			last_online = EXCLUDED.last_online`

	_, err := h.db.NamedExecContext(ctx, q, d)
	if err != nil {
		return entity.Device{}, internalError("Failed to upsert device: " + err.Error())
	}

	return d, nil
}

func (h *handler) GetByGUID(ctx context.Context, guid string) (entity.Device, *types.CommonError) {
	q := `SELECT ` + deviceColumns + ` FROM ` + h.tableName + ` WHERE guid = $1`

	var d entity.Device
	err := h.db.GetContext(ctx, &d, q, guid)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Device{}, notFound("device", guid)
	}
	if err != nil {
		return entity.Device{}, internalError("Failed to get device: " + err.Error())
	}

	return d, nil
}

func (h *handler) List(ctx context.Context) ([]entity.Device, *types.CommonError) {
	q := `SELECT ` + deviceColumns + ` FROM ` + h.tableName + ` ORDER BY guid ASC`

	result := []entity.Device{}
	err := h.db.SelectContext(ctx, &result, q)
	if err != nil {
		return nil, internalError("Failed to list devices: " + err.Error())
	}

	return result, nil
}

func (h *handler) Delete(ctx context.Context, guid string) (entity.Device, *types.CommonError) {
	q := `DELETE FROM ` + h.tableName + ` WHERE guid = $1 RETURNING ` + deviceColumns

	var d entity.Device
	err := h.db.GetContext(ctx, &d, q, guid)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Device{}, notFound("device", guid)
	}
	if err != nil {
		return entity.Device{}, internalError("Failed to delete device: " + err.Error())
	}

	return d, nil
}

type classHandler struct {
	db        *sqlx.DB
	tableName string
}

func NewClass(db *sqlx.DB, tableName string) *classHandler {
	return &classHandler{
		db:        db,
		tableName: tableName,
	}
}

const classColumns = `id, name, version, offline_timeout, data`

func (h *classHandler) Insert(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError) {
	q := `INSERT INTO ` + h.tableName + ` (` + classColumns + `)
		VALUES (:id, :name, :version, :offline_timeout, :data)`

	_, err := h.db.NamedExecContext(ctx, q, c)
	if err != nil {
		return entity.DeviceClass{}, internalError("Failed to insert device class: " + err.Error())
	}

	return c, nil
}

func (h *classHandler) Update(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError) {
	q := `UPDATE ` + h.tableName + ` SET
			name = $2, version = $3, offline_timeout = $4, data = $5
		WHERE id = $1 RETURNING ` + classColumns

	var out entity.DeviceClass
	err := h.db.GetContext(ctx, &out, q, c.ID, c.Name, c.Version, c.OfflineTimeout, []byte(c.Data))
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DeviceClass{}, notFound("device class", c.ID)
	}
	if err != nil {
		return entity.DeviceClass{}, internalError("Failed to update device class: " + err.Error())
	}

	return out, nil
}

func (h *classHandler) GetByID(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError) {
	q := `SELECT ` + classColumns + ` FROM ` + h.tableName + ` WHERE id = $1`

	var c entity.DeviceClass
	err := h.db.GetContext(ctx, &c, q, ID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DeviceClass{}, notFound("device class", ID)
	}
	if err != nil {
		return entity.DeviceClass{}, internalError("Failed to get device class: " + err.Error())
	}

	return c, nil
}

func (h *classHandler) List(ctx context.Context) ([]entity.DeviceClass, *types.CommonError) {
	q := `SELECT ` + classColumns + ` FROM ` + h.tableName + ` ORDER BY id ASC`

	result := []entity.DeviceClass{}
	err := h.db.SelectContext(ctx, &result, q)
	if err != nil {
		return nil, internalError("Failed to list device classes: " + err.Error())
	}

	return result, nil
}

func (h *classHandler) Delete(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError) {
	q := `DELETE FROM ` + h.tableName + ` WHERE id = $1 RETURNING ` + classColumns

	var c entity.DeviceClass
	err := h.db.GetContext(ctx, &c, q, ID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DeviceClass{}, notFound("device class", ID)
	}
	if err != nil {
		return entity.DeviceClass{}, internalError("Failed to delete device class: " + err.Error())
	}

	return c, nil
}

func internalError(message string) *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{
				HTTPCode: http.StatusInternalServerError,
				Code:     "INTERNAL_SERVER_ERROR",
				Message:  message,
			},
		},
	}
}

func notFound(kind, id string) *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{
				HTTPCode: http.StatusNotFound,
				Code:     "NOT_FOUND",
				Message:  "No " + kind + " with ID '" + id + "'",
			},
		},
	}
}
