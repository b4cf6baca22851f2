package postgres

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/desain-gratis/devicehub/repository/notification"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

var _ notification.Repository = &handler{}

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

func (h *handler) Insert(ctx context.Context, n entity.DeviceNotification) (entity.DeviceNotification, *types.CommonError) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	q := `INSERT INTO ` + h.tableName + `
		(id, device_guid, timestamp, notification, parameters)
		VALUES (:id, :device_guid, :timestamp, :notification, :parameters)`

	_, err := h.db.NamedExecContext(ctx, q, n)
	if err != nil {
		return entity.DeviceNotification{}, internalError("Failed to insert notification: " + err.Error())
	}

	return n, nil
}

func (h *handler) GetByID(ctx context.Context, deviceGUID, ID string) (entity.DeviceNotification, *types.CommonError) {
	q := `SELECT id, device_guid, timestamp, notification, parameters
		FROM ` + h.tableName + ` WHERE id = $1 AND device_guid = $2`

	var n entity.DeviceNotification
	err := h.db.GetContext(ctx, &n, q, ID, deviceGUID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DeviceNotification{}, &types.CommonError{
			Errors: []types.Error{
				{
					HTTPCode: http.StatusNotFound,
					Code:     "NOT_FOUND",
					Message:  "No notification with ID '" + ID + "'",
				},
			},
		}
	}
	if err != nil {
		return entity.DeviceNotification{}, internalError("Failed to get notification: " + err.Error())
	}

	return n, nil
}

func (h *handler) QueryByDevice(ctx context.Context, deviceGUID string, query notification.Query) ([]entity.DeviceNotification, *types.CommonError) {
	q := `SELECT id, device_guid, timestamp, notification, parameters
		FROM ` + h.tableName + ` WHERE device_guid = $1`
	args := []any{deviceGUID}

	if !query.Start.IsZero() {
		args = append(args, query.Start)
		q += ` AND timestamp >= $` + strconv.Itoa(len(args))
	}
	if !query.End.IsZero() {
		args = append(args, query.End)
		q += ` AND timestamp <= $` + strconv.Itoa(len(args))
	}
	if query.Notification != "" {
		args = append(args, query.Notification)
		q += ` AND notification = $` + strconv.Itoa(len(args))
	}

	sortField := "timestamp"
	if query.SortField == "notification" {
		sortField = "notification"
	}
	order := " DESC"
	if query.SortAsc {
		order = " ASC"
	}
	q += ` ORDER BY ` + sortField + order

	if query.Take > 0 {
		args = append(args, query.Take)
		q += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if query.Skip > 0 {
		args = append(args, query.Skip)
		q += ` OFFSET $` + strconv.Itoa(len(args))
	}

	result := []entity.DeviceNotification{}
	err := h.db.SelectContext(ctx, &result, q, args...)
	if err != nil {
		return nil, internalError("Failed to query notifications: " + err.Error())
	}

	return result, nil
}

func (h *handler) GetNewerThan(ctx context.Context, deviceGUID string, since time.Time) ([]entity.DeviceNotification, *types.CommonError) {
	q := `SELECT id, device_guid, timestamp, notification, parameters
		FROM ` + h.tableName + ` WHERE device_guid = $1 AND timestamp > $2 ORDER BY timestamp ASC`

	result := []entity.DeviceNotification{}
	err := h.db.SelectContext(ctx, &result, q, deviceGUID, since)
	if err != nil {
		return nil, internalError("Failed to query new notifications: " + err.Error())
	}

	return result, nil
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
