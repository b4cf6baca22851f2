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

	"github.com/desain-gratis/devicehub/repository/command"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

var _ command.Repository = &handler{}

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

func (h *handler) Insert(ctx context.Context, cmd entity.DeviceCommand) (entity.DeviceCommand, *types.CommonError) {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	q := `INSERT INTO ` + h.tableName + `
		(id, device_guid, timestamp, user_id, command, parameters, lifetime, status, result, entity_version)
		VALUES (:id, :device_guid, :timestamp, :user_id, :command, :parameters, :lifetime, :status, :result, :entity_version)`

	_, err := h.db.NamedExecContext(ctx, q, cmd)
	if err != nil {
		return entity.DeviceCommand{}, internalError("Failed to insert command: " + err.Error())
	}

	return cmd, nil
}

func (h *handler) Update(ctx context.Context, deviceGUID string, update entity.DeviceCommandUpdate) (entity.DeviceCommand, *types.CommonError) {
	q := `UPDATE ` + h.tableName + ` SET
			status = COALESCE($3, status),
			result = COALESCE($4, result),
			entity_version = entity_version + 1
		WHERE id = $1 AND device_guid = $2
		RETURNING id, device_guid, timestamp, user_id, command, parameters, lifetime, status, result, entity_version`

	var status *string
	var result []byte
	if update.Status != nil {
		status = update.Status
	}
	if update.Result != nil {
		result = *update.Result
	}

	var cmd entity.DeviceCommand
	err := h.db.GetContext(ctx, &cmd, q, update.ID, deviceGUID, status, result)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DeviceCommand{}, notFound("command", update.ID)
	}
	if err != nil {
		return entity.DeviceCommand{}, internalError("Failed to update command: " + err.Error())
	}

	return cmd, nil
}

func (h *handler) GetByID(ctx context.Context, deviceGUID, ID string) (entity.DeviceCommand, *types.CommonError) {
	q := `SELECT id, device_guid, timestamp, user_id, command, parameters, lifetime, status, result, entity_version
		FROM ` + h.tableName + ` WHERE id = $1 AND device_guid = $2`

	var cmd entity.DeviceCommand
	err := h.db.GetContext(ctx, &cmd, q, ID, deviceGUID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DeviceCommand{}, notFound("command", ID)
	}
	if err != nil {
		return entity.DeviceCommand{}, internalError("Failed to get command: " + err.Error())
	}

	return cmd, nil
}

func (h *handler) QueryByDevice(ctx context.Context, deviceGUID string, query command.Query) ([]entity.DeviceCommand, *types.CommonError) {
	q := `SELECT id, device_guid, timestamp, user_id, command, parameters, lifetime, status, result, entity_version
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
	if query.Command != "" {
		args = append(args, query.Command)
		q += ` AND command = $` + strconv.Itoa(len(args))
	}
	if query.Status != "" {
		args = append(args, query.Status)
		q += ` AND status = $` + strconv.Itoa(len(args))
	}

	// sort field is whitelisted here, never interpolated from raw input
	sortField := "timestamp"
	switch query.SortField {
	case "command":
		sortField = "command"
	case "status":
		sortField = "status"
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

	result := []entity.DeviceCommand{}
	err := h.db.SelectContext(ctx, &result, q, args...)
	if err != nil {
		return nil, internalError("Failed to query commands: " + err.Error())
	}

	return result, nil
}

func (h *handler) GetNewerThan(ctx context.Context, deviceGUID string, since time.Time) ([]entity.DeviceCommand, *types.CommonError) {
	q := `SELECT id, device_guid, timestamp, user_id, command, parameters, lifetime, status, result, entity_version
		FROM ` + h.tableName + ` WHERE device_guid = $1 AND timestamp > $2 ORDER BY timestamp ASC`

	result := []entity.DeviceCommand{}
	err := h.db.SelectContext(ctx, &result, q, deviceGUID, since)
	if err != nil {
		return nil, internalError("Failed to query new commands: " + err.Error())
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
