package hubapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	types "github.com/desain-gratis/devicehub/types/http"
)

const maximumRequestLength = 1 << 20

func replySuccess(w http.ResponseWriter, httpStatus int, result any) {
	payload, err := json.Marshal(&types.CommonResponse{
		Success: result,
	})
	if err != nil {
		handleError(w, "SERVER_ERROR", "server encounter an error", http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	w.Write(payload)
}

func handleError(w http.ResponseWriter, code, msg string, httpStatus int, err error) {
	if err != nil {
		log.Err(err).Msgf("failed to serve request")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	w.Write(types.SerializeError(&types.CommonError{
		Errors: []types.Error{
			{Message: msg, Code: code, HTTPCode: httpStatus},
		},
	}))
}

func handleUCError(w http.ResponseWriter, err *types.CommonError) {
	httpStatus := http.StatusInternalServerError
	if len(err.Errors) > 0 && err.Errors[0].HTTPCode != 0 {
		httpStatus = err.Errors[0].HTTPCode
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	w.Write(types.SerializeError(err))
}

// parseWaitTimeout reads waitTimeout (seconds). 0 disables waiting; absence
// means the default; anything above max is clamped.
func parseWaitTimeout(r *http.Request, def, max time.Duration) (time.Duration, bool) {
	raw := r.URL.Query().Get("waitTimeout")
	if raw == "" {
		return def, true
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, false
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout > max {
		timeout = max
	}
	return timeout, true
}

// parseTimestamp reads an RFC3339 timestamp param; zero time when absent.
func parseTimestamp(r *http.Request, param string) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseInt(r *http.Request, param string) (int, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
