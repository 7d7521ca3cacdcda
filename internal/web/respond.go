package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"lunarcal/internal/grid"
	"lunarcal/internal/lunar"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
	"lunarcal/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errResp struct {
	Error  string             `json:"error"`
	Fields []model.FieldError `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

// writeErr maps err onto a status code. Server-side failures are logged
// and their detail kept out of the response.
func writeErr(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	resp := errResp{Error: err.Error()}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		appLog.Error("api "+op+" failed", err)
		resp.Error = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, store.ErrMissingID),
		errors.Is(err, grid.ErrInvalidMonth),
		errors.Is(err, lunar.ErrUnsupportedDateRange):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
