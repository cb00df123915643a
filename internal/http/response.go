package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"moneymind/internal/core"
	"moneymind/internal/export"
	applog "moneymind/internal/log"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain and transport errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation
	case errors.Is(err, core.ErrReference):
		return http.StatusNotFound, applog.ErrorTypeNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, applog.ErrorTypeConflict
	case errors.Is(err, export.ErrSheetsDisabled):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, applog.ErrorTypeInternal
	}
}

// writeError renders err. Internal errors are logged and their text withheld.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldErrorType, code,
			applog.FieldError, err.Error())
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
