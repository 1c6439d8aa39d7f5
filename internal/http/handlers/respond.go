package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

// ErrorResponse is the body of every non-2xx console response.
type ErrorResponse struct {
	Error string        `json:"error"`
	Code  calendar.Code `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	return dec.Decode(dst)
}

// statusFor maps the console's error taxonomy onto HTTP.
func statusFor(err error) int {
	var fetch *calendar.FetchFailure
	switch {
	case errors.Is(err, calendar.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, new(*calendar.ValidationError)):
		return http.StatusUnprocessableEntity
	case errors.As(err, new(*calendar.MutationFailure)):
		return http.StatusBadGateway
	case errors.As(err, &fetch):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeConsoleError(w http.ResponseWriter, logger *logging.Logger, err error) {
	status := statusFor(err)
	body := ErrorResponse{Error: err.Error()}
	if v, ok := calendar.AsValidation(err); ok {
		body.Error = v.Reason
		body.Code = v.Code
	}
	switch status {
	case http.StatusInternalServerError:
		logger.Error("console request failed", "error", err)
		body.Error = "internal error"
	case http.StatusNotFound:
		body.Error = "not found"
	}
	writeJSON(w, status, body)
}
