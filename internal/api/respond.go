package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// handleError maps service errors to HTTP responses. Store failures are
// logged and reported without detail.
func handleError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "login_required", err.Error())
	case errors.Is(err, scheduler.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, scheduler.ErrNotLoggedIn):
		writeError(w, http.StatusUnauthorized, "not_logged_in", err.Error())
	case errors.Is(err, scheduler.ErrWrongRole):
		writeError(w, http.StatusForbidden, "wrong_role", err.Error())
	case errors.Is(err, scheduler.ErrAlreadyLoggedIn):
		writeError(w, http.StatusConflict, "already_logged_in", err.Error())
	case errors.Is(err, scheduler.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, scheduler.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation_not_found", err.Error())
	case errors.Is(err, scheduler.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username_taken", err.Error())
	case errors.Is(err, scheduler.ErrNoCaregiverAvailable):
		writeError(w, http.StatusConflict, "no_caregiver_available", err.Error())
	case errors.Is(err, scheduler.ErrOutOfStock):
		writeError(w, http.StatusConflict, "out_of_stock", err.Error())
	case errors.Is(err, scheduler.ErrVaccineUnknown):
		writeError(w, http.StatusNotFound, "vaccine_not_found", err.Error())
	case errors.Is(err, scheduler.ErrBusy):
		writeError(w, http.StatusConflict, "busy", "resource is being modified, please retry shortly")
	case scheduler.KindOf(err) == scheduler.KindValidation:
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		log.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
