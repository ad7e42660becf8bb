package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	redisclient "github.com/hackgods/vaccine-reservation-scheduling/internal/redis"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

type handlers struct {
	svc      *scheduler.Service
	sessions redisclient.SessionStore
	log      *slog.Logger
}

func (h *handlers) createAccount(role scheduler.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAccountRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := h.svc.CreateAccount(r.Context(), role, req.Username, req.Password); err != nil {
			handleError(w, r, h.log, err)
			return
		}

		writeJSON(w, http.StatusCreated, AccountResponse{Username: req.Username, Role: string(role)})
	}
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role, err := scheduler.ParseRole(req.Role)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	id, err := h.svc.Login(r.Context(), sessionFrom(r.Context()), role, req.Username, req.Password)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	token, err := h.sessions.Create(r.Context(), redisclient.SessionRecord{
		Role:     string(id.Role),
		Username: id.Username,
	})
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, LoginResponse{Token: token, Role: string(id.Role), Username: id.Username})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r.Context())
	if token == "" {
		handleError(w, r, h.log, scheduler.ErrNotLoggedIn)
		return
	}

	if err := h.sessions.Delete(r.Context(), token); err != nil && !errors.Is(err, redisclient.ErrSessionNotFound) {
		handleError(w, r, h.log, err)
		return
	}
	// token already revoked; an unbound session has nothing left to clear
	if err := h.svc.Logout(sessionFrom(r.Context())); err != nil && !errors.Is(err, scheduler.ErrNotLoggedIn) {
		handleError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) schedule(w http.ResponseWriter, r *http.Request) {
	date, err := scheduler.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	sched, err := h.svc.ScheduleOn(r.Context(), sessionFrom(r.Context()), date)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	resp := ScheduleResponse{
		Date:       scheduler.FormatDate(sched.Date),
		Caregivers: sched.Caregivers,
		Vaccines:   make([]VaccineResponse, 0, len(sched.Vaccines)),
	}
	for _, v := range sched.Vaccines {
		resp.Vaccines = append(resp.Vaccines, VaccineResponse{Name: v.Name, Doses: v.Doses})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) uploadAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date, err := scheduler.ParseDate(req.Date)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	sess := sessionFrom(r.Context())
	if err := h.svc.UploadAvailability(r.Context(), sess, date); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	who, _ := sess.Current()
	writeJSON(w, http.StatusCreated, AvailabilityResponse{Caregiver: who.Username, Date: scheduler.FormatDate(date)})
}

func (h *handlers) addDoses(w http.ResponseWriter, r *http.Request) {
	var req AddDosesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	vaccine := chi.URLParam(r, "name")
	if err := h.svc.AddDoses(r.Context(), sessionFrom(r.Context()), vaccine, req.Count); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, DosesResponse{Vaccine: vaccine, Added: req.Count})
}

func (h *handlers) createReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date, err := scheduler.ParseDate(req.Date)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	res, err := h.svc.Reserve(r.Context(), sessionFrom(r.Context()), date, req.Vaccine)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, ReservationResponse{
		ID:        res.ID,
		Date:      scheduler.FormatDate(res.Date),
		Caregiver: res.Caregiver,
		Vaccine:   res.Vaccine,
		Patient:   res.Patient,
	})
}

func (h *handlers) listReservations(w http.ResponseWriter, r *http.Request) {
	appts, err := h.svc.MyReservations(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	resp := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		resp = append(resp, AppointmentResponse{
			ID:           a.ID,
			Vaccine:      a.Vaccine,
			Date:         scheduler.FormatDate(a.Date),
			Counterparty: a.Counterparty,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) cancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be an integer")
		return
	}

	if err := h.svc.Cancel(r.Context(), sessionFrom(r.Context()), id); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
