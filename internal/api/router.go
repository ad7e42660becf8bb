package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/metrics"
	redisclient "github.com/hackgods/vaccine-reservation-scheduling/internal/redis"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

type RouterConfig struct {
	Service      *scheduler.Service
	Sessions     redisclient.SessionStore
	Dependencies []Dependency
	Logger       *slog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(metrics.HTTPMetricsMiddleware)

	// Health and metrics endpoints
	health := NewHealthHandler(cfg.Dependencies, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	h := &handlers{svc: cfg.Service, sessions: cfg.Sessions, log: logger}

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.Sessions, logger))

		// Accounts and sessions
		r.Post("/patients", h.createAccount(scheduler.RolePatient))
		r.Post("/caregivers", h.createAccount(scheduler.RoleCaregiver))
		r.Post("/sessions", h.login)
		r.Delete("/sessions", h.logout)

		// Caregiver operations
		r.Post("/availability", h.uploadAvailability)
		r.Post("/vaccines/{name}/doses", h.addDoses)

		// Queries and reservations
		r.Get("/schedule/{date}", h.schedule)
		r.Post("/reservations", h.createReservation)
		r.Get("/reservations", h.listReservations)
		r.Delete("/reservations/{id}", h.cancelReservation)
	})

	return r
}
