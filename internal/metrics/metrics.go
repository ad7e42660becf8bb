package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaccine_scheduler_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaccine_scheduler_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaccine_scheduler_reservations_total",
		Help: "Reservation attempts by outcome",
	}, []string{"result"})

	reservationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaccine_scheduler_reservation_duration_seconds",
		Help:    "Time spent inside reserve, lock wait included",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	cancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaccine_scheduler_cancellations_total",
		Help: "Cancellation attempts by outcome",
	}, []string{"result"})

	accountsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaccine_scheduler_accounts_created_total",
		Help: "Account creation attempts by role and outcome",
	}, []string{"role", "result"})

	lineSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaccine_scheduler_line_sessions_active",
		Help: "Open connections on the line protocol listener",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

func ObserveReservation(result string, duration time.Duration) {
	reservationsTotal.WithLabelValues(result).Inc()
	reservationDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func ObserveCancellation(result string) {
	cancellationsTotal.WithLabelValues(result).Inc()
}

func ObserveAccountCreated(role, result string) {
	accountsTotal.WithLabelValues(role, result).Inc()
}

func LineSessionOpened() {
	lineSessions.Inc()
}

func LineSessionClosed() {
	lineSessions.Dec()
}
