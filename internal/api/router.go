package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medimeet/telehealth-scheduling/internal/booking"
	"github.com/medimeet/telehealth-scheduling/internal/instant"
	"github.com/medimeet/telehealth-scheduling/internal/schedule"
)

type RouterConfig struct {
	Bookings   *booking.Service
	Instant    *instant.Service
	Schedule   *schedule.Service
	ClinicZone *time.Location
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health and metrics endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Slot browsing is open; everything else needs an actor identity.
	r.Get("/doctors/{id}/slots", doctorSlotsHandler(cfg.Schedule, cfg.ClinicZone))

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		r.Put("/doctors/{id}/availability", updateAvailabilityHandler(cfg.Schedule))

		// Scheduled appointments
		r.Post("/appointments", createAppointmentHandler(cfg.Bookings))
		r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/pay", payAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/rate", rateAppointmentHandler(cfg.Bookings))

		// Instant consultations
		r.Post("/instant-requests", createInstantRequestHandler(cfg.Instant))
		r.Get("/instant-requests/pending", listPendingHandler(cfg.Instant))
		r.Get("/instant-requests/{id}", instantStatusHandler(cfg.Instant))
		r.Get("/instant-requests/{id}/wait", awaitMatchHandler(cfg.Instant))
		r.Post("/instant-requests/{id}/pay", payInstantRequestHandler(cfg.Instant))
		r.Post("/instant-requests/{id}/accept", acceptInstantRequestHandler(cfg.Instant))
		r.Post("/instant-requests/{id}/start", startInstantRequestHandler(cfg.Instant))
		r.Post("/instant-requests/{id}/end", endInstantRequestHandler(cfg.Instant))
		r.Post("/instant-requests/{id}/cancel", cancelInstantRequestHandler(cfg.Instant))
		r.Post("/instant-requests/{id}/rate", rateInstantRequestHandler(cfg.Instant))
	})

	return r
}
