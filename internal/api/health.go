package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	pgPool  *pgxpool.Pool
	redis   *redis.Client
	env     string
	version string
}

func NewHealthHandler(pgPool *pgxpool.Pool, redis *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		pgPool:  pgPool,
		redis:   redis,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

const dependencyPingTimeout = time.Second

// Readiness pings each backing store. Postgres down means the service
// cannot work at all; Redis down only degrades it (creates fail, the rest
// of the lifecycle still runs off Postgres).
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name     string
		critical bool
		ping     func(context.Context) error
	}{
		{"postgres", true, func(ctx context.Context) error { return h.pgPool.Ping(ctx) }},
		{"redis", false, func(ctx context.Context) error { return h.redis.Ping(ctx).Err() }},
	}

	deps := make(map[string]string, len(checks))
	status := "ok"
	for _, c := range checks {
		ctx, cancel := context.WithTimeout(r.Context(), dependencyPingTimeout)
		err := c.ping(ctx)
		cancel()

		if err != nil {
			deps[c.name] = "down"
			if c.critical || status != "ok" {
				status = "error"
			} else {
				status = "degraded"
			}
		} else {
			deps[c.name] = "ok"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
