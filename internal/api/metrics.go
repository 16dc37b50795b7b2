package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appointmentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telehealth_appointments_created_total",
		Help: "Scheduled appointments created.",
	})

	instantRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telehealth_instant_requests_created_total",
		Help: "Instant consultation requests created.",
	})

	// outcome: won | lost
	instantAccepts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telehealth_instant_accepts_total",
		Help: "Doctor accept attempts by outcome of the conditional claim.",
	}, []string{"outcome"})
)
