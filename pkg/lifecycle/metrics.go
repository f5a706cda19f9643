package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_lifecycle_transitions_total",
		Help: "Controller state transitions by target state",
	}, []string{"to"})

	activeGeneration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "offline_cache_active_generation",
		Help: "1 for the static bucket of the active controller",
	}, []string{"static_bucket"})
)
