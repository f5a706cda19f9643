package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Response sources
const (
	sourceCache       = "cache"
	sourceNetwork     = "network"
	sourcePlaceholder = "placeholder"
	sourceFallback    = "fallback"
	sourceNone        = "none"
)

var (
	// StrategyResponses tracks where each strategy's answer came from
	StrategyResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_strategy_responses_total",
			Help: "Responses returned by strategy and source",
		},
		[]string{"strategy", "source"}, // source: cache, network, placeholder, fallback, none
	)

	// BackgroundWrites tracks fire-and-forget cache writes
	BackgroundWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_background_writes_total",
			Help: "Background cache writes by result",
		},
		[]string{"result"}, // "ok", "failed", "dropped"
	)
)
