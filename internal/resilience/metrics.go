package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker collectors are process-wide; targets are distinguished by label.
var (
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dependency_breaker_state",
		Help: "Breaker state per downstream dependency (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dependency_breaker_transitions_total",
		Help: "Breaker state transitions per downstream dependency.",
	}, []string{"target", "from", "to"})
)
