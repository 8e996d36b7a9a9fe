package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_attempts_total",
			Help:      "Letter collection attempts by outcome.",
		},
		[]string{"outcome"},
	)

	pickAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pick_attempts_total",
			Help:      "Item pick and create attempts by outcome.",
		},
		[]string{"outcome"},
	)

	drops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drops_total",
			Help:      "Committed drops by object kind and whether wind redirected them.",
		},
		[]string{"kind", "redirected"},
	)

	namingFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "naming_fallbacks_total",
			Help:      "Placements committed with the fallback place name.",
		},
	)
)

// Recorder receives engine events. The zero value records into the default
// Prometheus registry.
type Recorder struct{}

func (Recorder) CollectAttempt(outcome string) {
	collectAttempts.WithLabelValues(outcome).Inc()
}

func (Recorder) PickAttempt(outcome string) {
	pickAttempts.WithLabelValues(outcome).Inc()
}

func (Recorder) Drop(kind string, redirected bool) {
	drops.WithLabelValues(kind, strconv.FormatBool(redirected)).Inc()
}

func (Recorder) NamingFallback() {
	namingFallbacks.Inc()
}
