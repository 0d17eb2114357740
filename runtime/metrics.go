package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bannou",
		Subsystem: "runtime",
		Name:      "ticks_total",
		Help:      "Cognition ticks executed, by template",
	}, []string{"template"})

	metricTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bannou",
		Subsystem: "runtime",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one cognition tick",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"template"})

	metricPerceptionDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bannou",
		Subsystem: "runtime",
		Name:      "perception_drops_total",
		Help:      "Perceptions dropped by full actor queues",
	}, []string{"template"})

	metricReplans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bannou",
		Subsystem: "runtime",
		Name:      "replans_total",
		Help:      "Planner invocations, by outcome (planned, no_plan, error)",
	}, []string{"template", "result"})

	metricSaveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bannou",
		Subsystem: "runtime",
		Name:      "save_failures_total",
		Help:      "Snapshot writes that failed and will be retried",
	}, []string{"template"})

	metricActors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bannou",
		Subsystem: "runtime",
		Name:      "actors",
		Help:      "Actors by lifecycle state",
	}, []string{"state"})

	metricAttaches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bannou",
		Subsystem: "runtime",
		Name:      "extension_attach_total",
		Help:      "Extension attach attempts, by result",
	}, []string{"result"})

	metricNotifyDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bannou",
		Subsystem: "runtime",
		Name:      "notify_drops_total",
		Help:      "State updates dropped on slow subscriber channels",
	})
)

// trackState moves an actor between lifecycle gauge buckets. Pass the same
// state twice to register a new actor.
func trackState(from, to State) {
	if from != to {
		metricActors.WithLabelValues(from.String()).Dec()
	}
	metricActors.WithLabelValues(to.String()).Inc()
}
