package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scheduler's Prometheus collectors
type Metrics struct {
	active             prometheus.Gauge
	ticks              prometheus.Counter
	tickDuration       prometheus.Histogram
	tickPanics         prometheus.Counter
	transitions        *prometheus.CounterVec
	broadcasts         *prometheus.CounterVec
	checkpointFailures prometheus.Counter
	publishFailures    prometheus.Counter
	recovered          prometheus.Counter
}

// NewMetrics registers the scheduler collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, subscribers func() float64) *Metrics {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "matchclock",
		Name:      "subscribers",
		Help:      "Number of subscribed viewers across all matches.",
	}, subscribers)

	return &Metrics{
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchclock",
			Name:      "matches_active",
			Help:      "Number of match clocks registered with the scheduler.",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchclock",
			Name:      "ticks_total",
			Help:      "Scheduler loop ticks.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "matchclock",
			Name:      "tick_duration_seconds",
			Help:      "Time spent evaluating all matches in one tick.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		tickPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchclock",
			Name:      "tick_panics_total",
			Help:      "Panics recovered while ticking a single match.",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchclock",
			Name:      "transitions_total",
			Help:      "Committed phase transitions.",
		}, []string{"transition", "trigger"}),
		broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchclock",
			Name:      "broadcasts_total",
			Help:      "State messages fanned out to subscribers.",
		}, []string{"type"}),
		checkpointFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchclock",
			Name:      "checkpoint_failures_total",
			Help:      "Checkpoint writes that failed.",
		}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchclock",
			Name:      "publish_failures_total",
			Help:      "Transition events that could not be published.",
		}),
		recovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchclock",
			Name:      "recovered_matches_total",
			Help:      "Matches rebuilt from persisted state at startup.",
		}),
	}
}
