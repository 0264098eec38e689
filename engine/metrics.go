package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus instruments. The topology this
// tool was built for ships its own prometheus scrape jobs, so the engine
// exposes counters in the same shape.
type Metrics struct {
	ServicesStarted prometheus.Counter
	ServicesFailed  prometheus.Counter
	ServicesRunning prometheus.Gauge
	ImagesPulled    prometheus.Counter
}

// NewMetrics registers the engine instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ServicesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "services_started_total",
			Help:      "Containers started by the engine.",
		}),
		ServicesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "services_failed_total",
			Help:      "Services that failed during bring-up.",
		}),
		ServicesRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gantry",
			Name:      "services_running",
			Help:      "Services currently running.",
		}),
		ImagesPulled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "images_pulled_total",
			Help:      "Images pulled from a registry.",
		}),
	}
}
