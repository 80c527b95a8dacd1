package offline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records cache activity. A nil *Metrics records nothing.
type Metrics struct {
	resolves    *prometheus.CounterVec
	populates   *prometheus.CounterVec
	activations prometheus.Counter
	evictions   prometheus.Counter
}

// NewMetrics registers the cache metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		resolves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarathi",
			Subsystem: "cache",
			Name:      "resolves_total",
			Help:      "Requests served, by mode and source.",
		}, []string{"mode", "source"}),
		populates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarathi",
			Subsystem: "cache",
			Name:      "populates_total",
			Help:      "Generation populate attempts, by result.",
		}, []string{"result"}),
		activations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sarathi",
			Subsystem: "cache",
			Name:      "activations_total",
			Help:      "Generations made live.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sarathi",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Generations deleted on activation.",
		}),
	}
}

func (m *Metrics) resolved(mode Mode, source string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(string(mode), source).Inc()
}

func (m *Metrics) populated(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.populates.WithLabelValues(result).Inc()
}

func (m *Metrics) activated(evicted int) {
	if m == nil {
		return
	}
	m.activations.Inc()
	m.evictions.Add(float64(evicted))
}
