package infra

import (
	"fleet-coord/middleware/coord/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PromRecorder exporta os eventos das primitivas para Prometheus.
//
//	{namespace}_events_total{event,outcome}
//	{namespace}_op_duration_seconds{event}
type PromRecorder struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ domain.MetricsRecorder = (*PromRecorder)(nil)

func NewPromRecorder(reg prometheus.Registerer, namespace string) (*PromRecorder, error) {
	if namespace == "" {
		namespace = "coord"
	}
	r := &PromRecorder{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Coordination primitive events by outcome.",
		}, []string{"event", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "Latency of coordination primitive operations, store round-trips included.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"event"}),
	}
	if err := reg.Register(r.events); err != nil {
		return nil, err
	}
	if err := reg.Register(r.duration); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PromRecorder) Add(name string, value float64, tags map[string]string) {
	r.events.WithLabelValues(name, tags["outcome"]).Add(value)
}

func (r *PromRecorder) Observe(name string, value float64, _ map[string]string) {
	r.duration.WithLabelValues(name).Observe(value)
}
