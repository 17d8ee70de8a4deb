package publish

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports the latest reading of each device to Prometheus.
type Metrics struct {
	registry *prometheus.Registry
	values   *prometheus.GaugeVec
	polls    *prometheus.CounterVec
	last     *prometheus.GaugeVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rdserial_field_value",
			Help: "Last decoded value of a device field.",
		}, []string{"device", "field"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rdserial_polls_total",
			Help: "Polls by result.",
		}, []string{"device", "result"}),
		last: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rdserial_last_poll_timestamp_seconds",
			Help: "Collection time of the last successful poll.",
		}, []string{"device"}),
	}
	m.registry.MustRegister(m.values, m.polls, m.last)
	return m
}

func (m *Metrics) Publish(r Reading) error {
	for _, s := range r.Samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		m.values.WithLabelValues(r.Device, s.Name).Set(s.Value)
	}
	m.polls.WithLabelValues(r.Device, "ok").Inc()
	m.last.WithLabelValues(r.Device).Set(float64(r.Time.UnixNano()) / 1e9)
	return nil
}

func (m *Metrics) ObserveFailure(device string, _ error) {
	m.polls.WithLabelValues(device, "error").Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Close() error {
	return nil
}
