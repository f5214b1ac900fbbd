package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Resolutions *prometheus.CounterVec
	Messages    *prometheus.CounterVec
	Commands    *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hapdreo_fallback_resolutions_total",
			Help: "Device records passed through the fallback table, by result",
		}, []string{"model", "result"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hapdreo_mqtt_messages_total",
			Help: "MQTT messages received per heater and topic kind",
		}, []string{"device", "kind"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hapdreo_commands_published_total",
			Help: "Directive payloads published to heaters",
		}, []string{"device"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hapdreo_remote_updates_rejected_total",
			Help: "HomeKit writes that were reverted instead of sent",
		}, []string{"device", "reason"}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Resolutions, m.Messages, m.Commands, m.Rejected}
}

// Register adds all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler exposes the Prometheus registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ResultFor maps the outcome of fallback.Resolver.Resolve to a label value.
func ResultFor(matched, changed bool) string {
	switch {
	case !matched:
		return "unmatched"
	case changed:
		return "filled"
	}
	return "complete"
}
