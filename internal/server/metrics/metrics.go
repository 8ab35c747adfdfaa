// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// ConnectedDevices tracks the registry population.
	ConnectedDevices prometheus.Gauge

	// EventsAppended counts event-log writes by kind.
	EventsAppended *prometheus.CounterVec

	// AuthFailures counts rejected handshakes by reason.
	AuthFailures *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedDevices: factory.NewGauge(prometheus.GaugeOpts{
			Name: "openvelo_connected_devices",
			Help: "Number of devices with a live session.",
		}),
		EventsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openvelo_events_appended_total",
			Help: "Events appended to the log, by kind.",
		}, []string{"kind"}),
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openvelo_auth_failures_total",
			Help: "Rejected device handshakes, by reason.",
		}, []string{"reason"}),
	}
}
