// Package diagnostics exposes the merger's runtime health over
// Prometheus and an HTTP handler, plus an optional host resource
// sampler for the machine running the merge daemon.
package diagnostics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors the merge daemon updates as it
// dispatches items.
type Metrics struct {
	Dispatched *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
	Backlog    *prometheus.GaugeVec
	Stalled    prometheus.Gauge
}

// NewMetrics builds and registers the merger's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mergeplay",
			Name:      "dispatched_total",
			Help:      "Items dispatched to a stream's sink, by stream.",
		}, []string{"stream"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mergeplay",
			Name:      "dropped_total",
			Help:      "Items dropped: cold-path pre-epoch data or unregistered streams.",
		}, []string{"stream", "reason"}),
		Backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mergeplay",
			Name:      "backlog",
			Help:      "Current queued item count, by stream.",
		}, []string{"stream"}),
		Stalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mergeplay",
			Name:      "dispatch_stalled",
			Help:      "1 if dispatch is currently blocked waiting on a stream, else 0.",
		}),
	}
	reg.MustRegister(m.Dispatched, m.Dropped, m.Backlog, m.Stalled)
	return m
}

// Handler returns the HTTP handler serving the registered metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
