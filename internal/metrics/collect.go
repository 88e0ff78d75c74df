package metrics

import (
	"context"

	"cicadad/internal/backend"
	"cicadad/internal/runtime"
	"cicadad/pkg/logging"
)

const subsystem = "Metrics"

// Collect adapts a CollectorFn into a runtime.MetricCollector: every value
// produced from the latest batch of results is appended to the named
// series in the backend, and, if reg is non-nil, observed into the
// Prometheus registry under the same name. Mirrors
// metrics/console.py's console_collector, generalized to also feed
// Prometheus since the Go controller exposes a /metrics scrape endpoint
// the Python original does not have.
func Collect(name string, collector CollectorFn, reg *Registry) runtime.MetricCollector {
	return func(ctx context.Context, latest []backend.Result, scenarioID backend.ScenarioId, store backend.Store) {
		for _, value := range collector(latest) {
			if err := store.AddMetric(ctx, scenarioID, name, value); err != nil {
				logging.Error(subsystem, err, "failed to add metric %q for scenario %s", name, scenarioID)
				continue
			}
			if reg != nil {
				reg.Observe(string(scenarioID), name, value)
			}
		}
	}
}
