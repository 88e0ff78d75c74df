package console

import (
	"context"

	"cicadad/internal/backend"
)

// BuildReports resolves one ScenarioReport per entry in results, querying
// store for each named MetricDisplay's rendered value. Errors rendering
// an individual display are swallowed (the display itself already
// returns "" for a metric that was never recorded); a report with an
// empty metrics map still renders, just without that row.
func BuildReports(ctx context.Context, store backend.Store, results map[string]backend.ScenarioResult, displays []MetricDisplay) []ScenarioReport {
	reports := make([]ScenarioReport, 0, len(results))

	for name, result := range results {
		report := ScenarioReport{Name: name, Result: result, Metrics: make(map[string]string)}

		for _, d := range displays {
			rendered, err := d.Display(ctx, store, result.ID)
			if err != nil || rendered == "" {
				continue
			}
			report.Metrics[d.Name] = rendered
		}

		reports = append(reports, report)
	}

	return reports
}
