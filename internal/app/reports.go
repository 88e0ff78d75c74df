package app

import (
	"cicadad/internal/console"
	"cicadad/internal/metrics"
)

// defaultMetricDisplays names the batch report columns drawn from
// internal/metrics.ApplyDefaults' collector names, so a scenario built
// with ApplyDefaults gets a populated metrics table without the caller
// wiring anything extra. A scenario that recorded none of these simply
// renders an empty metrics map (console.BuildReports skips values a
// display can't find).
func defaultMetricDisplays() []console.MetricDisplay {
	return []console.MetricDisplay{
		{Name: "runtime (total s)", Display: metrics.ConsoleCount("runtime")},
		{Name: "results/sec", Display: metrics.ConsoleLatest("results_per_second")},
		{Name: "pass rate", Display: metrics.ConsolePercent("pass_or_fail", 0)},
	}
}
