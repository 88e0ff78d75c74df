package metrics

import "cicadad/internal/scenario"

// ApplyDefaults wires the metric collectors and console displays
// core/scenario.py's Scenario pydantic model defaults onto every
// scenario ("runtime", "pass_or_fail", "results_per_second" collectors;
// stats displays for the first two, a rate display for the third) onto b.
// Scenario authors call this once, then layer their own
// WithMetricCollector/WithConsoleMetricDisplay calls on top or skip it
// entirely for a scenario with no default instrumentation - the explicit
// opt-in a Go builder favors over Python's implicit field defaults.
func ApplyDefaults(b *scenario.Builder, reg *Registry) *scenario.Builder {
	return b.
		WithMetricCollector(Collect("runtime", RuntimeSeconds, reg)).
		WithMetricCollector(Collect("pass_or_fail", PassOrFail, reg)).
		WithMetricCollector(Collect("results_per_second", ResultsPerSecond, reg)).
		WithConsoleMetricDisplay("runtime", ConsoleStats()).
		WithConsoleMetricDisplay("results_per_second", ConsoleStats()).
		WithConsoleMetricDisplay("pass_or_fail", ConsoleRate())
}
