package metrics

import (
	"context"
	"errors"
	"fmt"

	"cicadad/internal/backend"
	"cicadad/internal/scenario"
)

// ConsoleStats renders a metric's derived statistics the way
// metrics/console.py's console_stats does, for registration via
// scenario.Builder.WithConsoleMetricDisplay. The testrunner fetches
// backend.MetricStatistics itself before calling the returned display, so
// no backend.Store access is needed here.
func ConsoleStats() scenario.ConsoleMetricDisplay {
	return func(stats backend.MetricStatistics) string {
		return fmt.Sprintf(
			"Min: %.3f, Median: %.3f, Average: %.3f, Max: %.3f, Len: %d",
			stats.Min, stats.Median, stats.Average, stats.Max, stats.Len,
		)
	}
}

// ConsoleRate renders a 0/1-valued metric series (e.g. PassOrFail) as a
// percentage, using MetricStatistics.Average directly: the mean of a
// series of 0s and 1s is exactly the fraction of 1s. A lighter
// scenario.ConsoleMetricDisplay equivalent to metrics/console.py's
// console_percent for the pass/fail case, which is the only case the
// live per-poll display path (fed a MetricStatistics, not a raw series)
// can serve without a second backend round trip.
func ConsoleRate() scenario.ConsoleMetricDisplay {
	return func(stats backend.MetricStatistics) string {
		return fmt.Sprintf("%.1f%%", stats.Average*100)
	}
}

// Display is a named metric rendering that queries store directly,
// matching metrics/console.py's console_count/console_latest/
// console_percent (which reach past MetricStatistics into the backend's
// total/last/rate queries). Used by the batch summary table
// (internal/console), not the live per-poll scenario.ConsoleMetricDisplay
// event path.
type Display func(ctx context.Context, store backend.Store, scenarioID backend.ScenarioId) (string, error)

// ConsoleCount returns the total of all values recorded for name.
func ConsoleCount(name string) Display {
	return func(ctx context.Context, store backend.Store, scenarioID backend.ScenarioId) (string, error) {
		total, err := store.GetMetricTotal(ctx, scenarioID, name)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				return "", nil
			}
			return "", err
		}
		return fmt.Sprintf("%.3f", total), nil
	}
}

// ConsoleLatest returns the most recently recorded value for name.
func ConsoleLatest(name string) Display {
	return func(ctx context.Context, store backend.Store, scenarioID backend.ScenarioId) (string, error) {
		last, err := store.GetLastMetric(ctx, scenarioID, name)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				return "", nil
			}
			return "", err
		}
		return fmt.Sprintf("%.3f", last), nil
	}
}

// ConsolePercent returns the fraction of recorded values for name at or
// above splitPoint.
func ConsolePercent(name string, splitPoint int) Display {
	return func(ctx context.Context, store backend.Store, scenarioID backend.ScenarioId) (string, error) {
		rate, err := store.GetMetricRate(ctx, scenarioID, name, splitPoint)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				return "", nil
			}
			return "", err
		}
		return fmt.Sprintf("%.3f", rate), nil
	}
}
