// Package metrics provides the scenario-level metric collectors and
// console displays scenarios register through scenario.Builder
// (WithMetricCollector, WithConsoleMetricDisplay), plus a Prometheus
// registry the controller mounts on the backend HTTP server. Ported from
// metrics/collectors.py and metrics/console.py, generalized from Python's
// pass-a-callable style to Go function values with the same shapes
// runtime.MetricCollector and scenario.ConsoleMetricDisplay already use.
package metrics

import (
	"math"

	"cicadad/internal/backend"
)

// CollectorFn strips a list of metric values out of a batch of results,
// matching metrics/collectors.py's ConsoleCollectorFn shape.
type CollectorFn func(latest []backend.Result) []float64

// RuntimeSeconds returns each result's time taken, in seconds.
func RuntimeSeconds(latest []backend.Result) []float64 {
	values := make([]float64, len(latest))
	for i, r := range latest {
		values[i] = r.TimeTaken
	}
	return values
}

// PassOrFail returns 1 for each successful result and 0 for each failed one.
func PassOrFail(latest []backend.Result) []float64 {
	values := make([]float64, len(latest))
	for i, r := range latest {
		if r.Failed() {
			values[i] = 0
		} else {
			values[i] = 1
		}
	}
	return values
}

// ResultsPerSecond returns a single-element series: how many of latest
// were produced per second, spanning the batch's earliest to latest
// timestamp. Empty if fewer than two results or the span rounds to zero
// seconds.
func ResultsPerSecond(latest []backend.Result) []float64 {
	if len(latest) < 2 {
		return nil
	}

	minTS, maxTS := latest[0].Timestamp, latest[0].Timestamp
	for _, r := range latest {
		if r.Timestamp < minTS {
			minTS = r.Timestamp
		}
		if r.Timestamp > maxTS {
			maxTS = r.Timestamp
		}
	}

	seconds := math.Ceil(float64(maxTS - minTS))
	if seconds <= 0 {
		return nil
	}

	return []float64{float64(len(latest)) / seconds}
}
