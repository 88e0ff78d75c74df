package metrics

import (
	"context"
	"testing"

	"cicadad/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleStatsFormatsMetricStatistics(t *testing.T) {
	display := ConsoleStats()
	rendered := display(backend.MetricStatistics{Min: 1, Median: 2, Average: 2.5, Max: 4, Len: 3})
	assert.Equal(t, "Min: 1.000, Median: 2.000, Average: 2.500, Max: 4.000, Len: 3", rendered)
}

func TestConsoleCountReturnsTotal(t *testing.T) {
	store, scenarioID := newTestScenario(t)
	require.NoError(t, store.AddMetric(context.Background(), scenarioID, "bytes", 10))
	require.NoError(t, store.AddMetric(context.Background(), scenarioID, "bytes", 5))

	rendered, err := ConsoleCount("bytes")(context.Background(), store, scenarioID)
	require.NoError(t, err)
	assert.Equal(t, "15.000", rendered)
}

func TestConsoleLatestReturnsMostRecentValue(t *testing.T) {
	store, scenarioID := newTestScenario(t)
	require.NoError(t, store.AddMetric(context.Background(), scenarioID, "latency", 1))
	require.NoError(t, store.AddMetric(context.Background(), scenarioID, "latency", 9))

	rendered, err := ConsoleLatest("latency")(context.Background(), store, scenarioID)
	require.NoError(t, err)
	assert.Equal(t, "9.000", rendered)
}

func TestConsoleDisplaysReturnEmptyWhenMetricNeverRecorded(t *testing.T) {
	store, scenarioID := newTestScenario(t)

	rendered, err := ConsoleCount("missing")(context.Background(), store, scenarioID)
	require.NoError(t, err)
	assert.Empty(t, rendered)
}
