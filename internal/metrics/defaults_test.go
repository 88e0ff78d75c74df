package metrics

import (
	"context"
	"testing"

	"cicadad/internal/scenario"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsRegistersStandardCollectorsAndDisplays(t *testing.T) {
	builder := scenario.NewBuilder("s1", func(ctx context.Context) (any, error) { return nil, nil })
	s := ApplyDefaults(builder, NewRegistry()).Build()

	require.Len(t, s.MetricCollectors, 3)
	assert.Contains(t, s.ConsoleMetricDisplays, "runtime")
	assert.Contains(t, s.ConsoleMetricDisplays, "results_per_second")
	assert.Contains(t, s.ConsoleMetricDisplays, "pass_or_fail")
}
