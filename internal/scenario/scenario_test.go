package scenario

import (
	"context"
	"testing"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/loadmodel"
	"cicadad/internal/runtime"
	"cicadad/internal/userloop"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context) (any, error) { return nil, nil }

func TestNewBuilderAppliesDefaults(t *testing.T) {
	s := NewBuilder("checkout", noop).Build()

	assert.Equal(t, "checkout", s.Name)
	assert.Equal(t, DefaultUsersPerInstance, s.UsersPerInstance)
	assert.True(t, s.RaiseException)
	assert.Empty(t, s.Dependencies)
	assert.NotNil(t, s.ConsoleMetricDisplays)
}

func TestBuilderChainsOverrides(t *testing.T) {
	dep := NewBuilder("login", noop).Build()

	aggregator := func(aggregated any, latest []backend.Result) any { return aggregated }
	verifier := func(latest []backend.Result) []string { return nil }
	transform := func(aggregated any) (any, error) { return aggregated, nil }
	collector := func(ctx context.Context, latest []backend.Result, scenarioID backend.ScenarioId, store backend.Store) {
	}
	display := func(stats backend.MetricStatistics) string { return "" }

	s := NewBuilder("checkout", noop).
		WithUserLoop(userloop.WhileAlive()).
		WithLoadModel(loadmodel.RunScenarioOnce(time.Millisecond, time.Second)).
		WithUsersPerInstance(10).
		WithRaiseException(false).
		DependsOn(dep).
		WithResultAggregator(aggregator).
		WithResultVerifier(verifier).
		WithOutputTransformer(transform).
		WithMetricCollector(collector).
		WithConsoleMetricDisplay("latency", display).
		WithTags("smoke", "checkout").
		Build()

	require.Len(t, s.Dependencies, 1)
	assert.Same(t, dep, s.Dependencies[0])
	assert.Equal(t, 10, s.UsersPerInstance)
	assert.False(t, s.RaiseException)
	assert.NotNil(t, s.ResultAggregator)
	assert.NotNil(t, s.ResultVerifier)
	assert.NotNil(t, s.OutputTransformer)
	require.Len(t, s.MetricCollectors, 1)
	require.Contains(t, s.ConsoleMetricDisplays, "latency")
	assert.True(t, s.HasTag("smoke"))
	assert.False(t, s.HasTag("missing"))
}

func TestBuildReturnsIndependentCopies(t *testing.T) {
	b := NewBuilder("checkout", noop)
	first := b.Build()

	b.WithTags("extra")
	second := b.Build()

	assert.NotContains(t, first.Tags, "extra", "Build should snapshot state, not alias the builder's backing struct")
	assert.Contains(t, second.Tags, "extra")
}

// ensure the runtime function types really do satisfy the Commands they're
// constructed with, since scenario.Scenario's fields are passed straight
// through to runtime.New by the engine.
func TestScenarioTypesAreRuntimeCompatible(t *testing.T) {
	s := NewBuilder("checkout", noop).
		WithResultAggregator(func(aggregated any, latest []backend.Result) any { return latest }).
		WithResultVerifier(func(latest []backend.Result) []string { return nil }).
		Build()

	store := backend.NewMemoryStore()
	cmds := runtime.New(store, "t1", "s1", nil, s.ResultAggregator, s.ResultVerifier, nil, nil)
	require.NotNil(t, cmds)
}
