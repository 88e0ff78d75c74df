package testrunner

import (
	"context"
	"testing"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/scenario"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFn(ctx context.Context) (any, error) { return nil, nil }

func newTestStore(t *testing.T) (*backend.MemoryStore, backend.TestId) {
	t.Helper()
	store := backend.NewMemoryStore()
	testID, err := store.CreateTest(context.Background(), nil, "", nil, nil)
	require.NoError(t, err)
	return store, testID
}

// autoComplete registers each launched scenario's instance as alive (so it
// isn't mistaken for an unexpectedly-exited worker while its result is
// still in flight) and resolves it shortly after with a result, simulating
// a worker that finishes almost instantly.
func autoComplete(store *backend.MemoryStore, succeed bool) Launch {
	return func(s *scenario.Scenario, scenarioID backend.ScenarioId, contextBlob string) error {
		ctx := context.Background()
		if err := store.RegisterInstance(ctx, "", string(scenarioID)); err != nil {
			return err
		}
		go func() {
			result := backend.ScenarioResult{ID: scenarioID, Output: backend.JSONValue("ok")}
			if !succeed {
				msg := "boom"
				result.Exception = &msg
			}
			_ = store.SetScenarioResult(ctx, result)
		}()
		return nil
	}
}

func TestRunStartsIndependentScenariosImmediately(t *testing.T) {
	store, testID := newTestStore(t)

	a := scenario.NewBuilder("a", noopFn).Build()
	b := scenario.NewBuilder("b", noopFn).Build()

	runner := New(store, testID, []*scenario.Scenario{a, b}, nil, autoComplete(store, true))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Nil(t, results["a"].Exception)
	assert.Nil(t, results["b"].Exception)
}

func TestDependentScenarioStartsOnlyAfterDependencySucceeds(t *testing.T) {
	store, testID := newTestStore(t)

	upstream := scenario.NewBuilder("upstream", noopFn).Build()
	downstream := scenario.NewBuilder("downstream", noopFn).DependsOn(upstream).Build()

	runner := New(store, testID, []*scenario.Scenario{upstream, downstream}, nil, autoComplete(store, true))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Nil(t, results["downstream"].Exception)
}

func TestDependentScenarioIsSkippedWhenDependencyFails(t *testing.T) {
	store, testID := newTestStore(t)

	upstream := scenario.NewBuilder("upstream", noopFn).Build()
	downstream := scenario.NewBuilder("downstream", noopFn).DependsOn(upstream).Build()

	launch := func(s *scenario.Scenario, scenarioID backend.ScenarioId, contextBlob string) error {
		succeed := s.Name != "upstream"
		ctx := context.Background()
		if err := store.RegisterInstance(ctx, "", string(scenarioID)); err != nil {
			return err
		}
		go func() {
			result := backend.ScenarioResult{ID: scenarioID, Output: backend.JSONValue("ok")}
			if !succeed {
				msg := "boom"
				result.Exception = &msg
			}
			_ = store.SetScenarioResult(ctx, result)
		}()
		return nil
	}

	runner := New(store, testID, []*scenario.Scenario{upstream, downstream}, nil, launch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results["downstream"].Exception)
	assert.Equal(t, "Skipped", *results["downstream"].Exception)
}

func TestScenarioExitedUnexpectedlySynthesizesFailure(t *testing.T) {
	store, testID := newTestStore(t)

	a := scenario.NewBuilder("a", noopFn).Build()
	// no launch callback at all: scenario never sets a result and its
	// instance is never registered, so CheckTestInstance reports not
	// running on the very first poll.
	runner := New(store, testID, []*scenario.Scenario{a}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := runner.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, results["a"].Exception)
	assert.Equal(t, "Scenario Exited", *results["a"].Exception)
}

func TestFilterByTagsRestrictsToMatchingScenarios(t *testing.T) {
	a := scenario.NewBuilder("a", noopFn).WithTags("smoke").Build()
	b := scenario.NewBuilder("b", noopFn).WithTags("load").Build()

	filtered := FilterByTags([]*scenario.Scenario{a, b}, []string{"smoke"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].Name)

	all := FilterByTags([]*scenario.Scenario{a, b}, nil)
	assert.Len(t, all, 2)
}
