package loadmodel

import (
	"context"
	"testing"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/runtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommands(t *testing.T) (*runtime.Commands, *backend.MemoryStore, backend.TestId, backend.ScenarioId) {
	t.Helper()

	store := backend.NewMemoryStore()
	ctx := context.Background()

	testID, err := store.CreateTest(ctx, nil, "", nil, nil)
	require.NoError(t, err)
	scenarioID, err := store.CreateScenario(ctx, testID, "scenario", "", 50, nil)
	require.NoError(t, err)

	return runtime.New(store, testID, scenarioID, nil, nil, nil, nil, nil), store, testID, scenarioID
}

// feedResults simulates a worker pushing n results into the scenario's
// result queue by going straight through the store, since no real
// worker process runs in these unit tests.
func feedResults(t *testing.T, store *backend.MemoryStore, testID backend.TestId, scenarioID backend.ScenarioId, n int) {
	t.Helper()
	ctx := context.Background()

	managers, err := store.CreateUsers(ctx, testID, scenarioID, 1)
	require.NoError(t, err)

	results := make([]backend.Result, n)
	for i := range results {
		results[i] = backend.Result{ID: backend.ResultId("r"), Output: backend.JSONValue(i)}
	}
	require.NoError(t, store.AddUserResults(ctx, managers[0], results))
}

func TestNIterationsStopsAtTarget(t *testing.T) {
	commands, store, testID, scenarioID := newTestCommands(t)
	feedResults(t, store, testID, scenarioID, 5)

	model := NIterations(5, 2, time.Millisecond, 0, false)
	require.NoError(t, model(context.Background(), commands))

	assert.Equal(t, 5, commands.NumResultsCollected())
	assert.Equal(t, 0, commands.NumUsers())
}

func TestRunScenarioOnceSucceedsOnFirstGoodResult(t *testing.T) {
	commands, store, testID, scenarioID := newTestCommands(t)
	feedResults(t, store, testID, scenarioID, 1)

	model := RunScenarioOnce(time.Millisecond, time.Second)
	require.NoError(t, model(context.Background(), commands))

	assert.Equal(t, 1, commands.NumUsers(), "run_scenario_once does not scale down on its own")
	assert.Equal(t, 1, commands.NumResultsCollected())
}

func TestNSecondsRunsForApproximatelyTheGivenDuration(t *testing.T) {
	commands, _, _, _ := newTestCommands(t)

	model := NSeconds(30*time.Millisecond, 1, 10*time.Millisecond, false)

	start := time.Now()
	require.NoError(t, model(context.Background(), commands))

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, commands.NumUsers())
}

func TestNUsersRampingReachesTarget(t *testing.T) {
	commands, _, _, _ := newTestCommands(t)

	model := NUsersRamping(40*time.Millisecond, 8, 10*time.Millisecond, true)
	require.NoError(t, model(context.Background(), commands))

	assert.Equal(t, 8, commands.NumUsers())
}

func TestRampUsersToThresholdStopsWhenThresholdMet(t *testing.T) {
	commands, _, _, _ := newTestCommands(t)

	calls := 0
	threshold := func(aggregated any) bool {
		calls++
		return calls >= 2
	}
	next := func(numUsers int) int { return numUsers + 1 }
	update := func(numUsers int, aggregated any) any { return numUsers }

	model := RampUsersToThreshold(1, threshold, next, update, 5*time.Millisecond, 10, time.Millisecond, true)
	require.NoError(t, model(context.Background(), commands))

	assert.Equal(t, 1, commands.AggregatedResults())
}

func TestLoadStagesRunsSequentiallyThenScalesDown(t *testing.T) {
	commands, _, _, _ := newTestCommands(t)

	var order []int
	stage := func(n int) Fn {
		return func(ctx context.Context, c *runtime.Commands) error {
			order = append(order, n)
			return c.ScaleUsers(ctx, n)
		}
	}

	model := LoadStages(stage(1), stage(2), stage(3))
	require.NoError(t, model(context.Background(), commands))

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, commands.NumUsers())
}
