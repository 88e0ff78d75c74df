package userrunner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cicadad/internal/backend"
	"cicadad/internal/buffer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, fn ScenarioFunc) (*Runner, *backend.MemoryStore, backend.ScenarioId, backend.UserManagerId) {
	t.Helper()

	store := backend.NewMemoryStore()
	ctx := context.Background()

	testID, err := store.CreateTest(ctx, nil, "", nil, nil)
	require.NoError(t, err)

	scenarioID, err := store.CreateScenario(ctx, testID, "scenario", "", 50, nil)
	require.NoError(t, err)

	managers, err := store.CreateUsers(ctx, testID, scenarioID, 1)
	require.NoError(t, err)

	buf := buffer.NewBuffer(store, managers[0])
	buf.AddUsers([]backend.UserId{"u1"})

	return NewRunner("u1", managers[0], buf, fn), store, scenarioID, managers[0]
}

func TestRunSuccessProducesOutputAndNoException(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, func(ctx context.Context) (any, error) {
		fmt.Fprintln(LogsWriter(ctx), "hello from scenario")
		return 42, nil
	})

	output, scenarioErr, logs := runner.Run(context.Background())

	require.NoError(t, scenarioErr)
	assert.Contains(t, logs, "hello from scenario")

	var decoded int
	require.NoError(t, output.Decode(&decoded))
	assert.Equal(t, 42, decoded)
}

func TestRunErrorBecomesException(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})

	output, scenarioErr, logs := runner.Run(context.Background())

	assert.True(t, output.IsNull())
	require.Error(t, scenarioErr)
	assert.Contains(t, logs, "boom")
}

func TestRunPanicIsRecoveredAsException(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, func(ctx context.Context) (any, error) {
		panic("kaboom")
	})

	_, scenarioErr, _ := runner.Run(context.Background())

	require.Error(t, scenarioErr)
	assert.Contains(t, scenarioErr.Error(), "kaboom")
}

func TestIsUpFalseAfterStopUsersEvent(t *testing.T) {
	runner, store, scenarioID, _ := newTestRunner(t, func(ctx context.Context) (any, error) { return nil, nil })
	ctx := context.Background()

	up, err := runner.IsUp(ctx)
	require.NoError(t, err)
	assert.True(t, up)

	require.NoError(t, store.StopUsers(ctx, scenarioID, 1))

	// The memory store's StopUsers synthesizes its own IDs rather than
	// targeting a specific user, so broadcast a STOP_USERS event naming
	// this runner's user directly to exercise the is_up contract.
	require.NoError(t, store.AddUserEvent(ctx, scenarioID, backend.EventStopUsers, map[string]interface{}{
		"IDs": []string{"u1"},
	}))

	up, err = runner.IsUp(ctx)
	require.NoError(t, err)
	assert.False(t, up)
}

func TestReportResultForwardsToBuffer(t *testing.T) {
	runner, store, scenarioID, _ := newTestRunner(t, nil)
	ctx := context.Background()

	require.NoError(t, runner.ReportResult(ctx, backend.JSONValue(1), nil, "", 0))

	require.NoError(t, runner.buf.SendUserResults(ctx))
	results, err := store.MoveUserResults(ctx, scenarioID, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Failed())
}
