package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/buffer"
	"cicadad/internal/userloop"
	"cicadad/internal/userrunner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerLaunchesRunnerForNewUser(t *testing.T) {
	store := backend.NewMemoryStore()
	ctx := context.Background()

	testID, err := store.CreateTest(ctx, nil, "", nil, nil)
	require.NoError(t, err)
	scenarioID, err := store.CreateScenario(ctx, testID, "scenario", "", 50, nil)
	require.NoError(t, err)
	managers, err := store.CreateUsers(ctx, testID, scenarioID, 1)
	require.NoError(t, err)
	managerID := managers[0]

	buf := buffer.NewBuffer(store, managerID)

	var invocations int64
	factory := func(userID backend.UserId) (*userrunner.Runner, userloop.Policy) {
		runner := userrunner.NewRunner(userID, managerID, buf, func(ctx context.Context) (any, error) {
			atomic.AddInt64(&invocations, 1)
			return nil, nil
		})
		// run exactly once: is_up reads true once, then we stop it via a
		// one-shot policy so the test doesn't hang.
		policy := func(ctx context.Context, commands userloop.UserCommands) error {
			up, err := commands.IsUp(ctx)
			if err != nil || !up {
				return err
			}
			output, scenarioErr, logs := commands.Run(ctx)
			return commands.ReportResult(ctx, output, scenarioErr, logs, 0)
		}
		return runner, policy
	}

	sched := New(store, managerID, buf, factory)

	require.NoError(t, store.AddUserEvent(ctx, scenarioID, backend.EventStartUsers, map[string]interface{}{
		"IDs": []string{"u1", "u2"},
	}))

	require.NoError(t, sched.tick(ctx))
	require.NoError(t, sched.group.Wait())

	assert.Equal(t, int64(2), atomic.LoadInt64(&invocations))
}

func TestSchedulerRunExitsOnContextCancel(t *testing.T) {
	store := backend.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	testID, err := store.CreateTest(ctx, nil, "", nil, nil)
	require.NoError(t, err)
	scenarioID, err := store.CreateScenario(ctx, testID, "scenario", "", 50, nil)
	require.NoError(t, err)
	managers, err := store.CreateUsers(ctx, testID, scenarioID, 1)
	require.NoError(t, err)
	managerID := managers[0]

	buf := buffer.NewBuffer(store, managerID)
	sched := New(store, managerID, buf, func(userID backend.UserId) (*userrunner.Runner, userloop.Policy) {
		return nil, nil
	})

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit after context cancel")
	}
}
