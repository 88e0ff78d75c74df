package userloop

import (
	"context"
	"testing"
	"time"

	"cicadad/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommands is a minimal UserCommands double: no backend, no buffer,
// just counters a test can assert on directly. maxChecks bounds IsUp so a
// policy loop terminates deterministically instead of spinning forever.
type fakeCommands struct {
	workRemaining int
	maxChecks     int // IsUp reports false once it has been called this many times; 0 means never

	checks  int
	runs    int
	results []backend.Value
}

func (f *fakeCommands) IsUp(ctx context.Context) (bool, error) {
	f.checks++
	if f.maxChecks > 0 && f.checks > f.maxChecks {
		return false, nil
	}
	return true, nil
}

func (f *fakeCommands) HasWork(ctx context.Context, timeout time.Duration) (bool, error) {
	if f.workRemaining <= 0 {
		return false, nil
	}
	f.workRemaining--
	return true, nil
}

func (f *fakeCommands) Run(ctx context.Context) (backend.Value, error, string) {
	f.runs++
	return backend.JSONValue(42), nil, ""
}

func (f *fakeCommands) ReportResult(ctx context.Context, output backend.Value, scenarioErr error, logs string, timeTaken time.Duration) error {
	f.results = append(f.results, output)
	return nil
}

func TestWhileHasWorkRunsOncePerTokenThenStopsWhenNoLongerUp(t *testing.T) {
	cmds := &fakeCommands{workRemaining: 3}
	cmds.maxChecks = 3 // IsUp flips false right as the 3rd token is spent

	err := WhileHasWork(time.Millisecond)(context.Background(), cmds)
	require.NoError(t, err)

	assert.Equal(t, 3, cmds.runs)
	assert.Len(t, cmds.results, 3)
	assert.Equal(t, 0, cmds.workRemaining)
}

func TestWhileHasWorkNeverRunsWithoutWork(t *testing.T) {
	cmds := &fakeCommands{workRemaining: 0, maxChecks: 5}

	err := WhileHasWork(time.Millisecond)(context.Background(), cmds)
	require.NoError(t, err)

	assert.Equal(t, 0, cmds.runs, "HasWork reporting false must never trigger Run")
	assert.Equal(t, 6, cmds.checks, "the 6th IsUp call is the one that finally reports not-up")
}

func TestWhileHasWorkStopsAsSoonAsNotUp(t *testing.T) {
	cmds := &fakeCommands{workRemaining: 10, maxChecks: 1}

	err := WhileHasWork(time.Millisecond)(context.Background(), cmds)
	require.NoError(t, err)

	assert.Equal(t, 1, cmds.runs, "IsUp going false must stop the loop even with work left")
	assert.Equal(t, 9, cmds.workRemaining)
}

func TestWhileAliveRunsEveryIterationUntilStopped(t *testing.T) {
	cmds := &fakeCommands{maxChecks: 4}

	err := WhileAlive()(context.Background(), cmds)
	require.NoError(t, err)

	assert.Equal(t, 4, cmds.runs, "WhileAlive runs unconditionally, with no work gating")
	assert.Equal(t, 5, cmds.checks)
}

func TestIterationsPerSecondLimitedRunsUpToLimitPerCycle(t *testing.T) {
	cmds := &fakeCommands{maxChecks: 2}

	err := IterationsPerSecondLimited(2)(context.Background(), cmds)
	require.NoError(t, err)

	assert.Equal(t, 2, cmds.runs)
}

func TestPolicyPropagatesIsUpError(t *testing.T) {
	boom := assert.AnError
	cmds := &erroringCommands{isUpErr: boom}

	err := WhileHasWork(time.Millisecond)(context.Background(), cmds)
	assert.ErrorIs(t, err, boom)
}

func TestPolicyPropagatesHasWorkError(t *testing.T) {
	boom := assert.AnError
	cmds := &erroringCommands{hasWorkErr: boom}

	err := WhileHasWork(time.Millisecond)(context.Background(), cmds)
	assert.ErrorIs(t, err, boom)
}

// erroringCommands is up exactly once, then fails the call under test.
type erroringCommands struct {
	isUpErr    error
	hasWorkErr error
	checked    bool
}

func (e *erroringCommands) IsUp(ctx context.Context) (bool, error) {
	if e.isUpErr != nil {
		return false, e.isUpErr
	}
	if e.checked {
		return false, nil
	}
	e.checked = true
	return true, nil
}

func (e *erroringCommands) HasWork(ctx context.Context, timeout time.Duration) (bool, error) {
	return false, e.hasWorkErr
}

func (e *erroringCommands) Run(ctx context.Context) (backend.Value, error, string) {
	return backend.NullValue(), nil, ""
}

func (e *erroringCommands) ReportResult(ctx context.Context, output backend.Value, scenarioErr error, logs string, timeTaken time.Duration) error {
	return nil
}
