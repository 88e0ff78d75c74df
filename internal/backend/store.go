package backend

import "context"

// Store is the full Backend Store contract from spec.md §4.1. Every call
// is independent; the store is the sole synchronization point between
// otherwise isolated processes. Implementations: MemoryStore (in-process,
// LOCAL mode and tests) and the HTTPClient/HTTPServer pair (DOCKER/KUBE
// modes, separate processes).
//
// Failure signalling: an op whose target key is absent fails with
// ErrNotFound; callers treat that as "no data yet" and either retry or
// return a zero value, as called out per-op below. Any other error is
// fatal and propagated as-is.
type Store interface {
	// CreateTest registers a test and returns a fresh TestId.
	CreateTest(ctx context.Context, schedulingMetadata []byte, backendAddr string, tags []string, env map[string]string) (TestId, error)

	// CreateScenario registers a scenario-in-test and returns a fresh
	// ScenarioId.
	CreateScenario(ctx context.Context, testID TestId, name string, contextBlob string, usersPerInstance int, tags []string) (ScenarioId, error)

	// CreateUsers mints amount real user ids, topping off the scenario's
	// existing managers before spawning up to ceil(remaining/usersPerInstance)
	// new ones, and returns only the ids of managers it had to spawn.
	CreateUsers(ctx context.Context, testID TestId, scenarioID ScenarioId, amount int) ([]UserManagerId, error)

	// StopUsers asks the scenario to retire amount users.
	StopUsers(ctx context.Context, scenarioID ScenarioId, amount int) error

	// DistributeWork adds amount work tokens for the scenario's managers.
	DistributeWork(ctx context.Context, scenarioID ScenarioId, amount int) error

	// GetUserWork atomically drains and returns the manager's current work
	// count.
	GetUserWork(ctx context.Context, managerID UserManagerId) (int, error)

	// AddUserEvent fans an event out to a scenario's managers.
	AddUserEvent(ctx context.Context, scenarioID ScenarioId, kind string, payload map[string]interface{}) error

	// GetUserEvents drains and returns the manager's queue of events with
	// the given kind.
	GetUserEvents(ctx context.Context, managerID UserManagerId, kind string) ([]UserEvent, error)

	// AddUserResults appends results to the scenario's result queue.
	AddUserResults(ctx context.Context, managerID UserManagerId, results []Result) error

	// MoveUserResults drains up to limit results from the scenario's queue.
	MoveUserResults(ctx context.Context, scenarioID ScenarioId, limit int) ([]Result, error)

	// SetScenarioResult records the one-shot result for a scenario.
	SetScenarioResult(ctx context.Context, result ScenarioResult) error

	// MoveScenarioResult returns the scenario's result and clears it, or
	// ErrNotFound before one has been set.
	MoveScenarioResult(ctx context.Context, scenarioID ScenarioId) (ScenarioResult, error)

	// AddTestEvent appends to the test's fan-in event channel.
	AddTestEvent(ctx context.Context, testID TestId, event TestEvent) error

	// GetTestEvents drains the test's fan-in event channel.
	GetTestEvents(ctx context.Context, testID TestId) ([]TestEvent, error)

	// CheckTestInstance reports whether a worker process still runs.
	CheckTestInstance(ctx context.Context, testID TestId, instanceID string) (bool, error)

	// CleanTestInstances tears down all workers belonging to a test.
	CleanTestInstances(ctx context.Context, testID TestId) error

	// RegisterInstance marks a worker process as alive so subsequent
	// CheckTestInstance calls report true. Called by a Launcher once it has
	// confirmed a worker process started; not part of spec.md's literal
	// op table, added because CheckTestInstance is otherwise unobservable
	// without some way for a process's liveness to enter the store.
	RegisterInstance(ctx context.Context, testID TestId, instanceID string) error

	// DeregisterInstance marks a worker process as gone. Called by a
	// Launcher once it observes a worker process exit.
	DeregisterInstance(ctx context.Context, testID TestId, instanceID string) error

	// AddMetric appends a numeric sample to a (scenario, name) series.
	AddMetric(ctx context.Context, scenarioID ScenarioId, name string, value float64) error

	// GetMetricTotal returns the sum of a series, or ErrNotFound if absent.
	GetMetricTotal(ctx context.Context, scenarioID ScenarioId, name string) (float64, error)

	// GetLastMetric returns the most recently appended sample, or
	// ErrNotFound if absent.
	GetLastMetric(ctx context.Context, scenarioID ScenarioId, name string) (float64, error)

	// GetMetricStatistics returns derived statistics over a series, or
	// ErrNotFound if absent.
	GetMetricStatistics(ctx context.Context, scenarioID ScenarioId, name string) (MetricStatistics, error)

	// GetMetricRate returns the ratio of samples appended after splitPoint
	// to those before it, or ErrNotFound if the series is absent.
	GetMetricRate(ctx context.Context, scenarioID ScenarioId, name string, splitPoint int) (float64, error)
}
