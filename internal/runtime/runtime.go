// Package runtime implements the Scenario Runtime: the public contract
// Load Models drive to scale users, push work, and collect/aggregate/
// verify results for one scenario. Grounded on the original
// implementation's ScenarioCommands
// (_examples/original_source/cicadad/core/commands.py), generalized from
// a direct IScenarioBackend facade to the backend.Store interface plus a
// per-scenario buffer-free call pattern (the scenario runtime talks
// straight to the store; only worker-side user runners go through
// internal/buffer).
package runtime

import (
	"context"
	"fmt"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/testcontext"
)

// ManagerLaunch provisions a worker process for a newly created user
// manager, mirroring testrunner.Launch's role for scenario workers. Called
// once per UserManagerId CreateUsers mints.
type ManagerLaunch func(managerID backend.UserManagerId, contextBlob string) error

// ResultAggregator folds a batch of results into the scenario's running
// aggregated state. The default behavior when none is supplied is
// "latest wins": the last result's output becomes the new aggregate.
type ResultAggregator func(aggregated any, latest []backend.Result) any

// ResultVerifier inspects a batch of results and returns error strings to
// append to the scenario's error list. The default behavior when none is
// supplied emits one "* <type>: <msg>" line per failed result.
type ResultVerifier func(latest []backend.Result) []string

// MetricCollector samples a scenario's latest results into the backend's
// metric series.
type MetricCollector func(ctx context.Context, latest []backend.Result, scenarioID backend.ScenarioId, store backend.Store)

// OutputTransformer converts a scenario's final aggregated state into its
// ScenarioResult.Output value.
type OutputTransformer func(aggregated any) (any, error)

// Commands is the capability surface a Load Model is written against.
type Commands struct {
	store      backend.Store
	testID     backend.TestId
	scenarioID backend.ScenarioId
	context    map[string]interface{}
	startedAt  time.Time

	aggregator    ResultAggregator
	verifier      ResultVerifier
	collectors    []MetricCollector
	launchManager ManagerLaunch

	numUsers            int
	numResultsCollected int
	aggregatedResults   any
	errors              []string
}

// New constructs the Scenario Runtime's command surface for one scenario.
// launchManager may be nil (e.g. in tests), in which case StartUsers
// records the new users in the backend without provisioning any worker
// process for them.
func New(store backend.Store, testID backend.TestId, scenarioID backend.ScenarioId, scenarioContext map[string]interface{}, aggregator ResultAggregator, verifier ResultVerifier, collectors []MetricCollector, launchManager ManagerLaunch) *Commands {
	return &Commands{
		store:         store,
		testID:        testID,
		scenarioID:    scenarioID,
		context:       scenarioContext,
		startedAt:     time.Now(),
		aggregator:    aggregator,
		verifier:      verifier,
		collectors:    collectors,
		launchManager: launchManager,
	}
}

// TestID returns the id of the test this scenario belongs to.
func (c *Commands) TestID() backend.TestId { return c.testID }

// ScenarioID returns this scenario's id.
func (c *Commands) ScenarioID() backend.ScenarioId { return c.scenarioID }

// Context returns the scenario's decoded context object.
func (c *Commands) Context() map[string]interface{} { return c.context }

// NumUsers returns the current number of scaled-up users.
func (c *Commands) NumUsers() int { return c.numUsers }

// NumResultsCollected returns the running total of results drained so far.
func (c *Commands) NumResultsCollected() int { return c.numResultsCollected }

// AggregatedResults returns the scenario's current aggregated state.
func (c *Commands) AggregatedResults() any { return c.aggregatedResults }

// SetAggregatedResults overwrites the scenario's aggregated state
// directly, used by Load Models (e.g. ramp_users_to_threshold) that
// recompute the aggregate from state not visible to a ResultAggregator.
func (c *Commands) SetAggregatedResults(v any) { c.aggregatedResults = v }

// Errors returns the scenario's accumulated error strings.
func (c *Commands) Errors() []string { return c.errors }

// Elapsed returns the time since this Commands was constructed.
func (c *Commands) Elapsed() time.Duration { return time.Since(c.startedAt) }

// ScaleUsers scales the scenario's user count to n, starting or stopping
// the difference.
func (c *Commands) ScaleUsers(ctx context.Context, n int) error {
	if n > c.numUsers {
		return c.StartUsers(ctx, n-c.numUsers)
	}
	return c.StopUsers(ctx, c.numUsers-n)
}

// StartUsers asks the backend to create n users and increments the local
// count. CreateUsers mints a fresh UserManagerId for any manager it had to
// create to hold the new users; StartUsers provisions a worker process for
// each one via launchManager, mirroring the original implementation's
// ScenarioCommands.start_users spawning a container per new user manager
// (_examples/original_source/cicadad/core/commands.py).
func (c *Commands) StartUsers(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	managerIDs, err := c.store.CreateUsers(ctx, c.testID, c.scenarioID, n)
	if err != nil {
		return fmt.Errorf("runtime: start users: %w", err)
	}

	if c.launchManager != nil && len(managerIDs) > 0 {
		contextBlob, err := testcontext.Encode(c.context)
		if err != nil {
			return fmt.Errorf("runtime: encode context for user manager: %w", err)
		}
		for _, managerID := range managerIDs {
			if err := c.launchManager(managerID, contextBlob); err != nil {
				return fmt.Errorf("runtime: launch user manager %s: %w", managerID, err)
			}
		}
	}

	c.numUsers += n
	return nil
}

// StopUsers asks the backend to stop min(n, numUsers) users and decrements
// the local count by the same amount.
func (c *Commands) StopUsers(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	stopping := n
	if stopping > c.numUsers {
		stopping = c.numUsers
	}
	if err := c.store.StopUsers(ctx, c.scenarioID, stopping); err != nil {
		return fmt.Errorf("runtime: stop users: %w", err)
	}
	c.numUsers -= stopping
	return nil
}

// AddWork appends n work tokens to the scenario's work queue.
func (c *Commands) AddWork(ctx context.Context, n int) error {
	if err := c.store.DistributeWork(ctx, c.scenarioID, n); err != nil {
		return fmt.Errorf("runtime: add work: %w", err)
	}
	return nil
}

// SendUserEvents broadcasts a user event to every user under this
// scenario.
func (c *Commands) SendUserEvents(ctx context.Context, kind string, payload map[string]interface{}) error {
	if err := c.store.AddUserEvent(ctx, c.scenarioID, kind, payload); err != nil {
		return fmt.Errorf("runtime: send user events: %w", err)
	}
	return nil
}

// GetLatestResults drains up to limit results; if the initial drain is
// empty and timeout is non-zero, waits that long and drains once more.
// The running NumResultsCollected total is incremented by the size of the
// returned batch.
func (c *Commands) GetLatestResults(ctx context.Context, timeout time.Duration, limit int) ([]backend.Result, error) {
	results, err := c.store.MoveUserResults(ctx, c.scenarioID, limit)
	if err != nil {
		return nil, fmt.Errorf("runtime: get latest results: %w", err)
	}

	if len(results) == 0 && timeout > 0 {
		select {
		case <-time.After(timeout):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		results, err = c.store.MoveUserResults(ctx, c.scenarioID, limit)
		if err != nil {
			return nil, fmt.Errorf("runtime: get latest results (retry): %w", err)
		}
	}

	c.numResultsCollected += len(results)
	return results, nil
}

// AggregateResults folds latest into the scenario's aggregated state: the
// user-supplied aggregator if one was configured, else "latest wins" when
// latest is non-empty.
func (c *Commands) AggregateResults(latest []backend.Result) any {
	if c.aggregator != nil {
		c.aggregatedResults = c.aggregator(c.aggregatedResults, latest)
	} else if len(latest) > 0 {
		var out any
		_ = latest[len(latest)-1].Output.Decode(&out)
		c.aggregatedResults = out
	}
	return c.aggregatedResults
}

// VerifyResults runs the user-supplied verifier (or the default "one line
// per failed result") and appends its output to the scenario's error list.
func (c *Commands) VerifyResults(latest []backend.Result) []string {
	var errs []string
	if c.verifier != nil {
		errs = c.verifier(latest)
	} else {
		errs = defaultVerify(latest)
	}

	c.errors = append(c.errors, errs...)
	return errs
}

func defaultVerify(latest []backend.Result) []string {
	var errs []string
	for _, result := range latest {
		if result.Failed() {
			errs = append(errs, fmt.Sprintf("* error: %s", *result.Exception))
		}
	}
	return errs
}

// CollectDatastoreMetrics invokes every configured metric collector with
// the latest result batch.
func (c *Commands) CollectDatastoreMetrics(ctx context.Context, latest []backend.Result) {
	for _, collect := range c.collectors {
		collect(ctx, latest, c.scenarioID, c.store)
	}
}

// Complete runs the scenario-completion protocol (spec.md §4.6) once a
// Load Model returns (or panics/errors): apply the output transformer if
// one was configured, synthesize a failure exception if errors
// accumulated and the scenario is configured to raise, scale down to
// zero as clean-up, and publish the one-shot ScenarioResult. logs carries
// whatever captured output the caller wants attached (normally empty;
// scenario-level stdout capture is not modeled, only per-user in
// internal/userrunner).
func (c *Commands) Complete(ctx context.Context, name string, raiseException bool, transform OutputTransformer, loadModelErr error, logs string) (backend.ScenarioResult, error) {
	output := c.aggregatedResults
	if transform != nil {
		transformed, err := transform(output)
		if err != nil {
			loadModelErr = err
		} else {
			output = transformed
		}
	}

	var exception *string
	switch {
	case loadModelErr != nil:
		msg := loadModelErr.Error()
		exception = &msg
	case len(c.errors) > 0 && output == nil && raiseException:
		msg := synthesizeScenarioFailure(name, c.errors)
		exception = &msg
	}

	if err := c.ScaleUsers(ctx, 0); err != nil {
		if exception == nil {
			msg := err.Error()
			exception = &msg
		}
	}

	failed := len(c.errors)
	succeeded := c.numResultsCollected - failed
	if succeeded < 0 {
		succeeded = 0
	}

	result := backend.ScenarioResult{
		ID:        c.scenarioID,
		Output:    backend.JSONValue(output),
		Exception: exception,
		Logs:      logs,
		Timestamp: time.Now().Unix(),
		TimeTaken: c.Elapsed().Seconds(),
		Succeeded: succeeded,
		Failed:    failed,
	}
	if exception != nil {
		result.Output = backend.NullValue()
	}

	if err := c.store.SetScenarioResult(ctx, result); err != nil {
		return result, fmt.Errorf("runtime: set scenario result: %w", err)
	}
	return result, nil
}

func synthesizeScenarioFailure(name string, errs []string) string {
	msg := fmt.Sprintf("%d error(s) were raised in scenario %s:", len(errs), name)
	for _, e := range errs {
		msg += "\n" + e
	}
	return msg
}
