// Package engine is the entrypoint that links a test's scenario
// declarations to cicadad's infrastructure: it holds the scenario
// registry a test file builds at startup and the three worker-process
// entry points a provisioned process re-enters through (run-test,
// run-scenario, run-user), per spec.md §6. Grounded on the original
// implementation's Engine (_examples/original_source/cicadad/core/engine.py):
// add_scenario/run_test/run_scenario/run_user, minus its click-based
// engine_cli (command-line parsing lives in cmd/ instead, following the
// teacher's own separation of a plain Go type from its cobra.Command
// wiring in internal/app).
package engine

import (
	"context"
	"fmt"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/buffer"
	"cicadad/internal/runtime"
	"cicadad/internal/scenario"
	"cicadad/internal/scheduler"
	"cicadad/internal/testcontext"
	"cicadad/internal/testrunner"
	"cicadad/internal/userloop"
	"cicadad/internal/userrunner"
)

// DefaultUserLoopPollTimeout matches the original's while_has_work default
// of one second, used when a scenario declares no explicit UserLoop.
const DefaultUserLoopPollTimeout = time.Second

// Engine is a test file's scenario registry. A test file builds one at
// startup, adds every scenario it declares, and hands it to cmd/'s worker
// subcommands, which call RunTest/RunScenario/RunUser depending on which
// worker process they were invoked as.
type Engine struct {
	scenarios map[string]*scenario.Scenario
}

// New constructs an empty Engine.
func New() *Engine {
	return &Engine{scenarios: make(map[string]*scenario.Scenario)}
}

// AddScenario registers s under its name, overwriting any scenario
// previously registered under the same name.
func (e *Engine) AddScenario(s *scenario.Scenario) {
	e.scenarios[s.Name] = s
}

// Scenario looks up a previously added scenario by name.
func (e *Engine) Scenario(name string) (*scenario.Scenario, bool) {
	s, ok := e.scenarios[name]
	return s, ok
}

// Scenarios returns every registered scenario, in no particular order.
func (e *Engine) Scenarios() []*scenario.Scenario {
	out := make([]*scenario.Scenario, 0, len(e.scenarios))
	for _, s := range e.scenarios {
		out = append(out, s)
	}
	return out
}

// RunTest is the controller's entry point, invoked once per test run. It
// drives the Test Runner over every registered scenario matching tags,
// handing each scenario start off to launch so the caller can provision a
// worker process for it (internal/app wires launch to a launcher.Launcher).
func (e *Engine) RunTest(ctx context.Context, store backend.Store, testID backend.TestId, tags []string, launch testrunner.Launch) (map[string]backend.ScenarioResult, error) {
	runner := testrunner.New(store, testID, e.Scenarios(), tags, launch)
	return runner.Run(ctx)
}

// RunScenario is a scenario worker process's entry point: it decodes the
// context handed down from the Test Runner, drives name's Load Model over
// a fresh Scenario Runtime, and publishes the final ScenarioResult.
// launchManager provisions a run-user worker process per user manager the
// Load Model's StartUsers calls create; it may be nil for scenarios that
// never call ScaleUsers/StartUsers.
func (e *Engine) RunScenario(ctx context.Context, store backend.Store, testID backend.TestId, scenarioID backend.ScenarioId, name string, encodedContext string, launchManager runtime.ManagerLaunch) (backend.ScenarioResult, error) {
	s, ok := e.Scenario(name)
	if !ok {
		return backend.ScenarioResult{}, fmt.Errorf("engine: no scenario registered named %q", name)
	}
	if s.LoadModel == nil {
		return backend.ScenarioResult{}, fmt.Errorf("engine: scenario %q has no load model", name)
	}

	scenarioContext, err := testcontext.Decode(encodedContext)
	if err != nil {
		return backend.ScenarioResult{}, fmt.Errorf("engine: decode scenario context: %w", err)
	}

	commands := runtime.New(store, testID, scenarioID, scenarioContext, s.ResultAggregator, s.ResultVerifier, s.MetricCollectors, launchManager)

	loadModelErr := s.LoadModel(ctx, commands)

	return commands.Complete(ctx, s.Name, s.RaiseException, s.OutputTransformer, loadModelErr, "")
}

// RunUser is a user worker process's entry point: it runs the User
// Scheduler loop for managerID, spawning a User Runner per announced user
// and driving each through name's User Loop policy until the scenario
// stops it.
func (e *Engine) RunUser(ctx context.Context, store backend.Store, managerID backend.UserManagerId, name string, encodedContext string) error {
	s, ok := e.Scenario(name)
	if !ok {
		return fmt.Errorf("engine: no scenario registered named %q", name)
	}

	scenarioContext, err := testcontext.Decode(encodedContext)
	if err != nil {
		return fmt.Errorf("engine: decode scenario context: %w", err)
	}
	ctx = userrunner.WithScenarioContext(ctx, scenarioContext)

	buf := buffer.NewBuffer(store, managerID)

	policy := s.UserLoop
	if policy == nil {
		policy = userloop.WhileHasWork(DefaultUserLoopPollTimeout)
	}

	sched := scheduler.New(store, managerID, buf, func(userID backend.UserId) (*userrunner.Runner, userloop.Policy) {
		return userrunner.NewRunner(userID, managerID, buf, s.Fn), policy
	})

	return sched.Run(ctx)
}
