package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/console"
	"cicadad/internal/scenario"
	"cicadad/internal/testrunner"
	"cicadad/pkg/logging"
)

// RunResult is the outcome of one controller run: every scenario's final
// result, the rendered batch report (spec.md §7), and whether the run
// should be treated as a failure by the caller's exit code.
type RunResult struct {
	TestID  backend.TestId
	Results map[string]backend.ScenarioResult
	Report  string
	Failed  bool
}

// Run creates the test, drives the Test Runner over the Engine's
// registered scenarios to completion, and renders the final report.
// Grounded on cli.py's run() (_examples/original_source/cicadad/core/cli.py),
// minus its live event-polling Rich TUI: spec.md §5 puts the Test Runner
// in-process in the controller, so RunTest returns the finished results
// directly instead of requiring a poll loop over TEST_FINISHED.
func (a *Application) Run(ctx context.Context) (*RunResult, error) {
	opts := a.config.Run

	schedulingMetadata := opts.SchedulingMetadata()
	if err := schedulingMetadata.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid scheduling metadata: %w", err)
	}
	metadata, err := json.Marshal(schedulingMetadata)
	if err != nil {
		return nil, fmt.Errorf("app: marshal scheduling metadata: %w", err)
	}

	testID, err := a.store.CreateTest(ctx, metadata, opts.BackendAddress, opts.Tags, opts.Env)
	if err != nil {
		return nil, fmt.Errorf("app: create test: %w", err)
	}
	logging.Info(subsystem, "created test %s in %s mode", testID, opts.Mode)

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.TestTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.TestTimeout)
		defer cancel()
	}

	results, runErr := a.config.Engine.RunTest(runCtx, a.store, testID, opts.Tags, a.launch(testID))

	if !opts.NoCleanup {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.store.CleanTestInstances(cleanupCtx, testID); err != nil {
			logging.Error(subsystem, err, "failed to clean up test instances for %s", testID)
		}
		cleanupCancel()
	}

	if runErr != nil {
		return nil, fmt.Errorf("app: run test %s: %w", testID, runErr)
	}

	reports := console.BuildReports(ctx, a.store, results, defaultMetricDisplays())
	report := console.RenderSummary(reports)

	failed := false
	for _, r := range results {
		if r.Exception != nil {
			failed = true
			break
		}
	}

	return &RunResult{
		TestID:  testID,
		Results: results,
		Report:  report,
		Failed:  failed && !opts.NoExitUnsuccessful,
	}, nil
}

// launch returns the Launch callback the Test Runner invokes once per
// scenario start, binding it to the application's Launcher and the run's
// scheduling options.
func (a *Application) launch(testID backend.TestId) testrunner.Launch {
	opts := a.config.Run

	return func(s *scenario.Scenario, scenarioID backend.ScenarioId, contextBlob string) error {
		spec := launchSpec(s.Name, testID, scenarioID, contextBlob, opts)

		instanceID, err := a.launcher.Launch(context.Background(), spec)
		if err != nil {
			return fmt.Errorf("app: launch scenario %s: %w", s.Name, err)
		}
		logging.Debug(subsystem, "launched scenario %s as worker instance %s", s.Name, instanceID)
		return nil
	}
}
