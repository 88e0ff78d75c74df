// Package testrunner implements the Test Runner: the controller-side
// driver that walks a scenario dependency DAG, starting each scenario once
// its dependencies resolve successfully and skipping it otherwise.
// Grounded line-by-line on the original implementation's test_runner and
// start_scenario (_examples/original_source/cicadad/core/runners.py), with
// the "is the worker still running" check generalized from the original's
// Dask-specific scenario_running() to the portable
// backend.Store.CheckTestInstance op (spec.md §4.8), and the DAG shape
// itself grounded on the teacher's internal/dependency package
// (_examples/giantswarm-muster/internal/dependency/graph.go).
package testrunner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/scenario"
	"cicadad/internal/testcontext"

	"github.com/google/uuid"
)

// PollInterval is the Test Runner's cycle boundary, matching the original's
// fixed one-second sleep between dependency re-checks.
const PollInterval = time.Second

// Launch is invoked once per scenario start, after CreateScenario has
// registered it with the backend, so the caller (internal/app's wiring)
// can hand the scenario off to a Launcher for its worker process. The Test
// Runner itself never spawns processes; it only tracks backend state,
// matching its grounding in runners.py where the backend's create_scenario
// is what triggers the Dask worker submission.
type Launch func(s *scenario.Scenario, scenarioID backend.ScenarioId, contextBlob string) error

// Runner drives one test's scenario DAG to completion.
type Runner struct {
	store     backend.Store
	testID    backend.TestId
	scenarios []*scenario.Scenario
	tags      []string
	launch    Launch
}

// New constructs a Test Runner for testID over scenarios, restricted to
// tags (empty means all).
func New(store backend.Store, testID backend.TestId, scenarios []*scenario.Scenario, tags []string, launch Launch) *Runner {
	return &Runner{store: store, testID: testID, scenarios: scenarios, tags: tags, launch: launch}
}

// FilterByTags returns the scenarios whose tag set intersects tags, or all
// of them when tags is empty.
func FilterByTags(scenarios []*scenario.Scenario, tags []string) []*scenario.Scenario {
	if len(tags) == 0 {
		out := make([]*scenario.Scenario, len(scenarios))
		copy(out, scenarios)
		return out
	}

	wanted := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		wanted[t] = struct{}{}
	}

	var out []*scenario.Scenario
	for _, s := range scenarios {
		for _, t := range s.Tags {
			if _, ok := wanted[t]; ok {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Run executes the full Test Runner state machine (spec.md §4.8) and
// returns once every valid scenario has a result.
func (r *Runner) Run(ctx context.Context) (map[string]backend.ScenarioResult, error) {
	valid := FilterByTags(r.scenarios, r.tags)

	started := make(map[string]backend.ScenarioId)
	scenariosByID := make(map[backend.ScenarioId]*scenario.Scenario)
	results := make(map[string]backend.ScenarioResult)

	for _, s := range valid {
		if len(s.Dependencies) == 0 {
			scenarioID, err := r.startScenario(ctx, s, results)
			if err != nil {
				return results, err
			}
			started[s.Name] = scenarioID
			scenariosByID[scenarioID] = s
		}
	}

	if err := r.emit(ctx, backend.TestEvent{
		Kind: backend.TestEventTestStarted,
		Payload: backend.EventPayload{
			Message: fmt.Sprintf("Collected %d Scenario(s)", len(valid)),
		},
	}); err != nil {
		return results, err
	}

	for len(results) != len(valid) {
		if err := r.pollStarted(ctx, started, scenariosByID, results); err != nil {
			return results, err
		}
		if err := r.startReady(ctx, valid, started, scenariosByID, results); err != nil {
			return results, err
		}

		select {
		case <-time.After(PollInterval):
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}

	if err := r.emit(ctx, backend.TestEvent{
		Kind: backend.TestEventTestFinished,
		Payload: backend.EventPayload{
			Message: fmt.Sprintf("Finished running %d Scenario(s)", len(valid)),
		},
	}); err != nil {
		return results, err
	}

	return results, nil
}

func (r *Runner) startScenario(ctx context.Context, s *scenario.Scenario, results map[string]backend.ScenarioResult) (backend.ScenarioId, error) {
	encoded, err := testcontext.Encode(resultsAsContext(results))
	if err != nil {
		return "", fmt.Errorf("testrunner: encode context: %w", err)
	}

	scenarioID, err := r.store.CreateScenario(ctx, r.testID, s.Name, encoded, s.UsersPerInstance, s.Tags)
	if err != nil {
		return "", fmt.Errorf("testrunner: create scenario %s: %w", s.Name, err)
	}

	if r.launch != nil {
		if err := r.launch(s, scenarioID, encoded); err != nil {
			return "", fmt.Errorf("testrunner: launch scenario %s: %w", s.Name, err)
		}
	}

	if err := r.emit(ctx, backend.TestEvent{
		Kind: backend.TestEventScenarioStarted,
		Payload: backend.EventPayload{
			Scenario:   s.Name,
			ScenarioID: scenarioID,
			Message:    fmt.Sprintf("Started scenario: %s (%s)", s.Name, scenarioID),
		},
	}); err != nil {
		return "", err
	}

	return scenarioID, nil
}

func (r *Runner) pollStarted(ctx context.Context, started map[string]backend.ScenarioId, scenariosByID map[backend.ScenarioId]*scenario.Scenario, results map[string]backend.ScenarioResult) error {
	for name, scenarioID := range started {
		if _, done := results[name]; done {
			continue
		}
		s := scenariosByID[scenarioID]

		if s != nil && len(s.ConsoleMetricDisplays) > 0 {
			if err := r.emitMetrics(ctx, s, scenarioID, name); err != nil {
				return err
			}
		}

		result, err := r.store.MoveScenarioResult(ctx, scenarioID)
		switch {
		case err == nil:
			results[name] = result
			if err := r.emit(ctx, backend.TestEvent{
				Kind: backend.TestEventScenarioFinished,
				Payload: backend.EventPayload{
					Scenario:   name,
					ScenarioID: scenarioID,
					Message:    fmt.Sprintf("Finished Scenario: %s", name),
				},
			}); err != nil {
				return err
			}
		case errors.Is(err, backend.ErrNotFound):
			running, checkErr := r.store.CheckTestInstance(ctx, r.testID, string(scenarioID))
			if checkErr != nil {
				return fmt.Errorf("testrunner: check test instance: %w", checkErr)
			}
			if !running {
				results[name] = exitedResult(scenarioID)
				if err := r.emit(ctx, backend.TestEvent{
					Kind: backend.TestEventScenarioFinished,
					Payload: backend.EventPayload{
						Scenario:   name,
						ScenarioID: scenarioID,
						Message:    fmt.Sprintf("Scenario Exited Unexpectedly: %s", name),
					},
				}); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("testrunner: move scenario result %s: %w", name, err)
		}
	}
	return nil
}

func (r *Runner) startReady(ctx context.Context, valid []*scenario.Scenario, started map[string]backend.ScenarioId, scenariosByID map[backend.ScenarioId]*scenario.Scenario, results map[string]backend.ScenarioResult) error {
	for _, s := range valid {
		if _, alreadyStarted := started[s.Name]; alreadyStarted {
			continue
		}

		allResulted := true
		anyFailed := false
		for _, dep := range s.Dependencies {
			depResult, ok := results[dep.Name]
			if !ok {
				allResulted = false
				break
			}
			if depResult.Exception != nil {
				anyFailed = true
			}
		}
		if !allResulted {
			continue
		}

		if !anyFailed {
			scenarioID, err := r.startScenario(ctx, s, results)
			if err != nil {
				return err
			}
			started[s.Name] = scenarioID
			scenariosByID[scenarioID] = s
			continue
		}

		placeholderID := backend.ScenarioId(uuid.NewString())
		started[s.Name] = placeholderID
		results[s.Name] = skippedResult(placeholderID)

		if err := r.emit(ctx, backend.TestEvent{
			Kind: backend.TestEventScenarioFinished,
			Payload: backend.EventPayload{
				Scenario:   s.Name,
				ScenarioID: placeholderID,
				Message:    fmt.Sprintf("Skipped Scenario: %s", s.Name),
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) emitMetrics(ctx context.Context, s *scenario.Scenario, scenarioID backend.ScenarioId, name string) error {
	metrics := make(map[string]*string, len(s.ConsoleMetricDisplays))
	for metricName, display := range s.ConsoleMetricDisplays {
		stats, err := r.store.GetMetricStatistics(ctx, scenarioID, metricName)
		if err != nil {
			metrics[metricName] = nil
			continue
		}
		rendered := display(stats)
		metrics[metricName] = &rendered
	}

	return r.emit(ctx, backend.TestEvent{
		Kind: backend.TestEventScenarioMetric,
		Payload: backend.EventPayload{
			Scenario: name,
			Metrics:  metrics,
		},
	})
}

func (r *Runner) emit(ctx context.Context, event backend.TestEvent) error {
	if err := r.store.AddTestEvent(ctx, r.testID, event); err != nil {
		return fmt.Errorf("testrunner: add test event: %w", err)
	}
	return nil
}

func exitedResult(scenarioID backend.ScenarioId) backend.ScenarioResult {
	msg := "Scenario Exited"
	return backend.ScenarioResult{
		ID:        scenarioID,
		Output:    backend.NullValue(),
		Exception: &msg,
		Timestamp: time.Now().Unix(),
	}
}

func skippedResult(scenarioID backend.ScenarioId) backend.ScenarioResult {
	msg := "Skipped"
	return backend.ScenarioResult{
		ID:        scenarioID,
		Output:    backend.NullValue(),
		Exception: &msg,
		Timestamp: time.Now().Unix(),
	}
}

// resultsAsContext projects the results map down to each scenario's output,
// the shape downstream scenarios receive as their accumulated test context
// (spec.md §6's context-encoding contract).
func resultsAsContext(results map[string]backend.ScenarioResult) map[string]interface{} {
	ctxMap := make(map[string]interface{}, len(results))
	for name, result := range results {
		var decoded interface{}
		_ = result.Output.Decode(&decoded)
		ctxMap[name] = decoded
	}
	return ctxMap
}
