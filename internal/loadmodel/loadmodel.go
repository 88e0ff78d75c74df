// Package loadmodel implements the Load Models: the strategies that
// drive a Scenario Runtime's user count and work distribution over the
// life of a scenario. Grounded line-by-line on the original
// implementation's load model closures
// (_examples/original_source/cicadad/core/scenario.py):
// n_iterations, run_scenario_once, n_seconds, n_users_ramping,
// ramp_users_to_threshold, load_stages.
package loadmodel

import (
	"context"
	"fmt"
	"time"

	"cicadad/internal/runtime"
)

// Fn is a Load Model: it drives a Scenario Runtime's Commands surface for
// the life of one scenario and returns when the scenario's work is done
// (or failed).
type Fn func(ctx context.Context, commands *runtime.Commands) error

const defaultResultLimit = 500

func pollOnce(ctx context.Context, commands *runtime.Commands, pollTimeout time.Duration) error {
	latest, err := commands.GetLatestResults(ctx, pollTimeout, defaultResultLimit)
	if err != nil {
		return err
	}
	commands.AggregateResults(latest)
	commands.VerifyResults(latest)
	commands.CollectDatastoreMetrics(ctx, latest)
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NIterations scales to users, pushes iterations work, and loops the
// drain/aggregate/verify/collect cycle until numResultsCollected reaches
// iterations (or timeout elapses, in which case it scales to zero and
// raises a timeout error). skipScaledown omits the trailing scale-to-zero
// on success; the Scenario Runtime's own completion protocol scales to
// zero unconditionally regardless.
func NIterations(iterations, users int, waitPeriod time.Duration, timeout time.Duration, skipScaledown bool) Fn {
	return func(ctx context.Context, commands *runtime.Commands) error {
		if err := commands.ScaleUsers(ctx, users); err != nil {
			return err
		}
		if err := commands.AddWork(ctx, iterations); err != nil {
			return err
		}

		start := time.Now()
		for commands.NumResultsCollected() < iterations {
			if timeout > 0 && time.Since(start) > timeout {
				_ = commands.ScaleUsers(ctx, 0)
				return fmt.Errorf("loadmodel: timed out waiting for results")
			}

			if err := pollOnce(ctx, commands, 0); err != nil {
				return err
			}
			if err := sleepOrDone(ctx, waitPeriod); err != nil {
				return err
			}
		}

		if !skipScaledown {
			return commands.ScaleUsers(ctx, 0)
		}
		return nil
	}
}

// RunScenarioOnce scales to one user, pushes one unit of work, and loops
// the drain/aggregate/verify/collect cycle, retrying with another unit of
// work each cycle that produces no success, until a result arrives with
// no verifier errors or the timeout elapses.
func RunScenarioOnce(waitPeriod time.Duration, timeout time.Duration) Fn {
	return func(ctx context.Context, commands *runtime.Commands) error {
		if err := commands.ScaleUsers(ctx, 1); err != nil {
			return err
		}
		if err := commands.AddWork(ctx, 1); err != nil {
			return err
		}

		start := time.Now()
		for time.Now().Before(start.Add(timeout)) {
			if err := pollOnce(ctx, commands, 0); err != nil {
				return err
			}

			if len(commands.Errors()) == 0 && commands.NumResultsCollected() > 0 {
				return nil
			}

			if err := commands.AddWork(ctx, 1); err != nil {
				return err
			}
			if err := sleepOrDone(ctx, waitPeriod); err != nil {
				return err
			}
		}

		return nil
	}
}

// NSeconds scales to users and runs the drain/aggregate/verify/collect
// cycle until seconds have elapsed since the scenario started.
func NSeconds(seconds time.Duration, users int, waitPeriod time.Duration, skipScaledown bool) Fn {
	return func(ctx context.Context, commands *runtime.Commands) error {
		if err := commands.ScaleUsers(ctx, users); err != nil {
			return err
		}

		start := time.Now()
		for time.Since(start) < seconds {
			if err := pollOnce(ctx, commands, 0); err != nil {
				return err
			}
			if err := sleepOrDone(ctx, waitPeriod); err != nil {
				return err
			}
		}

		if !skipScaledown {
			return commands.ScaleUsers(ctx, 0)
		}
		return nil
	}
}

// NUsersRamping ramps the scenario's user count from its starting value
// to targetUsers over seconds/waitPeriod steps, tracking a fractional
// remainder so non-integer per-step deltas still converge exactly.
func NUsersRamping(seconds time.Duration, targetUsers int, waitPeriod time.Duration, skipScaledown bool) Fn {
	return func(ctx context.Context, commands *runtime.Commands) error {
		steps := int(seconds / waitPeriod)
		if steps <= 0 {
			steps = 1
		}

		startingUsers := commands.NumUsers()
		delta := float64(targetUsers - startingUsers)
		perStep := delta / float64(steps)

		var fractional float64
		for i := 0; i < steps; i++ {
			fractional += perStep
			wholeStep := int(fractional)
			fractional -= float64(wholeStep)

			if wholeStep != 0 {
				if err := commands.ScaleUsers(ctx, commands.NumUsers()+wholeStep); err != nil {
					return err
				}
			}

			if err := pollOnce(ctx, commands, 0); err != nil {
				return err
			}
			if err := sleepOrDone(ctx, waitPeriod); err != nil {
				return err
			}
		}

		if !skipScaledown {
			return commands.ScaleUsers(ctx, 0)
		}
		return nil
	}
}

// ThresholdFn reports whether ramp_users_to_threshold should stop.
type ThresholdFn func(aggregated any) bool

// NextUsersFn computes the next user count from the current one for
// ramp_users_to_threshold.
type NextUsersFn func(numUsers int) int

// UpdateAggregateFn overwrites the scenario's aggregated state at the end
// of ramp_users_to_threshold, given the final user count.
type UpdateAggregateFn func(numUsers int, aggregated any) any

// RampUsersToThreshold scales to initialUsers, then every periodDuration
// calls nextUsers to pick the next user count, polling each waitPeriod
// cycle, until threshold reports done or periodLimit periods elapse.
// Finally overwrites the aggregated state via updateAggregate.
func RampUsersToThreshold(initialUsers int, threshold ThresholdFn, nextUsers NextUsersFn, updateAggregate UpdateAggregateFn, periodDuration time.Duration, periodLimit int, waitPeriod time.Duration, skipScaledown bool) Fn {
	return func(ctx context.Context, commands *runtime.Commands) error {
		if err := commands.ScaleUsers(ctx, initialUsers); err != nil {
			return err
		}

		periodStart := time.Now()
		periods := 0

		for {
			if err := pollOnce(ctx, commands, 0); err != nil {
				return err
			}

			if threshold(commands.AggregatedResults()) {
				break
			}
			if periods >= periodLimit {
				break
			}

			if time.Since(periodStart) >= periodDuration {
				if err := commands.ScaleUsers(ctx, nextUsers(commands.NumUsers())); err != nil {
					return err
				}
				periods++
				periodStart = time.Now()
			}

			if err := sleepOrDone(ctx, waitPeriod); err != nil {
				return err
			}
		}

		if updateAggregate != nil {
			commands.SetAggregatedResults(updateAggregate(commands.NumUsers(), commands.AggregatedResults()))
		}

		if !skipScaledown {
			return commands.ScaleUsers(ctx, 0)
		}
		return nil
	}
}

// LoadStages runs each stage's Fn sequentially, then scales to zero.
func LoadStages(stages ...Fn) Fn {
	return func(ctx context.Context, commands *runtime.Commands) error {
		for _, stage := range stages {
			if err := stage(ctx, commands); err != nil {
				return err
			}
		}
		return commands.ScaleUsers(ctx, 0)
	}
}
