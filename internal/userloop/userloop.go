// Package userloop provides the User Loop policy surface: the small set
// of cycle strategies (while there's work, while alive, rate-limited) that
// decide when a user fires its next scenario iteration, plus the
// UserCommands capability surface those strategies are written against.
// Grounded line-by-line on the original implementation's while_has_work,
// while_alive and iterations_per_second_limited closures
// (_examples/original_source/cicadad/core/scenario.py).
package userloop

import (
	"context"
	"time"

	"cicadad/internal/backend"
)

// UserCommands is the capability surface a User Loop policy is written
// against — the Go realization of the original's IUserCommands/UserCommands
// pairing. A concrete implementation lives in internal/userrunner, backed
// by a buffer.Buffer.
type UserCommands interface {
	// IsUp reports whether this user has not yet been asked to stop: true
	// iff no STOP_USERS event naming this user's id has arrived.
	IsUp(ctx context.Context) (bool, error)

	// HasWork reports whether at least one work token is available,
	// consuming it if so. If the local counter is empty it attempts one
	// refill from the buffer within timeout before giving up.
	HasWork(ctx context.Context, timeout time.Duration) (bool, error)

	// Run invokes the scenario function once and returns its outcome:
	// the output value, a non-nil error if the function panicked or
	// returned one, and the captured per-invocation log text.
	Run(ctx context.Context) (output backend.Value, scenarioErr error, logs string)

	// ReportResult builds and forwards a Result for one invocation.
	ReportResult(ctx context.Context, output backend.Value, scenarioErr error, logs string, timeTaken time.Duration) error
}

// Policy drives a user's lifecycle until IsUp first reads false.
type Policy func(ctx context.Context, commands UserCommands) error

// runOnce executes one Run/ReportResult cycle and times it, the sequence
// shared by every provided policy.
func runOnce(ctx context.Context, commands UserCommands) error {
	start := time.Now()
	output, scenarioErr, logs := commands.Run(ctx)
	elapsed := time.Since(start)

	return commands.ReportResult(ctx, output, scenarioErr, logs, elapsed)
}

// WhileHasWork loops: while the user is up, pull work (waiting up to
// pollTimeout per attempt); run and report once per available token.
func WhileHasWork(pollTimeout time.Duration) Policy {
	return func(ctx context.Context, commands UserCommands) error {
		for {
			up, err := commands.IsUp(ctx)
			if err != nil {
				return err
			}
			if !up {
				return nil
			}

			hasWork, err := commands.HasWork(ctx, pollTimeout)
			if err != nil {
				return err
			}
			if !hasWork {
				continue
			}

			if err := runOnce(ctx, commands); err != nil {
				return err
			}
		}
	}
}

// WhileAlive loops: while the user is up, run and report every iteration
// with no work gating.
func WhileAlive() Policy {
	return func(ctx context.Context, commands UserCommands) error {
		for {
			up, err := commands.IsUp(ctx)
			if err != nil {
				return err
			}
			if !up {
				return nil
			}

			if err := runOnce(ctx, commands); err != nil {
				return err
			}
		}
	}
}

// IterationsPerSecondLimited runs up to limit iterations within each
// one-second cycle, then sleeps until the cycle boundary. The boundary
// resets on a fixed one-second cadence regardless of how many iterations
// actually ran in the prior cycle.
func IterationsPerSecondLimited(limit int) Policy {
	return func(ctx context.Context, commands UserCommands) error {
		remaining := limit
		cycleStart := time.Now()

		for {
			up, err := commands.IsUp(ctx)
			if err != nil {
				return err
			}
			if !up {
				return nil
			}

			if remaining > 0 {
				if err := runOnce(ctx, commands); err != nil {
					return err
				}
				remaining--
			} else {
				sleepFor := time.Until(cycleStart.Add(time.Second))
				if sleepFor > 0 {
					select {
					case <-time.After(sleepFor):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}

			if time.Since(cycleStart) >= time.Second {
				remaining = limit
				cycleStart = time.Now()
			}
		}
	}
}
