// Package scheduler implements the User Scheduler: the worker-process
// loop that notices newly announced users, spawns a User Runner task for
// each, and periodically flushes the worker's buffer to the backend.
// Grounded on the original implementation's user_scheduler
// (_examples/original_source/cicadad/core/runners.py). The original uses a
// Dask Client.submit + fire_and_forget pair for its per-process task pool;
// the Go realization uses golang.org/x/sync/errgroup (already a teacher
// dependency) with an unbounded group, matching the original's
// "don't wait on individual tasks" semantics.
package scheduler

import (
	"context"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/buffer"
	"cicadad/internal/userloop"
	"cicadad/internal/userrunner"
	"cicadad/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// PollInterval is the loop's sleep between GetNewUsers polls, matching the
// original's unconditional 1-second sleep.
const PollInterval = time.Second

// RunnerFactory builds a userrunner.ScenarioFunc-backed Runner for a newly
// announced user. Kept as a factory so the scheduler stays agnostic to
// which scenario function and loop policy are in play.
type RunnerFactory func(userID backend.UserId) (*userrunner.Runner, userloop.Policy)

// Scheduler runs the User Scheduler loop for one worker process.
type Scheduler struct {
	store     backend.Store
	managerID backend.UserManagerId
	buf       *buffer.Buffer
	newRunner RunnerFactory

	group *errgroup.Group
}

// New constructs a Scheduler for the given user manager.
func New(store backend.Store, managerID backend.UserManagerId, buf *buffer.Buffer, newRunner RunnerFactory) *Scheduler {
	return &Scheduler{
		store:     store,
		managerID: managerID,
		buf:       buf,
		newRunner: newRunner,
		group:     &errgroup.Group{},
	}
}

// Run loops forever until ctx is canceled: pull START_USERS events,
// register and launch a task per new user, flush results, sleep. On exit
// it performs one final flush so every already-reported result is
// delivered, matching the original's "the scheduler's only externally
// visible effect on exit is the results the final flush guarantees".
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.tick(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return s.buf.SendUserResults(context.Background())
		case <-time.After(PollInterval):
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	newUsers, err := s.getNewUsers(ctx)
	if err != nil {
		return err
	}

	for _, userID := range newUsers {
		runner, policy := s.newRunner(userID)
		s.group.Go(func() error {
			if runErr := policy(ctx, runner); runErr != nil {
				logging.Error("scheduler", runErr, "user loop exited with error for user %s", userID)
			}
			return nil
		})
	}

	return s.buf.SendUserResults(ctx)
}

// getNewUsers drains START_USERS events for this manager and registers
// the announced ids with the buffer.
func (s *Scheduler) getNewUsers(ctx context.Context) ([]backend.UserId, error) {
	events, err := s.store.GetUserEvents(ctx, s.managerID, backend.EventStartUsers)
	if err != nil {
		return nil, err
	}

	var ids []backend.UserId
	for _, event := range events {
		ids = append(ids, event.UserEventIDs()...)
	}

	if len(ids) > 0 {
		s.buf.AddUsers(ids)
	}

	return ids, nil
}
