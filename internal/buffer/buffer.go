// Package buffer implements the per-worker-process User Buffer: a single
// mutex-serialized staging area shared by every user runner hosted in the
// process, mediating their access to the Backend Store. Grounded on the
// original implementation's UserBufferActor
// (_examples/original_source/cicadad/services/backend.py), generalized
// from a single-threaded Python actor to a Go type serialized by one
// sync.Mutex per instance.
package buffer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"cicadad/internal/backend"
)

// Buffer mediates event/work/result traffic between the user runners
// hosted in one worker process and the Backend Store. All operations are
// serialized: a single-producer-from-each-user, single-consumer state
// machine for events/work, and an MPSC queue for results.
type Buffer struct {
	store     backend.Store
	managerID backend.UserManagerId

	mu      sync.Mutex
	events  map[backend.UserId][]backend.UserEvent
	work    map[backend.UserId]int
	pending []backend.Result
}

// NewBuffer constructs an empty buffer for the given user manager.
func NewBuffer(store backend.Store, managerID backend.UserManagerId) *Buffer {
	return &Buffer{
		store:     store,
		managerID: managerID,
		events:    make(map[backend.UserId][]backend.UserEvent),
		work:      make(map[backend.UserId]int),
	}
}

// AddUsers registers ids for tracking, initializing an empty event queue
// and a zero work counter for each.
func (b *Buffer) AddUsers(ids []backend.UserId) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range ids {
		if _, ok := b.events[id]; !ok {
			b.events[id] = nil
		}
		if _, ok := b.work[id]; !ok {
			b.work[id] = 0
		}
	}
}

// GetUserEvents returns and drains userID's queue for kind. If the queue
// is empty, it issues one backend GetUserEvents call first and broadcasts
// the result to every tracked user's queue — events are manager-wide, not
// per-user.
func (b *Buffer) GetUserEvents(ctx context.Context, userID backend.UserId, kind string) ([]backend.UserEvent, error) {
	b.mu.Lock()

	if _, tracked := b.events[userID]; !tracked {
		b.mu.Unlock()
		return nil, nil
	}

	needsRefill := len(b.events[userID]) == 0
	b.mu.Unlock()

	if needsRefill {
		fetched, err := b.store.GetUserEvents(ctx, b.managerID, kind)
		if err != nil {
			return nil, fmt.Errorf("buffer: refill events: %w", err)
		}

		b.mu.Lock()
		for id := range b.events {
			b.events[id] = append(b.events[id], fetched...)
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.events[userID]
	b.events[userID] = nil
	return events, nil
}

// GetUserWork returns and drains userID's work counter. If the counter is
// zero, it issues one backend GetUserWork call and splits the result
// across all tracked users: base = total/N, remainder distributed one per
// user in a freshly shuffled order, preventing starvation of any one user
// across polls.
func (b *Buffer) GetUserWork(ctx context.Context, userID backend.UserId) (int, error) {
	b.mu.Lock()

	if _, tracked := b.work[userID]; !tracked {
		b.mu.Unlock()
		return 0, nil
	}

	needsRefill := b.work[userID] == 0
	b.mu.Unlock()

	if needsRefill {
		total, err := b.store.GetUserWork(ctx, b.managerID)
		if err != nil {
			return 0, fmt.Errorf("buffer: refill work: %w", err)
		}

		b.mu.Lock()
		b.distributeWorkLocked(total)
		b.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	work := b.work[userID]
	b.work[userID] = 0
	return work, nil
}

func (b *Buffer) distributeWorkLocked(total int) {
	n := len(b.work)
	if n == 0 {
		return
	}

	ids := make([]backend.UserId, 0, n)
	for id := range b.work {
		ids = append(ids, id)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	base := total / n
	remainder := total % n

	for _, id := range ids {
		b.work[id] += base
	}
	for i := 0; i < remainder; i++ {
		b.work[ids[i]]++
	}
}

// AddUserResult appends result to the pending, not-yet-flushed queue.
func (b *Buffer) AddUserResult(result backend.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, result)
}

// SendUserResults flushes the pending result queue to the backend in one
// call and clears it. Safe to call with an empty queue (a no-op network
// call, matching the original's unconditional flush).
func (b *Buffer) SendUserResults(ctx context.Context) error {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	if err := b.store.AddUserResults(ctx, b.managerID, pending); err != nil {
		return fmt.Errorf("buffer: send user results: %w", err)
	}
	return nil
}
