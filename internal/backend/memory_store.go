package backend

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process, mutex-serialized Store implementation.
// It backs the LOCAL scheduling mode, where controller and workers share
// one address space, and every package's unit tests. Grounded on the
// teacher's services.registry pattern: one map per resource, guarded by a
// single mutex, not-found reported via a sentinel rather than a bool.
type MemoryStore struct {
	mu sync.Mutex

	tests     map[TestId]*testRecord
	scenarios map[ScenarioId]*scenarioRecord
	managers  map[UserManagerId]*managerRecord
	instances map[string]bool
}

type testRecord struct {
	events []TestEvent
}

type scenarioRecord struct {
	testID           TestId
	usersPerInstance int
	managerIDs       []UserManagerId
	workRemainder    int // undistributed tokens, split across managers on DistributeWork
	results          []Result
	scenarioResult   *ScenarioResult
	metrics          map[string][]float64
}

type managerRecord struct {
	scenarioID ScenarioId
	events     map[string][]UserEvent
	work       int
	users      []UserId // real ids this manager currently hosts
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tests:     make(map[TestId]*testRecord),
		scenarios: make(map[ScenarioId]*scenarioRecord),
		managers:  make(map[UserManagerId]*managerRecord),
		instances: make(map[string]bool),
	}
}

func (s *MemoryStore) CreateTest(ctx context.Context, schedulingMetadata []byte, backendAddr string, tags []string, env map[string]string) (TestId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := TestId(uuid.NewString())
	s.tests[id] = &testRecord{}
	return id, nil
}

func (s *MemoryStore) CreateScenario(ctx context.Context, testID TestId, name string, contextBlob string, usersPerInstance int, tags []string) (ScenarioId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tests[testID]; !ok {
		return "", fmt.Errorf("backend: create scenario: %w: test %s", ErrNotFound, testID)
	}

	id := ScenarioId(uuid.NewString())
	s.scenarios[id] = &scenarioRecord{
		testID:           testID,
		usersPerInstance: usersPerInstance,
		metrics:          make(map[string][]float64),
	}
	return id, nil
}

// CreateUsers mints amount real user ids, tops off the scenario's existing
// managers up to usersPerInstance capacity before spawning new ones, and
// sends each touched manager a START_USERS event naming the ids it was
// just handed. Only newly spawned managers are returned — StartUsers
// provisions a worker process for each one returned; an existing manager
// that was merely topped off already has a process. Grounded on the
// original implementation's ScenarioCommands.start_users
// (_examples/original_source/cicadad/core/commands.py:90-184): fill
// existing managers first, then create ceil(remaining/usersPerInstance)
// more.
func (s *MemoryStore) CreateUsers(ctx context.Context, testID TestId, scenarioID ScenarioId, amount int) ([]UserManagerId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[scenarioID]
	if !ok {
		return nil, fmt.Errorf("backend: create users: %w: scenario %s", ErrNotFound, scenarioID)
	}
	if amount <= 0 {
		return nil, nil
	}

	usersPerInstance := scenario.usersPerInstance
	if usersPerInstance <= 0 {
		usersPerInstance = amount
	}

	type allocation struct {
		managerID UserManagerId
		count     int
	}

	var allocations []allocation
	var newManagerIDs []UserManagerId
	remaining := amount

	for _, managerID := range scenario.managerIDs {
		if remaining <= 0 {
			break
		}
		manager := s.managers[managerID]
		capacity := usersPerInstance - len(manager.users)
		if capacity <= 0 {
			continue
		}
		take := capacity
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, allocation{managerID, take})
		remaining -= take
	}

	for remaining > 0 {
		take := usersPerInstance
		if take > remaining {
			take = remaining
		}

		id := UserManagerId(uuid.NewString())
		s.managers[id] = &managerRecord{
			scenarioID: scenarioID,
			events:     make(map[string][]UserEvent),
		}
		scenario.managerIDs = append(scenario.managerIDs, id)

		allocations = append(allocations, allocation{id, take})
		newManagerIDs = append(newManagerIDs, id)
		remaining -= take
	}

	for _, alloc := range allocations {
		ids := make([]UserId, alloc.count)
		for i := range ids {
			ids[i] = UserId(fmt.Sprintf("user-%s", uuid.NewString()[:8]))
		}

		manager := s.managers[alloc.managerID]
		manager.users = append(manager.users, ids...)
		manager.events[EventStartUsers] = append(manager.events[EventStartUsers], UserEvent{
			Kind:    EventStartUsers,
			Payload: map[string]interface{}{"IDs": ids},
		})
	}

	return newManagerIDs, nil
}

// StopUsers retires up to amount real users, draining them oldest-first
// from the scenario's managers and sending each affected manager a
// STOP_USERS event naming exactly the ids it lost — userrunner.Runner.IsUp
// matches on these ids verbatim, so synthesizing placeholder ids here
// would stop nobody. Grounded on the original's stop_users
// (_examples/original_source/cicadad/core/commands.py:203-237).
func (s *MemoryStore) StopUsers(ctx context.Context, scenarioID ScenarioId, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[scenarioID]
	if !ok {
		return fmt.Errorf("backend: stop users: %w: scenario %s", ErrNotFound, scenarioID)
	}
	if amount <= 0 || len(scenario.managerIDs) == 0 {
		return nil
	}

	remaining := amount
	for _, managerID := range scenario.managerIDs {
		if remaining <= 0 {
			break
		}

		manager := s.managers[managerID]
		if len(manager.users) == 0 {
			continue
		}

		take := remaining
		if take > len(manager.users) {
			take = len(manager.users)
		}

		stopping := append([]UserId(nil), manager.users[:take]...)
		manager.users = manager.users[take:]
		remaining -= take

		manager.events[EventStopUsers] = append(manager.events[EventStopUsers], UserEvent{
			Kind:    EventStopUsers,
			Payload: map[string]interface{}{"IDs": stopping},
		})
	}

	return nil
}

func (s *MemoryStore) DistributeWork(ctx context.Context, scenarioID ScenarioId, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[scenarioID]
	if !ok {
		return fmt.Errorf("backend: distribute work: %w: scenario %s", ErrNotFound, scenarioID)
	}

	managers := scenario.managerIDs
	if len(managers) == 0 {
		scenario.workRemainder += amount
		return nil
	}

	base := amount / len(managers)
	remainder := amount % len(managers)

	order := rand.Perm(len(managers))
	for i, managerID := range managers {
		share := base
		for _, r := range order[:remainder] {
			if r == i {
				share++
				break
			}
		}
		s.managers[managerID].work += share
	}

	return nil
}

func (s *MemoryStore) GetUserWork(ctx context.Context, managerID UserManagerId) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	manager, ok := s.managers[managerID]
	if !ok {
		return 0, fmt.Errorf("backend: get user work: %w: manager %s", ErrNotFound, managerID)
	}

	work := manager.work
	manager.work = 0
	return work, nil
}

func (s *MemoryStore) AddUserEvent(ctx context.Context, scenarioID ScenarioId, kind string, payload map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[scenarioID]
	if !ok {
		return fmt.Errorf("backend: add user event: %w: scenario %s", ErrNotFound, scenarioID)
	}

	event := UserEvent{Kind: kind, Payload: payload}
	for _, managerID := range scenario.managerIDs {
		manager := s.managers[managerID]
		manager.events[kind] = append(manager.events[kind], event)
	}

	return nil
}

func (s *MemoryStore) GetUserEvents(ctx context.Context, managerID UserManagerId, kind string) ([]UserEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	manager, ok := s.managers[managerID]
	if !ok {
		return nil, fmt.Errorf("backend: get user events: %w: manager %s", ErrNotFound, managerID)
	}

	events := manager.events[kind]
	manager.events[kind] = nil
	return events, nil
}

func (s *MemoryStore) AddUserResults(ctx context.Context, managerID UserManagerId, results []Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	manager, ok := s.managers[managerID]
	if !ok {
		return fmt.Errorf("backend: add user results: %w: manager %s", ErrNotFound, managerID)
	}

	scenario, ok := s.scenarios[manager.scenarioID]
	if !ok {
		return fmt.Errorf("backend: add user results: %w: scenario %s", ErrNotFound, manager.scenarioID)
	}

	scenario.results = append(scenario.results, results...)
	return nil
}

func (s *MemoryStore) MoveUserResults(ctx context.Context, scenarioID ScenarioId, limit int) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[scenarioID]
	if !ok {
		return nil, fmt.Errorf("backend: move user results: %w: scenario %s", ErrNotFound, scenarioID)
	}

	if limit <= 0 || limit > len(scenario.results) {
		limit = len(scenario.results)
	}

	out := scenario.results[:limit]
	scenario.results = scenario.results[limit:]
	return out, nil
}

func (s *MemoryStore) SetScenarioResult(ctx context.Context, result ScenarioResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[result.ID]
	if !ok {
		return fmt.Errorf("backend: set scenario result: %w: scenario %s", ErrNotFound, result.ID)
	}

	scenario.scenarioResult = &result
	return nil
}

func (s *MemoryStore) MoveScenarioResult(ctx context.Context, scenarioID ScenarioId) (ScenarioResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[scenarioID]
	if !ok {
		return ScenarioResult{}, fmt.Errorf("backend: move scenario result: %w: scenario %s", ErrNotFound, scenarioID)
	}

	if scenario.scenarioResult == nil {
		return ScenarioResult{}, fmt.Errorf("backend: move scenario result: %w: scenario %s", ErrNotFound, scenarioID)
	}

	result := *scenario.scenarioResult
	scenario.scenarioResult = nil
	return result, nil
}

func (s *MemoryStore) AddTestEvent(ctx context.Context, testID TestId, event TestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	test, ok := s.tests[testID]
	if !ok {
		return fmt.Errorf("backend: add test event: %w: test %s", ErrNotFound, testID)
	}

	test.events = append(test.events, event)
	return nil
}

func (s *MemoryStore) GetTestEvents(ctx context.Context, testID TestId) ([]TestEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	test, ok := s.tests[testID]
	if !ok {
		return nil, fmt.Errorf("backend: get test events: %w: test %s", ErrNotFound, testID)
	}

	events := test.events
	test.events = nil
	return events, nil
}

func (s *MemoryStore) CheckTestInstance(ctx context.Context, testID TestId, instanceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.instances[instanceID], nil
}

func (s *MemoryStore) RegisterInstance(ctx context.Context, testID TestId, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[instanceID] = true
	return nil
}

func (s *MemoryStore) DeregisterInstance(ctx context.Context, testID TestId, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, instanceID)
	return nil
}

func (s *MemoryStore) CleanTestInstances(ctx context.Context, testID TestId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.instances {
		delete(s.instances, key)
	}
	return nil
}

func (s *MemoryStore) AddMetric(ctx context.Context, scenarioID ScenarioId, name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[scenarioID]
	if !ok {
		return fmt.Errorf("backend: add metric: %w: scenario %s", ErrNotFound, scenarioID)
	}

	scenario.metrics[name] = append(scenario.metrics[name], value)
	return nil
}

func (s *MemoryStore) GetMetricTotal(ctx context.Context, scenarioID ScenarioId, name string) (float64, error) {
	series, err := s.metricSeries(scenarioID, name)
	if err != nil {
		return 0, err
	}
	return computeTotal(series), nil
}

func (s *MemoryStore) GetLastMetric(ctx context.Context, scenarioID ScenarioId, name string) (float64, error) {
	series, err := s.metricSeries(scenarioID, name)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

func (s *MemoryStore) GetMetricStatistics(ctx context.Context, scenarioID ScenarioId, name string) (MetricStatistics, error) {
	series, err := s.metricSeries(scenarioID, name)
	if err != nil {
		return MetricStatistics{}, err
	}
	return computeStatistics(series), nil
}

func (s *MemoryStore) GetMetricRate(ctx context.Context, scenarioID ScenarioId, name string, splitPoint int) (float64, error) {
	series, err := s.metricSeries(scenarioID, name)
	if err != nil {
		return 0, err
	}
	return computeRate(series, splitPoint), nil
}

func (s *MemoryStore) metricSeries(scenarioID ScenarioId, name string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenario, ok := s.scenarios[scenarioID]
	if !ok {
		return nil, fmt.Errorf("backend: metric: %w: scenario %s", ErrNotFound, scenarioID)
	}

	series, ok := scenario.metrics[name]
	if !ok || len(series) == 0 {
		return nil, fmt.Errorf("backend: metric: %w: series %s/%s", ErrNotFound, scenarioID, name)
	}

	return series, nil
}

var _ Store = (*MemoryStore)(nil)
