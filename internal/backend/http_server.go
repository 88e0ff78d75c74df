package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"cicadad/pkg/logging"
)

// HTTPServer exposes a Store over JSON-over-HTTP so DOCKER/KUBE workers,
// which run in separate processes (and often separate hosts), can reach a
// controller-hosted store. Grounded on the teacher's aggregator.Server
// lifecycle (ctx/cancelFunc/wg/mu, graceful shutdown) generalized from an
// MCP transport server to a plain JSON RPC server.
type HTTPServer struct {
	store Store
	addr  string

	mu             sync.Mutex
	httpServer     *http.Server
	metricsHandler http.Handler
}

// NewHTTPServer wraps store for serving at addr (e.g. "[::]:8283").
func NewHTTPServer(store Store, addr string) *HTTPServer {
	return &HTTPServer{store: store, addr: addr}
}

// MountMetrics registers h at "/metrics", exposing a Prometheus scrape
// endpoint alongside the store's JSON RPC routes. Must be called before
// Start. internal/metrics.Registry.Handler() is the expected h.
func (s *HTTPServer) MountMetrics(h http.Handler) {
	s.metricsHandler = h
}

// Start begins serving in a background goroutine and returns once the
// listener is bound. Call Stop to shut down gracefully.
func (s *HTTPServer) Start() error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("backend", err, "HTTP backend server stopped unexpectedly")
		}
	}()

	return nil
}

// Stop gracefully shuts the server down, waiting up to the given context's
// deadline for in-flight requests to drain.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *HTTPServer) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/createTest", s.handleCreateTest)
	mux.HandleFunc("/createScenario", s.handleCreateScenario)
	mux.HandleFunc("/createUsers", s.handleCreateUsers)
	mux.HandleFunc("/stopUsers", s.handleStopUsers)
	mux.HandleFunc("/distributeWork", s.handleDistributeWork)
	mux.HandleFunc("/getUserWork", s.handleGetUserWork)
	mux.HandleFunc("/addUserEvent", s.handleAddUserEvent)
	mux.HandleFunc("/getUserEvents", s.handleGetUserEvents)
	mux.HandleFunc("/addUserResults", s.handleAddUserResults)
	mux.HandleFunc("/moveUserResults", s.handleMoveUserResults)
	mux.HandleFunc("/setScenarioResult", s.handleSetScenarioResult)
	mux.HandleFunc("/moveScenarioResult", s.handleMoveScenarioResult)
	mux.HandleFunc("/addTestEvent", s.handleAddTestEvent)
	mux.HandleFunc("/getTestEvents", s.handleGetTestEvents)
	mux.HandleFunc("/checkTestInstance", s.handleCheckTestInstance)
	mux.HandleFunc("/cleanTestInstances", s.handleCleanTestInstances)
	mux.HandleFunc("/registerInstance", s.handleRegisterInstance)
	mux.HandleFunc("/deregisterInstance", s.handleDeregisterInstance)
	mux.HandleFunc("/addMetric", s.handleAddMetric)
	mux.HandleFunc("/getMetricTotal", s.handleGetMetricTotal)
	mux.HandleFunc("/getLastMetric", s.handleGetLastMetric)
	mux.HandleFunc("/getMetricStatistics", s.handleGetMetricStatistics)
	mux.HandleFunc("/getMetricRate", s.handleGetMetricRate)

	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
}

// writeJSON/writeError/readJSON below are small helpers; not found ->
// 404, any other store error -> 500, success -> 200 with a JSON body.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// handleHealth answers liveness checks, letting a freshly-dialed
// backend.HTTPClient (backend.Retry) distinguish "server not up yet" from
// "server up, operation genuinely not found".
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTestRequest struct {
	SchedulingMetadata json.RawMessage   `json:"schedulingMetadata"`
	BackendAddr        string            `json:"backendAddr"`
	Tags               []string          `json:"tags"`
	Env                map[string]string `json:"env"`
}

func (s *HTTPServer) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.store.CreateTest(r.Context(), req.SchedulingMetadata, req.BackendAddr, req.Tags, req.Env)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]TestId{"testId": id})
}

type createScenarioRequest struct {
	TestID           TestId `json:"testId"`
	Name             string `json:"name"`
	ContextBlob      string `json:"contextBlob"`
	UsersPerInstance int    `json:"usersPerInstance"`
	Tags             []string `json:"tags"`
}

func (s *HTTPServer) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req createScenarioRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.store.CreateScenario(r.Context(), req.TestID, req.Name, req.ContextBlob, req.UsersPerInstance, req.Tags)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]ScenarioId{"scenarioId": id})
}

type createUsersRequest struct {
	TestID     TestId     `json:"testId"`
	ScenarioID ScenarioId `json:"scenarioId"`
	Amount     int        `json:"amount"`
}

func (s *HTTPServer) handleCreateUsers(w http.ResponseWriter, r *http.Request) {
	var req createUsersRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids, err := s.store.CreateUsers(r.Context(), req.TestID, req.ScenarioID, req.Amount)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]UserManagerId{"managerIds": ids})
}

type stopUsersRequest struct {
	ScenarioID ScenarioId `json:"scenarioId"`
	Amount     int        `json:"amount"`
}

func (s *HTTPServer) handleStopUsers(w http.ResponseWriter, r *http.Request) {
	var req stopUsersRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.StopUsers(r.Context(), req.ScenarioID, req.Amount); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type distributeWorkRequest struct {
	ScenarioID ScenarioId `json:"scenarioId"`
	Amount     int        `json:"amount"`
}

func (s *HTTPServer) handleDistributeWork(w http.ResponseWriter, r *http.Request) {
	var req distributeWorkRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.DistributeWork(r.Context(), req.ScenarioID, req.Amount); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type managerIDRequest struct {
	ManagerID UserManagerId `json:"managerId"`
}

func (s *HTTPServer) handleGetUserWork(w http.ResponseWriter, r *http.Request) {
	var req managerIDRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	work, err := s.store.GetUserWork(r.Context(), req.ManagerID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"work": work})
}

type addUserEventRequest struct {
	ScenarioID ScenarioId             `json:"scenarioId"`
	Kind       string                 `json:"kind"`
	Payload    map[string]interface{} `json:"payload"`
}

func (s *HTTPServer) handleAddUserEvent(w http.ResponseWriter, r *http.Request) {
	var req addUserEventRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.AddUserEvent(r.Context(), req.ScenarioID, req.Kind, req.Payload); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type getUserEventsRequest struct {
	ManagerID UserManagerId `json:"managerId"`
	Kind      string        `json:"kind"`
}

func (s *HTTPServer) handleGetUserEvents(w http.ResponseWriter, r *http.Request) {
	var req getUserEventsRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := s.store.GetUserEvents(r.Context(), req.ManagerID, req.Kind)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]UserEvent{"events": events})
}

type addUserResultsRequest struct {
	ManagerID UserManagerId `json:"managerId"`
	Results   []Result      `json:"results"`
}

func (s *HTTPServer) handleAddUserResults(w http.ResponseWriter, r *http.Request) {
	var req addUserResultsRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.AddUserResults(r.Context(), req.ManagerID, req.Results); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type moveUserResultsRequest struct {
	ScenarioID ScenarioId `json:"scenarioId"`
	Limit      int        `json:"limit"`
}

func (s *HTTPServer) handleMoveUserResults(w http.ResponseWriter, r *http.Request) {
	var req moveUserResultsRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := s.store.MoveUserResults(r.Context(), req.ScenarioID, req.Limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]Result{"results": results})
}

func (s *HTTPServer) handleSetScenarioResult(w http.ResponseWriter, r *http.Request) {
	var result ScenarioResult
	if err := readJSON(r, &result); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.SetScenarioResult(r.Context(), result); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type scenarioIDRequest struct {
	ScenarioID ScenarioId `json:"scenarioId"`
}

func (s *HTTPServer) handleMoveScenarioResult(w http.ResponseWriter, r *http.Request) {
	var req scenarioIDRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.store.MoveScenarioResult(r.Context(), req.ScenarioID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type addTestEventRequest struct {
	TestID TestId    `json:"testId"`
	Event  TestEvent `json:"event"`
}

func (s *HTTPServer) handleAddTestEvent(w http.ResponseWriter, r *http.Request) {
	var req addTestEventRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.AddTestEvent(r.Context(), req.TestID, req.Event); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type testIDRequest struct {
	TestID TestId `json:"testId"`
}

func (s *HTTPServer) handleGetTestEvents(w http.ResponseWriter, r *http.Request) {
	var req testIDRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := s.store.GetTestEvents(r.Context(), req.TestID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]TestEvent{"events": events})
}

type checkTestInstanceRequest struct {
	TestID     TestId `json:"testId"`
	InstanceID string `json:"instanceId"`
}

func (s *HTTPServer) handleCheckTestInstance(w http.ResponseWriter, r *http.Request) {
	var req checkTestInstanceRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := s.store.CheckTestInstance(r.Context(), req.TestID, req.InstanceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"running": ok})
}

func (s *HTTPServer) handleCleanTestInstances(w http.ResponseWriter, r *http.Request) {
	var req testIDRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.CleanTestInstances(r.Context(), req.TestID); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *HTTPServer) handleRegisterInstance(w http.ResponseWriter, r *http.Request) {
	var req checkTestInstanceRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.RegisterInstance(r.Context(), req.TestID, req.InstanceID); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *HTTPServer) handleDeregisterInstance(w http.ResponseWriter, r *http.Request) {
	var req checkTestInstanceRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.DeregisterInstance(r.Context(), req.TestID, req.InstanceID); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type addMetricRequest struct {
	ScenarioID ScenarioId `json:"scenarioId"`
	Name       string     `json:"name"`
	Value      float64    `json:"value"`
}

func (s *HTTPServer) handleAddMetric(w http.ResponseWriter, r *http.Request) {
	var req addMetricRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.AddMetric(r.Context(), req.ScenarioID, req.Name, req.Value); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type metricQueryRequest struct {
	ScenarioID ScenarioId `json:"scenarioId"`
	Name       string     `json:"name"`
	SplitPoint int        `json:"splitPoint"`
}

func (s *HTTPServer) handleGetMetricTotal(w http.ResponseWriter, r *http.Request) {
	var req metricQueryRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, err := s.store.GetMetricTotal(r.Context(), req.ScenarioID, req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"value": value})
}

func (s *HTTPServer) handleGetLastMetric(w http.ResponseWriter, r *http.Request) {
	var req metricQueryRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, err := s.store.GetLastMetric(r.Context(), req.ScenarioID, req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"value": value})
}

func (s *HTTPServer) handleGetMetricStatistics(w http.ResponseWriter, r *http.Request) {
	var req metricQueryRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.store.GetMetricStatistics(r.Context(), req.ScenarioID, req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleGetMetricRate(w http.ResponseWriter, r *http.Request) {
	var req metricQueryRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, err := s.store.GetMetricRate(r.Context(), req.ScenarioID, req.Name, req.SplitPoint)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"value": value})
}
