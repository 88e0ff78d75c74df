package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient is a Store implementation that talks to an HTTPServer over
// JSON-over-HTTP. Grounded on the teacher's muster_client.go shape: a base
// address, a configured http.Client, and one typed method per operation.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client targeting baseURL (e.g. "http://host:8283").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) call(ctx context.Context, path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("backend: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("backend: request %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("backend: %s: %w", path, ErrNotFound)
	}
	if httpResp.StatusCode != http.StatusOK {
		var msg bytes.Buffer
		_, _ = msg.ReadFrom(httpResp.Body)
		return fmt.Errorf("backend: %s: status %d: %s", path, httpResp.StatusCode, msg.String())
	}

	if resp == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("backend: decode response from %s: %w", path, err)
	}
	return nil
}

// Ping reports whether the backend's HTTP server is up and answering,
// distinct from any individual RPC's ErrNotFound (a legitimate "up but no
// such record" response). Intended for use with Retry while a launcher
// waits for a freshly-provisioned backend to come online.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("backend: build health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: health check: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) CreateTest(ctx context.Context, schedulingMetadata []byte, backendAddr string, tags []string, env map[string]string) (TestId, error) {
	req := createTestRequest{SchedulingMetadata: schedulingMetadata, BackendAddr: backendAddr, Tags: tags, Env: env}
	var resp struct {
		TestId TestId `json:"testId"`
	}
	if err := c.call(ctx, "/createTest", req, &resp); err != nil {
		return "", err
	}
	return resp.TestId, nil
}

func (c *HTTPClient) CreateScenario(ctx context.Context, testID TestId, name string, contextBlob string, usersPerInstance int, tags []string) (ScenarioId, error) {
	req := createScenarioRequest{TestID: testID, Name: name, ContextBlob: contextBlob, UsersPerInstance: usersPerInstance, Tags: tags}
	var resp struct {
		ScenarioId ScenarioId `json:"scenarioId"`
	}
	if err := c.call(ctx, "/createScenario", req, &resp); err != nil {
		return "", err
	}
	return resp.ScenarioId, nil
}

func (c *HTTPClient) CreateUsers(ctx context.Context, testID TestId, scenarioID ScenarioId, amount int) ([]UserManagerId, error) {
	req := createUsersRequest{TestID: testID, ScenarioID: scenarioID, Amount: amount}
	var resp struct {
		ManagerIds []UserManagerId `json:"managerIds"`
	}
	if err := c.call(ctx, "/createUsers", req, &resp); err != nil {
		return nil, err
	}
	return resp.ManagerIds, nil
}

func (c *HTTPClient) StopUsers(ctx context.Context, scenarioID ScenarioId, amount int) error {
	req := stopUsersRequest{ScenarioID: scenarioID, Amount: amount}
	return c.call(ctx, "/stopUsers", req, nil)
}

func (c *HTTPClient) DistributeWork(ctx context.Context, scenarioID ScenarioId, amount int) error {
	req := distributeWorkRequest{ScenarioID: scenarioID, Amount: amount}
	return c.call(ctx, "/distributeWork", req, nil)
}

func (c *HTTPClient) GetUserWork(ctx context.Context, managerID UserManagerId) (int, error) {
	req := managerIDRequest{ManagerID: managerID}
	var resp struct {
		Work int `json:"work"`
	}
	if err := c.call(ctx, "/getUserWork", req, &resp); err != nil {
		return 0, err
	}
	return resp.Work, nil
}

func (c *HTTPClient) AddUserEvent(ctx context.Context, scenarioID ScenarioId, kind string, payload map[string]interface{}) error {
	req := addUserEventRequest{ScenarioID: scenarioID, Kind: kind, Payload: payload}
	return c.call(ctx, "/addUserEvent", req, nil)
}

func (c *HTTPClient) GetUserEvents(ctx context.Context, managerID UserManagerId, kind string) ([]UserEvent, error) {
	req := getUserEventsRequest{ManagerID: managerID, Kind: kind}
	var resp struct {
		Events []UserEvent `json:"events"`
	}
	if err := c.call(ctx, "/getUserEvents", req, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) AddUserResults(ctx context.Context, managerID UserManagerId, results []Result) error {
	req := addUserResultsRequest{ManagerID: managerID, Results: results}
	return c.call(ctx, "/addUserResults", req, nil)
}

func (c *HTTPClient) MoveUserResults(ctx context.Context, scenarioID ScenarioId, limit int) ([]Result, error) {
	req := moveUserResultsRequest{ScenarioID: scenarioID, Limit: limit}
	var resp struct {
		Results []Result `json:"results"`
	}
	if err := c.call(ctx, "/moveUserResults", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *HTTPClient) SetScenarioResult(ctx context.Context, result ScenarioResult) error {
	return c.call(ctx, "/setScenarioResult", result, nil)
}

func (c *HTTPClient) MoveScenarioResult(ctx context.Context, scenarioID ScenarioId) (ScenarioResult, error) {
	req := scenarioIDRequest{ScenarioID: scenarioID}
	var resp ScenarioResult
	if err := c.call(ctx, "/moveScenarioResult", req, &resp); err != nil {
		return ScenarioResult{}, err
	}
	return resp, nil
}

func (c *HTTPClient) AddTestEvent(ctx context.Context, testID TestId, event TestEvent) error {
	req := addTestEventRequest{TestID: testID, Event: event}
	return c.call(ctx, "/addTestEvent", req, nil)
}

func (c *HTTPClient) GetTestEvents(ctx context.Context, testID TestId) ([]TestEvent, error) {
	req := testIDRequest{TestID: testID}
	var resp struct {
		Events []TestEvent `json:"events"`
	}
	if err := c.call(ctx, "/getTestEvents", req, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) CheckTestInstance(ctx context.Context, testID TestId, instanceID string) (bool, error) {
	req := checkTestInstanceRequest{TestID: testID, InstanceID: instanceID}
	var resp struct {
		Running bool `json:"running"`
	}
	if err := c.call(ctx, "/checkTestInstance", req, &resp); err != nil {
		return false, err
	}
	return resp.Running, nil
}

func (c *HTTPClient) CleanTestInstances(ctx context.Context, testID TestId) error {
	req := testIDRequest{TestID: testID}
	return c.call(ctx, "/cleanTestInstances", req, nil)
}

func (c *HTTPClient) RegisterInstance(ctx context.Context, testID TestId, instanceID string) error {
	req := checkTestInstanceRequest{TestID: testID, InstanceID: instanceID}
	return c.call(ctx, "/registerInstance", req, nil)
}

func (c *HTTPClient) DeregisterInstance(ctx context.Context, testID TestId, instanceID string) error {
	req := checkTestInstanceRequest{TestID: testID, InstanceID: instanceID}
	return c.call(ctx, "/deregisterInstance", req, nil)
}

func (c *HTTPClient) AddMetric(ctx context.Context, scenarioID ScenarioId, name string, value float64) error {
	req := addMetricRequest{ScenarioID: scenarioID, Name: name, Value: value}
	return c.call(ctx, "/addMetric", req, nil)
}

func (c *HTTPClient) GetMetricTotal(ctx context.Context, scenarioID ScenarioId, name string) (float64, error) {
	return c.queryMetric(ctx, "/getMetricTotal", scenarioID, name, 0)
}

func (c *HTTPClient) GetLastMetric(ctx context.Context, scenarioID ScenarioId, name string) (float64, error) {
	return c.queryMetric(ctx, "/getLastMetric", scenarioID, name, 0)
}

func (c *HTTPClient) GetMetricRate(ctx context.Context, scenarioID ScenarioId, name string, splitPoint int) (float64, error) {
	return c.queryMetric(ctx, "/getMetricRate", scenarioID, name, splitPoint)
}

func (c *HTTPClient) GetMetricStatistics(ctx context.Context, scenarioID ScenarioId, name string) (MetricStatistics, error) {
	req := metricQueryRequest{ScenarioID: scenarioID, Name: name}
	var resp MetricStatistics
	if err := c.call(ctx, "/getMetricStatistics", req, &resp); err != nil {
		return MetricStatistics{}, err
	}
	return resp, nil
}

func (c *HTTPClient) queryMetric(ctx context.Context, path string, scenarioID ScenarioId, name string, splitPoint int) (float64, error) {
	req := metricQueryRequest{ScenarioID: scenarioID, Name: name, SplitPoint: splitPoint}
	var resp struct {
		Value float64 `json:"value"`
	}
	if err := c.call(ctx, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

var _ Store = (*HTTPClient)(nil)
