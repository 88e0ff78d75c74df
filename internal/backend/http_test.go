package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer wires a MemoryStore behind the same routes HTTPServer
// registers, via httptest.Server so tests avoid binding a real port.
func newTestServer(t *testing.T) (*httptest.Server, *HTTPClient) {
	t.Helper()

	store := NewMemoryStore()
	srv := NewHTTPServer(store, "")
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts, NewHTTPClient(ts.URL)
}

func TestHTTPClientPingSucceedsAgainstLiveServer(t *testing.T) {
	_, client := newTestServer(t)

	err := client.Ping(context.Background())
	assert.NoError(t, err)
}

func TestHTTPClientPingFailsAgainstUnreachableServer(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := client.Ping(ctx)
	assert.Error(t, err)
}

func TestRetryWithPingWaitsForServerToComeUp(t *testing.T) {
	ts, client := newTestServer(t)

	// Ping already succeeds, so Retry returns on its first attempt; this
	// exercises Retry and Ping together the way a launcher would.
	err := Retry(context.Background(), 3, time.Millisecond, 2, client.Ping)
	require.NoError(t, err)

	ts.Close()
	err = Retry(context.Background(), 2, time.Millisecond, 2, client.Ping)
	assert.Error(t, err)
}

func TestHTTPClientRoundTripsTestAndScenarioLifecycle(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	testID, err := client.CreateTest(ctx, nil, "backend:8283", []string{"smoke"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, testID)

	scenarioID, err := client.CreateScenario(ctx, testID, "checkout", "", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, scenarioID)

	managerIDs, err := client.CreateUsers(ctx, testID, scenarioID, 5)
	require.NoError(t, err)
	require.Len(t, managerIDs, 1)

	require.NoError(t, client.AddMetric(ctx, scenarioID, "latency_ms", 12.5))
	require.NoError(t, client.AddMetric(ctx, scenarioID, "latency_ms", 7.5))

	total, err := client.GetMetricTotal(ctx, scenarioID, "latency_ms")
	require.NoError(t, err)
	assert.Equal(t, 20.0, total)

	last, err := client.GetLastMetric(ctx, scenarioID, "latency_ms")
	require.NoError(t, err)
	assert.Equal(t, 7.5, last)

	result := ScenarioResult{ID: scenarioID, Output: JSONValue("done"), Succeeded: 1}
	require.NoError(t, client.SetScenarioResult(ctx, result))

	moved, err := client.MoveScenarioResult(ctx, scenarioID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Succeeded)

	_, err = client.MoveScenarioResult(ctx, scenarioID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPClientCheckTestInstanceRoundTrip(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	testID, err := client.CreateTest(ctx, nil, "", nil, nil)
	require.NoError(t, err)

	running, err := client.CheckTestInstance(ctx, testID, "instance-1")
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, client.RegisterInstance(ctx, testID, "instance-1"))

	running, err = client.CheckTestInstance(ctx, testID, "instance-1")
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, client.DeregisterInstance(ctx, testID, "instance-1"))

	running, err = client.CheckTestInstance(ctx, testID, "instance-1")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestHTTPClientUnknownScenarioReturnsNotFound(t *testing.T) {
	_, client := newTestServer(t)

	_, err := client.CreateScenario(context.Background(), "missing-test", "checkout", "", 1, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
