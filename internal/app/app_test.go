package app

import (
	"context"
	"testing"
	"time"

	"cicadad/internal/config"
	"cicadad/internal/engine"
	"cicadad/internal/scenario"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunOptions() config.RunOptions {
	opts := config.DefaultRunOptions()
	opts.Mode = config.ModeLocal
	opts.BackendLocation = "/tmp"
	opts.BackendAddress = "127.0.0.1:0"
	opts.TestTimeout = 5 * time.Second
	opts.TestStartTimeout = time.Second
	opts.NoCleanup = true // no subprocess actually launched in these tests
	return opts
}

func TestNewApplicationStartsABackendServerEvenInLocalMode(t *testing.T) {
	eng := engine.New()
	cfg := NewConfig(eng, testRunOptions(), false, true)

	a, err := NewApplication(cfg)
	require.NoError(t, err)
	assert.NotNil(t, a.server)
	assert.NoError(t, a.Close(context.Background()))
}

func TestNewApplicationRejectsInvalidRunOptions(t *testing.T) {
	opts := testRunOptions()
	opts.TestTimeout = 0

	cfg := NewConfig(engine.New(), opts, false, true)
	_, err := NewApplication(cfg)
	assert.Error(t, err)
}

func TestApplicationRunWithNoScenariosReturnsEmptyResults(t *testing.T) {
	eng := engine.New()
	cfg := NewConfig(eng, testRunOptions(), false, true)

	a, err := NewApplication(cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	result, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.False(t, result.Failed)
	assert.NotEmpty(t, result.Report)
}

func TestApplicationRunFailsWhenLauncherCannotStartAWorker(t *testing.T) {
	eng := engine.New()
	eng.AddScenario(scenario.NewBuilder("checkout", func(ctx context.Context) (any, error) { return nil, nil }).Build())

	cfg := NewConfig(eng, testRunOptions(), false, true)
	a, err := NewApplication(cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	// LocalLauncher.Launch execs a real "cicadad" binary that does not
	// exist in the test environment, so provisioning the scenario's
	// worker process fails synchronously and Run surfaces that error
	// instead of returning a result.
	_, err = a.Run(context.Background())
	assert.Error(t, err)
}
