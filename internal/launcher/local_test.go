package launcher

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"cicadad/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCommand and TestHelperProcess below replace the real cicadad binary
// with a re-exec of this test binary, matching the teacher's
// internal/containerizer/docker_test.go mocking trick.
func mockCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	os.Exit(0)
}

func newTestStoreAndTest(t *testing.T) (*backend.MemoryStore, backend.TestId) {
	t.Helper()
	store := backend.NewMemoryStore()
	testID, err := store.CreateTest(context.Background(), nil, "", nil, nil)
	require.NoError(t, err)
	return store, testID
}

func TestLocalLauncherRegistersAndDeregistersInstance(t *testing.T) {
	newCommand = mockCommand
	defer func() { newCommand = exec.CommandContext }()

	store, testID := newTestStoreAndTest(t)
	launcher := NewLocalLauncher(store, "")

	instanceID, err := launcher.Launch(context.Background(), WorkerSpec{
		Command:     CommandRunScenario,
		TestID:      testID,
		ContextBlob: "e30=",
	})
	require.NoError(t, err)
	require.NotEmpty(t, instanceID)

	running, err := store.CheckTestInstance(context.Background(), testID, instanceID)
	require.NoError(t, err)
	assert.True(t, running)

	assert.Eventually(t, func() bool {
		running, _ := store.CheckTestInstance(context.Background(), testID, instanceID)
		return !running
	}, 2*time.Second, 10*time.Millisecond, "instance should deregister once the helper process exits")
}

func TestWorkerSpecArgsIncludesIdentifiers(t *testing.T) {
	spec := WorkerSpec{
		Command:        CommandRunUser,
		TestID:         "t1",
		ScenarioID:     "s1",
		ManagerID:      "m1",
		BackendAddress: "http://backend:8283",
		ContextBlob:    "e30=",
	}

	args := spec.Args()
	assert.Contains(t, args, "run-user")
	assert.Contains(t, args, "t1")
	assert.Contains(t, args, "s1")
	assert.Contains(t, args, "m1")
	assert.Contains(t, args, "http://backend:8283")
	assert.Contains(t, args, "e30=")
}
