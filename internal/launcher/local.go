package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"cicadad/internal/backend"
	"cicadad/pkg/logging"

	"github.com/google/uuid"
)

const localSubsystem = "Launcher"

// newCommand is a variable so tests can substitute a helper-process mock,
// matching the teacher's execCommandContext trick in
// internal/containerizer/docker.go.
var newCommand = exec.CommandContext

// LocalLauncher runs worker processes as direct child processes of the
// controller, all sharing LOCAL mode's backend.MemoryStore address space
// for everything except the actual OS process boundary. Grounded on the
// teacher's DockerRuntime (internal/containerizer/docker.go): os/exec to
// spawn, a generated id to track, stdio wired to files instead of the
// parent's own stdout so concurrent workers don't interleave.
type LocalLauncher struct {
	store       backend.Store
	runtimePath string

	mu        sync.Mutex
	processes map[string]*exec.Cmd
}

// NewLocalLauncher builds a launcher that runs the cicadad binary found at
// runtimePath (or on PATH if empty) as worker subprocesses.
func NewLocalLauncher(store backend.Store, runtimePath string) *LocalLauncher {
	return &LocalLauncher{store: store, runtimePath: runtimePath, processes: make(map[string]*exec.Cmd)}
}

func (l *LocalLauncher) binaryPath() string {
	if l.runtimePath == "" {
		return "cicadad"
	}
	return filepath.Join(l.runtimePath, "cicadad")
}

// Launch starts the worker subprocess and registers it with the backend
// once it has actually started, so a Test Runner poll that races the
// goroutine won't wrongly see "not running".
func (l *LocalLauncher) Launch(ctx context.Context, spec WorkerSpec) (string, error) {
	instanceID := uuid.NewString()

	cmd := newCommand(ctx, l.binaryPath(), spec.Args()...)
	cmd.Env = os.Environ()

	if spec.LogDir != "" {
		logPath := filepath.Join(spec.LogDir, instanceID+".log")
		logFile, err := os.Create(logPath)
		if err != nil {
			return "", fmt.Errorf("launcher: create log file: %w", err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("launcher: start worker: %w", err)
	}

	l.mu.Lock()
	l.processes[instanceID] = cmd
	l.mu.Unlock()

	if err := l.store.RegisterInstance(ctx, spec.TestID, instanceID); err != nil {
		return "", fmt.Errorf("launcher: register instance: %w", err)
	}

	go l.awaitExit(spec.TestID, instanceID, cmd)

	return instanceID, nil
}

func (l *LocalLauncher) awaitExit(testID backend.TestId, instanceID string, cmd *exec.Cmd) {
	err := cmd.Wait()

	l.mu.Lock()
	delete(l.processes, instanceID)
	l.mu.Unlock()

	if err != nil {
		logging.Debug(localSubsystem, "worker %s exited: %s", instanceID, err)
	}

	if derr := l.store.DeregisterInstance(context.Background(), testID, instanceID); derr != nil {
		logging.Error(localSubsystem, derr, "failed to deregister worker instance %s", instanceID)
	}
}

// Stop kills a still-running worker subprocess.
func (l *LocalLauncher) Stop(ctx context.Context, instanceID string) error {
	l.mu.Lock()
	cmd, ok := l.processes[instanceID]
	l.mu.Unlock()

	if !ok || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

var _ Launcher = (*LocalLauncher)(nil)
