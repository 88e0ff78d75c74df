package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"cicadad/internal/backend"
	"cicadad/pkg/logging"

	"github.com/google/uuid"
)

// watchPollInterval is how often DockerLauncher polls a container's
// running state while waiting for it to exit. A var, not a const, so
// tests can shorten it.
var watchPollInterval = 2 * time.Second

const dockerSubsystem = "Launcher"

// ContainerRuntime is the Docker CLI-driving surface DockerLauncher needs;
// copied down from the teacher's internal/containerizer.ContainerRuntime
// interface and trimmed to the operations a worker launcher actually uses.
type ContainerRuntime interface {
	StartContainer(ctx context.Context, config ContainerConfig) (string, error)
	StopContainer(ctx context.Context, containerID string) error
	IsContainerRunning(ctx context.Context, containerID string) (bool, error)
	RemoveContainer(ctx context.Context, containerID string) error
}

// ContainerConfig mirrors the teacher's containerizer.ContainerConfig.
type ContainerConfig struct {
	Name       string
	Image      string
	Env        map[string]string
	Network    string
	Entrypoint []string
}

// dockerRuntime implements ContainerRuntime by shelling out to the docker
// CLI, adapted line-for-line from the teacher's
// internal/containerizer/docker.go DockerRuntime.
type dockerRuntime struct{}

// NewDockerRuntime checks that the docker CLI and daemon are reachable,
// exactly as the teacher's NewDockerRuntime does.
func NewDockerRuntime() (ContainerRuntime, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("docker command not found in PATH: %w", err)
	}
	if err := exec.Command("docker", "info").Run(); err != nil {
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return &dockerRuntime{}, nil
}

func (d *dockerRuntime) StartContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	args := []string{"run", "-d", "--name", cfg.Name}
	for k, v := range cfg.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	if cfg.Network != "" {
		args = append(args, "--network", cfg.Network)
	}
	args = append(args, cfg.Image)
	args = append(args, cfg.Entrypoint...)

	logging.Debug(dockerSubsystem, "starting container with command: docker %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to start container: %w\nOutput: %s", err, string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

func (d *dockerRuntime) StopContainer(ctx context.Context, containerID string) error {
	return exec.CommandContext(ctx, "docker", "stop", containerID).Run()
}

func (d *dockerRuntime) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	output, err := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Running}}", containerID).Output()
	if err != nil {
		return false, fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}
	return strings.TrimSpace(string(output)) == "true", nil
}

func (d *dockerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	return exec.CommandContext(ctx, "docker", "rm", "-f", containerID).Run()
}

// EnsureNetwork creates the named bridge network if it doesn't already
// exist, so worker containers and a controller-hosted backend can reach
// each other. Used by cmd's start-cluster command.
func EnsureNetwork(ctx context.Context, name string) error {
	inspect := exec.CommandContext(ctx, "docker", "network", "inspect", name)
	if err := inspect.Run(); err == nil {
		return nil
	}

	if output, err := exec.CommandContext(ctx, "docker", "network", "create", name).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create network %s: %w\nOutput: %s", name, err, string(output))
	}
	return nil
}

// RemoveNetwork removes the named network, used by cmd's stop-cluster
// command. Removal failures (e.g. containers still attached) are returned
// for the caller to report, not silently swallowed.
func RemoveNetwork(ctx context.Context, name string) error {
	if output, err := exec.CommandContext(ctx, "docker", "network", "rm", name).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to remove network %s: %w\nOutput: %s", name, err, string(output))
	}
	return nil
}

// DockerLauncher runs worker processes as Docker containers, one per
// scenario or user manager, on a fixed user-supplied network so they can
// reach the controller-hosted backend.
type DockerLauncher struct {
	store   backend.Store
	runtime ContainerRuntime
	network string
}

// NewDockerLauncher builds a Launcher targeting network.
func NewDockerLauncher(store backend.Store, runtime ContainerRuntime, network string) *DockerLauncher {
	return &DockerLauncher{store: store, runtime: runtime, network: network}
}

func (l *DockerLauncher) Launch(ctx context.Context, spec WorkerSpec) (string, error) {
	name := fmt.Sprintf("cicadad-worker-%s", uuid.NewString())

	containerID, err := l.runtime.StartContainer(ctx, ContainerConfig{
		Name:       name,
		Image:      spec.Image,
		Network:    l.network,
		Entrypoint: spec.Args(),
	})
	if err != nil {
		return "", fmt.Errorf("launcher: start container: %w", err)
	}

	if err := l.store.RegisterInstance(ctx, spec.TestID, containerID); err != nil {
		return "", fmt.Errorf("launcher: register instance: %w", err)
	}

	go l.watch(spec.TestID, containerID)

	return containerID, nil
}

// watch polls the container's running state and deregisters it from the
// backend once it exits, since docker gives no blocking "wait for exit"
// short of another CLI invocation kept open for the container's lifetime.
func (l *DockerLauncher) watch(testID backend.TestId, containerID string) {
	ctx := context.Background()
	for {
		running, err := l.runtime.IsContainerRunning(ctx, containerID)
		if err != nil || !running {
			if derr := l.store.DeregisterInstance(ctx, testID, containerID); derr != nil {
				logging.Error(dockerSubsystem, derr, "failed to deregister worker container %s", containerID)
			}
			return
		}

		time.Sleep(watchPollInterval)
	}
}

func (l *DockerLauncher) Stop(ctx context.Context, instanceID string) error {
	if err := l.runtime.StopContainer(ctx, instanceID); err != nil {
		return fmt.Errorf("launcher: stop container: %w", err)
	}
	return l.runtime.RemoveContainer(ctx, instanceID)
}

var _ Launcher = (*DockerLauncher)(nil)
