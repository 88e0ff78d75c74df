// Package launcher provisions worker processes that run scenario/user code
// outside the controller: a LOCAL subprocess, a DOCKER container, or a KUBE
// pod, one per scheduling mode (spec.md §6). Grounded on the teacher's
// internal/containerizer package (ContainerRuntime interface, DockerRuntime
// CLI-driving implementation) generalized from "MCP server process" to
// "cicadad worker process", plus the teacher's
// internal/client/kubernetes_client.go client-construction pattern, adapted
// from controller-runtime to a plain client-go clientset for the KUBE
// implementation (no reconciliation loop needed, only Pod create/get/delete).
package launcher

import (
	"context"
	"fmt"

	"cicadad/internal/backend"
	"cicadad/internal/config"
)

// WorkerCommand is one of the hidden subcommands the launcher invokes
// inside a provisioned worker process (spec.md §6).
type WorkerCommand string

const (
	// CommandRunTest is reserved for a standalone test-runner worker
	// process; unused while internal/app drives the Test Runner
	// in-process inside the controller (spec.md §5).
	CommandRunTest     WorkerCommand = "run-test"
	CommandRunScenario WorkerCommand = "run-scenario"
	CommandRunUser     WorkerCommand = "run-user"
)

// WorkerSpec describes one worker process to provision. Exactly the
// identifiers relevant to Command are populated; the rest are zero.
type WorkerSpec struct {
	Command     WorkerCommand
	Name        string // scenario name, needed by run-scenario/run-user to look it up in the Engine
	TestID      backend.TestId
	ScenarioID  backend.ScenarioId
	ManagerID   backend.UserManagerId
	ContextBlob string // base64-encoded JSON, spec.md §6's context encoding

	Mode           config.SchedulingMode // carried so a run-scenario worker can launch run-user workers in the same mode
	BackendAddress string
	Image          string // DOCKER/KUBE
	Network        string // DOCKER
	Namespace      string // KUBE
	RuntimePath    string // LOCAL: directory holding the cicadad binary
	TestFilePath   string // LOCAL: path to the test definition file
	LogDir         string // LOCAL: directory to write worker stdout/stderr
}

// Args renders the worker command line: `cicadad worker <command> <ids...>
// <contextBlob>`, matching spec.md §6's "each taking identifiers and a
// base64-encoded JSON context string". A run-scenario invocation also
// carries its scheduling mode and mode-specific settings, so that worker
// process can build its own Launcher for any run-user workers it spawns.
func (s WorkerSpec) Args() []string {
	args := []string{"worker", string(s.Command)}
	if s.Name != "" {
		args = append(args, "--name", s.Name)
	}
	if s.TestID != "" {
		args = append(args, "--test-id", string(s.TestID))
	}
	if s.ScenarioID != "" {
		args = append(args, "--scenario-id", string(s.ScenarioID))
	}
	if s.ManagerID != "" {
		args = append(args, "--manager-id", string(s.ManagerID))
	}
	if s.BackendAddress != "" {
		args = append(args, "--backend-address", s.BackendAddress)
	}
	if s.Command == CommandRunScenario {
		args = append(args, "--mode", string(s.Mode))
		if s.Image != "" {
			args = append(args, "--image", s.Image)
		}
		if s.Network != "" {
			args = append(args, "--network", s.Network)
		}
		if s.Namespace != "" {
			args = append(args, "--namespace", s.Namespace)
		}
		if s.RuntimePath != "" {
			args = append(args, "--runtime-path", s.RuntimePath)
		}
	}
	args = append(args, "--context", s.ContextBlob)
	return args
}

// Launcher provisions and tears down one worker process per call. Every
// mode's implementation registers the worker's liveness with the backend
// (backend.Store.RegisterInstance/DeregisterInstance) so the Test Runner's
// CheckTestInstance calls (spec.md §4.8) reflect real process state.
type Launcher interface {
	// Launch starts a worker process for spec and returns an instance id
	// suitable for backend.Store.CheckTestInstance.
	Launch(ctx context.Context, spec WorkerSpec) (instanceID string, err error)

	// Stop tears down a previously launched worker.
	Stop(ctx context.Context, instanceID string) error
}

// New builds the Launcher matching mode.
func New(mode config.SchedulingMode, store backend.Store, opts Options) (Launcher, error) {
	switch mode {
	case config.ModeLocal:
		return NewLocalLauncher(store, opts.RuntimePath), nil
	case config.ModeDocker:
		runtime, err := NewDockerRuntime()
		if err != nil {
			return nil, fmt.Errorf("launcher: docker: %w", err)
		}
		return NewDockerLauncher(store, runtime, opts.Network), nil
	case config.ModeKube:
		return NewKubeLauncher(store, opts.KubeClient, opts.Namespace)
	default:
		return nil, fmt.Errorf("launcher: unsupported scheduling mode %q", mode)
	}
}

// Options carries the mode-specific dependencies New needs to build a
// Launcher; only the fields relevant to the requested mode are read.
type Options struct {
	RuntimePath string
	Network     string
	Namespace   string
	KubeClient  KubeClient
}
