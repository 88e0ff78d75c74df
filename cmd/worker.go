package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/config"
	"cicadad/internal/launcher"
	"cicadad/internal/runtime"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/spf13/cobra"
)

// backendPingAttempts/backendPingInitialWait bound how long a worker process
// waits for the controller's backend server to come up before giving up,
// matching the original implementation's wait_for_setup retry loop
// (_examples/original_source/cicadad/core/engine.py).
const (
	backendPingAttempts     = 10
	backendPingInitialWait  = 200 * time.Millisecond
	backendPingBackoffRatio = 1.5
)

// newWorkerCmd builds the hidden `worker` command tree: run-scenario and
// run-user, the two entry points a Launcher re-enters a worker process
// through (spec.md §6). Never invoked directly by a user; only by a
// provisioned worker process's command line (launcher.WorkerSpec.Args).
func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Internal worker entry points, not for direct use",
		Hidden: true,
	}

	cmd.AddCommand(newRunScenarioCmd())
	cmd.AddCommand(newRunUserCmd())
	return cmd
}

func newRunScenarioCmd() *cobra.Command {
	var name, testID, scenarioID, backendAddress, contextBlob string
	var mode, image, network, namespace, runtimePath string

	cmd := &cobra.Command{
		Use:    "run-scenario",
		Short:  "Run one scenario's Load Model in this worker process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backend.NewHTTPClient("http://" + backendAddress)
			if err := backend.Retry(cmd.Context(), backendPingAttempts, backendPingInitialWait, backendPingBackoffRatio, client.Ping); err != nil {
				return fmt.Errorf("worker run-scenario: %w", err)
			}

			launchManager, err := newManagerLauncher(client, managerLauncherConfig{
				mode:           config.SchedulingMode(mode),
				name:           name,
				backendAddress: backendAddress,
				image:          image,
				network:        network,
				namespace:      namespace,
				runtimePath:    runtimePath,
			})
			if err != nil {
				return fmt.Errorf("worker run-scenario: %w", err)
			}

			result, err := testEngine.RunScenario(cmd.Context(), client,
				backend.TestId(testID), backend.ScenarioId(scenarioID), name, contextBlob, launchManager)
			if err != nil {
				return fmt.Errorf("worker run-scenario: %w", err)
			}
			if result.Exception != nil {
				return fmt.Errorf("worker run-scenario: scenario %q failed: %s", name, *result.Exception)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "scenario name")
	flags.StringVar(&testID, "test-id", "", "test id")
	flags.StringVar(&scenarioID, "scenario-id", "", "scenario id")
	flags.StringVar(&backendAddress, "backend-address", "", "controller backend address (host:port)")
	flags.StringVar(&contextBlob, "context", "", "base64-encoded scenario context")
	flags.StringVar(&mode, "mode", string(config.DefaultSchedulingMode), "scheduling mode, for launching run-user workers")
	flags.StringVar(&image, "image", "", "worker image (DOCKER/KUBE modes)")
	flags.StringVar(&network, "network", "", "Docker network (DOCKER mode)")
	flags.StringVar(&namespace, "namespace", "", "Kubernetes namespace (KUBE mode)")
	flags.StringVar(&runtimePath, "runtime-path", "", "directory holding the cicadad binary (LOCAL mode)")

	return cmd
}

func newRunUserCmd() *cobra.Command {
	var name, managerID, backendAddress, contextBlob string

	cmd := &cobra.Command{
		Use:    "run-user",
		Short:  "Run one user manager's scheduler loop in this worker process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backend.NewHTTPClient("http://" + backendAddress)
			if err := backend.Retry(cmd.Context(), backendPingAttempts, backendPingInitialWait, backendPingBackoffRatio, client.Ping); err != nil {
				return fmt.Errorf("worker run-user: %w", err)
			}

			if err := testEngine.RunUser(cmd.Context(), client, backend.UserManagerId(managerID), name, contextBlob); err != nil {
				return fmt.Errorf("worker run-user: %w", err)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "scenario name")
	flags.StringVar(&managerID, "manager-id", "", "user manager id")
	flags.StringVar(&backendAddress, "backend-address", "", "controller backend address (host:port)")
	flags.StringVar(&contextBlob, "context", "", "base64-encoded scenario context")

	return cmd
}

// managerLauncherConfig carries the fields newManagerLauncher needs to build
// a Launcher for run-user workers from inside an already-running
// run-scenario worker process, mirroring internal/app/launch_spec.go's
// controller-side launchSpec/buildLauncherOptions pair one level down.
type managerLauncherConfig struct {
	mode           config.SchedulingMode
	name           string
	backendAddress string
	image          string
	network        string
	namespace      string
	runtimePath    string
}

// newManagerLauncher builds the runtime.ManagerLaunch callback StartUsers
// calls to provision a run-user worker per new user manager. Grounded on
// the original implementation's ScenarioCommands.start_users spawning a
// container per user manager
// (_examples/original_source/src/cicadad/core/commands.py).
func newManagerLauncher(store backend.Store, cfg managerLauncherConfig) (runtime.ManagerLaunch, error) {
	opts := launcher.Options{
		Network:     cfg.network,
		Namespace:   cfg.namespace,
		RuntimePath: cfg.runtimePath,
	}

	if cfg.mode == config.ModeKube {
		restConfig, err := loadWorkerKubeConfig()
		if err != nil {
			return nil, err
		}
		kubeClient, err := launcher.NewKubeClient(restConfig)
		if err != nil {
			return nil, err
		}
		opts.KubeClient = kubeClient
	}

	if opts.RuntimePath == "" {
		if exe, err := os.Executable(); err == nil {
			opts.RuntimePath = filepath.Dir(exe)
		}
	}

	lnch, err := launcher.New(cfg.mode, store, opts)
	if err != nil {
		return nil, fmt.Errorf("build run-user launcher: %w", err)
	}

	return func(managerID backend.UserManagerId, contextBlob string) error {
		spec := launcher.WorkerSpec{
			Command:        launcher.CommandRunUser,
			Name:           cfg.name,
			ManagerID:      managerID,
			ContextBlob:    contextBlob,
			BackendAddress: cfg.backendAddress,
			Image:          cfg.image,
			Network:        cfg.network,
			Namespace:      cfg.namespace,
			RuntimePath:    cfg.runtimePath,
		}

		_, err := lnch.Launch(context.Background(), spec)
		return err
	}, nil
}

// loadWorkerKubeConfig mirrors internal/app/bootstrap.go's loadKubeConfig:
// in-cluster config first (a run-scenario worker in KUBE mode is itself a
// pod), falling back to KUBECONFIG/~/.kube/config for local testing.
func loadWorkerKubeConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("worker: resolve kubeconfig path: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("worker: load kubeconfig from %s: %w", kubeconfig, err)
	}
	return cfg, nil
}
