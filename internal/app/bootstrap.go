package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cicadad/internal/backend"
	"cicadad/internal/config"
	"cicadad/internal/launcher"
	"cicadad/internal/metrics"
	"cicadad/pkg/logging"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const subsystem = "App"

// Application is the controller process: it owns the backend Store, the
// HTTP server exposing it to worker processes, the Launcher that
// provisions those worker processes, and the Engine a test file registered
// its scenarios onto. One Application runs exactly one test from start to
// finish, mirroring the original implementation's cli.run() (grounded on
// _examples/original_source/cicadad/core/cli.py), generalized from its
// "spawn a separate run-test worker and poll its events" flow to
// spec.md §5's "drive the Test Runner in-process" design.
type Application struct {
	config *Config

	store    backend.Store
	server   *backend.HTTPServer
	launcher launcher.Launcher
	registry *metrics.Registry
}

// NewApplication wires the backend store, HTTP server, launcher, and
// metrics registry for cfg.Run's scheduling mode. The HTTP server always
// starts, regardless of mode: every worker process (LOCAL subprocess,
// DOCKER container, or KUBE pod) is a separate OS process from the
// controller and can only reach the Store over the backend's RPC surface
// (spec.md §5), never through shared memory.
func NewApplication(cfg *Config) (*Application, error) {
	logLevel := logging.LevelInfo
	if cfg.Debug {
		logLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.InitForCLI(logLevel, logOutput)

	if err := cfg.Run.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid run options: %w", err)
	}

	store := backend.NewMemoryStore()
	registry := metrics.NewRegistry()

	server := backend.NewHTTPServer(store, cfg.Run.BackendAddress)
	server.MountMetrics(registry.Handler())
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("app: start backend server: %w", err)
	}
	logging.Info(subsystem, "backend server listening on %s", cfg.Run.BackendAddress)

	launcherOpts, err := buildLauncherOptions(cfg.Run)
	if err != nil {
		_ = server.Stop(context.Background())
		return nil, fmt.Errorf("app: build launcher options: %w", err)
	}

	lnch, err := launcher.New(cfg.Run.Mode, store, launcherOpts)
	if err != nil {
		_ = server.Stop(context.Background())
		return nil, fmt.Errorf("app: build launcher: %w", err)
	}

	return &Application{
		config:   cfg,
		store:    store,
		server:   server,
		launcher: lnch,
		registry: registry,
	}, nil
}

// buildLauncherOptions resolves the mode-specific dependencies launcher.New
// needs. KUBE mode's rest.Config follows client-go's standard in-cluster
// fallback, the same resolution order the teacher's kubernetes client
// construction in internal/client used before controller-runtime's own
// config loading took over (here reduced to the plain client-go loader
// since KubeLauncher needs nothing heavier than a clientset).
func buildLauncherOptions(opts config.RunOptions) (launcher.Options, error) {
	switch opts.Mode {
	case config.ModeLocal:
		runtimePath := opts.BackendLocation
		if runtimePath == "" {
			if exe, err := os.Executable(); err == nil {
				runtimePath = filepath.Dir(exe)
			}
		}
		return launcher.Options{RuntimePath: runtimePath}, nil

	case config.ModeDocker:
		return launcher.Options{Network: opts.Network}, nil

	case config.ModeKube:
		restConfig, err := loadKubeConfig()
		if err != nil {
			return launcher.Options{}, err
		}
		kubeClient, err := launcher.NewKubeClient(restConfig)
		if err != nil {
			return launcher.Options{}, err
		}
		return launcher.Options{Namespace: opts.Namespace, KubeClient: kubeClient}, nil

	default:
		return launcher.Options{}, fmt.Errorf("app: unsupported scheduling mode %q", opts.Mode)
	}
}

func loadKubeConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("app: resolve kubeconfig path: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("app: load kubeconfig from %s: %w", kubeconfig, err)
	}
	return cfg, nil
}

// Close releases resources NewApplication acquired: the backend HTTP
// server.
func (a *Application) Close(ctx context.Context) error {
	return a.server.Stop(ctx)
}
