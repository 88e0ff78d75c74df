package cmd

import (
	"os"

	"cicadad/internal/engine"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (invalid flags, provisioning
	// failure, or a backend it couldn't reach).
	ExitCodeError = 1
	// ExitCodeTestFailed indicates the run command completed but the test
	// itself failed (a scenario raised and --no-exit-unsuccessful wasn't set).
	ExitCodeTestFailed = 2
)

// testEngine holds the scenarios a test binary registered before calling
// Execute. `run` drives the Test Runner over it; the hidden `worker`
// subcommands look a single scenario up in it by name.
var testEngine *engine.Engine

// rootCmd is cicadad's entry point: a distributed load-testing CLI that
// schedules scenarios declared against testEngine across LOCAL, DOCKER or
// KUBE worker processes.
var rootCmd = &cobra.Command{
	Use:   "cicadad",
	Short: "Run distributed load tests against scenarios declared in this binary",
	Long: `cicadad schedules the scenarios a test binary registers onto
internal/engine across worker processes (local subprocesses, Docker
containers, or Kubernetes pods) and reports pass/fail results and metrics
once every scenario completes.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, normally injected at
// build time via -ldflags.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI against eng's registered scenarios. Called once by
// a test binary's main(), after it has finished registering scenarios.
func Execute(eng *engine.Engine) {
	testEngine = eng

	rootCmd.SetVersionTemplate(`{{printf "cicadad version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		if _, ok := err.(testFailedError); ok {
			os.Exit(ExitCodeTestFailed)
		}
		os.Exit(ExitCodeError)
	}
}

// testFailedError marks an error that should exit ExitCodeTestFailed
// rather than ExitCodeError: the run completed, but the test itself
// failed.
type testFailedError struct{ msg string }

func (e testFailedError) Error() string { return e.msg }

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("silent", false, "suppress log output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newStartClusterCmd())
	rootCmd.AddCommand(newStopClusterCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newWorkerCmd())
}
