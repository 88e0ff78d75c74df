package cmd

import (
	"fmt"
	"strings"
	"time"

	"cicadad/internal/app"
	"cicadad/internal/config"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// newRunCmd builds the `run` command: parse flags into a config.RunOptions,
// bootstrap an internal/app.Application around testEngine, drive it to
// completion, and print the batch report. Grounded on cli.py's run command
// (_examples/original_source/cicadad/core/cli.py), minus its live Rich TUI
// panel — spec.md §5 runs the Test Runner in-process, so run() here blocks
// on a.Run instead of polling.
func newRunCmd() *cobra.Command {
	opts := config.DefaultRunOptions()
	var envFlags []string
	var envFile string
	var configFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scenarios registered in this test binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Env = parseEnvFlags(envFlags)
			if err := opts.LoadEnvFile(envFile); err != nil {
				return err
			}

			if configFile != "" {
				fc, err := config.LoadFileConfig(configFile)
				if err != nil {
					return fmt.Errorf("run: %w", err)
				}
				fc.ApplyTo(&opts, cmd.Flags().Changed)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			silent, _ := cmd.Flags().GetBool("silent")

			cfg := app.NewConfig(testEngine, opts, debug, silent)

			application, err := app.NewApplication(cfg)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			defer application.Close(cmd.Context())

			var sp *spinner.Spinner
			if !silent {
				sp = spinner.New(spinner.CharSets[9], 100*time.Millisecond)
				sp.Suffix = " running test..."
				sp.Start()
			}

			result, err := application.Run(cmd.Context())

			if sp != nil {
				sp.Stop()
			}
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Report)

			if result.Failed {
				return testFailedError{msg: "test failed"}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.TestFile, "test-file", opts.TestFile, "path to the test file (informational, recorded in scheduling metadata)")
	flags.StringVar(&opts.Image, "image", "", "worker image (DOCKER/KUBE modes)")
	flags.StringVar(&opts.BuildPath, "build-path", ".", "directory to build the worker image from")
	flags.StringVar(&opts.Dockerfile, "dockerfile", "Dockerfile", "Dockerfile to build the worker image with")
	flags.StringVar(&opts.Network, "network", defaultDockerNetwork, "Docker network for worker containers (DOCKER mode)")
	flags.StringVar(&opts.Namespace, "namespace", "default", "Kubernetes namespace for worker pods (KUBE mode)")
	flags.StringVar((*string)(&opts.Mode), "mode", string(opts.Mode), "scheduling mode: LOCAL, DOCKER or KUBE")

	flags.StringSliceVarP(&opts.Tags, "tag", "t", nil, "only run scenarios matching these tags")
	flags.StringSliceVar(&envFlags, "env", nil, "environment variable as KEY=VALUE (repeatable)")
	flags.StringVar(&envFile, "env-file", "", "path to a KEY=VALUE env file")

	flags.StringVar(&opts.BackendAddress, "backend-address", opts.BackendAddress, "address the backend HTTP server listens on (DOCKER/KUBE modes)")
	flags.StringVar(&opts.BackendLocation, "backend-location", "", "directory holding the cicadad binary (LOCAL mode)")
	flags.StringVar(&configFile, "config", "", "YAML file of run-option defaults; flags passed explicitly on the command line override it")

	flags.DurationVar(&opts.TestTimeout, "test-timeout", opts.TestTimeout, "maximum time to let the test run")
	flags.DurationVar(&opts.TestStartTimeout, "test-start-timeout", opts.TestStartTimeout, "maximum time to wait for a scenario to start")

	flags.BoolVar(&opts.NoExitUnsuccessful, "no-exit-unsuccessful", false, "exit 0 even if the test failed")
	flags.BoolVar(&opts.NoCleanup, "no-cleanup", false, "skip tearing down worker instances after the test finishes")

	return cmd
}

// parseEnvFlags turns repeated --env KEY=VALUE flags into a map, silently
// skipping malformed entries (cobra flag parsing has already validated the
// flag exists; a malformed value just carries no variable forward).
func parseEnvFlags(flags []string) map[string]string {
	env := make(map[string]string, len(flags))
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env
}
