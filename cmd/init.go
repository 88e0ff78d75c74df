package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// starterDockerfile is the Dockerfile scaffolded by `init`, mirroring the
// original implementation's bundled Dockerfile template
// (_examples/original_source's templates/Dockerfile): build the test
// binary, run it as the worker image's entrypoint.
const starterDockerfile = `FROM golang:1.25 AS build
WORKDIR /src
COPY . .
RUN go build -o /cicadad .

FROM debian:bookworm-slim
COPY --from=build /cicadad /usr/local/bin/cicadad
ENTRYPOINT ["cicadad"]
`

// starterTestFile is the Go test-file scaffolded by `init`, the idiomatic-Go
// replacement for the original implementation's templates/test.py: declare
// a scenario, register it, hand control to cmd.Execute.
const starterTestFile = `package main

import (
	"context"
	"time"

	"cicadad/cmd"
	"cicadad/internal/engine"
	"cicadad/internal/loadmodel"
	"cicadad/internal/scenario"
)

func main() {
	eng := engine.New()

	eng.AddScenario(scenario.NewBuilder("example", func(ctx context.Context) (any, error) {
		return nil, nil
	}).WithLoadModel(loadmodel.NIterations(1, 1, time.Second, 0, false)).Build())

	cmd.Execute(eng)
}
`

// newInitCmd creates the Cobra command that scaffolds a starter test file
// and Dockerfile into build-path, writing each only if it doesn't already
// exist. Grounded on cli.py's init command
// (_examples/original_source/cicadad/core/cli.py): same idempotent
// "only write if absent" contract, content out of scope per spec.md §1.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [build-path]",
		Short: "Scaffold a starter test file and Dockerfile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buildPath := "."
			if len(args) == 1 {
				buildPath = args[0]
			}

			debug, _ := cmd.Flags().GetBool("debug")

			if err := scaffoldIfAbsent(filepath.Join(buildPath, "Dockerfile"), starterDockerfile); err != nil {
				return err
			} else if debug {
				fmt.Fprintln(cmd.OutOrStdout(), "Added Dockerfile")
			}

			if err := scaffoldIfAbsent(filepath.Join(buildPath, "test.go"), starterTestFile); err != nil {
				return err
			} else if debug {
				fmt.Fprintln(cmd.OutOrStdout(), "Added test.go")
			}

			return nil
		},
	}
}

// scaffoldIfAbsent writes content to path unless a file is already there.
func scaffoldIfAbsent(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cmd: stat %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("cmd: write %s: %w", path, err)
	}
	return nil
}
