package cmd

import (
	"fmt"
	"time"

	"cicadad/internal/launcher"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// defaultDockerNetwork matches the original implementation's
// DEFAULT_DOCKER_NETWORK (_examples/original_source/cicadad/util/constants.py),
// the network DOCKER-mode worker containers and a controller-hosted
// backend share.
const defaultDockerNetwork = "cicada-distributed-network"

// newStartClusterCmd creates the network DOCKER-mode runs need, mirroring
// cli.py's start_cluster command (_examples/original_source/cicadad/core/cli.py)
// scoped down to what spec.md §5's in-process backend actually requires:
// no separate datastore/manager containers, just a shared Docker network.
func newStartClusterCmd() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "start-cluster",
		Short: "Create the Docker network used by DOCKER-mode test runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			sp := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
			sp.Suffix = fmt.Sprintf(" creating network %s...", network)
			sp.Start()
			err := launcher.EnsureNetwork(cmd.Context(), network)
			sp.Stop()

			if err != nil {
				return fmt.Errorf("start-cluster: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Network %s is ready\n", network)
			return nil
		},
	}

	cmd.Flags().StringVar(&network, "network", defaultDockerNetwork, "Docker network to create")
	return cmd
}

// newStopClusterCmd removes the network start-cluster created.
func newStopClusterCmd() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "stop-cluster",
		Short: "Remove the Docker network used by DOCKER-mode test runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := launcher.RemoveNetwork(cmd.Context(), network); err != nil {
				return fmt.Errorf("stop-cluster: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Network %s removed\n", network)
			return nil
		},
	}

	cmd.Flags().StringVar(&network, "network", defaultDockerNetwork, "Docker network to remove")
	return cmd
}
