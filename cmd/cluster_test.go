package cmd

import "testing"

func TestNewStartClusterCmdDefaultsNetwork(t *testing.T) {
	c := newStartClusterCmd()
	flag := c.Flags().Lookup("network")
	if flag == nil {
		t.Fatal("expected --network flag")
	}
	if flag.DefValue != defaultDockerNetwork {
		t.Errorf("expected default network %q, got %q", defaultDockerNetwork, flag.DefValue)
	}
}

func TestNewStopClusterCmdDefaultsNetwork(t *testing.T) {
	c := newStopClusterCmd()
	flag := c.Flags().Lookup("network")
	if flag == nil {
		t.Fatal("expected --network flag")
	}
	if flag.DefValue != defaultDockerNetwork {
		t.Errorf("expected default network %q, got %q", defaultDockerNetwork, flag.DefValue)
	}
}
