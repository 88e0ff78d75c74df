package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFileConfigParsesYAML(t *testing.T) {
	path := writeConfigFile(t, `
testFile: load_test.go
image: cicadad-worker:latest
network: cicada-net
mode: DOCKER
tags:
  - smoke
  - nightly
env:
  STAGE: canary
noCleanup: true
`)

	fc, err := LoadFileConfig(path)
	require.NoError(t, err)

	require.NotNil(t, fc.TestFile)
	assert.Equal(t, "load_test.go", *fc.TestFile)
	require.NotNil(t, fc.Image)
	assert.Equal(t, "cicadad-worker:latest", *fc.Image)
	require.NotNil(t, fc.Mode)
	assert.Equal(t, "DOCKER", *fc.Mode)
	assert.Equal(t, []string{"smoke", "nightly"}, fc.Tags)
	assert.Equal(t, "canary", fc.Env["STAGE"])
	require.NotNil(t, fc.NoCleanup)
	assert.True(t, *fc.NoCleanup)
}

func TestLoadFileConfigMissingFile(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFileConfigInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "mode: [this is not a scalar")
	_, err := LoadFileConfig(path)
	assert.Error(t, err)
}

func TestFileConfigApplyToFillsUnsetFlags(t *testing.T) {
	opts := DefaultRunOptions()
	fc := &FileConfig{
		Image:   stringPtr("cicadad-worker:latest"),
		Network: stringPtr("cicada-net"),
		Mode:    stringPtr(string(ModeDocker)),
	}

	fc.ApplyTo(&opts, func(string) bool { return false })

	assert.Equal(t, "cicadad-worker:latest", opts.Image)
	assert.Equal(t, "cicada-net", opts.Network)
	assert.Equal(t, ModeDocker, opts.Mode)
}

func TestFileConfigApplyToSkipsFlagsAlreadySetOnCommandLine(t *testing.T) {
	opts := DefaultRunOptions()
	opts.Mode = ModeKube
	fc := &FileConfig{
		Mode: stringPtr(string(ModeDocker)),
	}

	fc.ApplyTo(&opts, func(name string) bool { return name == "mode" })

	assert.Equal(t, ModeKube, opts.Mode, "explicit --mode flag must win over the config file")
}

func TestFileConfigApplyToMergesEnvWithoutOverwritingExistingKeys(t *testing.T) {
	opts := DefaultRunOptions()
	opts.Env = map[string]string{"STAGE": "prod"}
	fc := &FileConfig{
		Env: map[string]string{"STAGE": "canary", "REGION": "us-east-1"},
	}

	fc.ApplyTo(&opts, func(string) bool { return false })

	assert.Equal(t, "prod", opts.Env["STAGE"], "flag/env-file value must win over the config file")
	assert.Equal(t, "us-east-1", opts.Env["REGION"])
}

func stringPtr(s string) *string { return &s }
