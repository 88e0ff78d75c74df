package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML shape of a `run` command config file (spec.md §6's
// flags, given a file-based home instead of the command line). Every field
// is optional: an absent key leaves the corresponding RunOptions field at
// whatever DefaultRunOptions/earlier flags already set it to.
type FileConfig struct {
	TestFile   *string `yaml:"testFile"`
	Image      *string `yaml:"image"`
	BuildPath  *string `yaml:"buildPath"`
	Dockerfile *string `yaml:"dockerfile"`
	Network    *string `yaml:"network"`
	Namespace  *string `yaml:"namespace"`
	Mode       *string `yaml:"mode"`

	Tags []string          `yaml:"tags"`
	Env  map[string]string `yaml:"env"`

	BackendAddress  *string `yaml:"backendAddress"`
	BackendLocation *string `yaml:"backendLocation"`

	TestTimeout      *time.Duration `yaml:"testTimeout"`
	TestStartTimeout *time.Duration `yaml:"testStartTimeout"`

	NoExitUnsuccessful *bool `yaml:"noExitUnsuccessful"`
	NoCleanup          *bool `yaml:"noCleanup"`
}

// LoadFileConfig reads and parses a YAML config file for the `run` command.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &fc, nil
}

// ApplyTo overlays fc's set fields onto opts, skipping any field name for
// which isSet reports true (a CLI flag the caller already passed explicitly
// takes precedence over the config file; the file only fills in what the
// command line left at its default).
func (fc *FileConfig) ApplyTo(opts *RunOptions, isSet func(flagName string) bool) {
	set := func(name string) bool { return isSet != nil && isSet(name) }

	if fc.TestFile != nil && !set("test-file") {
		opts.TestFile = *fc.TestFile
	}
	if fc.Image != nil && !set("image") {
		opts.Image = *fc.Image
	}
	if fc.BuildPath != nil && !set("build-path") {
		opts.BuildPath = *fc.BuildPath
	}
	if fc.Dockerfile != nil && !set("dockerfile") {
		opts.Dockerfile = *fc.Dockerfile
	}
	if fc.Network != nil && !set("network") {
		opts.Network = *fc.Network
	}
	if fc.Namespace != nil && !set("namespace") {
		opts.Namespace = *fc.Namespace
	}
	if fc.Mode != nil && !set("mode") {
		opts.Mode = SchedulingMode(*fc.Mode)
	}
	if len(fc.Tags) > 0 && !set("tag") {
		opts.Tags = fc.Tags
	}
	if len(fc.Env) > 0 {
		if opts.Env == nil {
			opts.Env = make(map[string]string, len(fc.Env))
		}
		for k, v := range fc.Env {
			if _, exists := opts.Env[k]; !exists {
				opts.Env[k] = v
			}
		}
	}
	if fc.BackendAddress != nil && !set("backend-address") {
		opts.BackendAddress = *fc.BackendAddress
	}
	if fc.BackendLocation != nil && !set("backend-location") {
		opts.BackendLocation = *fc.BackendLocation
	}
	if fc.TestTimeout != nil && !set("test-timeout") {
		opts.TestTimeout = *fc.TestTimeout
	}
	if fc.TestStartTimeout != nil && !set("test-start-timeout") {
		opts.TestStartTimeout = *fc.TestStartTimeout
	}
	if fc.NoExitUnsuccessful != nil && !set("no-exit-unsuccessful") {
		opts.NoExitUnsuccessful = *fc.NoExitUnsuccessful
	}
	if fc.NoCleanup != nil && !set("no-cleanup") {
		opts.NoCleanup = *fc.NoCleanup
	}
}
