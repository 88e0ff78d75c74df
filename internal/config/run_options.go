package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// RunOptions is the flag-bound configuration for the controller's `run`
// command (spec.md §6). CLI parsing itself is out of scope for this
// module (cobra owns flag registration); this struct is the validated,
// typed result cobra hands to internal/app.
type RunOptions struct {
	TestFile   string
	Image      string
	BuildPath  string
	Dockerfile string
	Network    string
	Namespace  string
	Mode       SchedulingMode

	Tags []string
	Env  map[string]string

	BackendAddress  string
	BackendLocation string

	TestTimeout      time.Duration
	TestStartTimeout time.Duration

	NoExitUnsuccessful bool
	NoCleanup          bool
}

// DefaultRunOptions mirrors the original implementation's defaults.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		TestFile:         "test.go",
		Mode:             DefaultSchedulingMode,
		Env:              map[string]string{},
		BackendAddress:   "[::]:8283",
		TestTimeout:      15 * time.Minute,
		TestStartTimeout: 30 * time.Second,
	}
}

// LoadEnvFile reads KEY=VALUE pairs from path and merges them into opts.Env,
// with values already present in opts.Env (e.g. from repeated --env flags)
// taking precedence, matching the CLI's documented --env-file/--env
// precedence.
func (o *RunOptions) LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	fileEnv, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	if o.Env == nil {
		o.Env = make(map[string]string, len(fileEnv))
	}

	for k, v := range fileEnv {
		if _, exists := o.Env[k]; !exists {
			o.Env[k] = v
		}
	}

	return nil
}

// SchedulingMetadata builds the mode-discriminated metadata sent to
// Backend.CreateTest from the run options.
func (o RunOptions) SchedulingMetadata() SchedulingMetadata {
	meta := SchedulingMetadata{Mode: o.Mode}

	switch o.Mode {
	case ModeLocal:
		meta.RuntimePath = o.BackendLocation
		meta.TestFilePath = o.TestFile
	case ModeDocker:
		meta.Image = o.Image
		meta.Network = o.Network
	case ModeKube:
		meta.Image = o.Image
		meta.Namespace = o.Namespace
	}

	return meta
}

// Validate checks run-option invariants (deadlines must be positive, a mode
// must be known) before the controller starts provisioning anything.
func (o RunOptions) Validate() error {
	errs := NewConfigurationErrorCollection()

	if o.TestTimeout <= 0 {
		errs.Add(NewConfigurationError("", "", "flag", "run-options", "validation",
			"test-timeout must be positive"))
	}
	if o.TestStartTimeout <= 0 {
		errs.Add(NewConfigurationError("", "", "flag", "run-options", "validation",
			"test-start-timeout must be positive"))
	}

	switch o.Mode {
	case ModeLocal, ModeDocker, ModeKube:
	default:
		errs.Add(NewConfigurationError("", "", "flag", "run-options", "validation",
			fmt.Sprintf("unsupported mode %q", o.Mode)))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
