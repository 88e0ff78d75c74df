package app

import (
	"cicadad/internal/config"
	"cicadad/internal/engine"
)

// Config holds everything NewApplication needs to bootstrap and run one
// test: the validated run options the `run` command parsed, and the
// Engine the test file registered its scenarios onto.
type Config struct {
	Debug  bool
	Silent bool

	Run    config.RunOptions
	Engine *engine.Engine
}

// NewConfig builds a Config from a test file's Engine and its run options.
func NewConfig(eng *engine.Engine, run config.RunOptions, debug, silent bool) *Config {
	return &Config{Debug: debug, Silent: silent, Run: run, Engine: eng}
}
