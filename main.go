package main

import (
	"cicadad/cmd"
	"cicadad/internal/engine"
)

// Version can be set during build with -ldflags
var version = "dev"

// main is the generic cicadad entry point for a test binary that registers
// no scenarios of its own (e.g. this repository's own CI smoke-check of
// `cicadad version`/`cicadad init`). A real load test is its own Go
// program: it builds an *engine.Engine, calls AddScenario for each
// scenario it declares, and calls cmd.Execute(eng) instead of this main.
func main() {
	cmd.SetVersion(version)
	cmd.Execute(engine.New())
}
