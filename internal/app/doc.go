// Package app is the controller process's bootstrap and run loop: the
// half of spec.md §5's split that hosts the Test Runner in-process,
// alongside the backend Store and Launcher every worker process it
// provisions talks back to.
//
// # Lifecycle
//
// NewApplication wires the scheduling-mode-appropriate Store (a
// MemoryStore always; an HTTPServer wrapping it too, for DOCKER/KUBE)
// and a matching Launcher. Run then creates the test, hands the Engine's
// registered scenarios to the Test Runner, and blocks until every
// scenario has a result or the run's TestTimeout elapses.
//
// cmd/'s `run` command is the only caller: it parses flags into a
// config.RunOptions, builds the test file's Engine, and calls
// NewApplication/Run/Close in sequence.
//
// # Relationship to the original implementation
//
// Grounded on cli.py's run() (_examples/original_source/cicadad/core/cli.py):
// same create-test/launch-scenarios/collect-results/cleanup/print-results
// shape, minus the live Rich TUI panel cli.py repaints from a
// get_test_events poll loop (out of scope per spec.md §1) — since the Go
// Test Runner already runs synchronously inside this process, Run simply
// returns the finished results instead of polling for them.
package app
