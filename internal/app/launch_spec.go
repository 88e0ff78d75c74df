package app

import (
	"cicadad/internal/backend"
	"cicadad/internal/config"
	"cicadad/internal/launcher"
)

// launchSpec renders the WorkerSpec for a scenario worker process, filling
// in exactly the mode-specific fields opts.Mode needs (launcher.New
// already rejected any other mode during bootstrap).
func launchSpec(name string, testID backend.TestId, scenarioID backend.ScenarioId, contextBlob string, opts config.RunOptions) launcher.WorkerSpec {
	spec := launcher.WorkerSpec{
		Command:        launcher.CommandRunScenario,
		Name:           name,
		TestID:         testID,
		ScenarioID:     scenarioID,
		ContextBlob:    contextBlob,
		BackendAddress: opts.BackendAddress,
		Mode:           opts.Mode,
	}

	switch opts.Mode {
	case config.ModeLocal:
		spec.RuntimePath = opts.BackendLocation
		spec.TestFilePath = opts.TestFile
	case config.ModeDocker:
		spec.Image = opts.Image
		spec.Network = opts.Network
	case config.ModeKube:
		spec.Image = opts.Image
		spec.Namespace = opts.Namespace
	}

	return spec
}
