package models

import "context"

// TrainingProvider produces the result record of a simulation once every
// pipeline stage has run. Never call a concrete backend directly; always
// inject this interface.
type TrainingProvider interface {
	// Train returns the results for sim. It must not mutate sim.
	Train(ctx context.Context, sim Simulation) (TrainingResults, error)
	// Name returns the provider identifier (e.g., "synthetic", "remote").
	Name() string
}
