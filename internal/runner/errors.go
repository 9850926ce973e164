package runner

import (
	"errors"
	"fmt"
)

// ErrStage classifies failures raised while a pipeline stage runs. The job
// is failed and the loop moves on.
var ErrStage = errors.New("pipeline stage failed")

// ErrLoop classifies failures that escaped the per-job boundary. The loop
// backs off and retries.
var ErrLoop = errors.New("runner loop failed")

// ResultStage names the step that asks the training provider for results.
const ResultStage = "produce results"

// StageError reports which stage of the pipeline failed.
type StageError struct {
	Index int
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStage) match any StageError.
func (e *StageError) Is(target error) bool { return target == ErrStage }
