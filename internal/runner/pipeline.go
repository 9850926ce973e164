package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kiranshivaraju/robotrainer/internal/config"
	"github.com/kiranshivaraju/robotrainer/internal/metrics"
	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

// Stages is the fixed ordered list of training stages.
var Stages = []string{
	"Initializing simulation environment",
	"Loading robot model",
	"Configuring sensors and actuators",
	"Running navigation algorithm",
	"Training recognition model",
	"Optimizing control parameters",
	"Validating results",
	"Generating final report",
}

// LogWriter appends training log entries.
type LogWriter interface {
	AppendLog(ctx context.Context, entry *models.TrainingLog) error
}

// Pipeline drives one simulation through Stages and asks the training
// provider for its results.
type Pipeline struct {
	logs     LogWriter
	provider models.TrainingProvider
	clock    Clock
	faults   FaultSource
	stages   []string

	minDelay         time.Duration
	maxDelay         time.Duration
	faultProbability float64
}

// NewPipeline creates a Pipeline. A nil clock sleeps on the wall clock and
// a nil fault source is randomly seeded.
func NewPipeline(logs LogWriter, provider models.TrainingProvider, cfg config.RunnerConfig, clock Clock, faults FaultSource) *Pipeline {
	if clock == nil {
		clock = RealClock()
	}
	if faults == nil {
		faults = NewRandomFaults(nil)
	}
	return &Pipeline{
		logs:             logs,
		provider:         provider,
		clock:            clock,
		faults:           faults,
		stages:           Stages,
		minDelay:         cfg.StageMinDelay,
		maxDelay:         cfg.StageMaxDelay,
		faultProbability: cfg.FaultProbability,
	}
}

// Progress returns the completion percentage after stage index i of n.
func Progress(i, n int) int {
	return int(math.Round(100 * float64(i+1) / float64(n)))
}

// Execute runs every stage for sim in order and returns the results the
// provider produced. Any failure aborts the run with a *StageError.
func (p *Pipeline) Execute(ctx context.Context, sim *models.Simulation) (*models.TrainingResults, error) {
	n := len(p.stages)
	for i, stage := range p.stages {
		delay := p.faults.Delay(p.minDelay, p.maxDelay)
		if err := p.clock.Sleep(ctx, delay); err != nil {
			return nil, &StageError{Index: i, Stage: stage, Err: err}
		}
		metrics.StageDuration.WithLabelValues(stage).Observe(delay.Seconds())

		msg := fmt.Sprintf("[%d%%] %s", Progress(i, n), stage)
		if err := p.log(ctx, sim, models.LogLevelInfo, msg); err != nil {
			return nil, &StageError{Index: i, Stage: stage, Err: err}
		}

		// Reported faults are log noise only; the stage still succeeds.
		if p.faults.Fault(p.faultProbability) {
			msg := fmt.Sprintf("Simulated error at stage: %s", stage)
			if err := p.log(ctx, sim, models.LogLevelError, msg); err != nil {
				return nil, &StageError{Index: i, Stage: stage, Err: err}
			}
		}
	}

	results, err := p.provider.Train(ctx, *sim)
	if err != nil {
		return nil, &StageError{Index: n, Stage: ResultStage, Err: fmt.Errorf("%s provider: %w", p.provider.Name(), err)}
	}

	summary := fmt.Sprintf("Simulation completed successfully. Accuracy: %.2f%%", results.Accuracy*100)
	if err := p.log(ctx, sim, models.LogLevelInfo, summary); err != nil {
		return nil, &StageError{Index: n, Stage: ResultStage, Err: err}
	}

	slog.Debug("pipeline finished", "simulation_id", sim.ID, "provider", p.provider.Name())
	return &results, nil
}

func (p *Pipeline) log(ctx context.Context, sim *models.Simulation, level, msg string) error {
	return p.logs.AppendLog(ctx, &models.TrainingLog{
		SimulationID: sim.ID,
		RobotID:      sim.RobotID,
		UserID:       sim.UserID,
		Level:        level,
		Message:      msg,
	})
}
