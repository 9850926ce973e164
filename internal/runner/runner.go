// Package runner polls the store for pending simulations and drives each
// one through the training pipeline, one at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/kiranshivaraju/robotrainer/internal/cache"
	"github.com/kiranshivaraju/robotrainer/internal/config"
	"github.com/kiranshivaraju/robotrainer/internal/lifecycle"
	"github.com/kiranshivaraju/robotrainer/internal/metrics"
	"github.com/kiranshivaraju/robotrainer/internal/store"
	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

// JobStore is the part of store.Store the runner needs.
type JobStore interface {
	ListPending(ctx context.Context, limit int) ([]*models.Simulation, error)
	UpdateStatus(ctx context.Context, id int64, tr store.Transition) (*models.Simulation, error)
	AppendLog(ctx context.Context, entry *models.TrainingLog) error
}

// Runner is a single-concurrency worker. Run it once per process; several
// processes may share a store since claims are conditional.
type Runner struct {
	id       string
	store    JobStore
	cache    cache.Cache
	pipeline *Pipeline
	clock    Clock

	pollInterval time.Duration
	errorBackoff time.Duration
	batchLimit   int
	statusTTL    time.Duration
}

// New creates a Runner. statusCache may be nil, in which case status
// changes are only written to the store. A nil clock sleeps on the wall
// clock.
func New(st JobStore, statusCache cache.Cache, pipeline *Pipeline, cfg config.RunnerConfig, clock Clock) *Runner {
	if clock == nil {
		clock = RealClock()
	}
	backoff := cfg.ErrorBackoff
	if backoff <= 0 {
		backoff = 3 * cfg.PollInterval
	}
	return &Runner{
		id:           uuid.NewString(),
		store:        st,
		cache:        statusCache,
		pipeline:     pipeline,
		clock:        clock,
		pollInterval: cfg.PollInterval,
		errorBackoff: backoff,
		batchLimit:   cfg.BatchLimit,
		statusTTL:    cfg.StatusTTL,
	}
}

// ID identifies this runner instance in logs.
func (r *Runner) ID() string { return r.id }

// Run polls until ctx is cancelled. A simulation already in flight when
// ctx is cancelled runs to its terminal state before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("runner started", "runner_id", r.id, "poll_interval", r.pollInterval.String())
	for {
		if ctx.Err() != nil {
			break
		}

		wait := r.pollInterval
		if err := r.cycle(ctx); err != nil {
			slog.Error("runner cycle failed", "runner_id", r.id, "error", err, "backoff", r.errorBackoff.String())
			wait = r.errorBackoff
		}

		if err := r.clock.Sleep(ctx, wait); err != nil {
			break
		}
	}
	slog.Info("runner stopped", "runner_id", r.id)
	return nil
}

// cycle runs one poll and converts anything escaping the per-job boundary
// into ErrLoop.
func (r *Runner) cycle(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", ErrLoop, rec)
		}
	}()

	if _, err := r.RunOnce(ctx); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			metrics.PollErrorCount.Inc()
			slog.Warn("store unavailable, skipping cycle", "runner_id", r.id, "error", err)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrLoop, err)
	}
	return nil
}

// RunOnce lists pending simulations and processes them oldest first. It
// returns how many of them this runner claimed; simulations lost to another
// runner or left unclaimed because of a store error are not counted.
// Cancelling ctx stops the batch before the next simulation.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.ListPending(ctx, r.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("listing pending simulations: %w", err)
	}

	claimed := 0
	for _, sim := range pending {
		if ctx.Err() != nil {
			break
		}
		if r.process(ctx, sim) {
			claimed++
		}
	}
	return claimed, nil
}

// process claims sim and runs it to a terminal state, reporting whether the
// claim succeeded. It never panics: every failure after the claim ends in a
// failed simulation, and a lost claim leaves the simulation untouched.
func (r *Runner) process(parent context.Context, sim *models.Simulation) (claimed bool) {
	ctx := context.WithoutCancel(parent)
	logger := slog.With("runner_id", r.id, "simulation_id", sim.ID)

	machine := lifecycle.New(sim.Status, fsm.Callbacks{
		"enter_state": func(ctx context.Context, e *fsm.Event) {
			logger.Info("simulation status changed", "from", e.Src, "to", e.Dst)
			r.publishStatus(ctx, sim, e.Dst)
		},
	})

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while processing simulation", "panic", rec)
			r.fail(ctx, sim, machine, metrics.ReasonPanic, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	running, err := r.store.UpdateStatus(ctx, sim.ID, store.ClaimRequest{})
	if err != nil {
		if errors.Is(err, store.ErrTransitionConflict) || errors.Is(err, store.ErrNotFound) {
			metrics.ClaimConflictCount.Inc()
			logger.Info("simulation claimed elsewhere, skipping", "error", err)
			return false
		}
		logger.Warn("failed to claim simulation", "error", err)
		return false
	}
	claimed = true
	metrics.SimulationsClaimedCount.Inc()
	r.advance(ctx, machine, lifecycle.EventClaim)

	results, err := r.pipeline.Execute(ctx, running)
	if err != nil {
		logger.Error("pipeline failed", "error", err)
		r.fail(ctx, sim, machine, failureReason(err), err.Error())
		return true
	}

	if _, err := r.store.UpdateStatus(ctx, sim.ID, store.CompleteRequest{Results: *results}); err != nil {
		if errors.Is(err, store.ErrTransitionConflict) {
			logger.Warn("simulation changed while running, not completing", "error", err)
			return true
		}
		logger.Error("failed to record results", "error", err)
		r.fail(ctx, sim, machine, metrics.ReasonStore, fmt.Sprintf("recording results: %v", err))
		return true
	}
	metrics.SimulationsCompletedCount.Inc()
	r.advance(ctx, machine, lifecycle.EventComplete)
	logger.Info("simulation completed", "accuracy", results.Accuracy)
	return true
}

// fail moves sim to failed from wherever it is and appends an ERROR log.
// Both writes are best effort.
func (r *Runner) fail(ctx context.Context, sim *models.Simulation, machine *fsm.FSM, reason, message string) {
	logger := slog.With("runner_id", r.id, "simulation_id", sim.ID)

	if _, err := r.store.UpdateStatus(ctx, sim.ID, store.FailRequest{Reason: message}); err != nil {
		logger.Error("failed to mark simulation failed", "error", err)
	} else {
		metrics.SimulationsFailedCount.WithLabelValues(reason).Inc()
		r.advance(ctx, machine, lifecycle.EventFail)
	}

	err := r.store.AppendLog(ctx, &models.TrainingLog{
		SimulationID: sim.ID,
		RobotID:      sim.RobotID,
		UserID:       sim.UserID,
		Level:        models.LogLevelError,
		Message:      "Simulation failed: " + message,
	})
	if err != nil {
		logger.Warn("failed to append failure log", "error", err)
	}
}

// advance mirrors a transition the store already applied.
func (r *Runner) advance(ctx context.Context, machine *fsm.FSM, event string) {
	if err := machine.Event(ctx, event); err != nil {
		slog.Warn("local state machine out of step", "runner_id", r.id, "event", event, "state", machine.Current(), "error", err)
	}
}

func (r *Runner) publishStatus(ctx context.Context, sim *models.Simulation, status string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetSimulationStatus(ctx, sim.UserID, sim.ID, status, r.statusTTL); err != nil {
		slog.Warn("failed to cache simulation status", "simulation_id", sim.ID, "error", err)
	}
}

func failureReason(err error) string {
	var stageErr *StageError
	switch {
	case errors.Is(err, store.ErrUnavailable):
		return metrics.ReasonStore
	case errors.As(err, &stageErr) && stageErr.Stage == ResultStage:
		return metrics.ReasonTrainer
	default:
		return metrics.ReasonStage
	}
}
