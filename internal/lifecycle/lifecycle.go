// Package lifecycle defines the simulation state machine shared by the store
// and the runner.
package lifecycle

import (
	"github.com/looplab/fsm"

	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

const (
	// EventClaim moves a pending simulation to running.
	EventClaim = "claim"
	// EventComplete moves a running simulation to completed.
	EventComplete = "complete"
	// EventFail moves a pending or running simulation to failed.
	EventFail = "fail"
)

var events = fsm.Events{
	{Name: EventClaim, Src: []string{models.SimulationStatusPending}, Dst: models.SimulationStatusRunning},
	{Name: EventComplete, Src: []string{models.SimulationStatusRunning}, Dst: models.SimulationStatusCompleted},
	{Name: EventFail, Src: []string{models.SimulationStatusPending, models.SimulationStatusRunning}, Dst: models.SimulationStatusFailed},
}

// New returns a state machine positioned at status.
func New(status string, callbacks fsm.Callbacks) *fsm.FSM {
	if callbacks == nil {
		callbacks = fsm.Callbacks{}
	}
	return fsm.NewFSM(status, events, callbacks)
}

// Sources returns the states event may be fired from.
func Sources(event string) []string {
	for _, e := range events {
		if e.Name == event {
			return append([]string(nil), e.Src...)
		}
	}
	return nil
}

// Target returns the state event leads to, or "" for an unknown event.
func Target(event string) string {
	for _, e := range events {
		if e.Name == event {
			return e.Dst
		}
	}
	return ""
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to string) bool {
	for _, e := range events {
		if e.Dst != to {
			continue
		}
		for _, src := range e.Src {
			if src == from {
				return true
			}
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	return status == models.SimulationStatusCompleted || status == models.SimulationStatusFailed
}

// Valid reports whether status is a known simulation status.
func Valid(status string) bool {
	switch status {
	case models.SimulationStatusPending, models.SimulationStatusRunning,
		models.SimulationStatusCompleted, models.SimulationStatusFailed:
		return true
	}
	return false
}
