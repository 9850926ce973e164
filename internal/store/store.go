package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/robotrainer/internal/lifecycle"
	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrUnavailable marks failures to reach or query the database. Callers on
// the runner side treat it as "no data this cycle" rather than a crash.
var ErrUnavailable = errors.New("store unavailable")

// ErrTransitionConflict is returned when a status transition's guard no
// longer holds, e.g. another actor claimed the simulation first.
var ErrTransitionConflict = errors.New("simulation status transition conflict")

// Store is the data access interface. All database operations go through here.
//
// The simulations table is shared by the API server and the runner without
// any lock. Every status change therefore goes through UpdateStatus, which
// applies the transition as a single conditional update.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	CreateRobot(ctx context.Context, robot *models.Robot) error
	GetRobot(ctx context.Context, id int64, userID int64) (*models.Robot, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	CreateSimulation(ctx context.Context, sim *models.Simulation) error
	GetSimulation(ctx context.Context, id int64, userID int64) (*models.Simulation, error)
	ListSimulations(ctx context.Context, userID int64) ([]*models.Simulation, error)
	ListPending(ctx context.Context, limit int) ([]*models.Simulation, error)
	UpdateStatus(ctx context.Context, id int64, tr Transition) (*models.Simulation, error)

	AppendLog(ctx context.Context, entry *models.TrainingLog) error
	ListLogs(ctx context.Context, simulationID int64, userID int64) ([]*models.TrainingLog, error)
}

// Transition is a status change request. Each kind carries exactly the
// fields its target state needs.
type Transition interface {
	// Event is the lifecycle event the transition fires.
	Event() string
}

// ClaimRequest moves a pending simulation to running and stamps started_at.
type ClaimRequest struct{}

// CompleteRequest moves a running simulation to completed with its results.
type CompleteRequest struct {
	Results models.TrainingResults
}

// FailRequest moves a pending or running simulation to failed. Results are
// never written on this path.
type FailRequest struct {
	Reason string
}

func (ClaimRequest) Event() string    { return lifecycle.EventClaim }
func (CompleteRequest) Event() string { return lifecycle.EventComplete }
func (FailRequest) Event() string     { return lifecycle.EventFail }
