package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/robotrainer/internal/api/middleware"
	"github.com/kiranshivaraju/robotrainer/internal/api/response"
	"github.com/kiranshivaraju/robotrainer/internal/lifecycle"
	"github.com/kiranshivaraju/robotrainer/internal/store"
	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxNameLength    = 100
)

// SimulationStore is the part of store.Store the simulation handlers use.
type SimulationStore interface {
	GetRobot(ctx context.Context, id int64, userID int64) (*models.Robot, error)
	CreateSimulation(ctx context.Context, sim *models.Simulation) error
	GetSimulation(ctx context.Context, id int64, userID int64) (*models.Simulation, error)
	ListSimulations(ctx context.Context, userID int64) ([]*models.Simulation, error)
	UpdateStatus(ctx context.Context, id int64, tr store.Transition) (*models.Simulation, error)
	ListLogs(ctx context.Context, simulationID int64, userID int64) ([]*models.TrainingLog, error)
}

// StatusCache holds the last known status of each simulation.
type StatusCache interface {
	SetSimulationStatus(ctx context.Context, userID, simulationID int64, status string, ttl time.Duration) error
	GetSimulationStatus(ctx context.Context, userID, simulationID int64) (string, bool, error)
}

// Simulations serves the /api/v1/simulations routes.
type Simulations struct {
	store     SimulationStore
	cache     StatusCache
	statusTTL time.Duration
}

// NewSimulations creates the simulation handlers. cache may be nil.
func NewSimulations(s SimulationStore, c StatusCache, statusTTL time.Duration) *Simulations {
	return &Simulations{store: s, cache: c, statusTTL: statusTTL}
}

type createSimulationRequest struct {
	Name       string          `json:"name"`
	RobotID    int64           `json:"robot_id"`
	Parameters json.RawMessage `json:"parameters"`
}

func (req *createSimulationRequest) validate() map[string][]string {
	details := map[string][]string{}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		details["name"] = append(details["name"], "name is required")
	} else if utf8.RuneCountInString(req.Name) > maxNameLength {
		details["name"] = append(details["name"], fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if req.RobotID <= 0 {
		details["robot_id"] = append(details["robot_id"], "robot_id is required")
	}
	if len(req.Parameters) > 0 && string(req.Parameters) != "null" {
		var obj map[string]any
		if err := json.Unmarshal(req.Parameters, &obj); err != nil {
			details["parameters"] = append(details["parameters"], "parameters must be a JSON object")
		}
	} else {
		req.Parameters = nil
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// Create handles POST /api/v1/simulations. New simulations are always
// pending; the runner picks them up on its next poll.
func (h *Simulations) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	var req createSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}
	if details := req.validate(); details != nil {
		response.Validation(w, details)
		return
	}

	if _, err := h.store.GetRobot(r.Context(), req.RobotID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "ROBOT_NOT_FOUND", "Robot not found", nil)
			return
		}
		storeError(w, "get robot", err)
		return
	}

	sim := &models.Simulation{
		RobotID:    req.RobotID,
		UserID:     userID,
		Name:       req.Name,
		Parameters: req.Parameters,
	}
	if err := h.store.CreateSimulation(r.Context(), sim); err != nil {
		storeError(w, "create simulation", err)
		return
	}
	response.Created(w, sim)
}

// List handles GET /api/v1/simulations?page=&limit=.
func (h *Simulations) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	page, limit, details := parsePagination(r)
	if details != nil {
		response.Validation(w, details)
		return
	}

	sims, err := h.store.ListSimulations(r.Context(), userID)
	if err != nil {
		storeError(w, "list simulations", err)
		return
	}

	total := len(sims)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	response.Collection(w, sims[start:end], response.PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: end < total,
	})
}

// Get handles GET /api/v1/simulations/{id}.
func (h *Simulations) Get(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	response.JSON(w, sim)
}

type statusResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Cached bool   `json:"cached"`
}

// Status handles GET /api/v1/simulations/{id}/status. Terminal statuses are
// answered from the status cache; anything else is read from the store,
// since cache writes are best effort and a cached pending or running value
// may be stale.
func (h *Simulations) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}
	id, ok := simulationID(w, r)
	if !ok {
		return
	}

	if h.cache != nil {
		status, found, err := h.cache.GetSimulationStatus(r.Context(), userID, id)
		if err != nil {
			slog.Warn("status cache read failed", "simulation_id", id, "error", err)
		} else if found && lifecycle.IsTerminal(status) {
			response.JSON(w, statusResponse{ID: id, Status: status, Cached: true})
			return
		}
	}

	sim, err := h.store.GetSimulation(r.Context(), id, userID)
	if err != nil {
		simulationError(w, "get simulation", err)
		return
	}
	h.cacheStatus(r.Context(), sim)
	response.JSON(w, statusResponse{ID: sim.ID, Status: sim.Status})
}

// Start handles PUT /api/v1/simulations/{id}/start. It races the runner
// for the claim; whoever loses gets a conflict.
func (h *Simulations) Start(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	h.transition(w, r, sim, store.ClaimRequest{})
}

type completeSimulationRequest struct {
	Results *models.TrainingResults `json:"results"`
}

// Complete handles PUT /api/v1/simulations/{id}/complete with a results
// payload. Only running simulations can be completed.
func (h *Simulations) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}
	if req.Results == nil {
		response.Validation(w, map[string][]string{"results": {"results is required"}})
		return
	}
	if req.Results.Accuracy < 0 || req.Results.Accuracy > 1 {
		response.Validation(w, map[string][]string{"results.accuracy": {"accuracy must be between 0 and 1"}})
		return
	}

	sim, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	h.transition(w, r, sim, store.CompleteRequest{Results: *req.Results})
}

// Logs handles GET /api/v1/simulations/{id}/logs.
func (h *Simulations) Logs(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	logs, err := h.store.ListLogs(r.Context(), sim.ID, sim.UserID)
	if err != nil {
		storeError(w, "list logs", err)
		return
	}
	response.JSON(w, logs)
}

func (h *Simulations) transition(w http.ResponseWriter, r *http.Request, sim *models.Simulation, tr store.Transition) {
	updated, err := h.store.UpdateStatus(r.Context(), sim.ID, tr)
	if err != nil {
		if errors.Is(err, store.ErrTransitionConflict) {
			response.Error(w, http.StatusConflict, "INVALID_STATUS_TRANSITION",
				"Simulation status does not allow this operation", map[string]string{
					"event":  tr.Event(),
					"detail": err.Error(),
				})
			return
		}
		simulationError(w, "update simulation status", err)
		return
	}
	h.cacheStatus(r.Context(), updated)
	response.JSON(w, updated)
}

// loadOwned resolves {id} to a simulation owned by the caller, writing the
// error response itself when it cannot.
func (h *Simulations) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Simulation, bool) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return nil, false
	}
	id, ok := simulationID(w, r)
	if !ok {
		return nil, false
	}
	sim, err := h.store.GetSimulation(r.Context(), id, userID)
	if err != nil {
		simulationError(w, "get simulation", err)
		return nil, false
	}
	return sim, true
}

// cacheStatus records sim's status once it can no longer change.
func (h *Simulations) cacheStatus(ctx context.Context, sim *models.Simulation) {
	if h.cache == nil || !lifecycle.IsTerminal(sim.Status) {
		return
	}
	if err := h.cache.SetSimulationStatus(ctx, sim.UserID, sim.ID, sim.Status, h.statusTTL); err != nil {
		slog.Warn("status cache write failed", "simulation_id", sim.ID, "error", err)
	}
}

func simulationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_SIMULATION_ID", "Invalid simulation ID", nil)
		return 0, false
	}
	return id, true
}

func parsePagination(r *http.Request) (page, limit int, details map[string][]string) {
	page, limit = 1, defaultPageLimit
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, map[string][]string{"page": {"page must be a positive integer"}}
		}
		page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, map[string][]string{"limit": {"limit must be a positive integer"}}
		}
		limit = min(n, maxPageLimit)
	}
	return page, limit, nil
}

func simulationError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "SIMULATION_NOT_FOUND", "Simulation not found", nil)
		return
	}
	storeError(w, op, err)
}

func storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		slog.Error("store unavailable", "op", op, "error", err)
		response.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE",
			"The database is temporarily unavailable", nil)
		return
	}
	slog.Error("store operation failed", "op", op, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}
