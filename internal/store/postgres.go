package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/robotrainer/internal/lifecycle"
	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
//
// Each call acquires a pooled connection for the duration of one statement
// and releases it before returning; no connection is held across calls.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return dbError("ping", err)
	}
	return nil
}

// --- Users & Robots ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, is_active) VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		user.Username, user.Email, user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return dbError("create user", err)
	}
	return nil
}

func (s *PostgresStore) CreateRobot(ctx context.Context, robot *models.Robot) error {
	if robot.Status == "" {
		robot.Status = "idle"
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO robots (user_id, name, robot_type, configuration, status) VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		robot.UserID, robot.Name, robot.RobotType, nullableJSON(robot.Configuration), robot.Status,
	).Scan(&robot.ID, &robot.CreatedAt, &robot.UpdatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("create robot: %w", ErrNotFound)
		}
		return dbError("create robot", err)
	}
	return nil
}

func (s *PostgresStore) GetRobot(ctx context.Context, id int64, userID int64) (*models.Robot, error) {
	var r models.Robot
	var configuration []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, robot_type, configuration, status, created_at, updated_at
		 FROM robots WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&r.ID, &r.UserID, &r.Name, &r.RobotType, &configuration, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbError("get robot", err)
	}
	r.Configuration = configuration
	return &r, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, dbError("get api key by prefix", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("get api key by prefix", err)
	}
	return keys, nil
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return dbError("update api key last used", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return dbError("create api key", err)
	}
	return nil
}

// --- Simulations ---

const simulationColumns = `id, robot_id, user_id, name, status, parameters, results, error_message,
	started_at, completed_at, created_at, updated_at`

// CreateSimulation inserts sim in pending, whatever Status it carries.
func (s *PostgresStore) CreateSimulation(ctx context.Context, sim *models.Simulation) error {
	params := sim.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if sim.CreatedAt.IsZero() {
		sim.CreatedAt = time.Now().UTC()
	}
	sim.Status = models.SimulationStatusPending
	sim.UpdatedAt = sim.CreatedAt

	err := s.pool.QueryRow(ctx,
		`INSERT INTO simulations (robot_id, user_id, name, status, parameters, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sim.RobotID, sim.UserID, sim.Name, sim.Status, []byte(params), sim.CreatedAt, sim.UpdatedAt,
	).Scan(&sim.ID)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("create simulation: %w", ErrNotFound)
		}
		return dbError("create simulation", err)
	}
	sim.Parameters = params
	return nil
}

func (s *PostgresStore) GetSimulation(ctx context.Context, id int64, userID int64) (*models.Simulation, error) {
	sim, err := scanSimulation(s.pool.QueryRow(ctx,
		`SELECT `+simulationColumns+` FROM simulations WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbError("get simulation", err)
	}
	return sim, nil
}

func (s *PostgresStore) ListSimulations(ctx context.Context, userID int64) ([]*models.Simulation, error) {
	return s.querySimulations(ctx, "list simulations",
		`SELECT `+simulationColumns+` FROM simulations WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID)
}

// ListPending returns pending simulations oldest first. A limit of zero or
// less returns all of them.
func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]*models.Simulation, error) {
	query := `SELECT ` + simulationColumns + ` FROM simulations WHERE status = $1 ORDER BY created_at ASC, id ASC`
	args := []any{models.SimulationStatusPending}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.querySimulations(ctx, "list pending simulations", query, args...)
}

func (s *PostgresStore) querySimulations(ctx context.Context, op, query string, args ...any) ([]*models.Simulation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer rows.Close()

	sims := []*models.Simulation{}
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		sims = append(sims, sim)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return sims, nil
}

// UpdateStatus applies tr as one conditional UPDATE guarded on the current
// status, so concurrent actors racing on the same row get exactly one
// winner. Losers receive ErrTransitionConflict.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, tr Transition) (*models.Simulation, error) {
	event := tr.Event()
	target := lifecycle.Target(event)
	sources := lifecycle.Sources(event)
	if target == "" {
		return nil, fmt.Errorf("unknown transition %T", tr)
	}

	now := time.Now().UTC()
	args := []any{id, sources, target, now}

	var set string
	switch t := tr.(type) {
	case ClaimRequest:
		set = `started_at = $4`
	case CompleteRequest:
		results, err := json.Marshal(t.Results)
		if err != nil {
			return nil, fmt.Errorf("encode results: %w", err)
		}
		set = `results = $5, completed_at = $4, error_message = NULL`
		args = append(args, results)
	case FailRequest:
		var reason *string
		if t.Reason != "" {
			reason = &t.Reason
		}
		set = `started_at = COALESCE(started_at, $4), completed_at = $4, results = NULL, error_message = $5`
		args = append(args, reason)
	default:
		return nil, fmt.Errorf("unknown transition %T", tr)
	}

	query := `UPDATE simulations SET status = $3, updated_at = $4, ` + set +
		` WHERE id = $1 AND status = ANY($2) RETURNING ` + simulationColumns

	sim, err := scanSimulation(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return sim, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, dbError("update simulation status", err)
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM simulations WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbError("get simulation status", err)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrTransitionConflict, current, target)
}

// --- Training Logs ---

// AppendLog inserts one immutable log row. The timestamp is taken by the
// database and written back to entry along with its id.
func (s *PostgresStore) AppendLog(ctx context.Context, entry *models.TrainingLog) error {
	if entry.Level == "" {
		entry.Level = models.LogLevelInfo
	}
	if !models.ValidLogLevel(entry.Level) {
		return fmt.Errorf("invalid log level %q", entry.Level)
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO training_logs (simulation_id, robot_id, user_id, log_level, message, timestamp)
		 VALUES ($1, $2, $3, $4, $5, clock_timestamp()) RETURNING id, timestamp`,
		entry.SimulationID, entry.RobotID, entry.UserID, entry.Level, entry.Message,
	).Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("append log: %w", ErrNotFound)
		}
		return dbError("append log", err)
	}
	return nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, simulationID int64, userID int64) ([]*models.TrainingLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, simulation_id, robot_id, user_id, log_level, message, timestamp
		 FROM training_logs WHERE simulation_id = $1 AND user_id = $2 ORDER BY timestamp ASC, id ASC`,
		simulationID, userID)
	if err != nil {
		return nil, dbError("list logs", err)
	}
	defer rows.Close()

	logs := []*models.TrainingLog{}
	for rows.Next() {
		var l models.TrainingLog
		if err := rows.Scan(&l.ID, &l.SimulationID, &l.RobotID, &l.UserID, &l.Level, &l.Message, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("scan training log: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list logs", err)
	}
	return logs, nil
}

func scanSimulation(row pgx.Row) (*models.Simulation, error) {
	var sim models.Simulation
	var params, results []byte
	err := row.Scan(&sim.ID, &sim.RobotID, &sim.UserID, &sim.Name, &sim.Status, &params, &results,
		&sim.ErrorMessage, &sim.StartedAt, &sim.CompletedAt, &sim.CreatedAt, &sim.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sim.Parameters = params
	if results != nil {
		var r models.TrainingResults
		if err := json.Unmarshal(results, &r); err != nil {
			return nil, fmt.Errorf("decode results of simulation %d: %w", sim.ID, err)
		}
		sim.Results = &r
	}
	return &sim, nil
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// dbError wraps a database failure, keeping the driver error in the chain.
// Data exceptions (class 22) and integrity violations (class 23) are the
// caller's fault and are not reported as ErrUnavailable.
func dbError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
