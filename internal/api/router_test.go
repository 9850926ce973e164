package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/robotrainer/internal/api"
	"github.com/kiranshivaraju/robotrainer/internal/api/handler"
	mw "github.com/kiranshivaraju/robotrainer/internal/api/middleware"
	"github.com/kiranshivaraju/robotrainer/internal/lifecycle"
	"github.com/kiranshivaraju/robotrainer/internal/store"
	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

const (
	writerKey = "rt_write_contract_key_1234567890"
	readerKey = "rt_read__contract_key_1234567890"
	userID    = int64(7)
	robotID   = int64(70)
)

// --- in-memory store ---

type memStore struct {
	mu   sync.Mutex
	keys []*models.APIKey
	sims map[int64]*models.Simulation
	next int64
}

func newMemStore(t *testing.T) *memStore {
	t.Helper()
	hash := func(raw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
		require.NoError(t, err)
		return string(h)
	}
	return &memStore{
		keys: []*models.APIKey{
			{ID: uuid.New(), UserID: userID, KeyHash: hash(writerKey), KeyPrefix: writerKey[:8], Scopes: []string{"read", api.ScopeWrite}},
			{ID: uuid.New(), UserID: userID, KeyHash: hash(readerKey), KeyPrefix: readerKey[:8], Scopes: []string{"read"}},
		},
		sims: map[int64]*models.Simulation{},
	}
}

func (s *memStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }

func (s *memStore) GetRobot(_ context.Context, id int64, uid int64) (*models.Robot, error) {
	if id != robotID || uid != userID {
		return nil, store.ErrNotFound
	}
	return &models.Robot{ID: robotID, UserID: userID, Name: "arm"}, nil
}

func (s *memStore) CreateSimulation(_ context.Context, sim *models.Simulation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	sim.ID = s.next
	sim.Status = models.SimulationStatusPending
	cp := *sim
	s.sims[sim.ID] = &cp
	return nil
}

func (s *memStore) GetSimulation(_ context.Context, id int64, uid int64) (*models.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.sims[id]
	if !ok || sim.UserID != uid {
		return nil, store.ErrNotFound
	}
	cp := *sim
	return &cp, nil
}

func (s *memStore) ListSimulations(_ context.Context, uid int64) ([]*models.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Simulation{}
	for id := int64(1); id <= s.next; id++ {
		if sim, ok := s.sims[id]; ok && sim.UserID == uid {
			cp := *sim
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id int64, tr store.Transition) (*models.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.sims[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(lifecycle.Sources(tr.Event()), sim.Status) {
		return nil, fmt.Errorf("%w: %s", store.ErrTransitionConflict, sim.Status)
	}
	sim.Status = lifecycle.Target(tr.Event())
	if c, ok := tr.(store.CompleteRequest); ok {
		res := c.Results
		sim.Results = &res
	}
	cp := *sim
	return &cp, nil
}

func (s *memStore) ListLogs(context.Context, int64, int64) ([]*models.TrainingLog, error) {
	return []*models.TrainingLog{}, nil
}

// --- counter ---

type fixedCounter struct{ n int64 }

func (c *fixedCounter) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return c.n, nil
}

// --- harness ---

func newTestRouter(t *testing.T, counter *fixedCounter) http.Handler {
	t.Helper()
	ms := newMemStore(t)
	sims := handler.NewSimulations(ms, nil, time.Minute)
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(counter, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		CreateSimulation:   sims.Create,
		ListSimulations:    sims.List,
		GetSimulation:      sims.Get,
		SimulationStatus:   sims.Status,
		StartSimulation:    sims.Start,
		CompleteSimulation: sims.Complete,
		SimulationLogs:     sims.Logs,
	})
}

func request(t *testing.T, router http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body["error"].(map[string]any)["code"].(string)
}

// --- router tests ---

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(t, &fixedCounter{n: 1})

	w := request(t, router, "GET", "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t, &fixedCounter{n: 1})

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/simulations"},
		{"GET", "/api/v1/simulations"},
		{"GET", "/api/v1/simulations/1"},
		{"GET", "/api/v1/simulations/1/status"},
		{"GET", "/api/v1/simulations/1/logs"},
		{"PUT", "/api/v1/simulations/1/start"},
		{"PUT", "/api/v1/simulations/1/complete"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := request(t, router, ep.method, ep.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errCode(t, w))
		})
	}
}

func TestRouter_WriteScopeRequired(t *testing.T) {
	router := newTestRouter(t, &fixedCounter{n: 1})

	w := request(t, router, "GET", "/api/v1/simulations", readerKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, router, "POST", "/api/v1/simulations", readerKey, map[string]any{"name": "x", "robot_id": robotID})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errCode(t, w))

	w = request(t, router, "PUT", "/api/v1/simulations/1/start", readerKey, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_SimulationLifecycle(t *testing.T) {
	router := newTestRouter(t, &fixedCounter{n: 1})

	w := request(t, router, "POST", "/api/v1/simulations", writerKey, map[string]any{"name": "grasping", "robot_id": robotID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data models.Simulation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.SimulationStatusPending, created.Data.Status)
	base := fmt.Sprintf("/api/v1/simulations/%d", created.Data.ID)

	w = request(t, router, "PUT", base+"/complete", writerKey, map[string]any{"results": map[string]any{"accuracy": 0.8}})
	assert.Equal(t, http.StatusConflict, w.Code, "pending cannot complete")

	w = request(t, router, "PUT", base+"/start", writerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = request(t, router, "PUT", base+"/start", writerKey, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", errCode(t, w))

	w = request(t, router, "PUT", base+"/complete", writerKey, map[string]any{"results": map[string]any{"accuracy": 0.8}})
	require.Equal(t, http.StatusOK, w.Code)

	w = request(t, router, "GET", base+"/status", readerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.SimulationStatusCompleted, status.Data.Status)
}

func TestRouter_RateLimited(t *testing.T) {
	router := newTestRouter(t, &fixedCounter{n: 61})

	w := request(t, router, "GET", "/api/v1/simulations", readerKey, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouter_NotImplementedPlaceholder(t *testing.T) {
	ms := newMemStore(t)
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(&fixedCounter{n: 1}, 60),
	})

	w := request(t, router, "GET", "/api/v1/simulations", readerKey, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "NOT_IMPLEMENTED", errCode(t, w))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t, &fixedCounter{n: 1})

	w := request(t, router, "GET", "/api/v1/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, w))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &fixedCounter{n: 1})

	w := request(t, router, "DELETE", "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

var (
	_ mw.KeyStore             = (*memStore)(nil)
	_ handler.SimulationStore = (*memStore)(nil)
)
