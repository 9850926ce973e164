package runner_test

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kiranshivaraju/robotrainer/internal/lifecycle"
	"github.com/kiranshivaraju/robotrainer/internal/store"
	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

// fakeStore is an in-memory JobStore with the same conditional transition
// semantics as the Postgres store.
type fakeStore struct {
	mu          sync.Mutex
	sims        map[int64]*models.Simulation
	logs        []*models.TrainingLog
	history     map[int64][]string
	claimOrder  []int64
	appendCalls int

	listErr      error
	appendErr    func(call int, entry *models.TrainingLog) error
	beforeUpdate func(id int64, tr store.Transition)
}

func newFakeStore(sims ...*models.Simulation) *fakeStore {
	s := &fakeStore{
		sims:    make(map[int64]*models.Simulation),
		history: make(map[int64][]string),
	}
	for _, sim := range sims {
		s.add(sim)
	}
	return s
}

func (s *fakeStore) add(sim *models.Simulation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sim.Status == "" {
		sim.Status = models.SimulationStatusPending
	}
	s.sims[sim.ID] = sim
	s.history[sim.ID] = []string{sim.Status}
}

func (s *fakeStore) ListPending(_ context.Context, limit int) ([]*models.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []*models.Simulation{}
	for _, sim := range s.sims {
		if sim.Status == models.SimulationStatusPending {
			cp := *sim
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id int64, tr store.Transition) (*models.Simulation, error) {
	if s.beforeUpdate != nil {
		s.beforeUpdate(id, tr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.sims[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	target := lifecycle.Target(tr.Event())
	if !slices.Contains(lifecycle.Sources(tr.Event()), sim.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrTransitionConflict, sim.Status, target)
	}

	now := time.Now().UTC()
	switch t := tr.(type) {
	case store.ClaimRequest:
		sim.StartedAt = &now
		s.claimOrder = append(s.claimOrder, id)
	case store.CompleteRequest:
		results := t.Results
		sim.Results = &results
		sim.CompletedAt = &now
	case store.FailRequest:
		if sim.StartedAt == nil {
			sim.StartedAt = &now
		}
		sim.CompletedAt = &now
		sim.Results = nil
		reason := t.Reason
		sim.ErrorMessage = &reason
	}
	sim.Status = target
	sim.UpdatedAt = now
	s.history[id] = append(s.history[id], target)

	cp := *sim
	return &cp, nil
}

func (s *fakeStore) AppendLog(_ context.Context, entry *models.TrainingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if s.appendErr != nil {
		if err := s.appendErr(s.appendCalls, entry); err != nil {
			return err
		}
	}
	cp := *entry
	cp.ID = int64(len(s.logs) + 1)
	cp.Timestamp = time.Now().UTC()
	s.logs = append(s.logs, &cp)
	return nil
}

// setStatus forces a status change the way a concurrent actor would.
func (s *fakeStore) setStatus(id int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sims[id].Status = status
	s.history[id] = append(s.history[id], status)
}

func (s *fakeStore) get(id int64) models.Simulation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sims[id]
}

func (s *fakeStore) logsFor(id int64) []*models.TrainingLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TrainingLog
	for _, l := range s.logs {
		if l.SimulationID == id {
			out = append(out, l)
		}
	}
	return out
}

func (s *fakeStore) claims() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.claimOrder...)
}

// fakeClock records requested sleeps and returns immediately.
type fakeClock struct {
	mu      sync.Mutex
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// scriptedFaults always picks the lower delay bound and faults on the
// stages listed.
type scriptedFaults struct {
	mu     sync.Mutex
	calls  int
	faulty map[int]bool
	bounds [][2]time.Duration
}

func (f *scriptedFaults) Delay(min, max time.Duration) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounds = append(f.bounds, [2]time.Duration{min, max})
	return min
}

func (f *scriptedFaults) Fault(float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	stage := f.calls
	f.calls++
	return f.faulty[stage]
}

// fakeCache records every status written per simulation.
type fakeCache struct {
	mu       sync.Mutex
	statuses map[int64][]string
	err      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{statuses: make(map[int64][]string)}
}

func (c *fakeCache) Ping(context.Context) error { return nil }

func (c *fakeCache) SetSimulationStatus(_ context.Context, _, id int64, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.statuses[id] = append(c.statuses[id], status)
	return nil
}

func (c *fakeCache) GetSimulationStatus(_ context.Context, _, id int64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.statuses[id]
	if len(s) == 0 {
		return "", false, nil
	}
	return s[len(s)-1], true, nil
}

func (c *fakeCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func (c *fakeCache) written(id int64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.statuses[id]...)
}
