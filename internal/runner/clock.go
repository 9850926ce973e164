package runner

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Clock suspends the runner between stages and poll cycles.
type Clock interface {
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// FaultSource decides the simulated work time of a stage and whether a
// stage reports a simulated error.
type FaultSource interface {
	Delay(min, max time.Duration) time.Duration
	Fault(probability float64) bool
}

type realClock struct{}

// RealClock sleeps on the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RandomFaults draws delays uniformly and faults with the given probability.
type RandomFaults struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomFaults returns a FaultSource backed by rnd, or by a randomly
// seeded generator when rnd is nil.
func NewRandomFaults(rnd *rand.Rand) *RandomFaults {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomFaults{rnd: rnd}
}

func (f *RandomFaults) Delay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return min + time.Duration(f.rnd.Int64N(int64(max-min)+1))
}

func (f *RandomFaults) Fault(probability float64) bool {
	if probability <= 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rnd.Float64() < probability
}
