// Package synthetic produces plausible but fabricated training results. It
// stands in for a real training backend.
package synthetic

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

// Bounds of every generated field, inclusive.
var (
	DurationRange    = [2]float64{30, 120}
	AccuracyRange    = [2]float64{0.75, 0.98}
	LossRange        = [2]float64{0.01, 0.25}
	IterationsRange  = [2]int{100, 1000}
	SuccessRateRange = [2]float64{0.85, 0.99}
	PrecisionRange   = [2]float64{0.80, 0.95}
	RecallRange      = [2]float64{0.75, 0.90}
	F1ScoreRange     = [2]float64{0.80, 0.92}
)

// Provider implements models.TrainingProvider with uniformly drawn values.
type Provider struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewProvider returns a Provider drawing from rnd. A nil rnd uses a randomly
// seeded source.
func NewProvider(rnd *rand.Rand) *Provider {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Provider{rnd: rnd}
}

func (p *Provider) Name() string { return "synthetic" }

func (p *Provider) Train(ctx context.Context, _ models.Simulation) (models.TrainingResults, error) {
	if err := ctx.Err(); err != nil {
		return models.TrainingResults{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return models.TrainingResults{
		TrainingDuration: p.uniform(DurationRange),
		Accuracy:         p.uniform(AccuracyRange),
		Loss:             p.uniform(LossRange),
		Iterations:       IterationsRange[0] + p.rnd.IntN(IterationsRange[1]-IterationsRange[0]+1),
		SuccessRate:      p.uniform(SuccessRateRange),
		Metrics: models.TrainingMetrics{
			Precision: p.uniform(PrecisionRange),
			Recall:    p.uniform(RecallRange),
			F1Score:   p.uniform(F1ScoreRange),
		},
	}, nil
}

func (p *Provider) uniform(r [2]float64) float64 {
	return r[0] + p.rnd.Float64()*(r[1]-r[0])
}

var _ models.TrainingProvider = (*Provider)(nil)
