package mock

import (
	"context"

	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

// MockProvider satisfies models.TrainingProvider for testing.
type MockProvider struct {
	Name_     string
	TrainFunc func(ctx context.Context, sim models.Simulation) (models.TrainingResults, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Train(ctx context.Context, sim models.Simulation) (models.TrainingResults, error) {
	if m.TrainFunc != nil {
		return m.TrainFunc(ctx, sim)
	}
	return models.TrainingResults{}, nil
}

// FixedResults is what NewMockProvider returns for every simulation.
var FixedResults = models.TrainingResults{
	TrainingDuration: 45,
	Accuracy:         0.875,
	Loss:             0.12,
	Iterations:       250,
	SuccessRate:      0.9,
	Metrics: models.TrainingMetrics{
		Precision: 0.88,
		Recall:    0.8,
		F1Score:   0.84,
	},
}

// NewMockProvider returns a MockProvider that always yields FixedResults.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		TrainFunc: func(_ context.Context, _ models.Simulation) (models.TrainingResults, error) {
			return FixedResults, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		TrainFunc: func(_ context.Context, _ models.Simulation) (models.TrainingResults, error) {
			return models.TrainingResults{}, err
		},
	}
}

// NewPanickingProvider returns a MockProvider that panics with v.
func NewPanickingProvider(v any) *MockProvider {
	return &MockProvider{
		Name_: "mock-panicking",
		TrainFunc: func(_ context.Context, _ models.Simulation) (models.TrainingResults, error) {
			panic(v)
		},
	}
}

// Compile-time check that MockProvider implements TrainingProvider.
var _ models.TrainingProvider = (*MockProvider)(nil)
