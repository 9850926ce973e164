// Package remote delegates training to an external backend over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

// Sentinel errors for training backend failures.
var (
	ErrBackendUnreachable = errors.New("training backend unreachable")
	ErrBackendRejected    = errors.New("training backend rejected request")
	ErrBackendTimeout     = errors.New("training backend timeout")
	ErrInvalidResponse    = errors.New("training backend returned invalid response")
)

// Provider implements models.TrainingProvider against the backend's
// POST /v1/train endpoint.
type Provider struct {
	baseURL string
	client  *http.Client
}

// NewProvider creates a new remote training provider.
func NewProvider(baseURL string, timeout time.Duration) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "remote" }

type trainRequest struct {
	SimulationID int64           `json:"simulation_id"`
	RobotID      int64           `json:"robot_id"`
	UserID       int64           `json:"user_id"`
	Name         string          `json:"name"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
}

type trainResponse struct {
	Results *models.TrainingResults `json:"results"`
}

func (p *Provider) Train(ctx context.Context, sim models.Simulation) (models.TrainingResults, error) {
	body, err := json.Marshal(trainRequest{
		SimulationID: sim.ID,
		RobotID:      sim.RobotID,
		UserID:       sim.UserID,
		Name:         sim.Name,
		Parameters:   sim.Parameters,
	})
	if err != nil {
		return models.TrainingResults{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/train", bytes.NewReader(body))
	if err != nil {
		return models.TrainingResults{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.TrainingResults{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.TrainingResults{}, fmt.Errorf("%w: status %d", ErrBackendRejected, resp.StatusCode)
	}

	var out trainResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.TrainingResults{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Results == nil {
		return models.TrainingResults{}, fmt.Errorf("%w: missing results", ErrInvalidResponse)
	}

	return *out.Results, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
}

// Compile-time check that Provider implements TrainingProvider.
var _ models.TrainingProvider = (*Provider)(nil)
