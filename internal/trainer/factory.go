// Package trainer selects the backend that produces simulation results.
package trainer

import (
	"fmt"

	"github.com/kiranshivaraju/robotrainer/internal/config"
	"github.com/kiranshivaraju/robotrainer/internal/trainer/remote"
	"github.com/kiranshivaraju/robotrainer/internal/trainer/synthetic"
	"github.com/kiranshivaraju/robotrainer/pkg/models"
)

// NewProvider constructs the training provider named in config.
// Called once at runner startup.
func NewProvider(cfg config.TrainerConfig) (models.TrainingProvider, error) {
	switch cfg.Provider {
	case "synthetic":
		return synthetic.NewProvider(nil), nil
	case "remote":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("remote training provider requires a base URL")
		}
		return remote.NewProvider(cfg.BaseURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown training provider %q: must be one of synthetic, remote", cfg.Provider)
	}
}
