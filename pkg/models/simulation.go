// Package models contains shared data models used across the robot training codebase.
package models

import (
	"encoding/json"
	"time"
)

const (
	SimulationStatusPending   = "pending"
	SimulationStatusRunning   = "running"
	SimulationStatusCompleted = "completed"
	SimulationStatusFailed    = "failed"
)

// Simulation is one training run of a robot. The API creates it in pending;
// from then on only status transitions mutate it.
type Simulation struct {
	ID           int64            `db:"id"            json:"id"`
	RobotID      int64            `db:"robot_id"      json:"robot_id"`
	UserID       int64            `db:"user_id"       json:"user_id"`
	Name         string           `db:"name"          json:"name"`
	Status       string           `db:"status"        json:"status"`
	Parameters   json.RawMessage  `db:"parameters"    json:"parameters,omitempty"`
	Results      *TrainingResults `db:"results"       json:"results,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time       `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time       `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at"    json:"updated_at"`
}

// TrainingResults is the result record of a completed simulation.
type TrainingResults struct {
	TrainingDuration float64         `json:"training_duration"`
	Accuracy         float64         `json:"accuracy"`
	Loss             float64         `json:"loss"`
	Iterations       int             `json:"iterations"`
	SuccessRate      float64         `json:"success_rate"`
	Metrics          TrainingMetrics `json:"metrics"`
}

type TrainingMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
}
