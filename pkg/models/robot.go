package models

import (
	"encoding/json"
	"time"
)

// User owns robots, simulations and API keys.
type User struct {
	ID        int64     `db:"id"         json:"id"`
	Username  string    `db:"username"   json:"username"`
	Email     string    `db:"email"      json:"email"`
	IsActive  bool      `db:"is_active"  json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Robot is a registered robot configuration. Simulations reference it read-only.
type Robot struct {
	ID            int64           `db:"id"            json:"id"`
	UserID        int64           `db:"user_id"       json:"user_id"`
	Name          string          `db:"name"          json:"name"`
	RobotType     string          `db:"robot_type"    json:"robot_type"`
	Configuration json.RawMessage `db:"configuration" json:"configuration,omitempty"`
	Status        string          `db:"status"        json:"status"`
	CreatedAt     time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"    json:"updated_at"`
}
